package cloak

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/jmallory/cloak/internal/audiostego"
	"github.com/jmallory/cloak/internal/carrier"
	"github.com/jmallory/cloak/internal/container"
	"github.com/jmallory/cloak/internal/credential"
	"github.com/jmallory/cloak/internal/docstego"
	"github.com/jmallory/cloak/internal/framedir"
	"github.com/jmallory/cloak/internal/imagestego"
	"github.com/jmallory/cloak/internal/videostego"
)

// Extract recovers the payload hidden in the stego carrier at path.
// For video carriers an ordered strategy list is tried: direct
// bit-level reading (skipped outright for known-lossy containers),
// then preserved-frame-directory lookup, then a single layered
// unwrap. Failure returns a typed error; ErrNoHiddenData and
// ErrWrongPasswordOrCorrupt are the two calibrated outcomes.
func Extract(ctx context.Context, path string, opts Options) (*Payload, error) {
	o := opts.withDefaults()
	secret := credential.Normalize(o.Password)

	d, err := carrier.Sniff(path)
	if err != nil {
		return nil, err
	}

	var payload *container.Payload
	switch d.Family {
	case carrier.FamilyImage:
		payload, err = extractImage(path, secret)
	case carrier.FamilyAudio:
		payload, err = extractAudio(d, secret)
	case carrier.FamilyVideo:
		payload, err = extractVideo(ctx, path, secret, o)
	case carrier.FamilyDocument:
		payload, err = extractDocument(d, secret)
	default:
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, err
	}

	payload = maybeUnwrap(payload, secret)
	return fromContainer(payload), nil
}

func extractImage(path string, secret credential.Secret) (*container.Payload, error) {
	read, err := imagestego.Extract(path)
	if err != nil {
		return nil, mapDecodeErr(err)
	}
	p, err := container.DecodeFrom(read, carrier.FamilyImage, secret)
	return p, mapDecodeErr(err)
}

func extractAudio(d *carrier.Descriptor, secret credential.Secret) (*container.Payload, error) {
	if d.Compression == carrier.Lossy {
		raw, err := audiostego.ExtractMP3(d.Path)
		if err != nil {
			return nil, mapDecodeErr(err)
		}
		p, err := container.Decode(raw, carrier.FamilyAudio, secret)
		return p, mapDecodeErr(err)
	}
	read, err := audiostego.Extract(d.Path)
	if err != nil {
		return nil, mapDecodeErr(err)
	}
	p, err := container.DecodeFrom(read, carrier.FamilyAudio, secret)
	return p, mapDecodeErr(err)
}

func extractDocument(d *carrier.Descriptor, secret credential.Secret) (*container.Payload, error) {
	var raw []byte
	var err error
	if d.Format == "pdf" {
		raw, err = docstego.ExtractPDF(d.Path)
	} else {
		raw, err = docstego.ExtractZip(d.Path)
	}
	if err != nil {
		return nil, mapDecodeErr(err)
	}
	p, err := container.Decode(raw, carrier.FamilyDocument, secret)
	return p, mapDecodeErr(err)
}

// extractVideo walks the strategy list. Direct extraction is cheap
// relative to a directory search, so it leads whenever it is
// plausible; the denylist skips it entirely for containers whose
// encoders are known to perturb pixel values, where a partial read
// yields misleading garbage instead of a clean fallback signal.
func extractVideo(ctx context.Context, path string, secret credential.Secret, o Options) (*container.Payload, error) {
	if !carrier.IsLossyVideoExt(path) {
		log.Debug().Str("strategy", "direct").Msg("trying direct bit-level extraction")
		raw, err := videostego.ExtractY4M(path)
		if err == nil {
			p, err := container.Decode(raw, carrier.FamilyVideo, secret)
			if err == nil {
				return p, nil
			}
			if !errors.Is(err, container.ErrBadMagic) {
				return nil, mapDecodeErr(err)
			}
		} else if !errors.Is(err, container.ErrBadMagic) && !errors.Is(err, carrier.ErrUnsupported) && !errors.Is(err, container.ErrTruncated) {
			return nil, err
		}
		log.Debug().Msg("direct extraction found no container; falling back")
	} else {
		log.Debug().Str("strategy", "frame-directory").Msg("lossy container, skipping direct extraction")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.FrameStore == "" {
		return nil, ErrNoHiddenData
	}

	props, err := videostego.Probe(path)
	if err != nil {
		// Without stable properties no directory key can be derived.
		return nil, ErrNoHiddenData
	}

	store, err := framedir.Open(o.FrameStore)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	for _, key := range []string{secret.DirectoryKey(props), credential.PropertyKey(props)} {
		entry, err := store.Lookup(key)
		if errors.Is(err, framedir.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		log.Debug().Str("key", key).Int("frames", entry.FrameCount).Msg("found frame directory")

		read, err := videostego.DirectoryReader(store, entry)
		if err != nil {
			return nil, mapDecodeErr(err)
		}
		p, err := container.DecodeFrom(read, carrier.FamilyVideo, secret)
		return p, mapDecodeErr(err)
	}

	return nil, ErrNoHiddenData
}

// maybeUnwrap performs at most one layered-container unwrap. The
// detector is conservative and fails closed, so ordinary payloads
// that merely resemble a container pass through untouched.
func maybeUnwrap(p *container.Payload, secret credential.Secret) *container.Payload {
	if !container.LooksLayered(p.Data) {
		return p
	}
	log.Debug().Msg("payload looks like a nested container; attempting one unwrap")
	for _, family := range []carrier.Family{
		carrier.FamilyImage, carrier.FamilyAudio, carrier.FamilyVideo, carrier.FamilyDocument,
	} {
		inner, err := container.Decode(p.Data, family, secret)
		if err == nil {
			return inner
		}
		if !errors.Is(err, container.ErrBadMagic) {
			break
		}
	}
	return p
}
