package cloak

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

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

// Embed hides payload inside the carrier at carrierPath and writes
// the stego carrier to outPath. Capacity is validated before any
// output is written; an oversized payload returns a CapacityError and
// leaves no file behind.
func Embed(ctx context.Context, carrierPath, outPath string, payload Payload, opts Options) (*EmbedResult, error) {
	o := opts.withDefaults()
	secret := credential.Normalize(o.Password)

	d, err := carrier.Sniff(carrierPath)
	if err != nil {
		return nil, err
	}

	if payload.Type == File && payload.Filename == "" {
		payload.Filename = filepath.Base(carrierPath) + ".bin"
	}
	if payload.Type == Text {
		payload.Filename = ""
	}

	raw, err := container.Encode(d.Family, container.Payload{
		Type:     toContainerType(payload.Type),
		Filename: payload.Filename,
		Data:     payload.Data,
	}, secret, o.Compress)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("carrier", carrierPath).Str("family", d.Family.String()).
		Str("format", d.Format).Int("containerBytes", len(raw)).
		Str("password", secret.Redacted()).
		Msg("embedding payload")

	result := &EmbedResult{ContainerBytes: len(raw)}

	switch d.Family {
	case carrier.FamilyImage:
		if d.Compression == carrier.Lossy {
			return nil, fmt.Errorf("%w: %s recompression destroys embedded bits; use a lossless format", ErrUnsupportedFormat, d.Format)
		}
		if err := checkCapacity(d, len(raw), payload, o); err != nil {
			return nil, err
		}
		if o.DryRun {
			return result, nil
		}
		if err := imagestego.Embed(carrierPath, outPath, raw, o.BitsPerChannel, o.Channels); err != nil {
			return nil, err
		}

	case carrier.FamilyAudio:
		if err := checkCapacity(d, len(raw), payload, o); err != nil {
			return nil, err
		}
		if o.DryRun {
			return result, nil
		}
		if d.Compression == carrier.Lossy {
			if err := audiostego.EmbedMP3(carrierPath, outPath, raw); err != nil {
				return nil, err
			}
		} else if err := audiostego.Embed(carrierPath, outPath, raw, o.BitsPerSample); err != nil {
			return nil, err
		}

	case carrier.FamilyVideo:
		if d.Compression == carrier.Lossless {
			if err := checkCapacity(d, len(raw), payload, o); err != nil {
				return nil, err
			}
			if o.DryRun {
				return result, nil
			}
			if err := videostego.EmbedY4M(carrierPath, outPath, raw); err != nil {
				return nil, err
			}
		} else {
			key, err := embedLossyVideo(ctx, carrierPath, outPath, raw, secret, o)
			if err != nil {
				return nil, err
			}
			result.FrameDirectoryKey = key
		}

	case carrier.FamilyDocument:
		if err := checkCapacity(d, len(raw), payload, o); err != nil {
			return nil, err
		}
		if o.DryRun {
			return result, nil
		}
		if d.Format == "pdf" {
			if err := docstego.EmbedPDF(carrierPath, outPath, raw); err != nil {
				return nil, err
			}
		} else if err := docstego.EmbedZip(carrierPath, outPath, raw); err != nil {
			return nil, err
		}

	default:
		return nil, ErrUnsupportedFormat
	}

	return result, nil
}

// checkCapacity fails fast with a CapacityError before any write.
func checkCapacity(d *carrier.Descriptor, containerSize int, payload Payload, o Options) error {
	available, err := capacityFor(d, o)
	if err != nil {
		return err
	}
	if int64(containerSize) > available {
		return &carrier.CapacityError{Required: int64(containerSize), Available: available}
	}
	return nil
}

// embedLossyVideo runs the two-tier video path: decode frames, spread
// the container across them, preserve the stego frames losslessly in
// the frame directory, then recompose a lossy output. The directory,
// not the output file, is the reliable extraction source.
func embedLossyVideo(ctx context.Context, carrierPath, outPath string, raw []byte, secret credential.Secret, o Options) (string, error) {
	if o.FrameStore == "" {
		return "", fmt.Errorf("lossy video embedding requires a frame store path")
	}

	workDir, err := os.MkdirTemp("", "cloak-frames-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(workDir)

	frames, err := videostego.DecodeFrames(ctx, carrierPath, workDir)
	if err != nil {
		return "", err
	}

	props := credential.DirectoryProps{
		Width:      frames[0].Bounds().Dx(),
		Height:     frames[0].Bounds().Dy(),
		FrameCount: len(frames),
	}
	key := secret.DirectoryKey(props)

	capacity := videostego.FrameCapacity(props.Width, props.Height, props.FrameCount)
	if int64(len(raw)) > capacity {
		return "", &carrier.CapacityError{Required: int64(len(raw)), Available: capacity}
	}
	if o.DryRun {
		return key, nil
	}

	store, err := framedir.Open(o.FrameStore)
	if err != nil {
		return "", err
	}
	defer store.Close()

	if err := videostego.EmbedFrames(ctx, store, key, frames, raw, o.Workers); err != nil {
		return "", err
	}

	if err := videostego.EncodeVideo(ctx, filepath.Join(o.FrameStore, key), outPath, o.FPS); err != nil {
		return "", err
	}
	return key, nil
}
