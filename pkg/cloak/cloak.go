// Package cloak embeds and extracts encrypted payloads inside carrier
// media: images, audio, video and documents. It is the codec and
// capacity layer only; upload handling, persistence of outputs and
// user-facing policy belong to the caller.
package cloak

import (
	"errors"
	"fmt"

	"github.com/jmallory/cloak/internal/carrier"
	"github.com/jmallory/cloak/internal/container"
)

// PayloadType tags the hidden content.
type PayloadType int

const (
	Text PayloadType = iota
	File
)

func (t PayloadType) String() string {
	if t == File {
		return "file"
	}
	return "text"
}

// Payload is the unit hidden inside a carrier. Filename is set only
// for File payloads.
type Payload struct {
	Type     PayloadType
	Filename string
	Data     []byte
}

// Options tune an embed or extract operation. The zero value is
// usable: no password, default densities, no compression.
type Options struct {
	// Password protects the payload. Empty means no password; the
	// credential normalizer collapses empty and absent to the same
	// canonical secret, so mixing the two between embed and extract
	// is harmless.
	Password string

	// BitsPerChannel and Channels set the image engine density.
	// Defaults: 1 bit, 3 channels.
	BitsPerChannel int
	Channels       int

	// BitsPerSample sets the audio engine density. Default: 1.
	BitsPerSample int

	// Compress squeezes the payload with xz before encryption when
	// it actually shrinks.
	Compress bool

	// FrameStore is the root directory of the frame-directory store.
	// Required for lossy video carriers.
	FrameStore string

	// Workers bounds frame-processing concurrency. 0 means 1.
	Workers int

	// FPS for recomposed lossy video output. 0 means 30.
	FPS int

	// DryRun validates capacity without writing output.
	DryRun bool
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.BitsPerChannel == 0 {
		out.BitsPerChannel = 1
	}
	if out.Channels == 0 {
		out.Channels = 3
	}
	if out.BitsPerSample == 0 {
		out.BitsPerSample = 1
	}
	if out.Workers == 0 {
		out.Workers = 1
	}
	return out
}

// EmbedResult reports what an embed wrote.
type EmbedResult struct {
	// ContainerBytes is the serialized container size placed in the
	// carrier.
	ContainerBytes int

	// FrameDirectoryKey is set for lossy video carriers: the lookup
	// hash of the preserved-frame directory the caller must keep
	// retrievable for later extraction.
	FrameDirectoryKey string
}

// Failure taxonomy. All are recoverable, typed results; only carrier
// I/O failures surface as opaque errors.
var (
	// ErrNoHiddenData: no strategy found a valid container. The
	// normal outcome for carriers with nothing embedded.
	ErrNoHiddenData = errors.New("no hidden data found")

	// ErrWrongPasswordOrCorrupt: a container was found and parsed
	// but did not authenticate. Wrong password and corrupted carrier
	// present identically and are deliberately not distinguished.
	ErrWrongPasswordOrCorrupt = errors.New("wrong password or corrupted carrier")

	// ErrUnsupportedFormat: no engine recognizes the carrier.
	ErrUnsupportedFormat = carrier.ErrUnsupported

	// ErrIntegrity: a container length field points past the bits
	// the carrier actually holds.
	ErrIntegrity = errors.New("container integrity violation")
)

// CapacityError is returned from Embed before any output is written
// when the payload cannot fit.
type CapacityError = carrier.CapacityError

// mapDecodeErr translates codec sentinels into the public taxonomy.
func mapDecodeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, container.ErrBadMagic):
		return ErrNoHiddenData
	case errors.Is(err, container.ErrAuth), errors.Is(err, container.ErrDigest):
		return ErrWrongPasswordOrCorrupt
	case errors.Is(err, container.ErrTruncated):
		return fmt.Errorf("%w: %v", ErrIntegrity, err)
	default:
		return err
	}
}

func toContainerType(t PayloadType) container.PayloadType {
	if t == File {
		return container.TypeFile
	}
	return container.TypeText
}

func fromContainer(p *container.Payload) *Payload {
	out := &Payload{Data: p.Data}
	if p.Type == container.TypeFile {
		out.Type = File
		out.Filename = p.Filename
	}
	return out
}
