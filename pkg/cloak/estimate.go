package cloak

import (
	"fmt"

	"github.com/jmallory/cloak/internal/audiostego"
	"github.com/jmallory/cloak/internal/carrier"
	"github.com/jmallory/cloak/internal/container"
	"github.com/jmallory/cloak/internal/docstego"
	"github.com/jmallory/cloak/internal/imagestego"
	"github.com/jmallory/cloak/internal/videostego"
)

// Estimate returns the maximum payload bytes the carrier at path can
// hold with the given options, so callers can validate payload size
// before invoking Embed. The figure assumes a text payload; file
// payloads lose a further len(filename) bytes to the container
// header.
func Estimate(path string, opts Options) (int64, error) {
	o := opts.withDefaults()
	d, err := carrier.Sniff(path)
	if err != nil {
		return 0, err
	}
	capacity, err := capacityFor(d, o)
	if err != nil {
		return 0, err
	}
	max := capacity - int64(container.Overhead(0))
	if max < 0 {
		max = 0
	}
	return max, nil
}

// capacityFor returns the container bytes the carrier can hold. For
// the video direct path this already accounts for Reed-Solomon
// expansion.
func capacityFor(d *carrier.Descriptor, o Options) (int64, error) {
	switch d.Family {
	case carrier.FamilyImage:
		if d.Compression == carrier.Lossy {
			return 0, fmt.Errorf("%w: lossy image formats are unreliable carriers", ErrUnsupportedFormat)
		}
		return imagestego.Capacity(d.Width, d.Height, o.Channels, o.BitsPerChannel), nil

	case carrier.FamilyAudio:
		if d.Compression == carrier.Lossy {
			return audiostego.MP3Capacity, nil
		}
		samples, err := audiostego.SampleCount(d.Path)
		if err != nil {
			return 0, err
		}
		return audiostego.Capacity(samples, o.BitsPerSample), nil

	case carrier.FamilyVideo:
		if d.Compression == carrier.Lossless {
			armoredCap, err := videostego.CapacityY4M(d.Path)
			if err != nil {
				return 0, err
			}
			return armoredCap/6*4 - 4, nil
		}
		// Frame-directory budget for lossy video; needs parseable
		// container metadata.
		if d.Width == 0 || d.Height == 0 || d.Frames == 0 {
			return 0, fmt.Errorf("%w: cannot determine video dimensions for capacity", ErrUnsupportedFormat)
		}
		return videostego.FrameCapacity(d.Width, d.Height, d.Frames), nil

	case carrier.FamilyDocument:
		if d.Format == "pdf" {
			return docstego.PDFCapacity, nil
		}
		return docstego.ZipCapacity(), nil
	}
	return 0, ErrUnsupportedFormat
}
