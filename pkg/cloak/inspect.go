package cloak

import (
	"io"

	"github.com/jmallory/cloak/internal/audiostego"
	"github.com/jmallory/cloak/internal/carrier"
	"github.com/jmallory/cloak/internal/container"
	"github.com/jmallory/cloak/internal/docstego"
	"github.com/jmallory/cloak/internal/imagestego"
	"github.com/jmallory/cloak/internal/videostego"
)

// Info is container header metadata readable without a password.
type Info struct {
	Family        string
	Version       int
	Type          PayloadType
	Compressed    bool
	Filename      string
	CiphertextLen int
}

// Inspect reports the container header found in the stego carrier at
// path, or ErrNoHiddenData. It never needs the password: everything
// before the ciphertext is plaintext structure.
func Inspect(path string) (*Info, error) {
	d, err := carrier.Sniff(path)
	if err != nil {
		return nil, err
	}

	read, err := readerFor(d)
	if err != nil {
		return nil, mapDecodeErr(err)
	}
	info, err := container.Inspect(read)
	if err != nil {
		return nil, mapDecodeErr(err)
	}

	out := &Info{
		Family:        info.Family.String(),
		Version:       int(info.Version),
		Compressed:    info.Compressed,
		Filename:      info.Filename,
		CiphertextLen: info.CiphertextLen,
	}
	if info.Type == container.TypeFile {
		out.Type = File
	}
	return out, nil
}

// readerFor returns a container ReadFunc over the carrier's direct
// extraction channel.
func readerFor(d *carrier.Descriptor) (container.ReadFunc, error) {
	switch d.Family {
	case carrier.FamilyImage:
		return imagestego.Extract(d.Path)
	case carrier.FamilyAudio:
		if d.Compression == carrier.Lossy {
			raw, err := audiostego.ExtractMP3(d.Path)
			if err != nil {
				return nil, err
			}
			return bytesReader(raw), nil
		}
		return audiostego.Extract(d.Path)
	case carrier.FamilyVideo:
		raw, err := videostego.ExtractY4M(d.Path)
		if err != nil {
			return nil, err
		}
		return bytesReader(raw), nil
	case carrier.FamilyDocument:
		var raw []byte
		var err error
		if d.Format == "pdf" {
			raw, err = docstego.ExtractPDF(d.Path)
		} else {
			raw, err = docstego.ExtractZip(d.Path)
		}
		if err != nil {
			return nil, err
		}
		return bytesReader(raw), nil
	}
	return nil, ErrUnsupportedFormat
}

func bytesReader(raw []byte) container.ReadFunc {
	off := 0
	return func(n int) ([]byte, error) {
		if off+n > len(raw) {
			return nil, io.ErrUnexpectedEOF
		}
		b := raw[off : off+n]
		off += n
		return b, nil
	}
}
