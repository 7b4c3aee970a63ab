// Package carrier identifies cover media: family, format, compression
// class and the size attributes the capacity math needs.
package carrier

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/abema/go-mp4"
	"github.com/tosone/minimp3"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
)

// Family is the carrier media family. It selects the embedding engine
// and the container magic.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyImage
	FamilyAudio
	FamilyVideo
	FamilyDocument
)

func (f Family) String() string {
	switch f {
	case FamilyImage:
		return "image"
	case FamilyAudio:
		return "audio"
	case FamilyVideo:
		return "video"
	case FamilyDocument:
		return "document"
	}
	return "unknown"
}

// Compression classifies whether the carrier's format preserves exact
// sample values. Lossy carriers cannot use direct bit-level extraction.
type Compression int

const (
	Lossless Compression = iota
	Lossy
)

// Descriptor describes one carrier file.
type Descriptor struct {
	Path        string
	Family      Family
	Format      string // "png", "wav", "mp4", ...
	Compression Compression

	// Image / video
	Width  int
	Height int
	Frames int

	// Audio
	SampleCount int
	SampleRate  int
	BitDepth    int
	Channels    int

	Size int64
}

// ErrUnsupported reports a carrier no engine recognizes.
var ErrUnsupported = errors.New("unsupported carrier format")

// CapacityError reports a payload that does not fit the carrier. It
// is returned before any output is written.
type CapacityError struct {
	Required  int64
	Available int64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("payload needs %d bytes but carrier holds %d", e.Required, e.Available)
}

// lossyVideoExts is the denylist of video containers whose encoders
// perturb pixel values. Direct extraction against these is skipped
// outright rather than attempted and half-failed.
var lossyVideoExts = map[string]bool{
	".mp4": true,
	".m4v": true,
	".mov": true,
	".avi": true,
	".mkv": true,
	".webm": true,
}

// IsLossyVideoExt reports whether the path's extension is on the
// lossy-video denylist.
func IsLossyVideoExt(path string) bool {
	return lossyVideoExts[strings.ToLower(filepath.Ext(path))]
}

// Sniff inspects the file at path and returns its descriptor. The
// extension picks the family; the signature bytes are checked so a
// mislabeled file fails fast instead of corrupting an engine.
func Sniff(path string) (*Descriptor, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	d := &Descriptor{Path: path, Size: fi.Size()}
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".png", ".bmp":
		d.Family = FamilyImage
		d.Format = strings.TrimPrefix(ext, ".")
		d.Compression = Lossless
		if err := sniffImage(d); err != nil {
			return nil, err
		}
	case ".jpg", ".jpeg", ".gif":
		d.Family = FamilyImage
		d.Format = strings.TrimPrefix(ext, ".")
		d.Compression = Lossy
		if err := sniffImage(d); err != nil {
			return nil, err
		}
	case ".wav":
		d.Family = FamilyAudio
		d.Format = "wav"
		d.Compression = Lossless
		if err := sniffWAV(d); err != nil {
			return nil, err
		}
	case ".mp3":
		d.Family = FamilyAudio
		d.Format = "mp3"
		d.Compression = Lossy
		if err := sniffMP3(d); err != nil {
			return nil, err
		}
	case ".y4m":
		d.Family = FamilyVideo
		d.Format = "y4m"
		d.Compression = Lossless
	case ".mp4", ".m4v", ".mov", ".avi", ".mkv", ".webm":
		d.Family = FamilyVideo
		d.Format = strings.TrimPrefix(ext, ".")
		d.Compression = Lossy
		sniffMP4(d) // best effort; lossy video may still resolve via a frame directory
	case ".pdf":
		d.Family = FamilyDocument
		d.Format = "pdf"
		d.Compression = Lossless
		if err := expectPrefix(path, []byte("%PDF")); err != nil {
			return nil, err
		}
	case ".zip", ".docx", ".xlsx", ".pptx", ".odt":
		d.Family = FamilyDocument
		d.Format = "zip"
		d.Compression = Lossless
		if err := expectPrefix(path, []byte("PK\x03\x04")); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}

	return d, nil
}

func sniffImage(d *Descriptor) error {
	f, err := os.Open(d.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	d.Format = format
	d.Width = cfg.Width
	d.Height = cfg.Height
	d.Channels = 4
	return nil
}

func sniffWAV(d *Descriptor) error {
	raw, err := os.ReadFile(d.Path)
	if err != nil {
		return err
	}
	if len(raw) < 44 || !bytes.HasPrefix(raw, []byte("RIFF")) || !bytes.Equal(raw[8:12], []byte("WAVE")) {
		return fmt.Errorf("%w: not a RIFF/WAVE file", ErrUnsupported)
	}
	// Details (sample count, bit depth) come from the audio engine's
	// full decode; the sniff records only what the header states.
	return nil
}

func sniffMP3(d *Descriptor) error {
	raw, err := os.ReadFile(d.Path)
	if err != nil {
		return err
	}
	dec, pcm, err := minimp3.DecodeFull(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	defer dec.Close()
	d.SampleRate = dec.SampleRate
	d.Channels = dec.Channels
	d.BitDepth = 16
	d.SampleCount = len(pcm) / 2
	return nil
}

// sniffMP4 fills video dimensions and frame count when the container
// parses. Failure is tolerated: the extraction selector still needs a
// descriptor to decide the frame-directory route.
func sniffMP4(d *Descriptor) {
	f, err := os.Open(d.Path)
	if err != nil {
		return
	}
	defer f.Close()

	info, err := mp4.Probe(f)
	if err != nil {
		return
	}
	for _, track := range info.Tracks {
		if track.AVC == nil {
			continue
		}
		d.Width = int(track.AVC.Width)
		d.Height = int(track.AVC.Height)
		// Sample count of the video track is the frame count for
		// constant-frame-rate output.
		d.Frames = len(track.Samples)
		break
	}
}

func expectPrefix(path string, prefix []byte) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	head := make([]byte, len(prefix))
	if _, err := io.ReadFull(f, head); err != nil || !bytes.Equal(head, prefix) {
		return fmt.Errorf("%w: signature mismatch", ErrUnsupported)
	}
	return nil
}
