package docstego

import (
	"archive/zip"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jmallory/cloak/internal/carrier"
	"github.com/jmallory/cloak/internal/container"
)

// zipPrefix marks our payload inside the archive comment so a
// pre-existing ordinary comment is never mistaken for a container.
const zipPrefix = "cloak:"

const maxZipComment = 65535

// ZipCapacity returns the container bytes the archive comment holds
// after the marker and base64 expansion.
func ZipCapacity() int64 {
	return int64((maxZipComment - len(zipPrefix)) / 4 * 3)
}

// EmbedZip rewrites the archive at path to outPath with the container
// carried in the archive comment. Entries are copied raw, compressed
// bytes untouched, so the documents inside render identically.
func EmbedZip(path, outPath string, containerBytes []byte) error {
	if int64(len(containerBytes)) > ZipCapacity() {
		return &carrier.CapacityError{Required: int64(len(containerBytes)), Available: ZipCapacity()}
	}

	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("%w: %v", carrier.ErrUnsupported, err)
	}
	defer r.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	w := zip.NewWriter(out)
	comment := zipPrefix + base64.StdEncoding.EncodeToString(containerBytes)
	if err := w.SetComment(comment); err != nil {
		return err
	}

	for _, f := range r.File {
		hdr := f.FileHeader
		dst, err := w.CreateRaw(&hdr)
		if err != nil {
			return err
		}
		src, err := f.OpenRaw()
		if err != nil {
			return err
		}
		if _, err := io.Copy(dst, src); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	log.Debug().Int("containerBytes", len(containerBytes)).Msg("embedded container in archive comment")
	return nil
}

// ExtractZip returns the container bytes from the archive comment, or
// ErrBadMagic when the comment is absent or not ours.
func ExtractZip(path string) ([]byte, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", carrier.ErrUnsupported, err)
	}
	defer r.Close()

	if !strings.HasPrefix(r.Comment, zipPrefix) {
		return nil, container.ErrBadMagic
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(r.Comment, zipPrefix))
	if err != nil {
		return nil, container.ErrBadMagic
	}
	return decoded, nil
}
