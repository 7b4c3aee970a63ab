// Package docstego embeds container bytes into document carriers
// using format-specific low-risk regions rather than content bytes:
// the ignored trailing region of a PDF, and the archive comment of
// ZIP-family documents. Rendered output is untouched.
package docstego

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jmallory/cloak/internal/carrier"
	"github.com/jmallory/cloak/internal/container"
)

// pdfMarker introduces the payload line appended after the document
// body. PDF readers treat % lines and post-EOF bytes as junk.
const pdfMarker = "%CLK-PAYLOAD:"

// PDFCapacity caps the trailing region. There is no structural limit;
// the ceiling keeps stego documents from dwarfing their carriers.
const PDFCapacity = 16 << 20

// EmbedPDF appends the container to the PDF as a comment line.
func EmbedPDF(path, outPath string, containerBytes []byte) error {
	if int64(len(containerBytes)) > PDFCapacity {
		return &carrier.CapacityError{Required: int64(len(containerBytes)), Available: PDFCapacity}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if !bytes.HasPrefix(raw, []byte("%PDF")) {
		return fmt.Errorf("%w: not a PDF document", carrier.ErrUnsupported)
	}

	var buf bytes.Buffer
	buf.Write(raw)
	if raw[len(raw)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.WriteString(pdfMarker)
	buf.WriteString(base64.StdEncoding.EncodeToString(containerBytes))
	buf.WriteString("\n%%EOF\n")

	log.Debug().Int("containerBytes", len(containerBytes)).Msg("appended container to PDF trailing region")
	return os.WriteFile(outPath, buf.Bytes(), 0o644)
}

// ExtractPDF returns the container bytes from the trailing region, or
// ErrBadMagic when no payload line exists.
func ExtractPDF(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	idx := bytes.LastIndex(raw, []byte(pdfMarker))
	if idx < 0 {
		return nil, container.ErrBadMagic
	}
	line := raw[idx+len(pdfMarker):]
	if end := bytes.IndexByte(line, '\n'); end >= 0 {
		line = line[:end]
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(line)))
	if err != nil {
		return nil, container.ErrBadMagic
	}
	return decoded, nil
}
