package audiostego

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/bogem/id3v2"
	"github.com/rs/zerolog/log"

	"github.com/jmallory/cloak/internal/carrier"
	"github.com/jmallory/cloak/internal/container"
)

// privOwner identifies our PRIV frame among other applications'.
const privOwner = "cloak/container"

// MP3Capacity is the ceiling for the tag-region path. ID3v2 frames
// have no meaningful structural limit relative to the audio, so the
// cap keeps stego files from dwarfing their carriers.
const MP3Capacity = 16 << 20

// EmbedMP3 carries the container in an ID3v2 PRIV frame. MPEG audio
// data is untouched, so the file keeps playing and surviving players
// that rewrite nothing but tags.
func EmbedMP3(path, outPath string, containerBytes []byte) error {
	if int64(len(containerBytes)) > MP3Capacity {
		return &carrier.CapacityError{Required: int64(len(containerBytes)), Available: MP3Capacity}
	}

	if err := copyFile(path, outPath); err != nil {
		return err
	}

	tag, err := id3v2.Open(outPath, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open ID3 tag: %w", err)
	}
	defer tag.Close()

	body := make([]byte, 0, len(privOwner)+1+len(containerBytes))
	body = append(body, privOwner...)
	body = append(body, 0)
	body = append(body, containerBytes...)
	tag.AddFrame("PRIV", id3v2.UnknownFrame{Body: body})

	if err := tag.Save(); err != nil {
		return fmt.Errorf("failed to save ID3 tag: %w", err)
	}

	log.Debug().Int("containerBytes", len(containerBytes)).
		Msg("embedded container into ID3v2 private frame")
	return nil
}

// ExtractMP3 returns the container bytes from our PRIV frame, or
// ErrBadMagic when no frame with our owner exists.
func ExtractMP3(path string) ([]byte, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open ID3 tag: %w", err)
	}
	defer tag.Close()

	marker := append([]byte(privOwner), 0)
	for _, framer := range tag.GetFrames("PRIV") {
		unknown, ok := framer.(id3v2.UnknownFrame)
		if !ok {
			continue
		}
		if bytes.HasPrefix(unknown.Body, marker) {
			return unknown.Body[len(marker):], nil
		}
	}
	return nil, container.ErrBadMagic
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
