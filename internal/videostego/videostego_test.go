package videostego

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmallory/cloak/internal/carrier"
	"github.com/jmallory/cloak/internal/container"
	"github.com/jmallory/cloak/internal/credential"
	"github.com/jmallory/cloak/internal/framedir"
)

// writeTestY4M fabricates a 4:2:0 stream of the given geometry.
func writeTestY4M(t *testing.T, dir string, name string, w, h, frames int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)

	_, err = fmt.Fprintf(f, "YUV4MPEG2 W%d H%d F25:1 Ip A1:1 C420\n", w, h)
	require.NoError(t, err)

	frameSize := w*h + w*h/2
	for i := 0; i < frames; i++ {
		_, err = f.WriteString("FRAME\n")
		require.NoError(t, err)
		plane := make([]byte, frameSize)
		for j := range plane {
			plane[j] = byte((i + j) % 251)
		}
		_, err = f.Write(plane)
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())
	return path
}

func TestY4MRoundTrip(t *testing.T) {
	secret := credential.Normalize("pw")
	raw, err := container.Encode(carrier.FamilyVideo,
		container.Payload{Type: container.TypeText, Data: []byte("luma plane payload")},
		secret, false)
	require.NoError(t, err)

	dir := t.TempDir()
	in := writeTestY4M(t, dir, "carrier.y4m", 64, 48, 3)
	out := filepath.Join(dir, "stego.y4m")
	require.NoError(t, EmbedY4M(in, out, raw))

	extracted, err := ExtractY4M(out)
	require.NoError(t, err)
	got, err := container.Decode(extracted, carrier.FamilyVideo, secret)
	require.NoError(t, err)
	assert.Equal(t, []byte("luma plane payload"), got.Data)
}

func TestY4MPreservesGeometry(t *testing.T) {
	dir := t.TempDir()
	in := writeTestY4M(t, dir, "carrier.y4m", 32, 24, 2)
	out := filepath.Join(dir, "stego.y4m")
	require.NoError(t, EmbedY4M(in, out, []byte("tiny")))

	v, err := parseY4M(out)
	require.NoError(t, err)
	assert.Equal(t, 32, v.width)
	assert.Equal(t, 24, v.height)
	assert.Len(t, v.frames, 2)

	// Only luma LSBs may differ from the original.
	orig, err := parseY4M(in)
	require.NoError(t, err)
	for i := range orig.frames {
		for j := range orig.frames[i] {
			if j < orig.ySize {
				assert.Equal(t, orig.frames[i][j]&^1, v.frames[i][j]&^1)
			} else if orig.frames[i][j] != v.frames[i][j] {
				t.Fatalf("chroma byte %d of frame %d changed", j, i)
			}
		}
	}
}

func TestY4MExtractClean(t *testing.T) {
	dir := t.TempDir()
	in := writeTestY4M(t, dir, "clean.y4m", 64, 48, 2)
	_, err := ExtractY4M(in)
	assert.ErrorIs(t, err, container.ErrBadMagic)
}

func TestY4MOverCapacity(t *testing.T) {
	dir := t.TempDir()
	in := writeTestY4M(t, dir, "small.y4m", 16, 16, 1)
	out := filepath.Join(dir, "stego.y4m")

	over := make([]byte, 1024)
	err := EmbedY4M(in, out, over)
	var capErr *carrier.CapacityError
	require.ErrorAs(t, err, &capErr)
}

func TestMaxPayloadY4MIsEmbeddable(t *testing.T) {
	dir := t.TempDir()
	in := writeTestY4M(t, dir, "carrier.y4m", 64, 48, 4)

	max, err := MaxPayloadY4M(in, 0)
	require.NoError(t, err)
	require.Positive(t, max)

	secret := credential.Normalize("pw")
	data := make([]byte, max)
	raw, err := container.Encode(carrier.FamilyVideo,
		container.Payload{Type: container.TypeText, Data: data}, secret, false)
	require.NoError(t, err)

	out := filepath.Join(dir, "stego.y4m")
	require.NoError(t, EmbedY4M(in, out, raw))

	extracted, err := ExtractY4M(out)
	require.NoError(t, err)
	got, err := container.Decode(extracted, carrier.FamilyVideo, secret)
	require.NoError(t, err)
	assert.Equal(t, data, got.Data)
}

func TestProbeByContentIgnoresExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeTestY4M(t, dir, "mislabeled.mp4", 40, 30, 5)

	props, err := Probe(path)
	require.NoError(t, err)
	assert.Equal(t, credential.DirectoryProps{Width: 40, Height: 30, FrameCount: 5}, props)
}

func newFrames(n, w, h int) []*image.NRGBA {
	frames := make([]*image.NRGBA, n)
	for i := range frames {
		img := image.NewNRGBA(image.Rect(0, 0, w, h))
		for j := range img.Pix {
			img.Pix[j] = uint8((i*7 + j) % 253)
		}
		frames[i] = img
	}
	return frames
}

func TestEmbedFramesDirectoryRoundTrip(t *testing.T) {
	store, err := framedir.Open(filepath.Join(t.TempDir(), "frames"))
	require.NoError(t, err)
	defer store.Close()

	secret := credential.Normalize("pw")
	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i * 17)
	}
	raw, err := container.Encode(carrier.FamilyVideo,
		container.Payload{Type: container.TypeText, Data: data}, secret, false)
	require.NoError(t, err)

	frames := newFrames(8, 16, 12)
	require.Less(t, int64(len(raw)), FrameCapacity(16, 12, 8))

	key := secret.DirectoryKey(credential.DirectoryProps{Width: 16, Height: 12, FrameCount: 8})
	require.NoError(t, EmbedFrames(context.Background(), store, key, frames, raw, 4))

	entry, err := store.Lookup(key)
	require.NoError(t, err)
	assert.Equal(t, 8, entry.FrameCount)

	read, err := DirectoryReader(store, entry)
	require.NoError(t, err)
	got, err := container.DecodeFrom(read, carrier.FamilyVideo, secret)
	require.NoError(t, err)
	assert.Equal(t, data, got.Data)
}

func TestEmbedFramesOverCapacity(t *testing.T) {
	store, err := framedir.Open(filepath.Join(t.TempDir(), "frames"))
	require.NoError(t, err)
	defer store.Close()

	frames := newFrames(2, 16, 12)
	over := make([]byte, FrameCapacity(16, 12, 2)+1)
	err = EmbedFrames(context.Background(), store, "key", frames, over, 1)

	var capErr *carrier.CapacityError
	require.ErrorAs(t, err, &capErr)

	_, err = store.Lookup("key")
	assert.ErrorIs(t, err, framedir.ErrNotFound)
}

func TestEmbedFramesCancelled(t *testing.T) {
	store, err := framedir.Open(filepath.Join(t.TempDir(), "frames"))
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	frames := newFrames(4, 16, 12)
	err = EmbedFrames(ctx, store, "key", frames, []byte("x"), 1)
	require.ErrorIs(t, err, context.Canceled)

	_, err = store.Lookup("key")
	assert.ErrorIs(t, err, framedir.ErrNotFound)
}

func TestFrameCapacity(t *testing.T) {
	// (16*12 - 3 header pixels) * 3 bits per frame, 8 frames, packed
	// to bytes.
	assert.Equal(t, int64(567), FrameCapacity(16, 12, 8))
	assert.Equal(t, int64(0), FrameCapacity(1, 1, 10))
}
