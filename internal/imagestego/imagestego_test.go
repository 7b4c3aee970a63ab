package imagestego

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/jmallory/cloak/internal/carrier"
	"github.com/jmallory/cloak/internal/container"
	"github.com/jmallory/cloak/internal/credential"
)

func newTestImage(t *testing.T, w, h int) *image.NRGBA {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i % 255)
	}
	return img
}

func writeTestPNG(t *testing.T, w, h int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "carrier.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, newTestImage(t, w, h)))
	require.NoError(t, f.Close())
	return path
}

func TestEmbedExtractRoundTrip(t *testing.T) {
	secret := credential.Normalize("pw")
	payload := container.Payload{Type: container.TypeText, Data: []byte("hello please work")}
	raw, err := container.Encode(carrier.FamilyImage, payload, secret, false)
	require.NoError(t, err)

	in := writeTestPNG(t, 64, 64)
	out := filepath.Join(t.TempDir(), "stego.png")
	require.NoError(t, Embed(in, out, raw, 1, 3))

	read, err := Extract(out)
	require.NoError(t, err)
	got, err := container.DecodeFrom(read, carrier.FamilyImage, secret)
	require.NoError(t, err)
	assert.Equal(t, payload.Data, got.Data)
}

func TestEmbedExtractHighDensity(t *testing.T) {
	secret := credential.Normalize("")
	data := make([]byte, 2000)
	for i := range data {
		data[i] = byte(i * 13)
	}
	raw, err := container.Encode(carrier.FamilyImage,
		container.Payload{Type: container.TypeText, Data: data}, secret, false)
	require.NoError(t, err)

	in := writeTestPNG(t, 80, 60)
	out := filepath.Join(t.TempDir(), "stego.png")
	require.NoError(t, Embed(in, out, raw, 4, 4))

	read, err := Extract(out)
	require.NoError(t, err)
	got, err := container.DecodeFrom(read, carrier.FamilyImage, secret)
	require.NoError(t, err)
	assert.Equal(t, data, got.Data)
}

func writeTestBMP(t *testing.T, w, h int) string {
	t.Helper()
	img := newTestImage(t, w, h)
	// Opaque alpha: BMP carries R,G,B only.
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	path := filepath.Join(t.TempDir(), "carrier.bmp")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, bmp.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestEmbedExtractBMPRoundTrip(t *testing.T) {
	secret := credential.Normalize("pw")
	payload := container.Payload{Type: container.TypeText, Data: []byte("bitmaps drop alpha on the floor")}
	raw, err := container.Encode(carrier.FamilyImage, payload, secret, false)
	require.NoError(t, err)

	in := writeTestBMP(t, 64, 64)
	out := filepath.Join(t.TempDir(), "stego.bmp")
	require.NoError(t, Embed(in, out, raw, 1, 3))

	read, err := Extract(out)
	require.NoError(t, err)
	got, err := container.DecodeFrom(read, carrier.FamilyImage, secret)
	require.NoError(t, err)
	assert.Equal(t, payload.Data, got.Data)
}

func TestEmbedExtractBMPDenser(t *testing.T) {
	secret := credential.Normalize("")
	data := make([]byte, 1200)
	for i := range data {
		data[i] = byte(i * 29)
	}
	raw, err := container.Encode(carrier.FamilyImage,
		container.Payload{Type: container.TypeText, Data: data}, secret, false)
	require.NoError(t, err)

	in := writeTestBMP(t, 80, 60)
	out := filepath.Join(t.TempDir(), "stego.bmp")
	require.NoError(t, Embed(in, out, raw, 4, 3))

	read, err := Extract(out)
	require.NoError(t, err)
	got, err := container.DecodeFrom(read, carrier.FamilyImage, secret)
	require.NoError(t, err)
	assert.Equal(t, data, got.Data)
}

func TestEmbedBMPRejectsAlphaChannel(t *testing.T) {
	in := writeTestPNG(t, 32, 32)
	out := filepath.Join(t.TempDir(), "stego.bmp")

	err := Embed(in, out, []byte("x"), 1, 4)
	require.ErrorIs(t, err, carrier.ErrUnsupported)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestEmbedUnsupportedOutputLeavesNoFile(t *testing.T) {
	in := writeTestPNG(t, 32, 32)
	out := filepath.Join(t.TempDir(), "stego.gif")

	err := Embed(in, out, []byte("x"), 1, 3)
	require.ErrorIs(t, err, carrier.ErrUnsupported)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCapacity(t *testing.T) {
	// (50*40 - 3 header pixels) * 3 channels * 1 bit / 8
	assert.Equal(t, int64(748), Capacity(50, 40, 3, 1))
	assert.Equal(t, int64(0), Capacity(1, 1, 3, 1))
	assert.Equal(t, Capacity(50, 40, 3, 2), 2*Capacity(50, 40, 3, 1))
}

func TestEmbedAtExactCapacity(t *testing.T) {
	secret := credential.Normalize("pw")
	w, h := 50, 40

	max := MaxPayload(w, h, 3, 1, 0)
	data := make([]byte, max)
	raw, err := container.Encode(carrier.FamilyImage,
		container.Payload{Type: container.TypeText, Data: data}, secret, false)
	require.NoError(t, err)
	require.Equal(t, Capacity(w, h, 3, 1), int64(len(raw)))

	in := writeTestPNG(t, w, h)
	out := filepath.Join(t.TempDir(), "stego.png")
	require.NoError(t, Embed(in, out, raw, 1, 3))

	read, err := Extract(out)
	require.NoError(t, err)
	got, err := container.DecodeFrom(read, carrier.FamilyImage, secret)
	require.NoError(t, err)
	assert.Equal(t, data, got.Data)
}

func TestEmbedOverCapacity(t *testing.T) {
	in := writeTestPNG(t, 50, 40)
	out := filepath.Join(t.TempDir(), "stego.png")

	over := make([]byte, Capacity(50, 40, 3, 1)+1)
	err := Embed(in, out, over, 1, 3)

	var capErr *carrier.CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, int64(len(over)), capErr.Required)
	assert.Equal(t, Capacity(50, 40, 3, 1), capErr.Available)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "no output should be written on capacity failure")
}

func TestEmbedRejectsBadDensity(t *testing.T) {
	in := writeTestPNG(t, 32, 32)
	out := filepath.Join(t.TempDir(), "stego.png")
	assert.Error(t, Embed(in, out, []byte("x"), 0, 3))
	assert.Error(t, Embed(in, out, []byte("x"), 9, 3))
	assert.Error(t, Embed(in, out, []byte("x"), 1, 0))
	assert.Error(t, Embed(in, out, []byte("x"), 1, 5))
}

func TestExtractCleanImage(t *testing.T) {
	// A zero-filled raster has no header; the reader must report the
	// codec's "nothing here" sentinel.
	path := filepath.Join(t.TempDir(), "clean.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewNRGBA(image.Rect(0, 0, 32, 32))))
	require.NoError(t, f.Close())

	_, err = Extract(path)
	assert.ErrorIs(t, err, container.ErrBadMagic)
}

func TestPlaceCollectBitsOffsets(t *testing.T) {
	img := newTestImage(t, 32, 32)
	data := []byte{0xA5, 0x3C, 0xF0}

	// Place the second byte alone at a raster offset, the way the
	// video engine continues a stream at the top of a fresh frame.
	placed := PlaceBits(img, data, 8, 100, 8, 1, 3)
	require.Equal(t, 8, placed)

	out := make([]byte, 1)
	got := CollectBits(img, out, 100, 8, 1, 3)
	require.Equal(t, 8, got)
	assert.Equal(t, data[1], out[0])
}

func TestHeaderRoundTrip(t *testing.T) {
	img := newTestImage(t, 8, 8)
	WriteHeader(img, 4, 3)
	bits, channels := ReadHeader(img)
	assert.Equal(t, 4, bits)
	assert.Equal(t, 3, channels)
}

func TestToNRGBAZeroBasedBounds(t *testing.T) {
	src := image.NewNRGBA(image.Rect(5, 7, 15, 17))
	out := ToNRGBA(src)
	assert.Equal(t, image.Rect(0, 0, 10, 10), out.Bounds())
}
