// Package imagestego embeds container bytes into the least
// significant bits of lossless raster images. Traversal is row-major,
// channel order R,G,B,A, and the first three pixels carry the bit
// depth and channel count so extraction is self-describing. The
// header lives in R,G,B LSBs only: BMP output has no alpha channel,
// so nothing that must survive a write may touch an alpha byte.
package imagestego

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/bmp"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/jmallory/cloak/internal/carrier"
	"github.com/jmallory/cloak/internal/container"
)

// headerPixels are reserved at the start of the raster. They carry
// one byte, bits-per-channel in the low nibble and the channel count
// in the high nibble, one bit per R,G,B sample LSB regardless of the
// configured density.
const headerPixels = 3

const (
	minBitsPerChannel = 1
	maxBitsPerChannel = 8
	minChannels       = 1
	maxChannels       = 4
)

// Capacity returns the container bytes a w*h image holds at the given
// density. The header pixels are excluded.
func Capacity(w, h, channels, bitsPerChannel int) int64 {
	pixels := int64(w*h) - headerPixels
	if pixels <= 0 {
		return 0
	}
	return pixels * int64(channels) * int64(bitsPerChannel) / 8
}

// MaxPayload returns the payload bytes that fit after container
// overhead for the given filename length.
func MaxPayload(w, h, channels, bitsPerChannel, filenameLen int) int64 {
	return Capacity(w, h, channels, bitsPerChannel) - int64(container.Overhead(filenameLen))
}

// Embed places the container into the image at path and writes the
// stego image to outPath. The output format follows outPath's
// extension and must be lossless.
func Embed(path, outPath string, containerBytes []byte, bitsPerChannel, channels int) error {
	if bitsPerChannel < minBitsPerChannel || bitsPerChannel > maxBitsPerChannel {
		return fmt.Errorf("bits per channel must be 1-8, got %d", bitsPerChannel)
	}
	if channels < minChannels || channels > maxChannels {
		return fmt.Errorf("channels must be 1-4, got %d", channels)
	}
	// BMP output carries no alpha, so payload bits placed there would
	// not survive the write.
	if strings.ToLower(filepath.Ext(outPath)) == ".bmp" && channels > 3 {
		return fmt.Errorf("%w: BMP output has no alpha channel; use at most 3 channels", carrier.ErrUnsupported)
	}

	img, err := LoadNRGBA(path)
	if err != nil {
		return err
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	capacity := Capacity(w, h, channels, bitsPerChannel)
	if int64(len(containerBytes)) > capacity {
		return &carrier.CapacityError{Required: int64(len(containerBytes)), Available: capacity}
	}

	writeHeader(img, bitsPerChannel, channels)
	placed := PlaceBits(img, containerBytes, 0, 0, len(containerBytes)*8, bitsPerChannel, channels)
	if placed != len(containerBytes)*8 {
		return fmt.Errorf("placed %d of %d container bits", placed, len(containerBytes)*8)
	}

	log.Debug().Int("width", w).Int("height", h).
		Int("bits", bitsPerChannel).Int("channels", channels).
		Int("containerBytes", len(containerBytes)).
		Msg("embedded container into image")

	return writeImage(outPath, img)
}

// Extract reads the self-describing header and returns a ReadFunc
// over the remaining sample bits, for container.DecodeFrom.
func Extract(path string) (container.ReadFunc, error) {
	img, err := LoadNRGBA(path)
	if err != nil {
		return nil, err
	}
	return Reader(img)
}

// Reader builds a container ReadFunc over an in-memory image.
func Reader(img *image.NRGBA) (container.ReadFunc, error) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w*h < headerPixels+1 {
		return nil, fmt.Errorf("image too small to hold a header")
	}

	bitsPerChannel, channels := readHeader(img)
	if bitsPerChannel < minBitsPerChannel || bitsPerChannel > maxBitsPerChannel ||
		channels < minChannels || channels > maxChannels {
		// Not written by us; surface the codec's "nothing here".
		return nil, container.ErrBadMagic
	}

	totalBits := int(Capacity(w, h, channels, bitsPerChannel)) * 8
	cursor := 0
	return func(n int) ([]byte, error) {
		need := n * 8
		if cursor+need > totalBits {
			return nil, fmt.Errorf("read of %d bytes exceeds image capacity", n)
		}
		out := make([]byte, n)
		got := CollectBits(img, out, cursor, need, bitsPerChannel, channels)
		if got != need {
			return nil, fmt.Errorf("collected %d of %d bits", got, need)
		}
		cursor += need
		return out, nil
	}, nil
}

// stepper walks samples in row-major pixel order, R,G,B,A within a
// pixel, cycling bit positions within a sample before advancing.
// Adapted to start past the reserved header pixels.
type stepper struct {
	img            *image.NRGBA
	w, h           int
	pixel          int
	channel        int
	bitIndex       int
	bitsPerChannel int
	channels       int
}

func newStepper(img *image.NRGBA, bitsPerChannel, channels int) *stepper {
	return &stepper{
		img:            img,
		w:              img.Bounds().Dx(),
		h:              img.Bounds().Dy(),
		pixel:          headerPixels,
		bitsPerChannel: bitsPerChannel,
		channels:       channels,
	}
}

// seek advances the stepper to the absolute payload bit offset.
func (s *stepper) seek(bitOff int) {
	perPixel := s.channels * s.bitsPerChannel
	s.pixel = headerPixels + bitOff/perPixel
	rem := bitOff % perPixel
	s.channel = rem / s.bitsPerChannel
	s.bitIndex = rem % s.bitsPerChannel
}

func (s *stepper) inBounds() bool {
	return s.pixel < s.w*s.h
}

func (s *stepper) sample() *uint8 {
	x := s.pixel % s.w
	y := s.pixel / s.w
	off := s.img.PixOffset(x, y)
	return &s.img.Pix[off+s.channel]
}

func (s *stepper) step() {
	s.bitIndex++
	if s.bitIndex >= s.bitsPerChannel {
		s.bitIndex = 0
		s.channel++
	}
	if s.channel >= s.channels {
		s.channel = 0
		s.pixel++
	}
}

// PlaceBits writes n bits of data, starting at data bit dataBitOff,
// into the image starting at raster bit rasterBitOff, and returns the
// number of bits placed. Bit i of the stream is bit (i%8), LSB-first,
// of data[i/8]. The two offsets are distinct so the video engine can
// continue a container mid-stream at the top of a fresh frame.
func PlaceBits(img *image.NRGBA, data []byte, dataBitOff, rasterBitOff, n, bitsPerChannel, channels int) int {
	s := newStepper(img, bitsPerChannel, channels)
	s.seek(rasterBitOff)
	placed := 0
	for ; placed < n && s.inBounds(); placed++ {
		i := dataBitOff + placed
		bit := getBit(data[i/8], i%8)
		sample := s.sample()
		if bit == 0 {
			*sample = clearBit(*sample, s.bitIndex)
		} else {
			*sample = setBit(*sample, s.bitIndex)
		}
		s.step()
	}
	return placed
}

// CollectBits reads n bits starting at raster bit rasterBitOff into
// dst (filled LSB-first from dst[0]) and returns the bits read.
func CollectBits(img *image.NRGBA, dst []byte, rasterBitOff, n, bitsPerChannel, channels int) int {
	s := newStepper(img, bitsPerChannel, channels)
	s.seek(rasterBitOff)
	read := 0
	for ; read < n && s.inBounds(); read++ {
		sample := s.sample()
		if getBit(*sample, s.bitIndex) != 0 {
			dst[read/8] = setBit(dst[read/8], read%8)
		}
		s.step()
	}
	return read
}

// FrameBits returns how many payload bits one frame of w*h pixels
// holds at the given density, net of the reserved header pixels.
func FrameBits(w, h, channels, bitsPerChannel int) int {
	pixels := w*h - headerPixels
	if pixels <= 0 {
		return 0
	}
	return pixels * channels * bitsPerChannel
}

// WriteHeader records the density in the reserved pixels of a frame.
// Exported for the video engine, which reuses the raster layout.
func WriteHeader(img *image.NRGBA, bitsPerChannel, channels int) {
	writeHeader(img, bitsPerChannel, channels)
}

// ReadHeader decodes the density from the reserved pixels.
func ReadHeader(img *image.NRGBA) (bitsPerChannel, channels int) {
	return readHeader(img)
}

// headerSample addresses header bit i: pixel i/3, channel i%3. Alpha
// is never used.
func headerSample(img *image.NRGBA, i int) *uint8 {
	w := img.Bounds().Dx()
	pixel := i / 3
	off := img.PixOffset(pixel%w, pixel/w)
	return &img.Pix[off+i%3]
}

func writeHeader(img *image.NRGBA, bitsPerChannel, channels int) {
	hdr := uint8(bitsPerChannel&0xF) | uint8(channels&0xF)<<4
	for i := 0; i < 8; i++ {
		s := headerSample(img, i)
		if getBit(hdr, i) == 0 {
			*s = clearBit(*s, 0)
		} else {
			*s = setBit(*s, 0)
		}
	}
}

func readHeader(img *image.NRGBA) (bitsPerChannel, channels int) {
	var hdr uint8
	for i := 0; i < 8; i++ {
		if getBit(*headerSample(img, i), 0) != 0 {
			hdr |= 1 << i
		}
	}
	return int(hdr & 0xF), int(hdr >> 4)
}

// LoadNRGBA decodes the image at path and normalizes it to NRGBA so
// sample access never type-asserts.
func LoadNRGBA(path string) (*image.NRGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", carrier.ErrUnsupported, err)
	}
	return ToNRGBA(img), nil
}

// ToNRGBA copies any image into a fresh zero-based NRGBA raster.
func ToNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x-b.Min.X, y-b.Min.Y, img.At(x, y))
		}
	}
	return out
}

func writeImage(path string, img *image.NRGBA) error {
	var encode func(io.Writer, image.Image) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bmp":
		encode = bmp.Encode
	case ".png", "":
		encode = png.Encode
	default:
		// Resolved before os.Create so a bad extension leaves no
		// empty file behind.
		return fmt.Errorf("%w: cannot write lossless image as %s",
			carrier.ErrUnsupported, filepath.Ext(path))
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return encode(f, img)
}

func getBit(v uint8, i int) int {
	if v&(1<<i) == 0 {
		return 0
	}
	return 1
}

func setBit(v uint8, i int) uint8 {
	return v | 1<<i
}

func clearBit(v uint8, i int) uint8 {
	return v &^ (1 << i)
}
