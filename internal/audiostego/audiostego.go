// Package audiostego embeds container bytes into audio carriers.
// Lossless WAV carriers take sample-LSB embedding over decoded PCM;
// lossy MP3 carriers cannot keep LSBs through a re-encode, so the
// container rides in an ID3v2 private tag frame instead.
package audiostego

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog/log"

	"github.com/jmallory/cloak/internal/carrier"
	"github.com/jmallory/cloak/internal/container"
)

// headerSamples are reserved at the start of the stream. Their LSBs
// carry one byte: the bits-per-sample density used for the rest.
const headerSamples = 8

const (
	minBitsPerSample = 1
	maxBitsPerSample = 4
)

// Capacity returns the container bytes a stream of sampleCount
// samples holds at the given density.
func Capacity(sampleCount, bitsPerSample int) int64 {
	usable := int64(sampleCount) - headerSamples
	if usable <= 0 {
		return 0
	}
	return usable * int64(bitsPerSample) / 8
}

// MaxPayload returns the payload bytes that fit after container
// overhead for the given filename length.
func MaxPayload(sampleCount, bitsPerSample, filenameLen int) int64 {
	return Capacity(sampleCount, bitsPerSample) - int64(container.Overhead(filenameLen))
}

// pcm is the decoded carrier: samples plus what the encoder needs to
// write a structurally equivalent file back out.
type pcm struct {
	buf         *audio.IntBuffer
	bitDepth    int
	audioFormat int
}

func decodeWAV(path string) (*pcm, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid WAV file", carrier.ErrUnsupported)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode PCM: %w", err)
	}
	return &pcm{
		buf:         buf,
		bitDepth:    int(dec.BitDepth),
		audioFormat: int(dec.WavAudioFormat),
	}, nil
}

func (p *pcm) writeWAV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, p.buf.Format.SampleRate, p.bitDepth,
		p.buf.Format.NumChannels, p.audioFormat)
	if err := enc.Write(p.buf); err != nil {
		return fmt.Errorf("failed to encode WAV: %w", err)
	}
	return enc.Close()
}

// SampleCount returns the PCM sample count of the WAV file at path.
func SampleCount(path string) (int, error) {
	p, err := decodeWAV(path)
	if err != nil {
		return 0, err
	}
	return len(p.buf.Data), nil
}

// Embed places the container into the WAV carrier's sample LSBs and
// writes the stego WAV to outPath.
func Embed(path, outPath string, containerBytes []byte, bitsPerSample int) error {
	if bitsPerSample < minBitsPerSample || bitsPerSample > maxBitsPerSample {
		return fmt.Errorf("bits per sample must be 1-4, got %d", bitsPerSample)
	}

	p, err := decodeWAV(path)
	if err != nil {
		return err
	}
	samples := p.buf.Data

	capacity := Capacity(len(samples), bitsPerSample)
	if int64(len(containerBytes)) > capacity {
		return &carrier.CapacityError{Required: int64(len(containerBytes)), Available: capacity}
	}

	// Density byte in the reserved samples, one bit per LSB.
	for i := 0; i < headerSamples; i++ {
		samples[i] = setSampleBit(samples[i], 0, bitsPerSample>>i&1)
	}

	total := len(containerBytes) * 8
	for i := 0; i < total; i++ {
		bit := containerBytes[i/8] >> (i % 8) & 1
		sampleIdx := headerSamples + i/bitsPerSample
		samples[sampleIdx] = setSampleBit(samples[sampleIdx], i%bitsPerSample, int(bit))
	}

	log.Debug().Int("samples", len(samples)).Int("bitsPerSample", bitsPerSample).
		Int("containerBytes", len(containerBytes)).
		Msg("embedded container into PCM samples")

	return p.writeWAV(outPath)
}

// Extract reads the density header and returns a ReadFunc over the
// remaining sample bits.
func Extract(path string) (container.ReadFunc, error) {
	p, err := decodeWAV(path)
	if err != nil {
		return nil, err
	}
	samples := p.buf.Data
	if len(samples) <= headerSamples {
		return nil, container.ErrBadMagic
	}

	bitsPerSample := 0
	for i := 0; i < headerSamples; i++ {
		bitsPerSample |= (samples[i] & 1) << i
	}
	if bitsPerSample < minBitsPerSample || bitsPerSample > maxBitsPerSample {
		return nil, container.ErrBadMagic
	}

	totalBits := (len(samples) - headerSamples) * bitsPerSample
	cursor := 0
	return func(n int) ([]byte, error) {
		need := n * 8
		if cursor+need > totalBits {
			return nil, fmt.Errorf("read of %d bytes exceeds audio capacity", n)
		}
		out := make([]byte, n)
		for i := 0; i < need; i++ {
			bitIdx := cursor + i
			sample := samples[headerSamples+bitIdx/bitsPerSample]
			if sample>>(bitIdx%bitsPerSample)&1 != 0 {
				out[i/8] |= 1 << (i % 8)
			}
		}
		cursor += need
		return out, nil
	}, nil
}

func setSampleBit(sample, pos, bit int) int {
	if bit == 0 {
		return sample &^ (1 << pos)
	}
	return sample | 1<<pos
}
