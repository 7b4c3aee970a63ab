// Package videostego embeds container bytes into video carriers. Two
// tiers exist on purpose: direct Y-plane LSB for formats that keep
// exact pixel values (Y4M), and a preserved-frame-directory side
// store for lossy targets whose encoders destroy LSB data.
package videostego

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jmallory/cloak/internal/carrier"
	"github.com/jmallory/cloak/internal/container"
)

// y4mVideo is a decoded YUV4MPEG2 stream: the verbatim stream header
// plus raw frame planes. Only the Y plane is touched by embedding.
type y4mVideo struct {
	header    string // full header line without trailing newline
	width     int
	height    int
	ySize     int
	frameSize int // all planes
	frames    [][]byte
}

func parseY4M(path string) (*y4mVideo, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	nl := bytes.IndexByte(raw, '\n')
	if nl < 0 || !bytes.HasPrefix(raw, []byte("YUV4MPEG2")) {
		return nil, fmt.Errorf("%w: not a YUV4MPEG2 stream", carrier.ErrUnsupported)
	}
	v := &y4mVideo{header: string(raw[:nl])}

	colorspace := "420"
	for _, tok := range strings.Fields(v.header)[1:] {
		switch tok[0] {
		case 'W':
			v.width, _ = strconv.Atoi(tok[1:])
		case 'H':
			v.height, _ = strconv.Atoi(tok[1:])
		case 'C':
			colorspace = tok[1:]
		}
	}
	if v.width <= 0 || v.height <= 0 {
		return nil, fmt.Errorf("%w: missing Y4M dimensions", carrier.ErrUnsupported)
	}

	v.ySize = v.width * v.height
	switch {
	case strings.HasPrefix(colorspace, "420"):
		v.frameSize = v.ySize + v.ySize/2
	case strings.HasPrefix(colorspace, "422"):
		v.frameSize = v.ySize * 2
	case strings.HasPrefix(colorspace, "444"):
		v.frameSize = v.ySize * 3
	case strings.HasPrefix(colorspace, "mono"):
		v.frameSize = v.ySize
	default:
		return nil, fmt.Errorf("%w: Y4M colorspace C%s", carrier.ErrUnsupported, colorspace)
	}

	rest := raw[nl+1:]
	for len(rest) > 0 {
		fnl := bytes.IndexByte(rest, '\n')
		if fnl < 0 || !bytes.HasPrefix(rest, []byte("FRAME")) {
			return nil, fmt.Errorf("%w: malformed Y4M frame marker", carrier.ErrUnsupported)
		}
		rest = rest[fnl+1:]
		if len(rest) < v.frameSize {
			return nil, fmt.Errorf("%w: truncated Y4M frame", carrier.ErrUnsupported)
		}
		frame := make([]byte, v.frameSize)
		copy(frame, rest[:v.frameSize])
		v.frames = append(v.frames, frame)
		rest = rest[v.frameSize:]
	}
	if len(v.frames) == 0 {
		return nil, fmt.Errorf("%w: Y4M stream has no frames", carrier.ErrUnsupported)
	}
	return v, nil
}

func (v *y4mVideo) write(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "%s\n", v.header)
	for _, frame := range v.frames {
		fmt.Fprint(w, "FRAME\n")
		if _, err := w.Write(frame); err != nil {
			return err
		}
	}
	return w.Flush()
}

// yBit addresses bit i of the concatenated Y planes: one payload bit
// per luma sample LSB.
func (v *y4mVideo) setYBit(i int, bit byte) {
	frame := v.frames[i/v.ySize]
	if bit == 0 {
		frame[i%v.ySize] &^= 1
	} else {
		frame[i%v.ySize] |= 1
	}
}

func (v *y4mVideo) getYBit(i int) byte {
	return v.frames[i/v.ySize][i%v.ySize] & 1
}

func (v *y4mVideo) totalYBits() int {
	return len(v.frames) * v.ySize
}

// Direct-mode preamble: an unarmored marker plus the armored blob
// length, so extraction knows how many bits to gather before
// Reed-Solomon recovery.
var directMagic = [4]byte{0xC1, 'L', 'K', 'R'}

const preambleSize = 8

// CapacityY4M returns the armored container bytes the stream at path
// can hold in the direct path.
func CapacityY4M(path string) (int64, error) {
	v, err := parseY4M(path)
	if err != nil {
		return 0, err
	}
	return int64(v.totalYBits()/8 - preambleSize), nil
}

// MaxPayloadY4M returns the payload bytes that fit once container
// overhead and Reed-Solomon expansion are accounted for.
func MaxPayloadY4M(path string, filenameLen int) (int64, error) {
	armoredCap, err := CapacityY4M(path)
	if err != nil {
		return 0, err
	}
	// Invert ArmorOverhead: 6 shards carry 4 data shards of payload,
	// minus the armor's own length prefix.
	perShard := armoredCap / 6
	containerMax := perShard*4 - 4
	return containerMax - int64(container.Overhead(filenameLen)), nil
}

// EmbedY4M places the armored container across the stream's luma
// LSBs and writes the stego stream to outPath.
func EmbedY4M(path, outPath string, containerBytes []byte) error {
	v, err := parseY4M(path)
	if err != nil {
		return err
	}

	armored, err := container.Armor(containerBytes)
	if err != nil {
		return err
	}

	capacity := v.totalYBits()/8 - preambleSize
	if len(armored) > capacity {
		return &carrier.CapacityError{Required: int64(len(armored)), Available: int64(capacity)}
	}

	preamble := make([]byte, preambleSize)
	copy(preamble, directMagic[:])
	binary.BigEndian.PutUint32(preamble[4:], uint32(len(armored)))

	stream := append(preamble, armored...)
	for i := 0; i < len(stream)*8; i++ {
		v.setYBit(i, stream[i/8]>>(i%8)&1)
	}

	return v.write(outPath)
}

// ExtractY4M recovers the armored container from the stream's luma
// LSBs and returns the de-armored container bytes.
func ExtractY4M(path string) ([]byte, error) {
	v, err := parseY4M(path)
	if err != nil {
		return nil, err
	}

	total := v.totalYBits()
	if total < preambleSize*8 {
		return nil, container.ErrBadMagic
	}

	readBytes := func(bitOff, n int) []byte {
		out := make([]byte, n)
		for i := 0; i < n*8; i++ {
			if v.getYBit(bitOff+i) != 0 {
				out[i/8] |= 1 << (i % 8)
			}
		}
		return out
	}

	preamble := readBytes(0, preambleSize)
	if !bytes.Equal(preamble[:4], directMagic[:]) {
		return nil, container.ErrBadMagic
	}
	armoredLen := int(binary.BigEndian.Uint32(preamble[4:]))
	if armoredLen <= 0 || preambleSize*8+armoredLen*8 > total {
		return nil, fmt.Errorf("%w: armored length %d exceeds stream", container.ErrTruncated, armoredLen)
	}

	armored := readBytes(preambleSize*8, armoredLen)
	raw, err := container.Unarmor(armored)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", container.ErrTruncated, err)
	}
	return raw, nil
}
