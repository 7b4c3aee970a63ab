package videostego

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"

	"github.com/jmallory/cloak/internal/carrier"
	"github.com/jmallory/cloak/internal/container"
	"github.com/jmallory/cloak/internal/credential"
	"github.com/jmallory/cloak/internal/framedir"
	"github.com/jmallory/cloak/internal/imagestego"
)

// Frame-directory density. Fixed: the directory stores lossless PNG
// frames we control, so there is no reason to trade quality for
// capacity the way the image engine's knobs do.
const (
	frameBitsPerChannel = 1
	frameChannels       = 3
)

// FrameCapacity returns the container bytes a directory of n frames
// of w*h pixels holds.
func FrameCapacity(w, h, n int) int64 {
	return int64(imagestego.FrameBits(w, h, frameChannels, frameBitsPerChannel)) * int64(n) / 8
}

// Probe resolves the stable carrier properties used for the frame
// directory hash. MP4-family containers resolve through the box
// parser; Y4M streams are probed by content regardless of extension,
// so a lossless master renamed to a lossy extension still keys
// consistently.
func Probe(path string) (credential.DirectoryProps, error) {
	if v, err := parseY4M(path); err == nil {
		return credential.DirectoryProps{Width: v.width, Height: v.height, FrameCount: len(v.frames)}, nil
	}

	d, err := carrier.Sniff(path)
	if err != nil {
		return credential.DirectoryProps{}, err
	}
	if d.Family != carrier.FamilyVideo || d.Width == 0 || d.Height == 0 {
		return credential.DirectoryProps{}, fmt.Errorf("%w: cannot determine video properties", carrier.ErrUnsupported)
	}
	return credential.DirectoryProps{Width: d.Width, Height: d.Height, FrameCount: d.Frames}, nil
}

// EmbedFrames spreads the container across the frames, writes each
// stego frame losslessly into the store under key, and commits. The
// frames slice is modified in place; PNG encoding runs on a worker
// pool since frames are independent. Cancellation is honored between
// scheduling frames; on error or cancel the staged directory is
// discarded.
func EmbedFrames(ctx context.Context, store *framedir.Store, key string, frames []*image.NRGBA, containerBytes []byte, workers int) error {
	if len(frames) == 0 {
		return fmt.Errorf("no frames to embed into")
	}
	w := frames[0].Bounds().Dx()
	h := frames[0].Bounds().Dy()

	capacity := FrameCapacity(w, h, len(frames))
	if int64(len(containerBytes)) > capacity {
		return &carrier.CapacityError{Required: int64(len(containerBytes)), Available: capacity}
	}

	perFrame := imagestego.FrameBits(w, h, frameChannels, frameBitsPerChannel)
	totalBits := len(containerBytes) * 8

	writer, err := store.Create(key, w, h)
	if err != nil {
		return err
	}
	defer writer.Abort()

	bar := progressbar.NewOptions(
		len(frames),
		progressbar.OptionSetDescription("frames"),
		progressbar.OptionSetWriter(os.Stderr),
	)

	if workers < 1 {
		workers = 1
	}
	jobs := make(chan int)
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if err := writer.WriteFrame(idx, frames[idx]); err != nil {
					errs <- err
					return
				}
				bar.Add(1)
			}
		}()
	}

	placed := 0
schedule:
	for i, frame := range frames {
		imagestego.WriteHeader(frame, frameBitsPerChannel, frameChannels)
		if placed < totalBits {
			n := totalBits - placed
			if n > perFrame {
				n = perFrame
			}
			got := imagestego.PlaceBits(frame, containerBytes, placed, 0, n, frameBitsPerChannel, frameChannels)
			if got != n {
				close(jobs)
				wg.Wait()
				return fmt.Errorf("placed %d of %d bits in frame %d", got, n, i)
			}
			placed += n
		}

		select {
		case jobs <- i:
		case <-ctx.Done():
			break schedule
		case err := <-errs:
			close(jobs)
			wg.Wait()
			return err
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case err := <-errs:
		return err
	default:
	}
	if placed != totalBits {
		return fmt.Errorf("placed %d of %d container bits", placed, totalBits)
	}

	log.Debug().Str("key", key).Int("frames", len(frames)).
		Int("containerBytes", len(containerBytes)).
		Msg("embedded container across frame directory")

	return writer.Commit()
}

// DirectoryReader returns a container ReadFunc over the stego frames
// of a committed directory, loading frames lazily in order.
func DirectoryReader(store *framedir.Store, entry *framedir.Entry) (container.ReadFunc, error) {
	if entry.FrameCount == 0 {
		return nil, container.ErrBadMagic
	}

	first, err := store.Frame(entry, 0)
	if err != nil {
		return nil, err
	}
	bits, channels := imagestego.ReadHeader(first)
	if bits != frameBitsPerChannel || channels != frameChannels {
		return nil, container.ErrBadMagic
	}

	w := first.Bounds().Dx()
	h := first.Bounds().Dy()
	perFrame := imagestego.FrameBits(w, h, channels, bits)
	totalBits := perFrame * entry.FrameCount

	current := first
	currentIdx := 0
	cursor := 0
	return func(n int) ([]byte, error) {
		need := n * 8
		if cursor+need > totalBits {
			return nil, fmt.Errorf("read of %d bytes exceeds frame directory capacity", n)
		}
		out := make([]byte, n)
		for i := 0; i < need; {
			bitIdx := cursor + i
			frameIdx := bitIdx / perFrame
			if frameIdx != currentIdx {
				next, err := store.Frame(entry, frameIdx)
				if err != nil {
					return nil, err
				}
				current, currentIdx = next, frameIdx
			}
			local := bitIdx % perFrame
			span := need - i
			if remain := perFrame - local; span > remain {
				span = remain
			}
			chunk := make([]byte, (span+7)/8)
			got := imagestego.CollectBits(current, chunk, local, span, bits, channels)
			if got != span {
				return nil, fmt.Errorf("collected %d of %d bits from frame %d", got, span, frameIdx)
			}
			for j := 0; j < span; j++ {
				if chunk[j/8]>>(j%8)&1 != 0 {
					out[(i+j)/8] |= 1 << ((i + j) % 8)
				}
			}
			i += span
		}
		cursor += need
		return out, nil
	}, nil
}
