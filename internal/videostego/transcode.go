package videostego

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/jmallory/cloak/internal/imagestego"
)

// ffmpeg bridges the gap pure Go cannot cross: decoding and encoding
// lossy video codecs. The binary is only required for the lossy-video
// paths; everything else in the module runs without it.
const ffmpegBin = "ffmpeg"

// DecodeFrames extracts every frame of the video at path into workDir
// as PNG stills and loads them.
func DecodeFrames(ctx context.Context, path, workDir string) ([]*image.NRGBA, error) {
	pattern := filepath.Join(workDir, "frame-%06d.png")
	cmd := exec.CommandContext(ctx, ffmpegBin, "-hide_banner", "-loglevel", "error",
		"-i", path, pattern)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg frame extraction failed (ffmpeg not installed?): %v: %s", err, out)
	}

	names, err := filepath.Glob(filepath.Join(workDir, "frame-*.png"))
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no frames for %s", path)
	}

	frames := make([]*image.NRGBA, 0, len(names))
	for _, name := range names {
		img, err := imagestego.LoadNRGBA(name)
		if err != nil {
			return nil, err
		}
		frames = append(frames, img)
	}

	log.Debug().Int("frames", len(frames)).Str("video", path).Msg("decoded video frames")
	return frames, nil
}

// EncodeVideo recomposes the PNG frames in framesDir into a video at
// outPath. The write goes through a temp name in the destination
// directory and renames on success so a cancelled encode never leaves
// a half-written file at the final path.
func EncodeVideo(ctx context.Context, framesDir, outPath string, fps int) error {
	if fps <= 0 {
		fps = 30
	}
	tmp := filepath.Join(filepath.Dir(outPath), "."+filepath.Base(outPath)+".part")
	defer os.Remove(tmp)

	pattern := filepath.Join(framesDir, "frame-%06d.png")
	cmd := exec.CommandContext(ctx, ffmpegBin, "-hide_banner", "-loglevel", "error", "-y",
		"-framerate", fmt.Sprint(fps),
		"-start_number", "0",
		"-i", pattern,
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		"-f", "mp4", tmp)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg encode failed (ffmpeg not installed?): %v: %s", err, out)
	}

	return os.Rename(tmp, outPath)
}
