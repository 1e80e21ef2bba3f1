package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"github.com/rs/zerolog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

var ErrNoFrames = errors.New("no frames extracted")

const (
	frameIntervalSeconds = 1
	maxFrames            = 6
)

type Runner struct {
	FFmpegBin  string
	FFprobeBin string
}

func New() *Runner {
	return &Runner{FFmpegBin: "ffmpeg", FFprobeBin: "ffprobe"}
}

// Split cuts videoPath into chunkSeconds segments named chunk_%04d.mp4 and returns them in index order.
// Anything already in outputDir is removed first. Stream copy is tried first; a re-encode is the
// fallback for inputs whose keyframes do not allow it.
func (r *Runner) Split(ctx context.Context, videoPath, outputDir string, chunkSeconds int) ([]string, error) {
	if err := os.RemoveAll(outputDir); err != nil {
		return nil, fmt.Errorf("clearing chunk directory: %w", err)
	}
	if err := os.MkdirAll(outputDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("creating chunk directory: %w", err)
	}
	pattern := filepath.Join(outputDir, "chunk_%04d.mp4")
	segmentArgs := []string{
		"-f", "segment",
		"-segment_time", strconv.Itoa(chunkSeconds),
		"-reset_timestamps", "1",
		pattern,
	}

	copyArgs := append([]string{"-y", "-i", videoPath, "-c", "copy", "-map", "0"}, segmentArgs...)
	if out, err := r.run(ctx, r.FFmpegBin, copyArgs...); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("output", truncate(out, 400)).Msg("stream copy failed, re-encoding")

		encodeArgs := append([]string{
			"-y", "-i", videoPath,
			"-c:v", "libx264",
			"-preset", "veryfast",
			"-crf", "23",
			"-c:a", "aac",
			"-b:a", "128k",
		}, segmentArgs...)
		if out, err := r.run(ctx, r.FFmpegBin, encodeArgs...); err != nil {
			return nil, fmt.Errorf("ffmpeg segment failed: %w: %s", err, truncate(out, 400))
		}
	}

	chunks, err := filepath.Glob(filepath.Join(outputDir, "chunk_*.mp4"))
	if err != nil {
		return nil, fmt.Errorf("locating chunks: %w", err)
	}
	sort.Strings(chunks)
	return chunks, nil
}

// Duration returns 0 when ffprobe prints something that is not a number.
func (r *Runner) Duration(ctx context.Context, videoPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, r.FFprobeBin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, nil
	}
	return duration, nil
}

// ExtractFrames samples one JPEG per second, at most six, and returns their bytes.
func (r *Runner) ExtractFrames(ctx context.Context, videoPath string) ([][]byte, error) {
	tmpDir, err := os.MkdirTemp("", "frames-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	out, err := r.run(ctx, r.FFmpegBin,
		"-y",
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=1/%d", frameIntervalSeconds),
		"-frames:v", strconv.Itoa(maxFrames),
		filepath.Join(tmpDir, "frame_%02d.jpg"),
	)
	if err != nil {
		return nil, fmt.Errorf("frame extraction failed: %w: %s", err, truncate(out, 400))
	}

	paths, err := filepath.Glob(filepath.Join(tmpDir, "*.jpg"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	frames := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		frames = append(frames, data)
	}
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}
	return frames, nil
}

func (r *Runner) run(ctx context.Context, bin string, args ...string) (string, error) {
	zerolog.Ctx(ctx).Debug().Str("cmd", bin+" "+strings.Join(args, " ")).Msg("exec")
	out, err := exec.CommandContext(ctx, bin, args...).CombinedOutput()
	return string(out), err
}

// truncate keeps at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
