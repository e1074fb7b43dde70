// Package media turns storyboards into section videos and merges section
// videos into lesson videos, managing scratch storage and uploads.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Renderer performs the local video operations of the assembly pipeline.
type Renderer interface {
	// RenderClip renders a still image plus narration audio into a
	// video clip of the given duration.
	RenderClip(ctx context.Context, imagePath, audioPath, outPath string, duration time.Duration) error

	// Concat concatenates clips, in order, into a single video.
	Concat(ctx context.Context, clipPaths []string, outPath string) error

	// Duration measures a video file's duration.
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// FFmpeg implements Renderer by shelling out to ffmpeg/ffprobe.
type FFmpeg struct {
	bin    string
	probe  string
	logger *slog.Logger
}

// NewFFmpeg creates an ffmpeg-backed renderer. Empty bin/probe fall back
// to "ffmpeg" and "ffprobe" on PATH.
func NewFFmpeg(bin, probe string, logger *slog.Logger) *FFmpeg {
	if bin == "" {
		bin = "ffmpeg"
	}
	if probe == "" {
		probe = "ffprobe"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpeg{bin: bin, probe: probe, logger: logger}
}

// RenderClip holds the image static for duration with the audio as
// soundtrack.
func (f *FFmpeg) RenderClip(ctx context.Context, imagePath, audioPath, outPath string, duration time.Duration) error {
	args := []string{
		"-y",
		"-loop", "1",
		"-i", imagePath,
		"-i", audioPath,
		"-t", strconv.FormatFloat(duration.Seconds(), 'f', 2, 64),
		"-c:v", "libx264",
		"-tune", "stillimage",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-shortest",
		outPath,
	}
	return f.run(ctx, args)
}

// Concat concatenates clips via the ffmpeg concat demuxer.
func (f *FFmpeg) Concat(ctx context.Context, clipPaths []string, outPath string) error {
	listPath := outPath + ".txt"
	var list strings.Builder
	for _, p := range clipPaths {
		fmt.Fprintf(&list, "file '%s'\n", p)
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o600); err != nil {
		return fmt.Errorf("media: write concat list: %w", err)
	}
	defer os.Remove(listPath)

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outPath,
	}
	return f.run(ctx, args)
}

// Duration measures the file's duration with ffprobe.
func (f *FFmpeg) Duration(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, f.probe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("media: ffprobe %s: %w", path, err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("media: parse duration of %s: %w", path, err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, f.bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		f.logger.Error("ffmpeg failed",
			slog.String("args", strings.Join(args, " ")),
			slog.String("output", string(out)),
		)
		return fmt.Errorf("media: ffmpeg: %w", err)
	}
	return nil
}
