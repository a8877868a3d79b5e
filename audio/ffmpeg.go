package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// commandResult is what a finished external command left behind.
type commandResult struct {
	Stdout   []byte
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{Stdout: stdout.Bytes(), Stderr: stderr.String()}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// FFmpeg transcodes containers the native WAV codec cannot handle.
type FFmpeg struct {
	path   string
	runner commandRunner
}

// NewFFmpeg uses the ffmpeg binary at path ("ffmpeg" when empty).
func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{path: path, runner: execRunner{}}
}

// DecodeToWAV converts any input ffmpeg understands into 16-bit WAV bytes.
func (f *FFmpeg) DecodeToWAV(ctx context.Context, input string) ([]byte, error) {
	args := []string{
		"-v", "error",
		"-nostdin",
		"-i", input,
		"-vn",
		"-f", "wav",
		"-acodec", "pcm_s16le",
		"pipe:1",
	}
	res, err := f.runner.Run(ctx, f.path, args...)
	if err != nil {
		return nil, ffmpegError(ctx, res, err)
	}
	return res.Stdout, nil
}

// EncodeFromWAV transcodes a WAV file into format at bitrate.
func (f *FFmpeg) EncodeFromWAV(ctx context.Context, wavPath, output, format, bitrate string) error {
	args := []string{"-v", "error", "-nostdin", "-y", "-i", wavPath}
	args = append(args, codecArgs(format, bitrate)...)
	args = append(args, output)
	res, err := f.runner.Run(ctx, f.path, args...)
	if err != nil {
		return ffmpegError(ctx, res, err)
	}
	return nil
}

func ffmpegError(ctx context.Context, res commandResult, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	lines := strings.Split(strings.TrimSpace(res.Stderr), "\n")
	if last := strings.TrimSpace(lines[len(lines)-1]); last != "" {
		return fmt.Errorf("ffmpeg failed (exit %d): %s", res.ExitCode, last)
	}
	return fmt.Errorf("ffmpeg failed: %w", err)
}

func codecArgs(format, bitrate string) []string {
	if bitrate == "" {
		bitrate = "192k"
	}
	switch format {
	case "mp3":
		return []string{"-f", "mp3", "-codec:a", "libmp3lame", "-b:a", bitrate}
	case "flac":
		return []string{"-f", "flac", "-codec:a", "flac", "-compression_level", "8"}
	default:
		return []string{"-f", "wav", "-codec:a", "pcm_s16le"}
	}
}
