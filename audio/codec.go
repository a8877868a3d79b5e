package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Output formats understood by Codec.Encode.
const (
	FormatWAV  = "wav"
	FormatMP3  = "mp3"
	FormatFLAC = "flac"
)

// Codec moves audio between files and PCM. WAV is handled natively,
// everything else through ffmpeg.
type Codec struct {
	ffmpeg *FFmpeg
}

// NewCodec returns a codec that shells out to ffmpeg when it has to.
func NewCodec(ffmpeg *FFmpeg) *Codec {
	if ffmpeg == nil {
		ffmpeg = NewFFmpeg("")
	}
	return &Codec{ffmpeg: ffmpeg}
}

// Decode reads the file at path into PCM.
func (c *Codec) Decode(ctx context.Context, path string) (*PCM, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		pcm, err := DecodeWAV(f)
		_ = f.Close()
		if err == nil {
			return pcm, nil
		}
		if !errors.Is(err, errUnsupportedWAV) {
			return nil, err
		}
	}

	raw, err := c.ffmpeg.DecodeToWAV(ctx, path)
	if err != nil {
		return nil, err
	}
	return DecodeWAV(bytes.NewReader(raw))
}

// Encode writes b as 16-bit audio into dir/name. The data is staged in a
// temporary file next to the destination and only renamed into place once
// complete, so a failed or abandoned encode leaves nothing behind.
func (c *Codec) Encode(ctx context.Context, b *Buffer, dir, name, format, bitrate string) (err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	final := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, ".partial-*.wav")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
		if err != nil {
			_ = os.Remove(final)
		}
	}()

	if err := EncodeWAV(tmp, b.Int16()); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if format == "" || format == FormatWAV {
		return os.Rename(tmpPath, final)
	}
	return c.ffmpeg.EncodeFromWAV(ctx, tmpPath, final, format, bitrate)
}

// Extension returns the file extension for an output format.
func Extension(format string) string {
	switch format {
	case FormatMP3, FormatFLAC:
		return "." + format
	default:
		return ".wav"
	}
}
