package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// tone describes a synthetic fixture: silence, a sine, silence. The sine
// starts a quarter cycle in so its first sample is not a zero crossing.
type tone struct {
	sampleRate int
	channels   int
	leading    float64 // seconds of digital silence before the sine
	body       float64 // seconds of sine
	trailing   float64
	freq       float64
	amplitude  float64 // peak, relative to full scale
}

func (tn tone) buffer() *Buffer {
	lead := int(tn.leading * float64(tn.sampleRate))
	body := int(tn.body * float64(tn.sampleRate))
	trail := int(tn.trailing * float64(tn.sampleRate))
	frames := lead + body + trail
	b := &Buffer{
		Samples:    make([]float64, frames*tn.channels),
		Channels:   tn.channels,
		SampleRate: tn.sampleRate,
	}
	for i := 0; i < body; i++ {
		v := tn.amplitude * math.Sin(2*math.Pi*tn.freq*float64(i)/float64(tn.sampleRate)+math.Pi/4)
		for c := 0; c < tn.channels; c++ {
			b.Samples[(lead+i)*tn.channels+c] = v
		}
	}
	return b
}

func (tn tone) pcm() *PCM {
	return tn.buffer().Int16()
}

// writeWAV stores a 16-bit fixture and returns its path.
func writeWAV(t *testing.T, dir, name string, p *PCM) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, EncodeWAV(f, p))
	require.NoError(t, f.Close())
	return path
}

func readWAV(t *testing.T, path string) *PCM {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	p, err := DecodeWAV(f)
	require.NoError(t, err)
	return p
}

func dbfs(v float64) float64 {
	return math.Pow(10, v/20)
}
