// Package audio implements the mastering pipeline: decode, silence trim,
// BS.1770 loudness normalization, peak-safety limiting, jingle insertion and
// export.
package audio

import (
	"math"
	"time"
)

// PCM is decoded integer audio, interleaved by frame.
type PCM struct {
	Data       []int
	Channels   int
	SampleRate int
	BitDepth   int
}

// Frames returns the number of sample frames.
func (p *PCM) Frames() int {
	if p.Channels == 0 {
		return 0
	}
	return len(p.Data) / p.Channels
}

// FullScale is the magnitude of the most negative sample at this bit depth.
func (p *PCM) FullScale() float64 {
	return math.Ldexp(1, p.BitDepth-1)
}

// Float scales samples into [-1.0, 1.0]. Loudness has to be measured on
// scaled samples; raw integers read tens of dB too loud.
func (p *PCM) Float() *Buffer {
	scale := 1 / p.FullScale()
	out := make([]float64, len(p.Data))
	for i, s := range p.Data {
		out[i] = float64(s) * scale
	}
	return &Buffer{Samples: out, Channels: p.Channels, SampleRate: p.SampleRate}
}

// Buffer is floating point audio in [-1.0, 1.0], interleaved by frame.
type Buffer struct {
	Samples    []float64
	Channels   int
	SampleRate int
}

// Frames returns the number of sample frames.
func (b *Buffer) Frames() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playing time of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(b.Frames()) / float64(b.SampleRate) * float64(time.Second))
}

// Peak returns the largest absolute sample value.
func (b *Buffer) Peak() float64 {
	peak := 0.0
	for _, s := range b.Samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	return peak
}

// Scale multiplies every sample by factor.
func (b *Buffer) Scale(factor float64) {
	for i := range b.Samples {
		b.Samples[i] *= factor
	}
}

// Concat joins buffers that share a channel layout and sample rate.
func Concat(parts ...*Buffer) *Buffer {
	if len(parts) == 0 {
		return &Buffer{}
	}
	total := 0
	for _, p := range parts {
		total += len(p.Samples)
	}
	out := &Buffer{
		Samples:    make([]float64, 0, total),
		Channels:   parts[0].Channels,
		SampleRate: parts[0].SampleRate,
	}
	for _, p := range parts {
		out.Samples = append(out.Samples, p.Samples...)
	}
	return out
}

// Int16 converts to 16-bit PCM, clamping anything outside full scale.
func (b *Buffer) Int16() *PCM {
	data := make([]int, len(b.Samples))
	for i, s := range b.Samples {
		v := math.Round(s * math.MaxInt16)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		data[i] = int(v)
	}
	return &PCM{Data: data, Channels: b.Channels, SampleRate: b.SampleRate, BitDepth: 16}
}
