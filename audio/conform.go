package audio

import "math"

// Conform converts b to the given channel count and sample rate. Mono is
// copied to every output channel, multi-channel to mono is averaged, and
// rate changes use linear interpolation.
func Conform(b *Buffer, channels, sampleRate int) *Buffer {
	out := b
	if b.Channels != channels {
		out = remix(out, channels)
	}
	if out.SampleRate != sampleRate {
		out = resample(out, sampleRate)
	}
	return out
}

func remix(b *Buffer, channels int) *Buffer {
	frames := b.Frames()
	out := &Buffer{
		Samples:    make([]float64, frames*channels),
		Channels:   channels,
		SampleRate: b.SampleRate,
	}
	for f := 0; f < frames; f++ {
		src := b.Samples[f*b.Channels : (f+1)*b.Channels]
		dst := out.Samples[f*channels : (f+1)*channels]
		if channels == 1 {
			sum := 0.0
			for _, s := range src {
				sum += s
			}
			dst[0] = sum / float64(len(src))
			continue
		}
		for c := range dst {
			dst[c] = src[c%len(src)]
		}
	}
	return out
}

func resample(b *Buffer, sampleRate int) *Buffer {
	frames := b.Frames()
	ratio := float64(b.SampleRate) / float64(sampleRate)
	outFrames := int(math.Round(float64(frames) / ratio))
	out := &Buffer{
		Samples:    make([]float64, outFrames*b.Channels),
		Channels:   b.Channels,
		SampleRate: sampleRate,
	}
	if frames == 0 {
		return out
	}
	for f := 0; f < outFrames; f++ {
		pos := float64(f) * ratio
		i0 := int(pos)
		if i0 >= frames-1 {
			i0 = frames - 1
		}
		i1 := min(i0+1, frames-1)
		frac := pos - float64(i0)
		for c := 0; c < b.Channels; c++ {
			s0 := b.Samples[i0*b.Channels+c]
			s1 := b.Samples[i1*b.Channels+c]
			out.Samples[f*b.Channels+c] = s0 + (s1-s0)*frac
		}
	}
	return out
}
