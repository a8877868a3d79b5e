package audio

import "math"

// TrimReport says how many frames were cut from each end.
type TrimReport struct {
	Leading  int
	Trailing int
}

// TrimSilence drops the leading and trailing runs of frames whose every
// sample stays at or below thresholdDBFS. Each end is scanned on its own and
// scanning stops at the first frame above the threshold, so trimming an
// already trimmed signal changes nothing.
func TrimSilence(p *PCM, thresholdDBFS float64) (*PCM, TrimReport) {
	bound := math.Pow(10, thresholdDBFS/20) * p.FullScale()
	frames := p.Frames()

	silent := func(frame int) bool {
		for _, s := range p.Data[frame*p.Channels : (frame+1)*p.Channels] {
			if math.Abs(float64(s)) > bound {
				return false
			}
		}
		return true
	}

	start := 0
	for start < frames && silent(start) {
		start++
	}
	end := frames
	for end > start && silent(end-1) {
		end--
	}

	out := &PCM{
		Data:       p.Data[start*p.Channels : end*p.Channels],
		Channels:   p.Channels,
		SampleRate: p.SampleRate,
		BitDepth:   p.BitDepth,
	}
	return out, TrimReport{Leading: start, Trailing: frames - end}
}
