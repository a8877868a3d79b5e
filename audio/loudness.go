package audio

import (
	"math"
)

const (
	blockSeconds   = 0.4
	overlap        = 0.75
	absoluteGate   = -70.0
	relativeGateLU = -10.0
)

// biquad is a second-order IIR section in transposed direct form II.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

func (f biquad) apply(in []float64) []float64 {
	out := make([]float64, len(in))
	var z1, z2 float64
	for i, x := range in {
		y := f.b0*x + z1
		z1 = f.b1*x - f.a1*y + z2
		z2 = f.b2*x - f.a2*y
		out[i] = y
	}
	return out
}

// kWeighting returns the BS.1770 pre-filter (high shelf) and RLB high-pass
// designed for the given sample rate.
func kWeighting(sampleRate int) (shelf, highpass biquad) {
	fs := float64(sampleRate)

	f0 := 1681.974450955533
	g := 3.999843853973347
	q := 0.7071752369554196
	k := math.Tan(math.Pi * f0 / fs)
	vh := math.Pow(10, g/20)
	vb := math.Pow(vh, 0.4996667741545416)
	a0 := 1 + k/q + k*k
	shelf = biquad{
		b0: (vh + vb*k/q + k*k) / a0,
		b1: 2 * (k*k - vh) / a0,
		b2: (vh - vb*k/q + k*k) / a0,
		a1: 2 * (k*k - 1) / a0,
		a2: (1 - k/q + k*k) / a0,
	}

	f0 = 38.13547087602444
	q = 0.5003270373238773
	k = math.Tan(math.Pi * f0 / fs)
	a0 = 1 + k/q + k*k
	highpass = biquad{
		b0: 1,
		b1: -2,
		b2: 1,
		a1: 2 * (k*k - 1) / a0,
		a2: (1 - k/q + k*k) / a0,
	}
	return shelf, highpass
}

// channelWeight is G_i from BS.1770: surround channels count 1.41.
func channelWeight(ch, channels int) float64 {
	if channels == 5 && (ch == 3 || ch == 4) {
		return 1.41
	}
	return 1.0
}

// IntegratedLoudness measures gated integrated loudness in LUFS following
// ITU-R BS.1770-4. It returns -Inf for buffers shorter than one gating
// block or entirely below the absolute gate.
func IntegratedLoudness(b *Buffer) float64 {
	frames := b.Frames()
	blockLen := int(math.Round(blockSeconds * float64(b.SampleRate)))
	step := int(math.Round(blockSeconds * (1 - overlap) * float64(b.SampleRate)))
	if b.Channels == 0 || blockLen == 0 || step == 0 || frames < blockLen {
		return math.Inf(-1)
	}
	blocks := (frames-blockLen)/step + 1

	shelf, highpass := kWeighting(b.SampleRate)

	// z[ch][j] is the mean square of channel ch over block j.
	z := make([][]float64, b.Channels)
	channel := make([]float64, frames)
	for ch := 0; ch < b.Channels; ch++ {
		for i := 0; i < frames; i++ {
			channel[i] = b.Samples[i*b.Channels+ch]
		}
		filtered := highpass.apply(shelf.apply(channel))

		prefix := make([]float64, frames+1)
		for i, s := range filtered {
			prefix[i+1] = prefix[i] + s*s
		}
		z[ch] = make([]float64, blocks)
		for j := 0; j < blocks; j++ {
			lo := j * step
			z[ch][j] = (prefix[lo+blockLen] - prefix[lo]) / float64(blockLen)
		}
	}

	blockLoudness := func(j int) float64 {
		sum := 0.0
		for ch := range z {
			sum += channelWeight(ch, b.Channels) * z[ch][j]
		}
		return -0.691 + 10*math.Log10(sum)
	}
	gatedLoudness := func(keep []int) float64 {
		sum := 0.0
		for ch := range z {
			mean := 0.0
			for _, j := range keep {
				mean += z[ch][j]
			}
			mean /= float64(len(keep))
			sum += channelWeight(ch, b.Channels) * mean
		}
		return -0.691 + 10*math.Log10(sum)
	}

	var aboveAbsolute []int
	for j := 0; j < blocks; j++ {
		if blockLoudness(j) > absoluteGate {
			aboveAbsolute = append(aboveAbsolute, j)
		}
	}
	if len(aboveAbsolute) == 0 {
		return math.Inf(-1)
	}

	relativeGate := gatedLoudness(aboveAbsolute) + relativeGateLU
	var kept []int
	for _, j := range aboveAbsolute {
		if blockLoudness(j) > relativeGate {
			kept = append(kept, j)
		}
	}
	if len(kept) == 0 {
		return math.Inf(-1)
	}
	return gatedLoudness(kept)
}

// Normalization describes the gain applied by Normalize.
type Normalization struct {
	MeasuredLUFS float64
	GainDB       float64
}

// Normalize applies a uniform gain that moves the integrated loudness of b
// to targetLUFS. Unmeasurable (silent or too short) audio is left as is.
func Normalize(b *Buffer, targetLUFS float64) Normalization {
	measured := IntegratedLoudness(b)
	if math.IsInf(measured, -1) || math.IsNaN(measured) {
		return Normalization{MeasuredLUFS: measured}
	}
	gainDB := targetLUFS - measured
	b.Scale(math.Pow(10, gainDB/20))
	return Normalization{MeasuredLUFS: measured, GainDB: gainDB}
}

// Limit is the outcome of LimitPeak.
type Limit struct {
	Peak    float64
	Scale   float64
	Applied bool
}

// LimitPeak scales b down uniformly when its peak exceeds headroom (at most
// 1.0, i.e. 0 dBFS), so that the new peak equals headroom. It must run after
// normalization gain, which is what pushes peaks over the limit in the
// first place.
func LimitPeak(b *Buffer, headroom float64) Limit {
	if headroom <= 0 || headroom > 1 {
		headroom = 1
	}
	peak := b.Peak()
	if peak <= headroom {
		return Limit{Peak: peak, Scale: 1}
	}
	scale := headroom / peak
	b.Scale(scale)
	return Limit{Peak: peak, Scale: scale, Applied: true}
}
