// Package effects implements the outbound playback effect chain: an optional
// telephone-bandwidth degradation filter and a looping synthetic
// background-noise bed.
//
// The phone filter approximates analog telephone audio by band-limiting the
// signal to roughly 300–3400 Hz with a touch of nonlinear warmth. The noise
// bed is colored ("pink") noise with sparse crackle impulses, synthesized
// once and looped for the life of a session.
package effects

import (
	"math"

	"github.com/kryptik-dev/omni/pkg/audio"
)

const (
	// phoneHighPassHz and phoneLowPassHz bound the telephone voice band.
	phoneHighPassHz = 300
	phoneLowPassHz  = 3400

	// phoneDrive is the saturation drive. Kept low: the goal is warmth, not
	// distortion.
	phoneDrive = 1.6

	// phoneGain is the fixed output trim applied at the end of the chain.
	phoneGain = 0.85
)

// Phone runs f through the telephone degradation chain:
//
//	high-pass (~300 Hz) → soft-clip saturation → low-pass (~3400 Hz) → gain trim
//
// The low-pass stage deliberately follows the saturation stage so that
// high-frequency harmonics introduced by the nonlinearity are filtered out.
//
// A fresh filter graph is constructed per call, matching the per-buffer
// effect configuration model: the chain carries no state between buffers.
func Phone(f audio.Frame) audio.Frame {
	hp := newHighPass(f.SampleRate, phoneHighPassHz)
	lp := newLowPass(f.SampleRate, phoneLowPassHz)

	out := make([]float32, len(f.Samples))
	for i, s := range f.Samples {
		x := hp.process(float64(s))
		x = softClip(x, phoneDrive)
		x = lp.process(x)
		out[i] = float32(x * phoneGain)
	}
	return audio.Frame{Samples: out, SampleRate: f.SampleRate, Timestamp: f.Timestamp}
}

// softClip applies a tanh-shaped soft-clipping curve. The output is
// normalized so that a full-scale input still reaches full scale.
func softClip(x, drive float64) float64 {
	return math.Tanh(x*drive) / math.Tanh(drive)
}

// biquad is a direct-form-I second-order IIR section using the Audio EQ
// Cookbook (RBJ) coefficient formulas.
type biquad struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
}

// butterworthQ gives a maximally flat passband for a single section.
const butterworthQ = math.Sqrt2 / 2

func newLowPass(sampleRate int, cutoffHz float64) *biquad {
	w0 := 2 * math.Pi * cutoffHz / float64(sampleRate)
	alpha := math.Sin(w0) / (2 * butterworthQ)
	cosw0 := math.Cos(w0)

	a0 := 1 + alpha
	return &biquad{
		b0: (1 - cosw0) / 2 / a0,
		b1: (1 - cosw0) / a0,
		b2: (1 - cosw0) / 2 / a0,
		a1: -2 * cosw0 / a0,
		a2: (1 - alpha) / a0,
	}
}

func newHighPass(sampleRate int, cutoffHz float64) *biquad {
	w0 := 2 * math.Pi * cutoffHz / float64(sampleRate)
	alpha := math.Sin(w0) / (2 * butterworthQ)
	cosw0 := math.Cos(w0)

	a0 := 1 + alpha
	return &biquad{
		b0: (1 + cosw0) / 2 / a0,
		b1: -(1 + cosw0) / a0,
		b2: (1 + cosw0) / 2 / a0,
		a1: -2 * cosw0 / a0,
		a2: (1 - alpha) / a0,
	}
}

func (f *biquad) process(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}
