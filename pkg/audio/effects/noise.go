package effects

import (
	"math/rand/v2"
	"time"

	"github.com/kryptik-dev/omni/pkg/audio"
)

const (
	// DefaultNoiseGain is the mix level of the background-noise bed. The bed
	// sits well under speech — it suggests an analog line, it does not mask
	// the voice.
	DefaultNoiseGain = 0.04

	// defaultBedSeconds is the length of the looped noise buffer.
	defaultBedSeconds = 4

	// crackleProbability is the per-sample chance of an impulse spike.
	crackleProbability = 1.0 / 18000

	// pinkScale normalizes the Kellett filter sum to roughly [-1, 1].
	pinkScale = 0.18
)

// NoiseBed is a fixed-length looped buffer of pink noise with sparse crackle
// impulses, emulating analog line noise. The buffer is synthesized once at
// construction; Fill then serves gain-scaled reads from the loop.
//
// NoiseBed is not safe for concurrent use — a session owns exactly one bed
// and reads it from a single goroutine.
type NoiseBed struct {
	buf  []float32
	pos  int
	gain float32
}

// NoiseBedOption configures a [NoiseBed] during construction.
type NoiseBedOption func(*noiseBedConfig)

type noiseBedConfig struct {
	gain    float64
	seconds float64
	rng     *rand.Rand
}

// WithNoiseGain sets the mix level. Values outside (0, 1] fall back to
// [DefaultNoiseGain].
func WithNoiseGain(g float64) NoiseBedOption {
	return func(c *noiseBedConfig) {
		if g > 0 && g <= 1 {
			c.gain = g
		}
	}
}

// WithNoiseRand sets the random source used for synthesis, making the bed
// deterministic for tests.
func WithNoiseRand(r *rand.Rand) NoiseBedOption {
	return func(c *noiseBedConfig) { c.rng = r }
}

// NewNoiseBed synthesizes a looped pink-noise buffer at the given sample
// rate. Pink noise is produced by a low-order recursive filter (the Kellett
// economy form) driven by white noise, with a small per-sample probability
// of a random high-amplitude impulse.
func NewNoiseBed(sampleRate int, opts ...NoiseBedOption) *NoiseBed {
	cfg := noiseBedConfig{
		gain:    DefaultNoiseGain,
		seconds: defaultBedSeconds,
	}
	for _, o := range opts {
		o(&cfg)
	}
	randF := rand.Float64
	if cfg.rng != nil {
		randF = cfg.rng.Float64
	}

	n := int(float64(sampleRate) * cfg.seconds)
	buf := make([]float32, n)

	var b0, b1, b2 float64
	for i := range n {
		white := randF()*2 - 1
		b0 = 0.99765*b0 + white*0.0990460
		b1 = 0.96300*b1 + white*0.2965164
		b2 = 0.57000*b2 + white*1.0526913
		pink := (b0 + b1 + b2 + white*0.1848) * pinkScale

		if randF() < crackleProbability {
			// Analog line crackle: a single loud click of random polarity.
			pink += (randF()*2 - 1) * 0.9
		}

		if pink > 1 {
			pink = 1
		} else if pink < -1 {
			pink = -1
		}
		buf[i] = float32(pink)
	}

	return &NoiseBed{buf: buf, gain: float32(cfg.gain)}
}

// Fill writes the next len(dst) gain-scaled samples from the loop into dst,
// wrapping around the buffer as needed.
func (b *NoiseBed) Fill(dst []float32) {
	for i := range dst {
		dst[i] = b.buf[b.pos] * b.gain
		b.pos++
		if b.pos == len(b.buf) {
			b.pos = 0
		}
	}
}

// Frame returns a new frame of d worth of noise at the given sample rate.
func (b *NoiseBed) Frame(sampleRate int, d time.Duration) audio.Frame {
	n := int(time.Duration(sampleRate) * d / time.Second)
	samples := make([]float32, n)
	b.Fill(samples)
	return audio.Frame{Samples: samples, SampleRate: sampleRate}
}
