package audio

import (
	"math"
	"sync/atomic"
)

// RMS computes the root-mean-square level of samples, a scalar in [0, 1]
// for normalized input. Returns 0 for an empty slice.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Meter is a shared, continuously overwritten volume observable in [0, 1].
// It is last-value-wins with no retained history: one writer per pipeline
// phase (capture while listening, playback analysis while speaking) and any
// number of readers.
//
// The zero value is ready to use and reads as 0.
type Meter struct {
	bits atomic.Uint64
}

// Set publishes v as the current level, clamped to [0, 1].
func (m *Meter) Set(v float64) {
	if v < 0 || math.IsNaN(v) {
		v = 0
	} else if v > 1 {
		v = 1
	}
	m.bits.Store(math.Float64bits(v))
}

// Level returns the most recently published value.
func (m *Meter) Level() float64 {
	return math.Float64frombits(m.bits.Load())
}
