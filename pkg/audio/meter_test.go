package audio_test

import (
	"math"
	"testing"

	"github.com/kryptik-dev/omni/pkg/audio"
)

func TestRMS(t *testing.T) {
	if got := audio.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}

	// Constant signal: RMS equals the absolute amplitude.
	constant := []float32{0.5, 0.5, 0.5, 0.5}
	if got := audio.RMS(constant); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("RMS(constant 0.5) = %v, want 0.5", got)
	}

	// Full-scale square wave.
	square := []float32{1, -1, 1, -1}
	if got := audio.RMS(square); math.Abs(got-1) > 1e-9 {
		t.Errorf("RMS(square) = %v, want 1", got)
	}

	// Sine wave: RMS is amplitude / sqrt(2).
	sine := make([]float32, 1000)
	for i := range sine {
		sine[i] = float32(math.Sin(2 * math.Pi * float64(i) / float64(len(sine))))
	}
	want := 1 / math.Sqrt2
	if got := audio.RMS(sine); math.Abs(got-want) > 1e-3 {
		t.Errorf("RMS(sine) = %v, want %v", got, want)
	}
}

func TestMeter(t *testing.T) {
	var m audio.Meter

	if got := m.Level(); got != 0 {
		t.Errorf("zero-value Level() = %v, want 0", got)
	}

	m.Set(0.7)
	if got := m.Level(); got != 0.7 {
		t.Errorf("Level() = %v, want 0.7", got)
	}

	// Last value wins.
	m.Set(0.2)
	if got := m.Level(); got != 0.2 {
		t.Errorf("Level() = %v, want 0.2", got)
	}
}

func TestMeter_Clamps(t *testing.T) {
	var m audio.Meter

	m.Set(1.5)
	if got := m.Level(); got != 1 {
		t.Errorf("Level() after Set(1.5) = %v, want 1", got)
	}

	m.Set(-0.5)
	if got := m.Level(); got != 0 {
		t.Errorf("Level() after Set(-0.5) = %v, want 0", got)
	}

	m.Set(math.NaN())
	if got := m.Level(); got != 0 {
		t.Errorf("Level() after Set(NaN) = %v, want 0", got)
	}
}
