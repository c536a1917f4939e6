package effects_test

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/kryptik-dev/omni/pkg/audio"
	"github.com/kryptik-dev/omni/pkg/audio/effects"
)

func seededRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func TestNoiseBed_Deterministic(t *testing.T) {
	a := effects.NewNoiseBed(8000, effects.WithNoiseRand(seededRand()))
	b := effects.NewNoiseBed(8000, effects.WithNoiseRand(seededRand()))

	bufA := make([]float32, 4000)
	bufB := make([]float32, 4000)
	a.Fill(bufA)
	b.Fill(bufB)

	for i := range bufA {
		if bufA[i] != bufB[i] {
			t.Fatalf("sample %d differs with identical seeds: %v vs %v", i, bufA[i], bufB[i])
		}
	}
}

func TestNoiseBed_Bounds(t *testing.T) {
	const gain = 0.1
	bed := effects.NewNoiseBed(8000,
		effects.WithNoiseGain(gain),
		effects.WithNoiseRand(seededRand()),
	)

	buf := make([]float32, 8000*4)
	bed.Fill(buf)

	for i, s := range buf {
		if float64(s) > gain || float64(s) < -gain {
			t.Fatalf("sample %d = %v, outside [-%v, %v]", i, s, gain, gain)
		}
	}
}

func TestNoiseBed_LoopWraparound(t *testing.T) {
	// A 100 Hz bed loops every 400 samples.
	const sampleRate = 100
	bed := effects.NewNoiseBed(sampleRate, effects.WithNoiseRand(seededRand()))

	buf := make([]float32, sampleRate*4*2)
	bed.Fill(buf)

	period := sampleRate * 4
	for i := range period {
		if buf[i] != buf[i+period] {
			t.Fatalf("sample %d does not repeat after one loop: %v vs %v", i, buf[i], buf[i+period])
		}
	}
}

func TestNoiseBed_GainScaling(t *testing.T) {
	loud := effects.NewNoiseBed(8000,
		effects.WithNoiseGain(0.2),
		effects.WithNoiseRand(seededRand()),
	)
	quiet := effects.NewNoiseBed(8000,
		effects.WithNoiseGain(0.05),
		effects.WithNoiseRand(seededRand()),
	)

	bufLoud := make([]float32, 8000)
	bufQuiet := make([]float32, 8000)
	loud.Fill(bufLoud)
	quiet.Fill(bufQuiet)

	ratio := audio.RMS(bufLoud) / audio.RMS(bufQuiet)
	if math.Abs(ratio-4) > 0.01 {
		t.Errorf("RMS ratio = %v, want 4 (gain 0.2 vs 0.05)", ratio)
	}
}

func TestNoiseBed_InvalidGainFallsBack(t *testing.T) {
	def := effects.NewNoiseBed(8000, effects.WithNoiseRand(seededRand()))
	bad := effects.NewNoiseBed(8000,
		effects.WithNoiseGain(2.5),
		effects.WithNoiseRand(seededRand()),
	)

	bufDef := make([]float32, 1000)
	bufBad := make([]float32, 1000)
	def.Fill(bufDef)
	bad.Fill(bufBad)

	for i := range bufDef {
		if bufDef[i] != bufBad[i] {
			t.Fatalf("sample %d: out-of-range gain did not fall back to default", i)
		}
	}
}

func TestNoiseBed_Frame(t *testing.T) {
	bed := effects.NewNoiseBed(audio.PlaybackRate, effects.WithNoiseRand(seededRand()))

	f := bed.Frame(audio.PlaybackRate, 100*time.Millisecond)
	if f.SampleRate != audio.PlaybackRate {
		t.Errorf("frame rate = %d, want %d", f.SampleRate, audio.PlaybackRate)
	}
	if want := audio.PlaybackRate / 10; len(f.Samples) != want {
		t.Errorf("frame samples = %d, want %d", len(f.Samples), want)
	}
	if f.Duration() != 100*time.Millisecond {
		t.Errorf("frame duration = %v, want 100ms", f.Duration())
	}
}
