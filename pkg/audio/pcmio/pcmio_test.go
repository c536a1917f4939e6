package pcmio_test

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/kryptik-dev/omni/pkg/audio"
	"github.com/kryptik-dev/omni/pkg/audio/pcmio"
)

func TestReader_SlicesFrames(t *testing.T) {
	// 20 ms at 16 kHz is 320 samples / 640 bytes. Provide two and a half
	// frames; the trailing partial frame is discarded.
	const frameBytes = 640
	data := make([]byte, frameBytes*2+frameBytes/2)
	in := pcmio.NewReader(bytes.NewReader(data), audio.CaptureRate)
	defer in.Close()

	var frames []audio.Frame
	for f := range in.Frames() {
		frames = append(frames, f)
	}

	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(frames))
	}
	for i, f := range frames {
		if f.SampleRate != audio.CaptureRate {
			t.Errorf("frame %d rate = %d, want %d", i, f.SampleRate, audio.CaptureRate)
		}
		if len(f.Samples) != frameBytes/2 {
			t.Errorf("frame %d samples = %d, want %d", i, len(f.Samples), frameBytes/2)
		}
	}
	if frames[1].Timestamp < frames[0].Timestamp {
		t.Errorf("timestamps not monotonic: %v then %v", frames[0].Timestamp, frames[1].Timestamp)
	}
}

func TestReader_DecodesSamples(t *testing.T) {
	// One frame of full-scale positive samples.
	sample := []byte{0xFF, 0x7F}
	data := bytes.Repeat(sample, 320)
	in := pcmio.NewReader(bytes.NewReader(data), audio.CaptureRate)
	defer in.Close()

	f, ok := <-in.Frames()
	if !ok {
		t.Fatal("no frame received")
	}
	if want := float32(32767) / 32768; f.Samples[0] != want {
		t.Errorf("Samples[0] = %v, want %v", f.Samples[0], want)
	}
}

func TestReader_CloseStopsStream(t *testing.T) {
	// An endless source: the reader must stop on Close, not on EOF.
	in := pcmio.NewReader(endlessZeros{}, audio.CaptureRate)

	if _, ok := <-in.Frames(); !ok {
		t.Fatal("no frame from endless source")
	}
	if err := in.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// The channel must close once the buffered frames are drained.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-in.Frames():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("frame channel did not close after Close")
		}
	}
}

type endlessZeros struct{}

func (endlessZeros) Read(p []byte) (int, error) { return len(p), nil }

// syncBuffer is a goroutine-safe byte buffer for capturing writer output.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

func TestWriter_MixesOverlappingLayers(t *testing.T) {
	var buf syncBuffer
	out := pcmio.NewWriter(&buf, audio.PlaybackRate)
	defer out.Close()

	// Two layers at offset zero: the rendered stream starts with their sum.
	const n = 240 // 10 ms at 24 kHz
	layerSamples := make([]float32, n)
	for i := range layerSamples {
		layerSamples[i] = 0.25
	}
	f := audio.Frame{Samples: layerSamples, SampleRate: audio.PlaybackRate}
	if err := out.PlayAt(0, f); err != nil {
		t.Fatalf("PlayAt: %v", err)
	}
	if err := out.PlayAt(0, f); err != nil {
		t.Fatalf("PlayAt: %v", err)
	}

	// Let a few render ticks pass.
	deadline := time.Now().Add(2 * time.Second)
	for len(buf.Bytes()) < n*2 {
		if time.Now().After(deadline) {
			t.Fatal("writer produced no output")
		}
		time.Sleep(10 * time.Millisecond)
	}

	mixed := make([]float32, n)
	for i := range mixed {
		mixed[i] = 0.5
	}
	want := audio.EncodePCM16(mixed)
	got := buf.Bytes()[:n*2]
	if !bytes.Equal(got, want) {
		t.Error("rendered stream does not start with the summed layers")
	}
}

func TestWriter_ClockAlignsScheduler(t *testing.T) {
	var buf syncBuffer
	out := pcmio.NewWriter(&buf, audio.PlaybackRate)
	defer out.Close()

	// Let the render clock run ahead before the scheduler exists, as it does
	// when the writer is created at process start and the scheduler only on
	// session connect.
	time.Sleep(80 * time.Millisecond)

	s := audio.NewScheduler(out)
	defer s.Close()

	samples := make([]float32, 960) // 40 ms at 24 kHz
	for i := range samples {
		samples[i] = 0.5
	}
	slot, err := s.Schedule(audio.Frame{Samples: samples, SampleRate: audio.PlaybackRate})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if slot.Start < 50*time.Millisecond {
		t.Fatalf("slot start = %v; the scheduler is not on the writer's clock", slot.Start)
	}

	// The frame must reach the rendered stream instead of landing in the
	// writer's past and being discarded.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, v := range audio.DecodePCM16(buf.Bytes(), audio.PlaybackRate).Samples {
			if v != 0 {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("scheduled audio never appeared in the rendered stream")
}

func TestWriter_RejectsWrongRate(t *testing.T) {
	out := pcmio.NewWriter(io.Discard, audio.PlaybackRate)
	defer out.Close()

	f := audio.Frame{Samples: make([]float32, 160), SampleRate: audio.CaptureRate}
	if err := out.PlayAt(0, f); err == nil {
		t.Error("PlayAt accepted a frame at the wrong sample rate")
	}
}

func TestWriter_PlayAtAfterClose(t *testing.T) {
	out := pcmio.NewWriter(io.Discard, audio.PlaybackRate)
	if err := out.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	f := audio.Frame{Samples: make([]float32, 240), SampleRate: audio.PlaybackRate}
	if err := out.PlayAt(0, f); err == nil {
		t.Error("PlayAt after Close did not error")
	}
	if err := out.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
