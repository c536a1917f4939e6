// Package pcmio adapts raw s16le PCM byte streams to the audio pipeline
// interfaces: an [audio.Input] that reads fixed-size capture frames from an
// io.Reader (a recording process on stdin, a file, a socket) and an
// [audio.Output] that mixes scheduled frames in real time and writes the
// result to an io.Writer (a playback process on stdout).
//
// This keeps the engine free of platform audio bindings — any OS capture or
// playback tool that speaks raw mono PCM plugs in at the process boundary:
//
//	rec -t raw -r 16000 -e signed -b 16 -c 1 - | omni | play -t raw -r 24000 -e signed -b 16 -c 1 -
package pcmio

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/kryptik-dev/omni/pkg/audio"
)

// DefaultFrameDuration is the size of capture frames produced by [Reader].
const DefaultFrameDuration = 20 * time.Millisecond

// renderInterval is the cadence of the output render loop.
const renderInterval = 20 * time.Millisecond

// Compile-time interface checks.
var (
	_ audio.Input       = (*Reader)(nil)
	_ audio.Output      = (*Writer)(nil)
	_ audio.ClockSource = (*Writer)(nil)
)

// Reader is an [audio.Input] that slices an s16le PCM stream into frames.
type Reader struct {
	frames chan audio.Frame

	closeOnce sync.Once
	closed    chan struct{}
}

// NewReader starts reading sampleRate mono s16le PCM from r, emitting one
// frame per [DefaultFrameDuration]. The frame channel closes on EOF, read
// error, or Close.
func NewReader(r io.Reader, sampleRate int) *Reader {
	in := &Reader{
		frames: make(chan audio.Frame, 8),
		closed: make(chan struct{}),
	}
	go in.readLoop(r, sampleRate)
	return in
}

func (in *Reader) readLoop(r io.Reader, sampleRate int) {
	defer close(in.frames)

	samplesPerFrame := int(time.Duration(sampleRate) * DefaultFrameDuration / time.Second)
	buf := make([]byte, samplesPerFrame*2)
	start := time.Now()

	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			return
		}
		f := audio.DecodePCM16(buf, sampleRate)
		f.Timestamp = time.Since(start)

		select {
		case in.frames <- f:
		case <-in.closed:
			return
		}
	}
}

// Frames implements audio.Input.
func (in *Reader) Frames() <-chan audio.Frame { return in.frames }

// Close implements audio.Input. The underlying reader is not closed — the
// caller owns it.
func (in *Reader) Close() error {
	in.closeOnce.Do(func() { close(in.closed) })
	return nil
}

// layer is one scheduled frame awaiting rendering.
type layer struct {
	start   time.Duration
	samples []float32
}

// Writer is an [audio.Output] that renders its schedule to an s16le PCM
// stream in real time. Frames whose intervals overlap are summed, so
// independent layers (speech, noise bed) mix naturally; the sum is clamped
// during encoding.
type Writer struct {
	w          io.Writer
	sampleRate int

	mu     sync.Mutex
	layers []layer
	closed bool

	start time.Time
	done  chan struct{}
	once  sync.Once
}

// NewWriter starts a real-time render loop producing sampleRate mono s16le
// PCM on w. The output clock starts immediately.
func NewWriter(w io.Writer, sampleRate int) *Writer {
	out := &Writer{
		w:          w,
		sampleRate: sampleRate,
		start:      time.Now(),
		done:       make(chan struct{}),
	}
	go out.renderLoop()
	return out
}

// PlayAt implements audio.Output.
func (out *Writer) PlayAt(start time.Duration, f audio.Frame) error {
	out.mu.Lock()
	defer out.mu.Unlock()
	if out.closed {
		return fmt.Errorf("pcmio: output closed")
	}
	if f.SampleRate != out.sampleRate {
		return fmt.Errorf("pcmio: frame rate %d does not match output rate %d", f.SampleRate, out.sampleRate)
	}
	out.layers = append(out.layers, layer{start: start, samples: f.Samples})
	return nil
}

// Clock implements [audio.ClockSource]. Offsets handed to PlayAt are
// interpreted on this clock, which starts at NewWriter — schedulers must
// compute against it or their audio lands in the writer's past.
func (out *Writer) Clock() audio.Clock { return writerClock{start: out.start} }

type writerClock struct{ start time.Time }

func (c writerClock) Now() time.Duration { return time.Since(c.start) }

// Close implements audio.Output. Pending layers are dropped.
func (out *Writer) Close() error {
	out.mu.Lock()
	out.closed = true
	out.layers = nil
	out.mu.Unlock()
	out.once.Do(func() { close(out.done) })
	return nil
}

// renderLoop mixes one renderInterval of audio per tick and writes it out.
func (out *Writer) renderLoop() {
	ticker := time.NewTicker(renderInterval)
	defer ticker.Stop()

	samplesPerTick := int(time.Duration(out.sampleRate) * renderInterval / time.Second)
	mix := make([]float32, samplesPerTick)
	var rendered time.Duration

	for {
		select {
		case <-out.done:
			return
		case <-ticker.C:
			clear(mix)
			out.mixInto(mix, rendered)
			rendered += renderInterval
			if _, err := out.w.Write(audio.EncodePCM16(mix)); err != nil {
				_ = out.Close()
				return
			}
		}
	}
}

// mixInto sums every layer overlapping the window [from, from+len(dst))
// into dst and discards layers that have fully played out.
func (out *Writer) mixInto(dst []float32, from time.Duration) {
	out.mu.Lock()
	defer out.mu.Unlock()

	windowStart := int(from * time.Duration(out.sampleRate) / time.Second)
	windowEnd := windowStart + len(dst)

	kept := out.layers[:0]
	for _, l := range out.layers {
		layerStart := int(l.start * time.Duration(out.sampleRate) / time.Second)
		layerEnd := layerStart + len(l.samples)

		if layerEnd <= windowStart {
			continue // fully played, drop
		}
		kept = append(kept, l)
		if layerStart >= windowEnd {
			continue // not due yet
		}

		// Overlap of [layerStart, layerEnd) with the window.
		lo := max(layerStart, windowStart)
		hi := min(layerEnd, windowEnd)
		for i := lo; i < hi; i++ {
			dst[i-windowStart] += l.samples[i-layerStart]
		}
	}
	out.layers = kept
}
