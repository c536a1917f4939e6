// Package audio defines the core types and interfaces for the Omni audio
// pipeline: normalized sample frames, the PCM16 wire codec, the playback
// scheduler, and the shared volume meter.
//
// The pipeline is fixed-format: mono 16-bit PCM on the wire, 16 kHz for
// microphone capture and 24 kHz for model playback. No resampling or codec
// negotiation is performed — producers and consumers must already operate at
// these rates.
package audio

import (
	"context"
	"time"
)

const (
	// CaptureRate is the sample rate of outbound microphone audio in Hz.
	CaptureRate = 16000

	// PlaybackRate is the sample rate of inbound model audio in Hz.
	PlaybackRate = 24000
)

// Frame is an immutable block of normalized mono samples in [-1, 1].
// Frames are produced by capture or by decode, consumed exactly once by the
// next pipeline stage, and never shared across stages.
type Frame struct {
	// Samples holds the normalized sample values.
	Samples []float32

	// SampleRate in Hz ([CaptureRate] or [PlaybackRate]).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to stream start.
	// Zero for decoded model audio.
	Timestamp time.Duration
}

// Duration returns the play time of the frame at its sample rate.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Input is a source of captured microphone frames. Implementations wrap a
// platform audio device; tests use scripted fakes from the mock package.
//
// The Frames channel is closed when the device is released or fails.
type Input interface {
	// Frames returns the channel on which fixed-size capture frames arrive.
	Frames() <-chan Frame

	// Close releases the underlying device and closes the Frames channel.
	// Safe to call more than once.
	Close() error
}

// Output is a sink for playback audio. Frames handed to PlayAt are rendered
// starting at the given offset on the sink's monotonic output clock; frames
// whose intervals overlap are mixed, so independent layers (speech, noise
// bed) may schedule concurrently.
//
// Implementations must be safe for concurrent use.
type Output interface {
	// PlayAt renders f starting at the given output-clock offset.
	// Returns an error once the sink is closed.
	PlayAt(start time.Duration, f Frame) error

	// Close halts all scheduled playback and releases the sink.
	// Safe to call more than once.
	Close() error
}

// Clock reports elapsed time on a monotonic output timeline. The production
// implementation tracks wall time from pipeline start; tests substitute a
// manually advanced fake.
type Clock interface {
	Now() time.Duration
}

// ClockSource is implemented by outputs that expose the clock their render
// loop runs on. Offsets computed on any other timeline risk landing in the
// sink's past, where the audio is silently dropped.
type ClockSource interface {
	Clock() Clock
}

// ClockOf returns out's render clock when the sink exposes one, falling back
// to a monotonic clock that starts counting now.
func ClockOf(out Output) Clock {
	if cs, ok := out.(ClockSource); ok {
		return cs.Clock()
	}
	return newMonotonicClock()
}

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to prevent goroutine leaks when the data from a streaming channel
// is not needed.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}

// DrainContext behaves like [Drain] but also returns when ctx is cancelled.
func DrainContext[T any](ctx context.Context, ch <-chan T) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
