// Package mock provides test doubles for the audio package interfaces:
// a scripted input device, a recording output sink, and a manually advanced
// clock.
package mock

import (
	"sync"
	"time"

	"github.com/kryptik-dev/omni/pkg/audio"
)

// Compile-time interface checks.
var (
	_ audio.Input  = (*Input)(nil)
	_ audio.Output = (*Output)(nil)
	_ audio.Clock  = (*Clock)(nil)
)

// Input is a scripted audio.Input. Push frames with [Input.Push]; Close
// closes the channel exactly once.
type Input struct {
	ch        chan audio.Frame
	closeOnce sync.Once
}

// NewInput creates an Input with the given channel buffer depth.
func NewInput(buffer int) *Input {
	return &Input{ch: make(chan audio.Frame, buffer)}
}

// Push delivers f to the consumer. It blocks if the buffer is full.
func (i *Input) Push(f audio.Frame) { i.ch <- f }

// Frames implements audio.Input.
func (i *Input) Frames() <-chan audio.Frame { return i.ch }

// Close implements audio.Input.
func (i *Input) Close() error {
	i.closeOnce.Do(func() { close(i.ch) })
	return nil
}

// Played records a single PlayAt call on an [Output].
type Played struct {
	Start time.Duration
	Frame audio.Frame
}

// Output records every frame handed to it.
type Output struct {
	mu     sync.Mutex
	played []Played
	closed bool
}

// NewOutput creates an empty recording Output.
func NewOutput() *Output { return &Output{} }

// PlayAt implements audio.Output.
func (o *Output) PlayAt(start time.Duration, f audio.Frame) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.played = append(o.played, Played{Start: start, Frame: f})
	return nil
}

// Close implements audio.Output.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (o *Output) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Playedf returns a copy of all recorded PlayAt calls in order.
func (o *Output) Playedf() []Played {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Played, len(o.played))
	copy(out, o.played)
	return out
}

// Clock is a manually advanced audio.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Duration
}

// NewClock creates a Clock at offset zero.
func NewClock() *Clock { return &Clock{} }

// Now implements audio.Clock.
func (c *Clock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}

// Set moves the clock to the absolute offset d.
func (c *Clock) Set(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = d
}
