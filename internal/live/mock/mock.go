// Package mock provides in-memory test doubles for the live package: a
// scripted [live.Conn] and a [live.Dialer] that returns it.
package mock

import (
	"context"
	"sync"

	"github.com/kryptik-dev/omni/internal/live"
)

// Compile-time interface checks.
var (
	_ live.Conn   = (*Conn)(nil)
	_ live.Dialer = (*Dialer)(nil)
)

// Conn is a scripted live.Conn. Tests drive the inbound side with
// [Conn.Emit] and [Conn.Finish], and inspect the outbound side with the
// Sent* accessors.
type Conn struct {
	events chan live.Event

	mu          sync.Mutex
	sentAudio   [][]byte
	sentTexts   []string
	sentResults []live.ToolResult
	closed      bool

	closeOnce sync.Once
}

// NewConn creates a Conn with a buffered event channel.
func NewConn() *Conn {
	return &Conn{events: make(chan live.Event, 64)}
}

// Emit delivers ev to the consumer.
func (c *Conn) Emit(ev live.Event) { c.events <- ev }

// Finish emits a final ClosedEvent carrying err and closes the event
// channel, mimicking a remote close (err nil) or transport failure.
func (c *Conn) Finish(err error) {
	c.closeOnce.Do(func() {
		c.events <- live.ClosedEvent{Err: err}
		close(c.events)
	})
}

// Events implements live.Conn.
func (c *Conn) Events() <-chan live.Event { return c.events }

// SendAudio implements live.Conn.
func (c *Conn) SendAudio(pcm []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	c.sentAudio = append(c.sentAudio, buf)
	return nil
}

// SendText implements live.Conn.
func (c *Conn) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sentTexts = append(c.sentTexts, text)
	return nil
}

// SendToolResult implements live.Conn.
func (c *Conn) SendToolResult(res live.ToolResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sentResults = append(c.sentResults, res)
	return nil
}

// Close implements live.Conn. It records the close and ends the event
// stream cleanly.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.closeOnce.Do(func() { close(c.events) })
	return nil
}

// SentAudio returns a copy of all audio chunks sent so far.
func (c *Conn) SentAudio() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sentAudio))
	copy(out, c.sentAudio)
	return out
}

// SentTexts returns a copy of all text turns sent so far.
func (c *Conn) SentTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sentTexts))
	copy(out, c.sentTexts)
	return out
}

// SentResults returns a copy of all tool results sent so far.
func (c *Conn) SentResults() []live.ToolResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]live.ToolResult, len(c.sentResults))
	copy(out, c.sentResults)
	return out
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Dialer is a live.Dialer returning a pre-built Conn (or a fixed error).
type Dialer struct {
	mu sync.Mutex

	// Conn is returned by Connect when Err is nil.
	Conn *Conn

	// Err, when non-nil, fails every Connect call.
	Err error

	lastCfg  live.SessionConfig
	connects int
}

// Connect implements live.Dialer.
func (d *Dialer) Connect(_ context.Context, cfg live.SessionConfig) (live.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connects++
	d.lastCfg = cfg
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Conn, nil
}

// LastConfig returns the SessionConfig from the most recent Connect call.
func (d *Dialer) LastConfig() live.SessionConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastCfg
}

// Connects returns the number of Connect calls observed.
func (d *Dialer) Connects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects
}
