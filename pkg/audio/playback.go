package audio

import (
	"fmt"
	"sync"
	"time"
)

// DefaultDrainEpsilon is the tolerance used when deciding that the output
// clock has caught up with all scheduled playback.
const DefaultDrainEpsilon = 15 * time.Millisecond

// Slot is a scheduled unit of output audio: a start offset on the output
// clock plus a duration. Consecutive slots produced by a [Scheduler] never
// overlap: start(n+1) ≥ max(now, end(n)).
type Slot struct {
	Start    time.Duration
	Duration time.Duration
}

// End returns the offset at which the slot finishes playing.
func (s Slot) End() time.Duration { return s.Start + s.Duration }

// SchedulerOption configures a [Scheduler] during construction.
type SchedulerOption func(*Scheduler)

// WithClock substitutes the output clock. Used by tests to control time.
func WithClock(c Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

// WithDrainEpsilon sets the catch-up tolerance for the drained signal.
func WithDrainEpsilon(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.epsilon = d
		}
	}
}

// Scheduler assigns gapless, non-overlapping start times to decoded playback
// buffers. It keeps a single monotonically non-decreasing "next available"
// offset: each buffer starts at max(now, nextAvailable) and advances
// nextAvailable by its duration, so no queue is needed — a buffer's start is
// fully determined by its predecessor's end and the current clock.
//
// When the output clock catches up to nextAvailable (within epsilon) the
// scheduler signals on [Scheduler.Drained]. All methods are safe for
// concurrent use, though buffers are normally scheduled from a single
// receive loop.
type Scheduler struct {
	out     Output
	clock   Clock
	epsilon time.Duration

	mu     sync.Mutex
	next   time.Duration
	timer  *time.Timer
	closed bool

	drained chan struct{}
}

// NewScheduler creates a Scheduler that renders frames on out. When the sink
// implements [ClockSource] its render clock becomes the scheduler's clock, so
// "now" means the same instant on both sides; otherwise the clock starts
// counting from this call.
func NewScheduler(out Output, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		out:     out,
		clock:   ClockOf(out),
		epsilon: DefaultDrainEpsilon,
		drained: make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Schedule assigns f the earliest non-overlapping start time, hands it to the
// output sink, and returns the resulting [Slot].
func (s *Scheduler) Schedule(f Frame) (Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Slot{}, fmt.Errorf("playback: scheduler closed")
	}

	now := s.clock.Now()
	start := s.next
	if now > start {
		start = now
	}

	slot := Slot{Start: start, Duration: f.Duration()}
	if err := s.out.PlayAt(start, f); err != nil {
		return Slot{}, fmt.Errorf("playback: %w", err)
	}
	s.next = slot.End()

	s.armTimerLocked(s.next - now + s.epsilon)
	return slot, nil
}

// Drained returns the channel that receives a signal each time the output
// clock catches up with all scheduled playback. The channel has a buffer of
// one; signals are coalesced, never blocked on.
func (s *Scheduler) Drained() <-chan struct{} { return s.drained }

// Backlog returns how far nextAvailable is ahead of the output clock.
// Zero means playback has caught up.
func (s *Scheduler) Backlog() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.next - s.clock.Now()
	if b < 0 {
		b = 0
	}
	return b
}

// Close stops drain tracking. It does not close the output sink, which is
// owned by the caller. Safe to call more than once.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return nil
}

// armTimerLocked (re)schedules the drain check to fire after d.
func (s *Scheduler) armTimerLocked(d time.Duration) {
	if d < 0 {
		d = 0
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(d, s.checkDrained)
}

// checkDrained signals drained if the clock has caught up, otherwise re-arms
// for the remaining backlog (new buffers may have arrived since the timer
// was set).
func (s *Scheduler) checkDrained() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	now := s.clock.Now()
	if now+s.epsilon >= s.next {
		select {
		case s.drained <- struct{}{}:
		default:
		}
		return
	}
	s.armTimerLocked(s.next - now + s.epsilon)
}

// monotonicClock measures elapsed time since construction.
type monotonicClock struct {
	start time.Time
}

func newMonotonicClock() *monotonicClock {
	return &monotonicClock{start: time.Now()}
}

func (c *monotonicClock) Now() time.Duration { return time.Since(c.start) }
