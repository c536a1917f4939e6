// Package session owns the single live voice conversation: it wires
// microphone capture, the playback scheduler, the phone-effect chain and
// noise bed, the tool-call dispatcher, and the live transport into one
// engine driven by a single control loop.
//
// A [Session] moves through the phases Idle → Listening → Thinking →
// Speaking and back, reflecting what the user currently hears. Exactly one
// Session may be live at a time; it exclusively owns the transport handle
// and all long-lived audio resources, initialized on [Session.Connect] and
// released in a fixed order on teardown. A Session is single-use: teardown
// closes the playback sink, so Connect is rejected afterwards — build a new
// Session over a fresh sink for the next conversation.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kryptik-dev/omni/internal/capability"
	"github.com/kryptik-dev/omni/internal/live"
	"github.com/kryptik-dev/omni/internal/observe"
	"github.com/kryptik-dev/omni/pkg/audio"
	"github.com/kryptik-dev/omni/pkg/audio/effects"
)

// noiseFrameInterval is the cadence at which noise-bed frames are layered
// onto the output. Small enough that stopping the bed is prompt, large
// enough to keep PlayAt call overhead negligible.
const noiseFrameInterval = 100 * time.Millisecond

// Option is a functional option for configuring a [Session].
type Option func(*Session)

// WithInput attaches a microphone source. Without one the session runs
// audio-input-degraded: no capture frames are sent, text turns still work.
func WithInput(in audio.Input) Option {
	return func(s *Session) { s.input = in }
}

// WithPhoneFilter enables the telephone-quality degradation chain on
// played model audio. Toggle later with [Session.SetPhoneFilter].
func WithPhoneFilter(enabled bool) Option {
	return func(s *Session) { s.phone.Store(enabled) }
}

// WithNoiseBed layers bed under all playback for the life of the session.
func WithNoiseBed(bed *effects.NoiseBed) Option {
	return func(s *Session) { s.noise = bed }
}

// WithMetrics wires session gauges and counters.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithSchedulerOptions forwards options to the playback scheduler. Used by
// tests to inject a manual clock and shrink the drain epsilon.
func WithSchedulerOptions(opts ...audio.SchedulerOption) Option {
	return func(s *Session) { s.schedOpts = opts }
}

// Session is the engine context for one live conversation. Create with
// [New], start with [Session.Connect], and release with [Session.Close].
type Session struct {
	dialer     live.Dialer
	out        audio.Output
	dispatcher *capability.Dispatcher

	input     audio.Input
	phone     atomic.Bool
	noise     *effects.NoiseBed
	metrics   *observe.Metrics
	schedOpts []audio.SchedulerOption

	meter audio.Meter
	state machine

	mu        sync.Mutex
	conn      live.Conn
	sched     *audio.Scheduler
	startedAt time.Time
	finished  bool

	// generation fences tool results: it is bumped on teardown so in-flight
	// capability invocations finish but their results are discarded instead
	// of being sent on a dead transport.
	generation atomic.Uint64

	done     chan struct{}
	doneOnce sync.Once
	wg       sync.WaitGroup
}

// New creates an unconnected Session. out is the playback sink, owned by
// the session from Connect until teardown.
func New(dialer live.Dialer, out audio.Output, dispatcher *capability.Dispatcher, opts ...Option) *Session {
	s := &Session{
		dialer:     dialer,
		out:        out,
		dispatcher: dispatcher,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// State returns the current session phase.
func (s *Session) State() State { return s.state.State() }

// Meter returns the shared volume observable: written by capture while
// listening and by the playback tap while speaking, readable at any time.
func (s *Session) Meter() *audio.Meter { return &s.meter }

// Done returns a channel closed when the session has fully torn down.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.done
}

// Connect opens the live transport with cfg (augmented with the dispatcher's
// capability manifest), starts the control, capture, and noise loops, and
// moves the session from Idle to Listening. On failure the state is
// unchanged and no resources are retained.
func (s *Session) Connect(ctx context.Context, cfg live.SessionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return fmt.Errorf("session: already connected")
	}
	if s.finished {
		return fmt.Errorf("session: already torn down; sessions are single-use")
	}

	if s.dispatcher != nil {
		cfg.Tools = s.dispatcher.Manifest()
	}

	conn, err := s.dialer.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("session: connect: %w", err)
	}

	s.conn = conn
	s.sched = audio.NewScheduler(s.out, s.schedOpts...)
	s.done = make(chan struct{})
	s.doneOnce = sync.Once{}
	s.startedAt = time.Now()
	s.state.Connected()

	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(context.Background(), 1)
	}
	slog.Info("session connected", "voice", cfg.Voice, "phoneFilter", s.phone.Load())

	s.wg.Add(1)
	go s.controlLoop(conn, s.sched, s.done)

	if s.input != nil {
		s.wg.Add(1)
		go s.captureLoop(conn, s.input, s.done)
	}
	if s.noise != nil {
		s.wg.Add(1)
		go s.noiseLoop(s.done)
	}

	return nil
}

// SetPhoneFilter toggles the phone-quality chain. The setting is read once
// per outbound buffer, so a toggle takes effect on the next played buffer of
// the live conversation.
func (s *Session) SetPhoneFilter(enabled bool) { s.phone.Store(enabled) }

// SendText delivers a complete text turn on behalf of the user.
func (s *Session) SendText(text string) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("session: not connected")
	}
	return conn.SendText(text)
}

// Close tears the session down and waits for all loops to exit. Safe to
// call more than once and from any state.
func (s *Session) Close() error {
	s.teardown()
	s.wg.Wait()
	return nil
}

// controlLoop is the single consumer of the transport's event stream and
// the scheduler's drained signal. It exits — after running teardown — when
// the stream ends.
func (s *Session) controlLoop(conn live.Conn, sched *audio.Scheduler, done chan struct{}) {
	defer s.wg.Done()
	defer s.teardown()

	events := conn.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !s.handleEvent(conn, sched, done, ev) {
				return
			}

		case <-sched.Drained():
			if st, changed := s.state.Drained(); changed {
				slog.Debug("playback drained", "state", st)
			}

		case <-done:
			return
		}
	}
}

// handleEvent processes one inbound event. Returns false when the session
// is over.
func (s *Session) handleEvent(conn live.Conn, sched *audio.Scheduler, done chan struct{}, ev live.Event) bool {
	switch ev := ev.(type) {
	case live.AudioEvent:
		s.playAudio(sched, ev.PCM)
		return true

	case live.ToolCallEvent:
		if st, changed := s.state.ToolCallsArrived(); changed {
			slog.Debug("tool calls arrived", "state", st, "count", len(ev.Calls))
		}
		gen := s.generation.Load()
		s.wg.Add(1)
		go s.dispatch(conn, done, gen, ev.Calls)
		return true

	case live.TranscriptEvent:
		slog.Debug("transcript", "role", ev.Role, "text", ev.Text)
		return true

	case live.ClosedEvent:
		if ev.Err != nil {
			slog.Error("session closed by transport", "err", ev.Err)
		} else {
			slog.Info("session closed")
		}
		return false

	default:
		return true
	}
}

// playAudio decodes one inbound PCM chunk, applies the optional phone
// chain, schedules it gaplessly, and feeds the speaking-phase meter tap.
func (s *Session) playAudio(sched *audio.Scheduler, pcm []byte) {
	frame := audio.DecodePCM16(pcm, audio.PlaybackRate)
	if len(frame.Samples) == 0 {
		return
	}
	if s.phone.Load() {
		frame = effects.Phone(frame)
	}

	if st, changed := s.state.AudioArrived(); changed {
		slog.Debug("model audio", "state", st)
	}

	if _, err := sched.Schedule(frame); err != nil {
		// Scheduler closed mid-teardown; the buffer is dropped.
		slog.Debug("schedule failed", "err", err)
		return
	}

	if s.state.State() == Speaking {
		s.meter.Set(audio.RMS(frame.Samples))
	}
	if s.metrics != nil {
		s.metrics.AudioFramesReceived.Add(context.Background(), 1)
	}
}

// dispatch runs one tool-call batch and returns each correlated result as
// it completes. Results belonging to a torn-down session generation are
// discarded rather than sent.
func (s *Session) dispatch(conn live.Conn, done chan struct{}, gen uint64, calls []live.ToolCall) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.dispatcher.Dispatch(ctx, calls, func(res live.ToolResult) {
		if s.generation.Load() != gen {
			slog.Debug("discarding stale tool result", "tool", res.Name, "id", res.ID)
			return
		}
		if err := conn.SendToolResult(res); err != nil {
			slog.Warn("send tool result", "tool", res.Name, "err", err)
		}
	})
}

// noiseLoop layers noise-bed frames onto the output independently of the
// speech scheduler. Overlapping frames are mixed by the sink, so the bed
// underlies both speech and silence. Frame offsets are computed on the
// sink's own clock so the bed never lands in the sink's past.
func (s *Session) noiseLoop(done chan struct{}) {
	defer s.wg.Done()

	clock := audio.ClockOf(s.out)
	ticker := time.NewTicker(noiseFrameInterval)
	defer ticker.Stop()

	// Keep one frame of lead so the sink never starves between ticks.
	next := clock.Now() + noiseFrameInterval
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			f := s.noise.Frame(audio.PlaybackRate, noiseFrameInterval)
			if err := s.out.PlayAt(next, f); err != nil {
				return
			}
			next = clock.Now() + noiseFrameInterval
		}
	}
}

// teardown releases everything the session owns, in dependency order:
// capture first (no new outbound sends), then the noise bed, then the
// playback pipeline, then the transport. Runs at most once per connection.
func (s *Session) teardown() {
	s.mu.Lock()
	conn := s.conn
	sched := s.sched
	done := s.done
	startedAt := s.startedAt
	s.conn = nil
	s.sched = nil
	if done != nil {
		s.finished = true
	}
	s.mu.Unlock()

	if done == nil {
		return
	}

	s.doneOnce.Do(func() {
		s.generation.Add(1)

		// 1. Stop capture so no frame can reach a dying transport.
		close(done)
		if s.input != nil {
			_ = s.input.Close()
		}

		// 2. The noise loop observes done and stops on its own; 3. halt the
		// playback pipeline, which drops all scheduled audio.
		if sched != nil {
			_ = sched.Close()
		}
		_ = s.out.Close()

		// 4. Close the transport last.
		if conn != nil {
			_ = conn.Close()
		}

		s.state.Closed()
		s.meter.Set(0)

		if s.metrics != nil {
			s.metrics.ActiveSessions.Add(context.Background(), -1)
			s.metrics.SessionDuration.Record(context.Background(), time.Since(startedAt).Seconds())
		}
		slog.Info("session torn down", "uptime", time.Since(startedAt).Round(time.Second))
	})
}
