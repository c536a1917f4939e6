package session

import (
	"sync"
)

// State is the coarse phase of the live session, reflecting what the user
// currently hears.
type State int

const (
	// Idle means no connection is open. Initial and terminal.
	Idle State = iota

	// Listening means the connection is open and user audio is flowing out.
	Listening

	// Thinking means a tool-call batch is being resolved.
	Thinking

	// Speaking means model audio is currently playing.
	Speaking
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Thinking:
		return "thinking"
	case Speaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// machine holds the session phase and applies the transition rules. Each
// event method returns the resulting state and whether it changed, so the
// caller can log transitions without re-deriving them.
//
// Rules:
//   - connect: Idle → Listening
//   - model audio arrives: any open state → Speaking
//   - tool calls arrive: → Thinking, unless currently Speaking — state
//     reflects what is audible, and audio is still playing
//   - playback drained: Speaking or Thinking → Listening
//   - close or fatal error: any state → Idle
type machine struct {
	mu sync.Mutex
	s  State
}

// State returns the current phase.
func (m *machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s
}

// Connected applies the connect transition.
func (m *machine) Connected() (State, bool) {
	return m.transition(func(s State) State {
		if s == Idle {
			return Listening
		}
		return s
	})
}

// AudioArrived applies the model-audio transition.
func (m *machine) AudioArrived() (State, bool) {
	return m.transition(func(s State) State {
		if s == Idle {
			return s
		}
		return Speaking
	})
}

// ToolCallsArrived applies the tool-call transition. Speaking wins: audio
// already scheduled keeps playing, so the audible phase does not change.
func (m *machine) ToolCallsArrived() (State, bool) {
	return m.transition(func(s State) State {
		if s == Idle || s == Speaking {
			return s
		}
		return Thinking
	})
}

// Drained applies the playback-caught-up transition.
func (m *machine) Drained() (State, bool) {
	return m.transition(func(s State) State {
		if s == Speaking || s == Thinking {
			return Listening
		}
		return s
	})
}

// Closed applies the teardown transition.
func (m *machine) Closed() (State, bool) {
	return m.transition(func(s State) State { return Idle })
}

func (m *machine) transition(f func(State) State) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.s
	m.s = f(old)
	return m.s, m.s != old
}
