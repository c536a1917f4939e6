package live

// ToolCall is a capability invocation requested by the remote model
// mid-turn. ID and Name must be echoed back verbatim in the correlated
// [ToolResult].
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult is the correlated outcome of a [ToolCall]. Exactly one of
// Response or Error is meaningful: a successful call carries a Response
// mapping, a failed call carries a human-readable Error reason.
type ToolResult struct {
	ID       string
	Name     string
	Response map[string]any
	Error    string
}

// ToolDefinition describes one capability in the manifest sent at connect.
type ToolDefinition struct {
	// Name is the capability's unique identifier.
	Name string

	// Description explains what the capability does (read by the model).
	Description string

	// Parameters is the JSON Schema describing the argument object.
	Parameters map[string]any
}

// Event is one tagged inbound message from the live session. The transport
// turns the service's callback-style message stream into a flat sequence of
// events consumed by a single control loop:
//
//	[AudioEvent]      — a chunk of model speech (24 kHz s16le mono PCM)
//	[ToolCallEvent]   — a batch of capability invocations
//	[TranscriptEvent] — recognised user speech or model speech as text
//	[ClosedEvent]     — the session ended; always the final event
type Event interface {
	event()
}

// AudioEvent carries a chunk of synthesized model speech.
type AudioEvent struct {
	// PCM is raw 16-bit little-endian mono audio at the playback rate.
	PCM []byte
}

// ToolCallEvent carries a batch of tool calls issued in a single message.
type ToolCallEvent struct {
	Calls []ToolCall
}

// TranscriptEvent carries a text rendition of session speech.
type TranscriptEvent struct {
	// Role is "user" for recognised input speech, "model" for output speech.
	Role string
	Text string
}

// ClosedEvent is emitted exactly once, immediately before the event channel
// closes. Err is nil when the session ended cleanly (local close or normal
// remote closure) and non-nil for transport failures or service errors.
type ClosedEvent struct {
	Err error
}

func (AudioEvent) event()      {}
func (ToolCallEvent) event()   {}
func (TranscriptEvent) event() {}
func (ClosedEvent) event()     {}
