// Package live owns the bidirectional streaming connection to the remote
// conversational model service.
//
// It speaks the BidiGenerateContent protocol over a WebSocket: outbound
// microphone audio travels as base64 PCM media chunks, inbound model speech
// arrives as inline data parts, and mid-turn capability invocations arrive
// as tool-call batches. The transport flattens the service's message stream
// into a channel of tagged [Event] values consumed by the session control
// loop — see the session package.
package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	defaultModel   = "gemini-2.0-flash-live-001"
	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"

	// captureMIME is the wire format of outbound audio frames.
	captureMIME = "audio/pcm;rate=16000"

	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second

	// eventBuffer is the depth of the inbound event channel. Deep enough to
	// absorb bursts of audio chunks while the consumer schedules playback.
	eventBuffer = 64
)

// SessionConfig is the configuration payload assembled at connect time.
type SessionConfig struct {
	// Voice is the prebuilt voice identity. Empty selects [DefaultVoice].
	Voice string

	// SystemInstruction is the base system prompt.
	SystemInstruction string

	// Location, when non-empty, is appended to the system instruction as a
	// directive describing where the user currently is.
	Location string

	// Persona, when non-empty, is appended to the system instruction as an
	// additional character directive.
	Persona string

	// Tools is the capability manifest declared to the model.
	Tools []ToolDefinition
}

// Conn is an open live session. It is an interface so that the session
// package can be tested against the mock package without a network.
//
// Exactly one component — the owning session — holds a Conn; the handle is
// never duplicated. All methods are safe for concurrent use.
type Conn interface {
	// Events returns the inbound event stream. The channel is closed after
	// a final [ClosedEvent]; consumers must drain it promptly so the
	// receive loop is never stalled.
	Events() <-chan Event

	// SendAudio delivers one outbound capture frame (16 kHz s16le mono PCM).
	SendAudio(pcm []byte) error

	// SendText delivers a complete text turn on behalf of the user.
	SendText(text string) error

	// SendToolResult returns the correlated outcome of a [ToolCall].
	SendToolResult(res ToolResult) error

	// Close terminates the session and releases the connection. Idempotent.
	Close() error
}

// Dialer opens live sessions. *Transport is the production implementation.
type Dialer interface {
	Connect(ctx context.Context, cfg SessionConfig) (Conn, error)
}

// Compile-time assertions.
var (
	_ Dialer = (*Transport)(nil)
	_ Conn   = (*conn)(nil)
)

// Option is a functional option for configuring a Transport.
type Option func(*Transport)

// WithModel sets the model used for sessions.
func WithModel(model string) Option {
	return func(t *Transport) { t.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(t *Transport) { t.baseURL = url }
}

// WithRand sets the random source used to pick the synthetic opening
// prompt, making session starts deterministic for tests.
func WithRand(r *rand.Rand) Option {
	return func(t *Transport) { t.rng = r }
}

// Transport dials live sessions against the remote model service.
type Transport struct {
	apiKey  string
	model   string
	baseURL string
	rng     *rand.Rand
}

// NewTransport creates a Transport with the given API key and options.
func NewTransport(apiKey string, opts ...Option) *Transport {
	t := &Transport{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Connect establishes a new live session: it dials the WebSocket, sends the
// setup payload (voice, composed system instruction, tool manifest), and
// issues one synthetic opening turn so the model speaks first. On any
// failure the connection is torn down and an error returned — the caller's
// state is unchanged.
func (t *Transport) Connect(ctx context.Context, cfg SessionConfig) (Conn, error) {
	if t.apiKey == "" {
		return nil, fmt.Errorf("live: missing API key")
	}

	wsURL := fmt.Sprintf(
		"%s/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=%s",
		t.baseURL, t.apiKey,
	)

	ws, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("live: dial: %w", err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	c := &conn{
		ws:     ws,
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
		ctx:    connCtx,
		cancel: cancel,
	}

	if err := c.sendSetup(t.model, cfg); err != nil {
		cancel()
		ws.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("live: setup: %w", err)
	}

	// Synthetic opening turn: elicit a natural first utterance instead of a
	// silent, dead-feeling session start.
	if err := c.sendOpeningTurn(OpeningPrompt(t.rng)); err != nil {
		cancel()
		ws.Close(websocket.StatusInternalError, "opening turn failed")
		return nil, fmt.Errorf("live: opening turn: %w", err)
	}

	go c.receiveLoop()
	go c.keepaliveLoop()

	return c, nil
}

// composeInstruction assembles the system instruction from the base text
// plus optional location and persona directives.
func composeInstruction(cfg SessionConfig) string {
	parts := make([]string, 0, 3)
	if cfg.SystemInstruction != "" {
		parts = append(parts, cfg.SystemInstruction)
	}
	if cfg.Location != "" {
		parts = append(parts, "The user is currently located at: "+cfg.Location+". Use this when relevant, without volunteering it unprompted.")
	}
	if cfg.Persona != "" {
		parts = append(parts, cfg.Persona)
	}
	return strings.Join(parts, "\n\n")
}

// ── conn ──────────────────────────────────────────────────────────────────────

type conn struct {
	ws     *websocket.Conn
	events chan Event

	mu     sync.Mutex
	closed bool

	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (c *conn) sendSetup(model string, cfg SessionConfig) error {
	voice := cfg.Voice
	if voice == "" {
		voice = DefaultVoice
	}

	msg := setupMessage{
		Setup: setupConfig{
			Model: fmt.Sprintf("models/%s", model),
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"audio"},
				SpeechConfig: &speechConfig{
					VoiceConfig: voiceConfig{
						PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: voice},
					},
				},
			},
		},
	}

	if instr := composeInstruction(cfg); instr != "" {
		msg.Setup.SystemInstruction = &systemInstruction{
			Parts: []part{{Text: instr}},
		}
	}

	if len(cfg.Tools) > 0 {
		decls := make([]functionDeclaration, len(cfg.Tools))
		for i, t := range cfg.Tools {
			decls[i] = functionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			}
		}
		msg.Setup.Tools = []wireTool{{FunctionDeclarations: decls}}
	}

	return c.writeJSON(msg)
}

func (c *conn) sendOpeningTurn(prompt string) error {
	return c.writeJSON(clientContentMessage{
		ClientContent: clientContent{
			Turns: []contentTurn{
				{Role: "user", Parts: []part{{Text: prompt}}},
			},
			TurnComplete: true,
		},
	})
}

// writeJSON marshals v and writes it as a text WebSocket frame.
func (c *conn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("live: marshal: %w", err)
	}
	return c.ws.Write(c.ctx, websocket.MessageText, data)
}

// receiveLoop reads frames from the WebSocket, converts them to tagged
// events, and delivers them in arrival order. It owns the events channel:
// a final [ClosedEvent] is emitted and the channel closed when it exits.
func (c *conn) receiveLoop() {
	defer close(c.events)

	for {
		_, data, err := c.ws.Read(c.ctx)
		if err != nil {
			c.emitClosed(c.closeReason(err))
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue // skip malformed frames
		}

		if msg.Error != nil {
			// Service-reported errors are session-fatal.
			reason := msg.Error.Message
			if reason == "" {
				reason = "unknown error"
			}
			c.emitClosed(fmt.Errorf("live: service error: %s", reason))
			_ = c.Close()
			return
		}
		if msg.ServerContent != nil {
			if !c.handleServerContent(msg.ServerContent) {
				return
			}
		}
		if msg.ToolCall != nil && len(msg.ToolCall.FunctionCalls) > 0 {
			calls := make([]ToolCall, len(msg.ToolCall.FunctionCalls))
			for i, fc := range msg.ToolCall.FunctionCalls {
				calls[i] = ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args}
			}
			if !c.deliver(ToolCallEvent{Calls: calls}) {
				return
			}
		}
	}
}

// handleServerContent emits audio and transcript events from a
// serverContent message. Returns false if the session context ended.
func (c *conn) handleServerContent(sc *serverContent) bool {
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData != nil {
				pcm, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil || len(pcm) == 0 {
					continue
				}
				if !c.deliver(AudioEvent{PCM: pcm}) {
					return false
				}
			}
			if p.Text != "" {
				if !c.deliver(TranscriptEvent{Role: "model", Text: p.Text}) {
					return false
				}
			}
		}
	}
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		if !c.deliver(TranscriptEvent{Role: "user", Text: sc.InputTranscription.Text}) {
			return false
		}
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		if !c.deliver(TranscriptEvent{Role: "model", Text: sc.OutputTranscription.Text}) {
			return false
		}
	}
	return true
}

// deliver sends ev to the consumer, honouring session cancellation.
func (c *conn) deliver(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// emitClosed delivers the final ClosedEvent on a best-effort basis. If the
// buffer is full the event is dropped — the channel close that follows
// still signals the end of the session.
func (c *conn) emitClosed(err error) {
	select {
	case c.events <- ClosedEvent{Err: err}:
	default:
	}
}

// closeReason maps a read error to the ClosedEvent error: nil for a local
// close or a normal remote closure, the underlying error otherwise.
func (c *conn) closeReason(err error) error {
	if c.ctx.Err() != nil {
		return nil
	}
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return nil
	}
	return err
}

// keepaliveLoop pings the service to keep the connection alive between
// audio bursts.
func (c *conn) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(c.ctx, keepaliveTimeout)
			_ = c.ws.Ping(pingCtx)
			cancel()
		}
	}
}

// Events implements [Conn].
func (c *conn) Events() <-chan Event { return c.events }

// SendAudio implements [Conn].
func (c *conn) SendAudio(pcm []byte) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.writeJSON(realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []mediaChunk{
				{MIMEType: captureMIME, Data: base64.StdEncoding.EncodeToString(pcm)},
			},
		},
	})
}

// SendText implements [Conn].
func (c *conn) SendText(text string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.writeJSON(clientContentMessage{
		ClientContent: clientContent{
			Turns: []contentTurn{
				{Role: "user", Parts: []part{{Text: text}}},
			},
			TurnComplete: true,
		},
	})
}

// SendToolResult implements [Conn]. A result with a non-empty Error is
// encoded as an {"error": reason} response object so the model can react
// to the failure instead of stalling the turn.
func (c *conn) SendToolResult(res ToolResult) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	response := res.Response
	if res.Error != "" {
		response = map[string]any{"error": res.Error}
	}
	if response == nil {
		response = map[string]any{}
	}

	return c.writeJSON(toolResponseMessage{
		ToolResponse: toolResponse{
			FunctionResponses: []functionResponse{
				{ID: res.ID, Name: res.Name, Response: response},
			},
		},
	})
}

func (c *conn) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("live: session closed")
	}
	return nil
}

// Close implements [Conn]. Idempotent.
func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.cancel()    // unblocks receiveLoop and keepaliveLoop
		close(c.done) // signals keepaliveLoop via done channel
		c.ws.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}
