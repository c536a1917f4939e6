package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// newTestTransport spins up a local WebSocket server and returns a Transport
// pointed at it. handler runs for each accepted connection and should block
// until ctx is done to keep the connection open.
func newTestTransport(t *testing.T, handler func(ctx context.Context, ws *websocket.Conn), opts ...Option) *Transport {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer ws.CloseNow()
		handler(r.Context(), ws)
	}))
	t.Cleanup(srv.Close)

	base := "ws" + strings.TrimPrefix(srv.URL, "http")
	opts = append([]Option{WithBaseURL(base)}, opts...)
	return NewTransport("test-key", opts...)
}

// readFrames forwards every text frame the server receives onto a channel.
func readFrames(frames chan<- []byte) func(ctx context.Context, ws *websocket.Conn) {
	return func(ctx context.Context, ws *websocket.Conn) {
		for {
			_, data, err := ws.Read(ctx)
			if err != nil {
				return
			}
			select {
			case frames <- data:
			case <-ctx.Done():
				return
			}
		}
	}
}

func recvFrame(t *testing.T, frames <-chan []byte) []byte {
	t.Helper()
	select {
	case data := <-frames:
		return data
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame on the server")
		return nil
	}
}

func recvEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("event channel closed unexpectedly")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an event")
		return nil
	}
}

func TestConnect_MissingAPIKey(t *testing.T) {
	tr := NewTransport("")
	if _, err := tr.Connect(context.Background(), SessionConfig{}); err == nil {
		t.Fatal("Connect with empty API key did not error")
	}
}

func TestConnect_SendsSetupThenOpeningTurn(t *testing.T) {
	frames := make(chan []byte, 16)
	tr := newTestTransport(t, readFrames(frames),
		WithModel("test-model"),
		WithRand(rand.New(rand.NewPCG(7, 7))),
	)

	conn, err := tr.Connect(context.Background(), SessionConfig{
		Voice:             "Kore",
		SystemInstruction: "You are a test assistant.",
		Location:          "Lisbon, Portugal",
		Persona:           "You are extremely laconic.",
		Tools: []ToolDefinition{
			{Name: "searchWeb", Description: "Search the web.", Parameters: map[string]any{"type": "object"}},
		},
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	// First frame: the setup payload.
	var setup setupMessage
	if err := json.Unmarshal(recvFrame(t, frames), &setup); err != nil {
		t.Fatalf("unmarshal setup: %v", err)
	}
	if setup.Setup.Model != "models/test-model" {
		t.Errorf("setup model = %q, want %q", setup.Setup.Model, "models/test-model")
	}
	if got := setup.Setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; got != "Kore" {
		t.Errorf("setup voice = %q, want Kore", got)
	}
	if setup.Setup.SystemInstruction == nil || len(setup.Setup.SystemInstruction.Parts) != 1 {
		t.Fatal("setup missing system instruction")
	}
	instr := setup.Setup.SystemInstruction.Parts[0].Text
	for _, want := range []string{"You are a test assistant.", "Lisbon, Portugal", "You are extremely laconic."} {
		if !strings.Contains(instr, want) {
			t.Errorf("system instruction missing %q:\n%s", want, instr)
		}
	}
	if len(setup.Setup.Tools) != 1 || len(setup.Setup.Tools[0].FunctionDeclarations) != 1 {
		t.Fatal("setup missing tool declarations")
	}
	if got := setup.Setup.Tools[0].FunctionDeclarations[0].Name; got != "searchWeb" {
		t.Errorf("declared tool = %q, want searchWeb", got)
	}

	// Second frame: the synthetic opening turn, deterministic under the
	// seeded source.
	var opening clientContentMessage
	if err := json.Unmarshal(recvFrame(t, frames), &opening); err != nil {
		t.Fatalf("unmarshal opening turn: %v", err)
	}
	if !opening.ClientContent.TurnComplete {
		t.Error("opening turn not marked turnComplete")
	}
	turns := opening.ClientContent.Turns
	if len(turns) != 1 || turns[0].Role != "user" {
		t.Fatalf("opening turns = %+v, want one user turn", turns)
	}
	if want := OpeningPrompt(rand.New(rand.NewPCG(7, 7))); turns[0].Parts[0].Text != want {
		t.Errorf("opening prompt = %q, want %q", turns[0].Parts[0].Text, want)
	}
}

func TestConnect_DefaultsVoice(t *testing.T) {
	frames := make(chan []byte, 16)
	tr := newTestTransport(t, readFrames(frames))

	conn, err := tr.Connect(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	var setup setupMessage
	if err := json.Unmarshal(recvFrame(t, frames), &setup); err != nil {
		t.Fatalf("unmarshal setup: %v", err)
	}
	if got := setup.Setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; got != DefaultVoice {
		t.Errorf("voice = %q, want default %q", got, DefaultVoice)
	}
}

func TestConn_InlineAudioBecomesAudioEvent(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	serverWS := make(chan *websocket.Conn, 1)
	tr := newTestTransport(t, func(ctx context.Context, ws *websocket.Conn) {
		serverWS <- ws
		<-ctx.Done()
	})

	conn, err := tr.Connect(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	msg, _ := json.Marshal(serverMessage{
		ServerContent: &serverContent{
			ModelTurn: &modelTurn{Parts: []part{
				{InlineData: &inlineData{
					MIMEType: "audio/pcm;rate=24000",
					Data:     base64.StdEncoding.EncodeToString(pcm),
				}},
			}},
		},
	})
	ws := <-serverWS
	if err := ws.Write(context.Background(), websocket.MessageText, msg); err != nil {
		t.Fatalf("server write: %v", err)
	}

	ev := recvEvent(t, conn.Events())
	audio, ok := ev.(AudioEvent)
	if !ok {
		t.Fatalf("event = %T, want AudioEvent", ev)
	}
	if string(audio.PCM) != string(pcm) {
		t.Errorf("decoded PCM = %v, want %v", audio.PCM, pcm)
	}
}

func TestConn_ToolCallRoundtrip(t *testing.T) {
	frames := make(chan []byte, 16)
	serverWS := make(chan *websocket.Conn, 1)
	tr := newTestTransport(t, func(ctx context.Context, ws *websocket.Conn) {
		serverWS <- ws
		readFrames(frames)(ctx, ws)
	})

	conn, err := tr.Connect(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	recvFrame(t, frames) // setup
	recvFrame(t, frames) // opening turn

	msg, _ := json.Marshal(serverMessage{
		ToolCall: &toolCallMsg{FunctionCalls: []functionCall{
			{ID: "call-1", Name: "searchWeb", Args: map[string]any{"query": "weather"}},
		}},
	})
	ws := <-serverWS
	if err := ws.Write(context.Background(), websocket.MessageText, msg); err != nil {
		t.Fatalf("server write: %v", err)
	}

	ev := recvEvent(t, conn.Events())
	tc, ok := ev.(ToolCallEvent)
	if !ok {
		t.Fatalf("event = %T, want ToolCallEvent", ev)
	}
	if len(tc.Calls) != 1 || tc.Calls[0].ID != "call-1" || tc.Calls[0].Name != "searchWeb" {
		t.Fatalf("calls = %+v", tc.Calls)
	}
	if tc.Calls[0].Args["query"] != "weather" {
		t.Errorf("args = %v", tc.Calls[0].Args)
	}

	// Send back a successful result and verify the wire frame.
	if err := conn.SendToolResult(ToolResult{
		ID:       "call-1",
		Name:     "searchWeb",
		Response: map[string]any{"summary": "sunny"},
	}); err != nil {
		t.Fatalf("SendToolResult: %v", err)
	}
	var res toolResponseMessage
	if err := json.Unmarshal(recvFrame(t, frames), &res); err != nil {
		t.Fatalf("unmarshal tool response: %v", err)
	}
	fr := res.ToolResponse.FunctionResponses
	if len(fr) != 1 || fr[0].ID != "call-1" || fr[0].Name != "searchWeb" {
		t.Fatalf("function responses = %+v", fr)
	}
	if fr[0].Response["summary"] != "sunny" {
		t.Errorf("response payload = %v", fr[0].Response)
	}
}

func TestConn_SendToolResultEncodesError(t *testing.T) {
	frames := make(chan []byte, 16)
	tr := newTestTransport(t, readFrames(frames))

	conn, err := tr.Connect(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	recvFrame(t, frames) // setup
	recvFrame(t, frames) // opening turn

	if err := conn.SendToolResult(ToolResult{ID: "c", Name: "broken", Error: "backend down"}); err != nil {
		t.Fatalf("SendToolResult: %v", err)
	}
	var res toolResponseMessage
	if err := json.Unmarshal(recvFrame(t, frames), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := res.ToolResponse.FunctionResponses[0].Response["error"]; got != "backend down" {
		t.Errorf("error payload = %v, want %q", got, "backend down")
	}
}

func TestConn_SendAudio(t *testing.T) {
	frames := make(chan []byte, 16)
	tr := newTestTransport(t, readFrames(frames))

	conn, err := tr.Connect(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	recvFrame(t, frames) // setup
	recvFrame(t, frames) // opening turn

	pcm := []byte{0x10, 0x20, 0x30}
	if err := conn.SendAudio(pcm); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	var msg realtimeInputMessage
	if err := json.Unmarshal(recvFrame(t, frames), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	chunks := msg.RealtimeInput.MediaChunks
	if len(chunks) != 1 {
		t.Fatalf("media chunks = %d, want 1", len(chunks))
	}
	if chunks[0].MIMEType != captureMIME {
		t.Errorf("mime = %q, want %q", chunks[0].MIMEType, captureMIME)
	}
	if want := base64.StdEncoding.EncodeToString(pcm); chunks[0].Data != want {
		t.Errorf("data = %q, want %q", chunks[0].Data, want)
	}
}

func TestConn_ServiceErrorIsFatal(t *testing.T) {
	serverWS := make(chan *websocket.Conn, 1)
	tr := newTestTransport(t, func(ctx context.Context, ws *websocket.Conn) {
		serverWS <- ws
		<-ctx.Done()
	})

	conn, err := tr.Connect(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	msg, _ := json.Marshal(serverMessage{
		Error: &serviceError{Code: 8, Message: "quota exceeded"},
	})
	ws := <-serverWS
	if err := ws.Write(context.Background(), websocket.MessageText, msg); err != nil {
		t.Fatalf("server write: %v", err)
	}

	ev := recvEvent(t, conn.Events())
	closed, ok := ev.(ClosedEvent)
	if !ok {
		t.Fatalf("event = %T, want ClosedEvent", ev)
	}
	if closed.Err == nil || !strings.Contains(closed.Err.Error(), "quota exceeded") {
		t.Errorf("closed err = %v, want the service error message", closed.Err)
	}

	// The event channel closes after the final event.
	select {
	case _, ok := <-conn.Events():
		if ok {
			t.Error("received an event after ClosedEvent")
		}
	case <-time.After(2 * time.Second):
		t.Error("event channel did not close after ClosedEvent")
	}
}

func TestConn_LocalCloseIsClean(t *testing.T) {
	tr := newTestTransport(t, func(ctx context.Context, ws *websocket.Conn) {
		<-ctx.Done()
	})

	conn, err := tr.Connect(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	// Drain to the final event: a clean local close carries no error.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-conn.Events():
			if !ok {
				return
			}
			if closed, isClosed := ev.(ClosedEvent); isClosed && closed.Err != nil {
				t.Errorf("local close produced error: %v", closed.Err)
			}
		case <-deadline:
			t.Fatal("event channel did not close after local Close")
		}
	}
}

func TestConn_SendAfterClose(t *testing.T) {
	tr := newTestTransport(t, func(ctx context.Context, ws *websocket.Conn) {
		<-ctx.Done()
	})

	conn, err := tr.Connect(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn.Close()

	if err := conn.SendAudio([]byte{1}); err == nil {
		t.Error("SendAudio after Close did not error")
	}
	if err := conn.SendText("hello"); err == nil {
		t.Error("SendText after Close did not error")
	}
	if err := conn.SendToolResult(ToolResult{Name: "x"}); err == nil {
		t.Error("SendToolResult after Close did not error")
	}
}
