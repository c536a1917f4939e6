package capability

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kryptik-dev/omni/internal/live"
)

func TestBuiltins_Complete(t *testing.T) {
	caps := Builtins(Collaborators{})

	want := []string{
		"analyzeStoredImage",
		"captureAndAnalyze",
		"deepReason",
		"editImage",
		"editStoredMessage",
		"generateImage",
		"listStoredTextMessages",
		"recordTextReply",
		"searchWeb",
	}
	names := make(map[string]bool)
	for _, c := range caps {
		names[c.Definition.Name] = true
		if c.Handler == nil {
			t.Errorf("%q has a nil handler", c.Definition.Name)
		}
	}
	for _, n := range want {
		if !names[n] {
			t.Errorf("built-in %q missing", n)
		}
	}
	if len(caps) != len(want) {
		t.Errorf("built-in count = %d, want %d", len(caps), len(want))
	}
}

func TestBuiltins_NilCollaboratorsFailSoft(t *testing.T) {
	d := NewDispatcher()
	if err := d.RegisterAll(Builtins(Collaborators{})); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}

	// Every call gets a "not configured" style error result, never a panic
	// and never silence.
	calls := []live.ToolCall{
		{ID: "1", Name: "generateImage", Args: map[string]any{"prompt": "a cat"}},
		{ID: "2", Name: "editImage", Args: map[string]any{"image": "ref", "instruction": "bigger"}},
		{ID: "3", Name: "searchWeb", Args: map[string]any{"query": "news"}},
		{ID: "4", Name: "captureAndAnalyze", Args: map[string]any{"question": "what is this"}},
		{ID: "5", Name: "analyzeStoredImage", Args: map[string]any{"question": "what is this"}},
		{ID: "6", Name: "listStoredTextMessages"},
		{ID: "7", Name: "editStoredMessage", Args: map[string]any{"id": "9", "newText": "hi"}},
		{ID: "8", Name: "recordTextReply", Args: map[string]any{"text": "hi"}},
		{ID: "9", Name: "deepReason", Args: map[string]any{"problem": "p vs np"}},
	}
	results := dispatchAll(t, d, calls)
	if len(results) != len(calls) {
		t.Fatalf("results = %d, want %d", len(results), len(calls))
	}
	for id, r := range results {
		if r.Error == "" {
			t.Errorf("call %s: unconfigured capability returned success: %v", id, r.Response)
		}
	}
}

// fakeStore is a scripted MessageStore.
type fakeStore struct {
	messages []StoredMessage
	editErr  error
	edited   map[string]string
}

func (s *fakeStore) ListTextMessages(context.Context) ([]StoredMessage, error) {
	return s.messages, nil
}

func (s *fakeStore) EditMessage(_ context.Context, id, newText string) error {
	if s.editErr != nil {
		return s.editErr
	}
	if s.edited == nil {
		s.edited = make(map[string]string)
	}
	s.edited[id] = newText
	return nil
}

func (s *fakeStore) RecordReply(context.Context, string) (string, error) {
	return "new-id", nil
}

func (s *fakeStore) LatestImage(context.Context) ([]byte, string, error) {
	return nil, "", errors.New("no image stored")
}

func TestEditStoredMessage_NotFoundIsStatus(t *testing.T) {
	store := &fakeStore{editErr: ErrNotFound}
	cap := editStoredMessage(store)

	res, err := cap.Handler(context.Background(), map[string]any{"id": "404", "newText": "x"})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if res["status"] != "notFound" {
		t.Errorf("status = %v, want notFound", res["status"])
	}
}

func TestEditStoredMessage_Success(t *testing.T) {
	store := &fakeStore{}
	cap := editStoredMessage(store)

	res, err := cap.Handler(context.Background(), map[string]any{"id": "7", "newText": "corrected"})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if res["status"] != "success" {
		t.Errorf("status = %v, want success", res["status"])
	}
	if store.edited["7"] != "corrected" {
		t.Errorf("store not updated: %v", store.edited)
	}
}

func TestListStoredTextMessages(t *testing.T) {
	store := &fakeStore{messages: []StoredMessage{
		{ID: "1", Role: "user", Text: "hello"},
		{ID: "2", Role: "assistant", Text: "hi there"},
	}}
	cap := listStoredTextMessages(store)

	res, err := cap.Handler(context.Background(), nil)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	msgs, ok := res["messages"].([]map[string]any)
	if !ok || len(msgs) != 2 {
		t.Fatalf("messages = %v", res["messages"])
	}
	if msgs[0]["id"] != "1" || msgs[1]["text"] != "hi there" {
		t.Errorf("messages content = %v", msgs)
	}
}

func TestStringArg_TypeMismatch(t *testing.T) {
	stub := reasonerFunc(func(context.Context, string) (string, error) { return "", nil })
	_, err := deepReason(stub).Handler(context.Background(), map[string]any{"problem": 42})
	if err == nil || !strings.Contains(err.Error(), "must be a string") {
		t.Errorf("err = %v, want a type error", err)
	}
}

type reasonerFunc func(ctx context.Context, problem string) (string, error)

func (f reasonerFunc) Reason(ctx context.Context, problem string) (string, error) {
	return f(ctx, problem)
}
