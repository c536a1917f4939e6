// Package reason implements [capability.Reasoner] on top of
// github.com/mozilla-ai/any-llm-go, so the deliberate-reasoning backend can
// be any supported text-model provider (OpenAI, Anthropic, Gemini, Ollama,
// …) selected by configuration.
package reason

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/kryptik-dev/omni/internal/capability"
)

// Compile-time interface check.
var _ capability.Reasoner = (*LLM)(nil)

// systemPrompt frames the reasoning request. The live voice model relays
// the answer aloud, so the reply must stand alone as text.
const systemPrompt = "You are a careful reasoning engine. Think the problem through step by step, " +
	"then give a clear, self-contained answer. Do not address the user directly; " +
	"your output is relayed by a voice assistant."

// LLM is a capability.Reasoner backed by an any-llm-go provider.
type LLM struct {
	backend anyllmlib.Provider
	model   string
}

// New creates an LLM reasoner for the given provider name and model.
// providerName is one of "openai", "anthropic", "gemini", or "ollama".
// Without an explicit key option the backend reads its conventional
// environment variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, …).
func New(providerName, model string, opts ...anyllmlib.Option) (*LLM, error) {
	if model == "" {
		return nil, fmt.Errorf("reason: model must not be empty")
	}

	var backend anyllmlib.Provider
	var err error
	switch strings.ToLower(providerName) {
	case "openai":
		backend, err = anyllmoai.New(opts...)
	case "anthropic":
		backend, err = anthropic.New(opts...)
	case "gemini":
		backend, err = gemini.New(opts...)
	case "ollama":
		backend, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("reason: unsupported provider %q; supported: openai, anthropic, gemini, ollama", providerName)
	}
	if err != nil {
		return nil, fmt.Errorf("reason: create %q backend: %w", providerName, err)
	}

	return &LLM{backend: backend, model: model}, nil
}

// Reason implements capability.Reasoner.
func (l *LLM) Reason(ctx context.Context, problem string) (string, error) {
	resp, err := l.backend.Completion(ctx, anyllmlib.CompletionParams{
		Model: l.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: systemPrompt},
			{Role: anyllmlib.RoleUser, Content: problem},
		},
	})
	if err != nil {
		return "", fmt.Errorf("reason: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("reason: empty choices in response")
	}
	return resp.Choices[0].Message.ContentString(), nil
}
