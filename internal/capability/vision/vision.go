// Package vision implements [capability.VisionAnalyzer] using a Gemini
// vision model via the google.golang.org/genai SDK.
package vision

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/kryptik-dev/omni/internal/capability"
)

// Compile-time interface check.
var _ capability.VisionAnalyzer = (*Analyzer)(nil)

const defaultModel = "gemini-2.0-flash"

// Option is a functional option for Analyzer.
type Option func(*Analyzer)

// WithModel overrides the vision model.
func WithModel(model string) Option {
	return func(a *Analyzer) { a.model = model }
}

// Analyzer answers questions about images using a multimodal Gemini model.
type Analyzer struct {
	client *genai.Client
	model  string
}

// New creates an Analyzer with the given API key.
func New(ctx context.Context, apiKey string, opts ...Option) (*Analyzer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("vision: apiKey must not be empty")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("vision: create client: %w", err)
	}

	a := &Analyzer{client: client, model: defaultModel}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Analyze implements capability.VisionAnalyzer.
func (a *Analyzer) Analyze(ctx context.Context, image []byte, mimeType, question string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("vision: empty image")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image, mimeType),
			genai.NewPartFromText(question),
		}, genai.RoleUser),
	}

	resp, err := a.client.Models.GenerateContent(ctx, a.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("vision: generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("vision: model returned no text")
	}
	return text, nil
}
