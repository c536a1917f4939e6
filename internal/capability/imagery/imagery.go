// Package imagery implements [capability.ImageStudio] using the OpenAI
// images API. Generated images are returned as data-URL references so the
// rest of the system can treat them as opaque strings.
package imagery

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/kryptik-dev/omni/internal/capability"
)

// Compile-time interface check.
var _ capability.ImageStudio = (*Studio)(nil)

const defaultModel = "gpt-image-1"

// Option is a functional option for Studio.
type Option func(*config)

type config struct {
	model   string
	baseURL string
}

// WithModel overrides the image model.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// Studio creates and edits images via the OpenAI API.
type Studio struct {
	client oai.Client
	model  string
}

// New constructs a Studio with the given API key.
func New(apiKey string, opts ...Option) (*Studio, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("imagery: apiKey must not be empty")
	}

	cfg := &config{model: defaultModel}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	return &Studio{client: oai.NewClient(reqOpts...), model: cfg.model}, nil
}

// Generate implements capability.ImageStudio. The returned reference is a
// PNG data URL.
func (s *Studio) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := s.client.Images.Generate(ctx, oai.ImageGenerateParams{
		Prompt: prompt,
		Model:  oai.ImageModel(s.model),
		N:      oai.Int(1),
	})
	if err != nil {
		return "", fmt.Errorf("imagery: generate: %w", err)
	}
	return refFrom(resp)
}

// Edit implements capability.ImageStudio. imageRef must be a data URL
// previously returned by Generate or Edit.
func (s *Studio) Edit(ctx context.Context, imageRef, instruction string) (string, error) {
	data, mimeType, err := decodeDataURL(imageRef)
	if err != nil {
		return "", fmt.Errorf("imagery: edit: %w", err)
	}

	resp, err := s.client.Images.Edit(ctx, oai.ImageEditParams{
		Image: oai.ImageEditParamsImageUnion{
			OfFile: oai.File(bytes.NewReader(data), "image.png", mimeType),
		},
		Prompt: instruction,
		Model:  oai.ImageModel(s.model),
	})
	if err != nil {
		return "", fmt.Errorf("imagery: edit: %w", err)
	}
	return refFrom(resp)
}

// refFrom extracts a data-URL reference from an images response.
func refFrom(resp *oai.ImagesResponse) (string, error) {
	if resp == nil || len(resp.Data) == 0 {
		return "", fmt.Errorf("imagery: empty response")
	}
	img := resp.Data[0]
	if img.B64JSON != "" {
		return "data:image/png;base64," + img.B64JSON, nil
	}
	if img.URL != "" {
		return img.URL, nil
	}
	return "", fmt.Errorf("imagery: response carries neither data nor URL")
}

// decodeDataURL splits a "data:<mime>;base64,<payload>" reference into raw
// bytes and MIME type.
func decodeDataURL(ref string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(ref, "data:")
	if !ok {
		return nil, "", fmt.Errorf("reference %q is not a data URL", truncate(ref, 48))
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data URL")
	}
	mimeType := strings.TrimSuffix(meta, ";base64")
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode data URL: %w", err)
	}
	return data, mimeType, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
