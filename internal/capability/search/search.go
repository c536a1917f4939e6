// Package search implements [capability.WebSearcher] using the Tavily
// search API, an AI-native search engine that returns a synthesized answer
// alongside ranked results.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kryptik-dev/omni/internal/capability"
)

// Compile-time interface check.
var _ capability.WebSearcher = (*Tavily)(nil)

const (
	defaultBaseURL    = "https://api.tavily.com"
	defaultMaxResults = 5
)

// Option is a functional option for Tavily.
type Option func(*Tavily)

// WithBaseURL overrides the API base URL. Primarily used in tests.
func WithBaseURL(url string) Option {
	return func(t *Tavily) { t.baseURL = url }
}

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Tavily) { t.client = c }
}

// Tavily is a capability.WebSearcher backed by the Tavily /search endpoint.
type Tavily struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// New creates a Tavily searcher with the given API key.
func New(apiKey string, opts ...Option) *Tavily {
	t := &Tavily{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client:  http.DefaultClient,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

type searchRequest struct {
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth,omitempty"`
	MaxResults    int    `json:"max_results,omitempty"`
	IncludeAnswer bool   `json:"include_answer,omitempty"`
}

type searchResponse struct {
	Answer  string        `json:"answer,omitempty"`
	Results []searchEntry `json:"results"`
}

type searchEntry struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Search implements capability.WebSearcher.
func (t *Tavily) Search(ctx context.Context, query string) (capability.SearchResults, error) {
	body, err := json.Marshal(searchRequest{
		Query:         query,
		SearchDepth:   "basic",
		MaxResults:    defaultMaxResults,
		IncludeAnswer: true,
	})
	if err != nil {
		return capability.SearchResults{}, fmt.Errorf("search: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return capability.SearchResults{}, fmt.Errorf("search: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return capability.SearchResults{}, fmt.Errorf("search: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return capability.SearchResults{}, fmt.Errorf("search: status %d: %s", resp.StatusCode, snippet)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return capability.SearchResults{}, fmt.Errorf("search: decode response: %w", err)
	}

	out := capability.SearchResults{Summary: parsed.Answer}
	for _, e := range parsed.Results {
		out.Links = append(out.Links, capability.SearchLink{Title: e.Title, URL: e.URL})
	}
	if out.Summary == "" && len(parsed.Results) > 0 {
		out.Summary = parsed.Results[0].Content
	}
	return out, nil
}
