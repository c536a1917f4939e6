// Package capability defines the tool-call dispatch loop and the capability
// collaborators it can invoke on behalf of the remote model.
//
// A Capability pairs a declared [Definition] (name, description, argument
// schema — the manifest entry sent at connect) with a [Handler] executed
// in-process. The [Dispatcher] receives tool-call batches from the live
// session, runs each call independently, and guarantees that every call
// yields exactly one correlated result, even when the capability is
// unknown, unconfigured, or fails.
package capability

import (
	"context"
	"errors"
)

// ErrNotFound is returned by [MessageStore.EditMessage] when no stored
// message has the given id.
var ErrNotFound = errors.New("capability: message not found")

// Definition describes one capability as declared in the tool manifest.
type Definition struct {
	// Name is the capability's unique identifier, invoked verbatim by the
	// remote model.
	Name string

	// Description explains what the capability does (read by the model).
	Description string

	// Parameters is the JSON Schema of the argument object. The top-level
	// "required" list is enforced by the dispatcher before invocation.
	Parameters map[string]any
}

// Required returns the argument names the schema marks as required.
func (d Definition) Required() []string {
	switch req := d.Parameters["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, v := range req {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Handler executes a capability. args is the decoded argument object from
// the tool call. The returned mapping becomes the result payload; a non-nil
// error is converted by the dispatcher into an error result — it never
// propagates further.
type Handler func(ctx context.Context, args map[string]any) (map[string]any, error)

// Capability is a named, schema-validated, in-process operation the model
// may invoke mid-conversation.
type Capability struct {
	Definition Definition
	Handler    Handler
}

// ── Collaborator contracts ────────────────────────────────────────────────────
//
// The built-in capabilities are thin adapters over these external
// collaborators. Each implementation lives in its own subpackage (imagery,
// search, vision, reason) or in the msgstore package; the engine never
// interprets their internals.

// ImageStudio creates and edits images, returning opaque image references.
type ImageStudio interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Edit(ctx context.Context, imageRef, instruction string) (string, error)
}

// SearchLink is one ranked result from a web search.
type SearchLink struct {
	Title string
	URL   string
}

// SearchResults is the outcome of a web search: a prose summary plus links.
type SearchResults struct {
	Summary string
	Links   []SearchLink
}

// WebSearcher runs a web search for a free-text query.
type WebSearcher interface {
	Search(ctx context.Context, query string) (SearchResults, error)
}

// Camera pulls a still frame from an external camera feed.
type Camera interface {
	// CaptureFrame returns encoded image bytes and their MIME type.
	CaptureFrame(ctx context.Context) (data []byte, mimeType string, err error)
}

// VisionAnalyzer answers a question about an encoded image.
type VisionAnalyzer interface {
	Analyze(ctx context.Context, image []byte, mimeType, question string) (string, error)
}

// StoredMessage is one entry in the external message store.
type StoredMessage struct {
	ID   string
	Role string
	Text string
}

// MessageStore is the external conversation-record collaborator.
type MessageStore interface {
	ListTextMessages(ctx context.Context) ([]StoredMessage, error)

	// EditMessage replaces the text of the message with the given id.
	// Returns [ErrNotFound] if no such message exists.
	EditMessage(ctx context.Context, id, newText string) error

	// RecordReply stores text as a model reply and returns its new id.
	RecordReply(ctx context.Context, text string) (string, error)

	// LatestImage returns the most recently stored image and its MIME type.
	LatestImage(ctx context.Context) (data []byte, mimeType string, err error)
}

// Reasoner solves a hard problem with a slower, more deliberate text model.
type Reasoner interface {
	Reason(ctx context.Context, problem string) (string, error)
}
