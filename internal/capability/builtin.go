package capability

import (
	"context"
	"errors"
	"fmt"
)

// Collaborators bundles the external services backing the built-in
// capabilities. Any field may be nil; the corresponding capabilities then
// fail soft with an explanatory error result instead of being omitted, so
// the model learns why an operation is unavailable rather than never
// seeing it.
type Collaborators struct {
	Images   ImageStudio
	Search   WebSearcher
	Camera   Camera
	Vision   VisionAnalyzer
	Messages MessageStore
	Reasoner Reasoner
}

// Builtins returns the full built-in capability set wired to c.
func Builtins(c Collaborators) []Capability {
	return []Capability{
		generateImage(c.Images),
		editImage(c.Images),
		searchWeb(c.Search),
		captureAndAnalyze(c.Camera, c.Vision),
		analyzeStoredImage(c.Messages, c.Vision),
		listStoredTextMessages(c.Messages),
		editStoredMessage(c.Messages),
		recordTextReply(c.Messages),
		deepReason(c.Reasoner),
	}
}

func stringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name]
	if !ok {
		return "", fmt.Errorf("argument %q is missing", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", name)
	}
	return s, nil
}

func objectSchema(required []string, props map[string]any) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func generateImage(images ImageStudio) Capability {
	return Capability{
		Definition: Definition{
			Name:        "generateImage",
			Description: "Generate a new image from a text prompt and show it to the user.",
			Parameters: objectSchema([]string{"prompt"}, map[string]any{
				"prompt": map[string]any{"type": "string", "description": "What the image should depict."},
			}),
		},
		Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			if images == nil {
				return nil, errors.New("image generation is not configured")
			}
			prompt, err := stringArg(args, "prompt")
			if err != nil {
				return nil, err
			}
			ref, err := images.Generate(ctx, prompt)
			if err != nil {
				return nil, fmt.Errorf("generate image: %w", err)
			}
			return map[string]any{"image": ref}, nil
		},
	}
}

func editImage(images ImageStudio) Capability {
	return Capability{
		Definition: Definition{
			Name:        "editImage",
			Description: "Edit a previously generated image according to an instruction.",
			Parameters: objectSchema([]string{"image", "instruction"}, map[string]any{
				"image":       map[string]any{"type": "string", "description": "Reference of the image to edit."},
				"instruction": map[string]any{"type": "string", "description": "How the image should change."},
			}),
		},
		Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			if images == nil {
				return nil, errors.New("image editing is not configured")
			}
			ref, err := stringArg(args, "image")
			if err != nil {
				return nil, err
			}
			instruction, err := stringArg(args, "instruction")
			if err != nil {
				return nil, err
			}
			edited, err := images.Edit(ctx, ref, instruction)
			if err != nil {
				return nil, fmt.Errorf("edit image: %w", err)
			}
			return map[string]any{"image": edited}, nil
		},
	}
}

func searchWeb(search WebSearcher) Capability {
	return Capability{
		Definition: Definition{
			Name:        "searchWeb",
			Description: "Search the web for current information and return a summary with links.",
			Parameters: objectSchema([]string{"query"}, map[string]any{
				"query": map[string]any{"type": "string", "description": "The search query."},
			}),
		},
		Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			if search == nil {
				return nil, errors.New("web search is not configured")
			}
			query, err := stringArg(args, "query")
			if err != nil {
				return nil, err
			}
			results, err := search.Search(ctx, query)
			if err != nil {
				return nil, fmt.Errorf("search web: %w", err)
			}
			links := make([]map[string]any, len(results.Links))
			for i, l := range results.Links {
				links[i] = map[string]any{"title": l.Title, "url": l.URL}
			}
			return map[string]any{"summary": results.Summary, "links": links}, nil
		},
	}
}

func captureAndAnalyze(camera Camera, vision VisionAnalyzer) Capability {
	return Capability{
		Definition: Definition{
			Name:        "captureAndAnalyze",
			Description: "Capture a frame from the user's camera and answer a question about it.",
			Parameters: objectSchema([]string{"question"}, map[string]any{
				"question": map[string]any{"type": "string", "description": "What to determine from the captured frame."},
			}),
		},
		Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			if camera == nil {
				return nil, errors.New("no camera is available")
			}
			if vision == nil {
				return nil, errors.New("image analysis is not configured")
			}
			question, err := stringArg(args, "question")
			if err != nil {
				return nil, err
			}
			frame, mimeType, err := camera.CaptureFrame(ctx)
			if err != nil {
				return nil, fmt.Errorf("capture frame: %w", err)
			}
			answer, err := vision.Analyze(ctx, frame, mimeType, question)
			if err != nil {
				return nil, fmt.Errorf("analyze frame: %w", err)
			}
			return map[string]any{"analysis": answer}, nil
		},
	}
}

func analyzeStoredImage(store MessageStore, vision VisionAnalyzer) Capability {
	return Capability{
		Definition: Definition{
			Name:        "analyzeStoredImage",
			Description: "Answer a question about the most recent image in the conversation.",
			Parameters: objectSchema([]string{"question"}, map[string]any{
				"question": map[string]any{"type": "string", "description": "What to determine from the image."},
			}),
		},
		Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			if store == nil {
				return nil, errors.New("message store is not configured")
			}
			if vision == nil {
				return nil, errors.New("image analysis is not configured")
			}
			question, err := stringArg(args, "question")
			if err != nil {
				return nil, err
			}
			img, mimeType, err := store.LatestImage(ctx)
			if err != nil {
				return nil, fmt.Errorf("load stored image: %w", err)
			}
			answer, err := vision.Analyze(ctx, img, mimeType, question)
			if err != nil {
				return nil, fmt.Errorf("analyze image: %w", err)
			}
			return map[string]any{"analysis": answer}, nil
		},
	}
}

func listStoredTextMessages(store MessageStore) Capability {
	return Capability{
		Definition: Definition{
			Name:        "listStoredTextMessages",
			Description: "List the text messages recorded in the conversation store.",
			Parameters:  objectSchema(nil, map[string]any{}),
		},
		Handler: func(ctx context.Context, _ map[string]any) (map[string]any, error) {
			if store == nil {
				return nil, errors.New("message store is not configured")
			}
			msgs, err := store.ListTextMessages(ctx)
			if err != nil {
				return nil, fmt.Errorf("list messages: %w", err)
			}
			out := make([]map[string]any, len(msgs))
			for i, m := range msgs {
				out[i] = map[string]any{"id": m.ID, "role": m.Role, "text": m.Text}
			}
			return map[string]any{"messages": out}, nil
		},
	}
}

func editStoredMessage(store MessageStore) Capability {
	return Capability{
		Definition: Definition{
			Name:        "editStoredMessage",
			Description: "Replace the text of a stored message by id.",
			Parameters: objectSchema([]string{"id", "newText"}, map[string]any{
				"id":      map[string]any{"type": "string", "description": "Id of the message to edit."},
				"newText": map[string]any{"type": "string", "description": "The replacement text."},
			}),
		},
		Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			if store == nil {
				return nil, errors.New("message store is not configured")
			}
			id, err := stringArg(args, "id")
			if err != nil {
				return nil, err
			}
			newText, err := stringArg(args, "newText")
			if err != nil {
				return nil, err
			}
			switch err := store.EditMessage(ctx, id, newText); {
			case errors.Is(err, ErrNotFound):
				return map[string]any{"status": "notFound"}, nil
			case err != nil:
				return nil, fmt.Errorf("edit message: %w", err)
			}
			return map[string]any{"status": "success"}, nil
		},
	}
}

func recordTextReply(store MessageStore) Capability {
	return Capability{
		Definition: Definition{
			Name:        "recordTextReply",
			Description: "Record a text reply from the assistant into the conversation store.",
			Parameters: objectSchema([]string{"text"}, map[string]any{
				"text": map[string]any{"type": "string", "description": "The reply text to record."},
			}),
		},
		Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			if store == nil {
				return nil, errors.New("message store is not configured")
			}
			text, err := stringArg(args, "text")
			if err != nil {
				return nil, err
			}
			id, err := store.RecordReply(ctx, text)
			if err != nil {
				return nil, fmt.Errorf("record reply: %w", err)
			}
			return map[string]any{"id": id}, nil
		},
	}
}

func deepReason(reasoner Reasoner) Capability {
	return Capability{
		Definition: Definition{
			Name:        "deepReason",
			Description: "Work through a hard problem with a slower, more deliberate model. Use for maths, logic, and multi-step planning.",
			Parameters: objectSchema([]string{"problem"}, map[string]any{
				"problem": map[string]any{"type": "string", "description": "The problem to reason about."},
			}),
		},
		Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			if reasoner == nil {
				return nil, errors.New("deep reasoning is not configured")
			}
			problem, err := stringArg(args, "problem")
			if err != nil {
				return nil, err
			}
			answer, err := reasoner.Reason(ctx, problem)
			if err != nil {
				return nil, fmt.Errorf("deep reason: %w", err)
			}
			return map[string]any{"answer": answer}, nil
		},
	}
}
