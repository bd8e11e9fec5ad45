// Package ai is the AI collaborator: edit proposals, snippet and image
// analysis, and grounded search.
package ai

import (
	"context"

	"github.com/sokinpui/livepad/model"
)

// DefaultModel is used when no model id is configured.
const DefaultModel = "gemini-2.5-flash"

// Action selects what AnalyzeSnippet does with a snippet.
type Action string

const (
	ActionExplain  Action = "explain"
	ActionBugs     Action = "bugs"
	ActionRefactor Action = "refactor"
	ActionComment  Action = "comment"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionExplain, ActionBugs, ActionRefactor, ActionComment:
		return true
	}
	return false
}

// EditRequest carries the current preview sources and the user's prompt.
type EditRequest struct {
	HTML, CSS, JS string
	Prompt        string
	Model         string
}

// SearchSource is one web page a grounded answer cites.
type SearchSource struct {
	URI   string
	Title string
}

// SearchResult is a grounded answer and its sources in citation order.
type SearchResult struct {
	Text    string
	Sources []SearchSource
}

// Client is the AI backend. Every method fails with *Error when no
// credential is configured, the backend rejects it, or the reply cannot be
// parsed.
type Client interface {
	GenerateEdit(ctx context.Context, req EditRequest) (model.EditProposal, error)
	AnalyzeSnippet(ctx context.Context, code string, lang model.Language, action Action) (string, error)
	AnalyzeImage(ctx context.Context, base64Data, mimeType, prompt string) (string, error)
	SearchGrounded(ctx context.Context, prompt string) (SearchResult, error)
}
