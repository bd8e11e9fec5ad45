package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/sokinpui/livepad/internal/parser"
	"github.com/sokinpui/livepad/model"
)

// generator is the slice of the genai models service Gemini uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini implements Client on the Gemini API. The underlying client is
// created on first use so a missing key fails the request, not the session.
type Gemini struct {
	model string
	log   *zap.Logger

	mu     sync.Mutex
	apiKey string
	gen    generator
}

var _ Client = (*Gemini)(nil)

// NewGemini returns a Gemini client. modelID defaults to DefaultModel.
func NewGemini(apiKey, modelID string, log *zap.Logger) *Gemini {
	if modelID == "" {
		modelID = DefaultModel
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gemini{model: modelID, apiKey: apiKey, log: log}
}

// SetAPIKey replaces the credential used by later requests.
func (g *Gemini) SetAPIKey(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if key != g.apiKey {
		g.apiKey = key
		g.gen = nil
	}
}

func (g *Gemini) client(ctx context.Context, op string) (generator, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gen != nil {
		return g.gen, nil
	}
	if strings.TrimSpace(g.apiKey) == "" {
		return nil, &Error{Kind: KindConfiguration, Op: op, Err: ErrNoCredential}
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &Error{Kind: KindConfiguration, Op: op, Err: err}
	}
	g.gen = client.Models
	return g.gen, nil
}

func (g *Gemini) generate(ctx context.Context, op, modelID string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	gen, err := g.client(ctx, op)
	if err != nil {
		return nil, err
	}
	if modelID == "" {
		modelID = g.model
	}
	log := g.log.With(zap.String("op", op), zap.String("model", modelID))
	log.Debug("ai request")
	resp, err := gen.GenerateContent(ctx, modelID, contents, cfg)
	if err != nil {
		log.Debug("ai request failed", zap.Error(err))
		return nil, classify(op, err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, &Error{Kind: KindMalformedResponse, Op: op, Err: errors.New("no candidates in response")}
	}
	return resp, nil
}

var editSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"explanation": {Type: genai.TypeString, Description: "What changed and why."},
		"html":        {Type: genai.TypeString, Description: "Complete new HTML body, only if changed."},
		"css":         {Type: genai.TypeString, Description: "Complete new CSS, only if changed."},
		"js":          {Type: genai.TypeString, Description: "Complete new JavaScript, only if changed."},
	},
	Required: []string{"explanation"},
}

// GenerateEdit asks for an edit proposal covering the three preview files.
func (g *Gemini) GenerateEdit(ctx context.Context, req EditRequest) (model.EditProposal, error) {
	const op = "generate edit"
	resp, err := g.generate(ctx, op, req.Model, genai.Text(editPrompt(req)), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(editInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    editSchema,
	})
	if err != nil {
		return model.EditProposal{}, err
	}
	proposal, err := ParseEdit(resp.Text())
	if err != nil {
		return model.EditProposal{}, &Error{Kind: KindMalformedResponse, Op: op, Err: err}
	}
	return proposal, nil
}

// AnalyzeSnippet explains, reviews, refactors or comments a snippet.
func (g *Gemini) AnalyzeSnippet(ctx context.Context, code string, lang model.Language, action Action) (string, error) {
	const op = "analyze snippet"
	if !action.Valid() {
		return "", fmt.Errorf("ai %s: unknown action %q", op, action)
	}
	resp, err := g.generate(ctx, op, "", genai.Text(snippetPrompt(code, lang, action)), nil)
	if err != nil {
		return "", err
	}
	return nonEmpty(op, resp.Text())
}

// AnalyzeImage answers prompt about a base64 encoded image.
func (g *Gemini) AnalyzeImage(ctx context.Context, base64Data, mimeType, prompt string) (string, error) {
	const op = "analyze image"
	data, err := base64.StdEncoding.DecodeString(stripDataURL(base64Data))
	if err != nil {
		return "", fmt.Errorf("ai %s: decode image: %w", op, err)
	}
	parts := []*genai.Part{
		genai.NewPartFromBytes(data, mimeType),
		genai.NewPartFromText(prompt),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := g.generate(ctx, op, "", contents, nil)
	if err != nil {
		return "", err
	}
	return nonEmpty(op, resp.Text())
}

// SearchGrounded answers prompt with Google Search grounding.
func (g *Gemini) SearchGrounded(ctx context.Context, prompt string) (SearchResult, error) {
	const op = "search"
	resp, err := g.generate(ctx, op, "", genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(searchInstruction, genai.RoleUser),
		Tools:             []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	})
	if err != nil {
		return SearchResult{}, err
	}
	text, err := nonEmpty(op, resp.Text())
	if err != nil {
		return SearchResult{}, err
	}
	return SearchResult{Text: text, Sources: groundingSources(resp)}, nil
}

func groundingSources(resp *genai.GenerateContentResponse) []SearchSource {
	var sources []SearchSource
	seen := make(map[string]bool)
	for _, cand := range resp.Candidates {
		if cand == nil || cand.GroundingMetadata == nil {
			continue
		}
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" || seen[chunk.Web.URI] {
				continue
			}
			seen[chunk.Web.URI] = true
			title := chunk.Web.Title
			if title == "" {
				title = chunk.Web.URI
			}
			sources = append(sources, SearchSource{URI: chunk.Web.URI, Title: title})
		}
	}
	return sources
}

// ParseEdit decodes an edit reply. JSON is expected; a markdown reply with
// fenced html, css or js blocks is accepted as a fallback.
func ParseEdit(reply string) (model.EditProposal, error) {
	text := strings.TrimSpace(reply)
	if text == "" {
		return model.EditProposal{}, errors.New("empty reply")
	}

	var proposal model.EditProposal
	jsonErr := json.Unmarshal([]byte(stripJSONFence(text)), &proposal)
	if jsonErr == nil {
		return proposal.Compact(), nil
	}
	if p, ok := parser.ExtractProposal([]byte(text)); ok {
		return p, nil
	}
	return model.EditProposal{}, fmt.Errorf("decode edit: %w", jsonErr)
}

func stripJSONFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// stripDataURL drops a "data:<mime>;base64," prefix.
func stripDataURL(s string) string {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			return s[i+1:]
		}
	}
	return s
}

func nonEmpty(op, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", &Error{Kind: KindMalformedResponse, Op: op, Err: errors.New("empty reply")}
	}
	return text, nil
}
