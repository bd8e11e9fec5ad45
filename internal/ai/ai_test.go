package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/sokinpui/livepad/model"
)

type fakeGenerator struct {
	resp     *genai.GenerateContentResponse
	err      error
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(_ context.Context, modelID string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = modelID
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromText(text, genai.RoleModel),
		}},
	}
}

func withFake(f *fakeGenerator) *Gemini {
	g := NewGemini("key", "", nil)
	g.gen = f
	return g
}

func TestGenerateEditJSON(t *testing.T) {
	f := &fakeGenerator{resp: textResponse(`{"explanation":"blue","css":"h1{color:blue}"}`)}
	g := withFake(f)

	p, err := g.GenerateEdit(context.Background(), EditRequest{HTML: "<h1>x</h1>", CSS: "h1{}", Prompt: "make it blue", Model: "gemini-x"})
	require.NoError(t, err)

	assert.Equal(t, "blue", p.Explanation)
	require.NotNil(t, p.CSS)
	assert.Equal(t, "h1{color:blue}", *p.CSS)
	assert.Nil(t, p.HTML)
	assert.Nil(t, p.JS)

	assert.Equal(t, "gemini-x", f.model)
	require.NotNil(t, f.config)
	assert.Equal(t, "application/json", f.config.ResponseMIMEType)
	assert.Equal(t, editSchema, f.config.ResponseSchema)
}

func TestGenerateEditMalformed(t *testing.T) {
	g := withFake(&fakeGenerator{resp: textResponse("sorry, I cannot help")})
	_, err := g.GenerateEdit(context.Background(), EditRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, KindMalformedResponse, KindOf(err))
}

func TestGenerateEditNoCandidates(t *testing.T) {
	g := withFake(&fakeGenerator{resp: &genai.GenerateContentResponse{}})
	_, err := g.GenerateEdit(context.Background(), EditRequest{Prompt: "x"})
	assert.Equal(t, KindMalformedResponse, KindOf(err))
}

func TestMissingCredential(t *testing.T) {
	g := NewGemini("  ", "", nil)
	_, err := g.AnalyzeSnippet(context.Background(), "x", model.LangJS, ActionExplain)
	require.Error(t, err)
	assert.Equal(t, KindConfiguration, KindOf(err))
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestBackendRejection(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"invalid key", genai.APIError{Code: 400, Message: "API key not valid. Please pass a valid API key.", Status: "INVALID_ARGUMENT"}, KindBackendRejection},
		{"forbidden", genai.APIError{Code: 403, Message: "permission denied"}, KindBackendRejection},
		{"wrapped", fmt.Errorf("call: %w", genai.APIError{Code: 401}), KindBackendRejection},
		{"server error", genai.APIError{Code: 500, Message: "internal"}, KindRequest},
		{"network", errors.New("dial tcp: timeout"), KindRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := withFake(&fakeGenerator{err: tt.err})
			_, err := g.SearchGrounded(context.Background(), "q")
			assert.Equal(t, tt.want, KindOf(err))
		})
	}
}

func TestUserMessagesDistinct(t *testing.T) {
	msgs := map[string]bool{}
	for _, k := range []Kind{KindConfiguration, KindBackendRejection, KindMalformedResponse, KindRequest} {
		msg := UserMessage(&Error{Kind: k, Op: "x", Err: errors.New("cause")})
		assert.NotEmpty(t, msg)
		msgs[msg] = true
	}
	assert.Len(t, msgs, 4)
	assert.Contains(t, UserMessage(&Error{Kind: KindMalformedResponse}), "rephras")
	assert.Contains(t, UserMessage(errors.New("boom")), "boom")
	assert.Empty(t, UserMessage(nil))
}

func TestSearchGroundedSources(t *testing.T) {
	resp := textResponse("Go 1.24 is out.")
	resp.Candidates[0].GroundingMetadata = &genai.GroundingMetadata{
		GroundingChunks: []*genai.GroundingChunk{
			{Web: &genai.GroundingChunkWeb{URI: "https://go.dev/blog", Title: "Go Blog"}},
			{Web: &genai.GroundingChunkWeb{URI: "https://go.dev/blog", Title: "dup"}},
			{Web: &genai.GroundingChunkWeb{URI: "https://go.dev/doc"}},
			{},
		},
	}
	f := &fakeGenerator{resp: resp}
	res, err := withFake(f).SearchGrounded(context.Background(), "latest go?")
	require.NoError(t, err)

	assert.Equal(t, "Go 1.24 is out.", res.Text)
	assert.Equal(t, []SearchSource{
		{URI: "https://go.dev/blog", Title: "Go Blog"},
		{URI: "https://go.dev/doc", Title: "https://go.dev/doc"},
	}, res.Sources)
	require.Len(t, f.config.Tools, 1)
	assert.NotNil(t, f.config.Tools[0].GoogleSearch)
}

func TestAnalyzeImage(t *testing.T) {
	f := &fakeGenerator{resp: textResponse("a cat")}
	data := base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G'})

	got, err := withFake(f).AnalyzeImage(context.Background(), "data:image/png;base64,"+data, "image/png", "what is it?")
	require.NoError(t, err)
	assert.Equal(t, "a cat", got)

	require.Len(t, f.contents, 1)
	parts := f.contents[0].Parts
	require.Len(t, parts, 2)
	require.NotNil(t, parts[0].InlineData)
	assert.Equal(t, "image/png", parts[0].InlineData.MIMEType)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, parts[0].InlineData.Data)
	assert.Equal(t, "what is it?", parts[1].Text)

	_, err = withFake(f).AnalyzeImage(context.Background(), "%%%", "image/png", "x")
	assert.Error(t, err)
}

func TestAnalyzeSnippetRejectsUnknownAction(t *testing.T) {
	_, err := withFake(&fakeGenerator{}).AnalyzeSnippet(context.Background(), "x", model.LangJS, Action("rewrite"))
	assert.Error(t, err)
}

func TestAnalyzeSnippetEmptyReply(t *testing.T) {
	_, err := withFake(&fakeGenerator{resp: textResponse("  ")}).AnalyzeSnippet(context.Background(), "x", model.LangCSS, ActionBugs)
	assert.Equal(t, KindMalformedResponse, KindOf(err))
}

func TestParseEdit(t *testing.T) {
	p, err := ParseEdit("```json\n{\"explanation\":\"e\",\"js\":\"x()\"}\n```")
	require.NoError(t, err)
	require.NotNil(t, p.JS)
	assert.Equal(t, "x()", *p.JS)

	p, err = ParseEdit("Changed it.\n\n```html\n<p>hi</p>\n```\n")
	require.NoError(t, err)
	require.NotNil(t, p.HTML)
	assert.Equal(t, "<p>hi</p>\n", *p.HTML)
	assert.Equal(t, "Changed it.", p.Explanation)

	_, err = ParseEdit("")
	assert.Error(t, err)
}

func TestParseEditDropsBlankFields(t *testing.T) {
	p, err := ParseEdit(`{"explanation":"tweaked css","html":"","css":"body{}","js":"  \n"}`)
	require.NoError(t, err)
	assert.Nil(t, p.HTML)
	assert.Nil(t, p.JS)
	require.NotNil(t, p.CSS)
	assert.Equal(t, "body{}", *p.CSS)
}

func TestSetAPIKeyResetsClient(t *testing.T) {
	g := withFake(&fakeGenerator{})
	g.SetAPIKey("key")
	assert.NotNil(t, g.gen)
	g.SetAPIKey("")
	assert.Nil(t, g.gen)
	_, err := g.SearchGrounded(context.Background(), "q")
	assert.Equal(t, KindConfiguration, KindOf(err))
}
