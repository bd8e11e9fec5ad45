package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/livepad/internal/ai"
	"github.com/sokinpui/livepad/internal/animate"
	"github.com/sokinpui/livepad/internal/buffer"
	"github.com/sokinpui/livepad/internal/project"
	"github.com/sokinpui/livepad/internal/state"
	"github.com/sokinpui/livepad/internal/store"
	"github.com/sokinpui/livepad/model"
)

type fixture struct {
	proj     *project.Project
	orch     *Orchestrator
	buffers  map[string]*buffer.Memory
	animated []string
	modes    []Mode
	history  *state.Manager
	mu       sync.Mutex
	fail     map[string]bool
}

type failingBuffer struct {
	*buffer.Memory
}

func (failingBuffer) ApplyEdits([]buffer.Edit) error { return errors.New("widget gone") }

func newFixture(t *testing.T, client ai.Client) *fixture {
	t.Helper()
	f := &fixture{
		proj:    project.New(project.Default()),
		buffers: make(map[string]*buffer.Memory),
		fail:    make(map[string]bool),
	}
	for _, file := range f.proj.Files() {
		f.buffers[file.Name] = buffer.NewMemory(file.Content)
	}
	applier := animate.New(nil)
	applier.Sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	f.history = state.New(context.Background(), store.NewSettings(store.NewMemory(), nil), nil)

	f.orch = New(Config{
		Files: f.proj,
		Buffers: func(_ context.Context, name string) (buffer.Buffer, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.animated = append(f.animated, name)
			if f.fail[name] {
				return failingBuffer{f.buffers[name]}, nil
			}
			return f.buffers[name], nil
		},
		Applier:     applier,
		AI:          client,
		History:     f.history,
		SettleDelay: time.Nanosecond,
		OnMode:      func(m Mode) { f.modes = append(f.modes, m) },
	})
	return f
}

func ptr(s string) *string { return &s }

func content(t *testing.T, p *project.Project, name string) string {
	t.Helper()
	f, ok := p.File(name)
	require.True(t, ok, name)
	return f.Content
}

func TestCSSOnlyProposalTouchesOnlyCSS(t *testing.T) {
	f := newFixture(t, nil)
	html := content(t, f.proj, "index.html")
	js := content(t, f.proj, "script.js")

	summary, err := f.orch.ApplyProposal(context.Background(), model.EditProposal{
		Explanation: "Blue heading",
		HTML:        ptr(html),
		CSS:         ptr("h1 { color: blue; }\n"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"style.css"}, f.animated)
	assert.Equal(t, "h1 { color: blue; }\n", content(t, f.proj, "style.css"))
	assert.Equal(t, html, content(t, f.proj, "index.html"))
	assert.Equal(t, js, content(t, f.proj, "script.js"))

	got, _ := f.buffers["style.css"].Text()
	assert.Equal(t, "h1 { color: blue; }\n", got)
	assert.Equal(t, []string{"style.css"}, summary.Modified)
	assert.Empty(t, summary.Failed)
	assert.Equal(t, "Blue heading", summary.Explanation)
	assert.Equal(t, "style.css", f.proj.Active())
	assert.Equal(t, []Mode{ModeApplying, ModeIdle}, f.modes)
}

func TestBlankFieldLeavesFileUntouched(t *testing.T) {
	f := newFixture(t, nil)
	html := content(t, f.proj, "index.html")

	summary, err := f.orch.ApplyProposal(context.Background(), model.EditProposal{
		Explanation: "tweaked css",
		HTML:        ptr(""),
		CSS:         ptr("body{}"),
		JS:          ptr(" \n"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"style.css"}, f.animated)
	assert.Equal(t, []string{"style.css"}, summary.Modified)
	assert.Equal(t, html, content(t, f.proj, "index.html"))
	got, _ := f.buffers["index.html"].Text()
	assert.Equal(t, html, got)
}

func TestProposalOrderAndIndependentFailures(t *testing.T) {
	f := newFixture(t, nil)
	f.fail["index.html"] = true

	summary, err := f.orch.ApplyProposal(context.Background(), model.EditProposal{
		JS:   ptr("console.log(2);\n"),
		HTML: ptr("<p>new</p>\n"),
		CSS:  ptr("p{}\n"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"index.html", "style.css", "script.js"}, f.animated)
	assert.Equal(t, []string{"index.html", "style.css", "script.js"}, summary.Modified)
	assert.Equal(t, "<p>new</p>\n", content(t, f.proj, "index.html"), "content committed despite animation failure")
	got, _ := f.buffers["index.html"].Text()
	assert.Equal(t, "<p>new</p>\n", got, "failed animation still forces the target text")
	assert.Contains(t, summary.Message, "animation skipped")
	assert.Equal(t, "console.log(2);\n", content(t, f.proj, "script.js"))
}

func TestEmptyProposalExplains(t *testing.T) {
	f := newFixture(t, nil)
	summary, err := f.orch.ApplyProposal(context.Background(), model.EditProposal{
		Explanation: "Looks fine already.",
		CSS:         ptr(content(t, f.proj, "style.css")),
	})
	require.NoError(t, err)
	assert.Equal(t, "Looks fine already. (No code changes were proposed.)", summary.Explanation)
	assert.Empty(t, f.animated)
	assert.False(t, f.history.CanUndo())
}

type fakeAI struct {
	ai.Client
	proposal model.EditProposal
	err      error
	got      ai.EditRequest
}

func (a *fakeAI) GenerateEdit(_ context.Context, req ai.EditRequest) (model.EditProposal, error) {
	a.got = req
	return a.proposal, a.err
}

func TestRequestEditFailureTouchesNothing(t *testing.T) {
	client := &fakeAI{err: &ai.Error{Kind: ai.KindBackendRejection, Op: "generate edit"}}
	f := newFixture(t, client)
	before := f.proj.Files()

	summary, err := f.orch.RequestEdit(context.Background(), "make it pop", "gemini-x")
	require.Error(t, err)
	assert.Equal(t, ai.UserMessage(err), summary.Message)
	assert.Equal(t, before, f.proj.Files())
	assert.Empty(t, f.animated)
	assert.Equal(t, []Mode{ModeThinking, ModeIdle}, f.modes)
}

func TestRequestEditSendsCurrentFiles(t *testing.T) {
	client := &fakeAI{proposal: model.EditProposal{Explanation: "done", JS: ptr("alert(1);\n")}}
	f := newFixture(t, client)

	summary, err := f.orch.RequestEdit(context.Background(), "alert", "gemini-x")
	require.NoError(t, err)
	assert.Equal(t, content(t, f.proj, "index.html"), client.got.HTML)
	assert.Equal(t, "alert", client.got.Prompt)
	assert.Equal(t, "gemini-x", client.got.Model)
	assert.Equal(t, []string{"script.js"}, summary.Modified)
}

func TestRequestEditWithoutClient(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.orch.RequestEdit(context.Background(), "x", "")
	assert.Equal(t, ai.KindConfiguration, ai.KindOf(err))
}

func TestUndoRedoReplayThroughBuffers(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	original := content(t, f.proj, "style.css")

	_, err := f.orch.ApplyProposal(ctx, model.EditProposal{Explanation: "x", CSS: ptr("a{}\n")})
	require.NoError(t, err)

	summary, ok, err := f.orch.Undo(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, original, content(t, f.proj, "style.css"))
	got, _ := f.buffers["style.css"].Text()
	assert.Equal(t, original, got)
	assert.Equal(t, "Undo: x", summary.Explanation)

	_, ok, err = f.orch.Redo(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a{}\n", content(t, f.proj, "style.css"))

	_, ok, err = f.orch.Redo(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProcessSequentially(t *testing.T) {
	var progress []int
	ok, failed := processSequentially([]int{1, 2, 3}, func(i int) (string, bool) {
		return string(rune('a' + i - 1)), i != 2
	}, func(done int) { progress = append(progress, done) })
	assert.Equal(t, []string{"a", "c"}, ok)
	assert.Equal(t, []string{"b"}, failed)
	assert.Equal(t, []int{1, 2, 3}, progress)
}
