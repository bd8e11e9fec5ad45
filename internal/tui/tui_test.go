package tui

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/livepad/internal/animate"
	"github.com/sokinpui/livepad/internal/orchestrator"
	"github.com/sokinpui/livepad/internal/relay"
	"github.com/sokinpui/livepad/internal/store"
	"github.com/sokinpui/livepad/model"
)

type fakeExec struct {
	summary model.Summary
	err     error
}

func (f fakeExec) Execute(context.Context) (model.Summary, error) { return f.summary, f.err }

func newTestModel(exec Executor) *Model {
	m := New(nil, false, store.ThemeDark)
	m.exec = exec
	return m
}

func TestRunAppReportsSummary(t *testing.T) {
	m := newTestModel(fakeExec{summary: model.Summary{Modified: []string{"style.css"}, Message: "1 file(s) updated"}})

	msg := m.runApp()
	_, cmd := m.Update(msg)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	view := m.View()
	assert.Contains(t, view, "Modified:")
	assert.Contains(t, view, "style.css")
	assert.Contains(t, view, "1 file(s) updated")
}

func TestRunAppReportsUserMessageOnError(t *testing.T) {
	m := newTestModel(fakeExec{summary: model.Summary{Message: "The API key was rejected."}, err: errors.New("403")})

	_, _ = m.Update(m.runApp())
	assert.Contains(t, m.View(), "The API key was rejected.")
	require.Error(t, m.Err())
}

func TestProgressView(t *testing.T) {
	m := newTestModel(fakeExec{})
	m.Update(modeMsg(orchestrator.ModeThinking))
	assert.Contains(t, m.View(), "Thinking...")

	m.Update(modeMsg(orchestrator.ModeApplying))
	m.Update(jobMsg(orchestrator.Job{File: "index.html"}))
	m.Update(phaseMsg(animate.PhaseTyping))
	m.Update(progressMsg{done: 1, total: 3})
	assert.Contains(t, m.View(), "Applying index.html (typing) [1/3]")
}

func TestEmptySummary(t *testing.T) {
	m := newTestModel(fakeExec{})
	m.Update(m.runApp())
	assert.Contains(t, m.View(), "Nothing to do.")
}

func TestQuitCancelsContext(t *testing.T) {
	m := newTestModel(fakeExec{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Error(t, m.ctx.Err())
}

func TestLogMessagesFillConsole(t *testing.T) {
	m := newTestModel(fakeExec{})
	m.watch = true
	m.logs = make(chan relay.LogEvent)

	entry := model.LogEntry{Kind: model.LogWarn, Data: []json.RawMessage{json.RawMessage(`"careful"`)}, Timestamp: "2026-01-02T03:04:05.000Z"}
	m.Update(logMsg{event: relay.LogEvent{Entry: entry}, ok: true})
	require.Len(t, m.entries, 1)
	assert.Contains(t, m.View(), "careful")

	m.Update(logMsg{event: relay.LogEvent{Cleared: true}, ok: true})
	assert.Empty(t, m.entries)
	assert.Contains(t, m.View(), "Console is empty.")
}

func TestFormatEntry(t *testing.T) {
	entry := model.LogEntry{
		Kind: model.LogError,
		Data: []json.RawMessage{
			json.RawMessage(`"failed:"`),
			json.RawMessage(`{"isError":true,"message":"boom","stack":""}`),
			json.RawMessage(`{"a":1}`),
			json.RawMessage(`"10n"`),
		},
		Timestamp: "not a time",
	}
	line := FormatEntry(entry)
	assert.Contains(t, line, "not a time")
	assert.Contains(t, line, "failed: boom {\"a\":1} 10n")
}
