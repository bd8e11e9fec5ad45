// Package tui is the interactive terminal view: progress of an edit, its
// summary, and in watch mode the preview console and a prompt line.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/sokinpui/livepad/internal/animate"
	"github.com/sokinpui/livepad/internal/orchestrator"
	"github.com/sokinpui/livepad/internal/relay"
	"github.com/sokinpui/livepad/internal/store"
	"github.com/sokinpui/livepad/livepad"
	"github.com/sokinpui/livepad/model"
)

// --- Styles ---
var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")) // Mauve
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))            // Green
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))           // Red
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	pathStyle    = lipgloss.NewStyle()
	faintStyle   = lipgloss.NewStyle().Faint(true)
	consoleStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
)

// --- Messages ---
type summaryMsg struct {
	model.Summary
}

type errorMsg struct{ err error }

func (e errorMsg) Error() string { return e.err.Error() }

type progressMsg struct{ done, total int }

type modeMsg orchestrator.Mode

type phaseMsg animate.Phase

type jobMsg orchestrator.Job

type logMsg struct {
	event relay.LogEvent
	ok    bool
}

type editDoneMsg struct {
	summary model.Summary
	err     error
}

// Executor runs the command. *livepad.App implements it.
type Executor interface {
	Execute(ctx context.Context) (model.Summary, error)
}

// --- Model ---
type Model struct {
	app     *livepad.App
	exec    Executor
	watch   bool
	theme   store.Theme
	ctx     context.Context
	cancel  context.CancelFunc
	spinner spinner.Model
	input   textinput.Model
	console viewport.Model
	logs    <-chan relay.LogEvent
	unsub   func()

	state    state
	mode     orchestrator.Mode
	phase    animate.Phase
	file     string
	done     int
	total    int
	entries  []model.LogEntry
	summary  summaryMsg
	last     string
	err      error
	quitting bool
}

type state int

const (
	stateProcessing state = iota
	stateSummary
	stateError
)

// New returns the view for app. In watch mode it shows the console and a
// prompt line until the user quits.
func New(app *livepad.App, watch bool, theme store.Theme) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	in := textinput.New()
	in.Placeholder = "Ask for a change and press enter"
	in.Prompt = "> "
	in.CharLimit = 2000
	if watch {
		in.Focus()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Model{
		app:     app,
		exec:    app,
		watch:   watch,
		theme:   theme,
		ctx:     ctx,
		cancel:  cancel,
		spinner: s,
		input:   in,
		console: viewport.New(80, 10),
		state:   stateProcessing,
	}
	if watch && app != nil {
		m.logs, m.unsub = app.Logs().Subscribe()
	}
	return m
}

// SetProgram forwards the app's progress to p.
func (m *Model) SetProgram(p *tea.Program) {
	if m.app == nil {
		return
	}
	m.app.SetProgressCallback(func(done, total int) { p.Send(progressMsg{done, total}) })
	m.app.SetModeCallback(func(mode orchestrator.Mode) { p.Send(modeMsg(mode)) })
	m.app.SetPhaseCallback(func(phase animate.Phase) { p.Send(phaseMsg(phase)) })
	m.app.SetJobCallback(func(job orchestrator.Job) { p.Send(jobMsg(job)) })
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, m.runApp}
	if m.logs != nil {
		cmds = append(cmds, m.waitForLog, textinput.Blink)
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.console.Width = msg.Width - 2
		m.console.Height = max(3, msg.Height/2)
		m.input.Width = msg.Width - 4
		return m, nil

	case progressMsg:
		m.done, m.total = msg.done, msg.total
		return m, nil

	case modeMsg:
		m.mode = orchestrator.Mode(msg)
		return m, nil

	case phaseMsg:
		m.phase = animate.Phase(msg)
		return m, nil

	case jobMsg:
		m.file = msg.File
		return m, nil

	case logMsg:
		if !msg.ok {
			return m, nil
		}
		if msg.event.Cleared {
			m.entries = nil
		} else {
			m.entries = append(m.entries, msg.event.Entry)
		}
		m.console.SetContent(renderEntries(m.entries))
		m.console.GotoBottom()
		return m, m.waitForLog

	case editDoneMsg:
		m.last = m.renderResult(msg.summary, msg.err)
		return m, nil

	case summaryMsg:
		m.state = stateSummary
		m.summary = msg
		m.stop()
		return m, tea.Quit

	case errorMsg:
		m.state = stateError
		m.err = msg
		m.stop()
		return m, tea.Quit
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	if m.state == stateProcessing {
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}
	if m.watch {
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		// Execute returns once its context is cancelled.
		m.quitting = true
		m.cancel()
		if m.watch {
			return m, nil
		}
		return m, tea.Quit
	case "q":
		if !m.watch {
			m.cancel()
			return m, tea.Quit
		}
	case "ctrl+l":
		if s := m.session(); s != nil {
			s.ClearConsole()
		}
		return m, nil
	case "ctrl+r":
		if s := m.session(); s != nil {
			return m, func() tea.Msg {
				s.Refresh()
				return nil
			}
		}
		return m, nil
	case "enter":
		if m.watch {
			prompt := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if prompt == "" {
				return m, nil
			}
			return m, m.requestEdit(prompt)
		}
	}
	if m.watch {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) session() *livepad.Session {
	if m.app == nil {
		return nil
	}
	return m.app.Session()
}

func (m *Model) requestEdit(prompt string) tea.Cmd {
	s := m.session()
	if s == nil {
		return nil
	}
	ctx := m.ctx
	return func() tea.Msg {
		summary, err := s.RequestEdit(ctx, prompt)
		return editDoneMsg{summary: summary, err: err}
	}
}

func (m *Model) stop() {
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
	}
}

func (m *Model) waitForLog() tea.Msg {
	ev, ok := <-m.logs
	return logMsg{event: ev, ok: ok}
}

func (m *Model) View() string {
	switch m.state {
	case stateProcessing:
		if m.watch {
			return m.renderWatch()
		}
		return m.renderProgress()
	case stateError:
		return errorStyle.Render("Error: ", m.err.Error())
	case stateSummary:
		return m.renderSummary()
	default:
		return ""
	}
}

func (m *Model) renderProgress() string {
	status := "Processing..."
	switch m.mode {
	case orchestrator.ModeThinking:
		status = "Thinking..."
	case orchestrator.ModeApplying:
		status = fmt.Sprintf("Applying %s (%s)", m.file, m.phase)
		if m.total > 0 {
			status += fmt.Sprintf(" [%d/%d]", m.done, m.total)
		}
	}
	return fmt.Sprintf("%s %s", m.spinner.View(), status)
}

func (m *Model) renderWatch() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("livepad"))
	b.WriteString(faintStyle.Render("  enter: ask AI  ctrl+r: reload preview  ctrl+l: clear console  esc: quit"))
	b.WriteString("\n\n")
	b.WriteString(consoleStyle.Render(m.console.View()))
	b.WriteString("\n")
	if m.mode != orchestrator.ModeIdle {
		b.WriteString(m.renderProgress())
		b.WriteString("\n")
	} else if m.last != "" {
		b.WriteString(m.last)
		b.WriteString("\n")
	}
	if m.quitting {
		b.WriteString(faintStyle.Render("Closing session..."))
	} else {
		b.WriteString(m.input.View())
	}
	return b.String()
}

func (m *Model) renderResult(s model.Summary, err error) string {
	if err != nil {
		msg := s.Message
		if msg == "" {
			msg = err.Error()
		}
		return errorStyle.Render(msg)
	}
	var b strings.Builder
	if s.Explanation != "" {
		b.WriteString(m.renderMarkdown(s.Explanation))
	}
	if s.Message != "" {
		b.WriteString(successStyle.Render(s.Message))
	}
	return b.String()
}

func (m *Model) renderMarkdown(text string) string {
	out, err := glamour.Render(text, string(m.theme))
	if err != nil {
		return text + "\n"
	}
	return out
}

func (m *Model) renderSummary() string {
	var b strings.Builder

	if m.summary.Explanation != "" {
		b.WriteString(m.renderMarkdown(m.summary.Explanation))
	}
	if m.summary.Message != "" {
		b.WriteString(headerStyle.Render(m.summary.Message))
		b.WriteString("\n\n")
	}

	hasContent := false
	if len(m.summary.Modified) > 0 {
		hasContent = true
		b.WriteString(successStyle.Render("Modified:"))
		b.WriteString("\n")
		for _, f := range m.summary.Modified {
			b.WriteString(fmt.Sprintf("  %s\n", pathStyle.Render(f)))
		}
	}
	if len(m.summary.Failed) > 0 {
		hasContent = true
		b.WriteString(errorStyle.Render("Failed:"))
		b.WriteString("\n")
		for _, f := range m.summary.Failed {
			b.WriteString(fmt.Sprintf("  %s\n", pathStyle.Render(f)))
		}
	}

	if !hasContent && m.summary.Message == "" && m.summary.Explanation == "" {
		b.WriteString(faintStyle.Render("Nothing to do."))
	}

	return b.String()
}

func (m *Model) runApp() tea.Msg {
	summary, err := m.exec.Execute(m.ctx)
	if err != nil {
		// Check for detailed error to print stack
		if e, ok := err.(*livepad.DetailedError); ok {
			// The TUI will exit, so we can print to stderr here for the stack trace.
			fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", e.Stack)
		}
		if summary.Message != "" {
			return errorMsg{fmt.Errorf("%s", summary.Message)}
		}
		return errorMsg{err}
	}
	return summaryMsg{
		Summary: summary,
	}
}

// Err returns the error the command ended with, if any.
func (m *Model) Err() error { return m.err }

func renderEntries(entries []model.LogEntry) string {
	if len(entries) == 0 {
		return faintStyle.Render("Console is empty.")
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = FormatEntry(e)
	}
	return strings.Join(lines, "\n")
}

// FormatEntry renders one console entry as "time kind args".
func FormatEntry(e model.LogEntry) string {
	style := pathStyle
	switch e.Kind {
	case model.LogError:
		style = errorStyle
	case model.LogWarn:
		style = warnStyle
	case model.LogInfo:
		style = infoStyle
	case model.LogDebug:
		style = faintStyle
	}
	ts := e.Timestamp
	if t, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil {
		ts = t.Local().Format("15:04:05")
	}
	args := make([]string, len(e.Data))
	for i, raw := range e.Data {
		args[i] = formatArg(raw)
	}
	return fmt.Sprintf("%s %s %s", faintStyle.Render(ts), style.Render(fmt.Sprintf("%-5s", e.Kind)), strings.Join(args, " "))
}

// formatArg shows strings bare, Error objects as their message and stack,
// and anything else as JSON.
func formatArg(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var e struct {
		IsError bool   `json:"isError"`
		Message string `json:"message"`
		Stack   string `json:"stack"`
	}
	if err := json.Unmarshal(raw, &e); err == nil && e.IsError {
		if e.Stack != "" {
			return e.Stack
		}
		return e.Message
	}
	return string(raw)
}
