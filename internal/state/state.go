// Package state keeps the undo/redo history of applied edits.
package state

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sokinpui/livepad/internal/store"
)

// MaxEntries bounds the history; the oldest entries are dropped first.
const MaxEntries = 100

// Operation is one file's content before and after an edit.
type Operation struct {
	File   string `json:"file"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// HistoryEntry is one applied edit across files.
type HistoryEntry struct {
	Timestamp   int64       `json:"timestamp"`
	Explanation string      `json:"explanation,omitempty"`
	Operations  []Operation `json:"operations"`
}

// State is the persisted history.
type State struct {
	History      []HistoryEntry `json:"history"`
	CurrentIndex int            `json:"current_index"`
}

// Manager handles the lifecycle of the history.
type Manager struct {
	settings *store.Settings
	log      *zap.Logger

	mu    sync.Mutex
	state State
}

// New loads the history from settings. A corrupt or inconsistent history
// starts over empty.
func New(ctx context.Context, settings *store.Settings, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{settings: settings, log: log}
	if !settings.Load(ctx, store.KeyHistory, &m.state) || !m.state.valid() {
		m.state = State{CurrentIndex: -1, History: []HistoryEntry{}}
	}
	return m
}

func (s State) valid() bool {
	return s.CurrentIndex >= -1 && s.CurrentIndex < len(s.History)
}

func (m *Manager) save(ctx context.Context) error {
	return m.settings.Save(ctx, store.KeyHistory, m.state)
}

// Write records a new entry, dropping any redo tail.
func (m *Manager) Write(ctx context.Context, explanation string, operations []Operation) error {
	if len(operations) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.CurrentIndex < len(m.state.History)-1 {
		m.state.History = m.state.History[:m.state.CurrentIndex+1]
	}
	m.state.History = append(m.state.History, HistoryEntry{
		Timestamp:   time.Now().UTC().Unix(),
		Explanation: explanation,
		Operations:  operations,
	})
	m.state.CurrentIndex++
	if over := len(m.state.History) - MaxEntries; over > 0 {
		m.state.History = append([]HistoryEntry(nil), m.state.History[over:]...)
		m.state.CurrentIndex -= over
	}
	m.log.Debug("history entry written", zap.Int("index", m.state.CurrentIndex), zap.Int("files", len(operations)))
	return m.save(ctx)
}

// Undo returns the entry to revert and moves the pointer back. It reports
// false when there is nothing to undo.
func (m *Manager) Undo(ctx context.Context) (HistoryEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.CurrentIndex < 0 {
		return HistoryEntry{}, false, nil
	}
	entry := m.state.History[m.state.CurrentIndex]
	m.state.CurrentIndex--
	return entry, true, m.save(ctx)
}

// Redo returns the entry to reapply and moves the pointer forward.
func (m *Manager) Redo(ctx context.Context) (HistoryEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.state.CurrentIndex + 1
	if next >= len(m.state.History) {
		return HistoryEntry{}, false, nil
	}
	m.state.CurrentIndex = next
	return m.state.History[next], true, m.save(ctx)
}

// CanUndo reports whether Undo has an entry.
func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CurrentIndex >= 0
}

// CanRedo reports whether Redo has an entry.
func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CurrentIndex+1 < len(m.state.History)
}

// Entries returns a copy of the history and the current index.
func (m *Manager) Entries() ([]HistoryEntry, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]HistoryEntry, len(m.state.History))
	copy(out, m.state.History)
	return out, m.state.CurrentIndex
}

// CreateOperations pairs before and after contents of the files that changed,
// sorted by file name.
func CreateOperations(before, after map[string]string) []Operation {
	ops := make([]Operation, 0, len(after))
	for name, content := range after {
		prev, ok := before[name]
		if ok && prev == content {
			continue
		}
		ops = append(ops, Operation{File: name, Before: prev, After: content})
	}
	sort.Slice(ops, func(i, j int) bool {
		return ops[i].File < ops[j].File
	})
	return ops
}

// Reverted returns the contents that undo entry.
func (e HistoryEntry) Reverted() map[string]string {
	out := make(map[string]string, len(e.Operations))
	for _, op := range e.Operations {
		out[op.File] = op.Before
	}
	return out
}

// Applied returns the contents that redo entry.
func (e HistoryEntry) Applied() map[string]string {
	out := make(map[string]string, len(e.Operations))
	for _, op := range e.Operations {
		out[op.File] = op.After
	}
	return out
}
