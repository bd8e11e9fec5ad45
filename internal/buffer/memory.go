package buffer

import (
	"sync"
)

// MemoryView is the view state of a Memory buffer.
type MemoryView struct {
	Cursor    Position
	Selection Range
	Revealed  Range
}

// Memory is a thread-safe in-memory Buffer. It backs headless sessions and
// tests.
type Memory struct {
	mu        sync.Mutex
	text      string
	view      MemoryView
	focused   bool
	listeners map[int]func()
	nextID    int
}

// NewMemory returns a buffer holding text.
func NewMemory(text string) *Memory {
	return &Memory{text: text, listeners: make(map[int]func())}
}

func (m *Memory) Text() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text, nil
}

func (m *Memory) SetText(text string) error {
	m.mu.Lock()
	changed := m.text != text
	m.text = text
	m.view.Cursor = clampPosition(text, m.view.Cursor)
	m.mu.Unlock()
	if changed {
		m.notify()
	}
	return nil
}

func (m *Memory) ViewState() (ViewState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view, nil
}

func (m *Memory) RestoreViewState(state ViewState) error {
	v, ok := state.(MemoryView)
	if !ok {
		return nil
	}
	m.mu.Lock()
	v.Cursor = clampPosition(m.text, v.Cursor)
	m.view = v
	m.mu.Unlock()
	return nil
}

func (m *Memory) ApplyEdits(edits []Edit) error {
	if len(edits) == 0 {
		return nil
	}
	m.mu.Lock()
	for _, e := range edits {
		m.text = applyEdit(m.text, e)
		m.view.Cursor = Advance(e.Range.Start, e.Text)
	}
	m.mu.Unlock()
	m.notify()
	return nil
}

func (m *Memory) Focus() error {
	m.mu.Lock()
	m.focused = true
	m.mu.Unlock()
	return nil
}

// Focused reports whether Focus has been called.
func (m *Memory) Focused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.focused
}

func (m *Memory) Reveal(r Range) error {
	m.mu.Lock()
	m.view.Revealed = r
	m.mu.Unlock()
	return nil
}

func (m *Memory) Select(r Range) error {
	m.mu.Lock()
	m.view.Selection = r
	m.view.Cursor = r.Start
	m.mu.Unlock()
	return nil
}

func (m *Memory) OnChange(fn func()) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *Memory) notify() {
	m.mu.Lock()
	fns := make([]func(), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func clampPosition(text string, pos Position) Position {
	return PositionAt(text, OffsetAt(text, pos))
}
