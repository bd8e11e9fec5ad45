package livepad

import (
	"fmt"
	"sync"

	"github.com/sokinpui/livepad/internal/buffer"
	"github.com/sokinpui/livepad/internal/fs"
)

// Editor opens the buffer that shows a project file.
type Editor interface {
	// Open returns the buffer for name. A buffer opened for the first time
	// holds content.
	Open(name, content string) (buffer.Buffer, error)
	// Save writes modified buffers to disk.
	Save() error
	Close() error
}

// MemoryEditor keeps buffers in memory. It backs tests and runs without
// Neovim.
type MemoryEditor struct {
	mu      sync.Mutex
	buffers map[string]*buffer.Memory
}

// NewMemoryEditor returns an empty MemoryEditor.
func NewMemoryEditor() *MemoryEditor {
	return &MemoryEditor{buffers: make(map[string]*buffer.Memory)}
}

func (e *MemoryEditor) Open(name, content string) (buffer.Buffer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.buffers[name]; ok {
		return b, nil
	}
	b := buffer.NewMemory(content)
	e.buffers[name] = b
	return b, nil
}

// Get returns the buffer opened for name, if any.
func (e *MemoryEditor) Get(name string) (*buffer.Memory, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.buffers[name]
	return b, ok
}

func (e *MemoryEditor) Save() error  { return nil }
func (e *MemoryEditor) Close() error { return nil }

// NvimEditor opens project files as Neovim buffers at their path in the
// project directory.
type NvimEditor struct {
	manager *buffer.NvimManager
	dir     *fs.Dir
}

// NewNvimEditor connects to Neovim.
func NewNvimEditor(dir *fs.Dir) (*NvimEditor, error) {
	manager, err := buffer.NewNvimManager()
	if err != nil {
		return nil, fmt.Errorf("failed to start nvim editor: %w", err)
	}
	return &NvimEditor{manager: manager, dir: dir}, nil
}

func (e *NvimEditor) Open(name, content string) (buffer.Buffer, error) {
	return e.manager.Open(e.dir.Path(name), content)
}

func (e *NvimEditor) Save() error {
	return e.manager.SaveAllBuffers()
}

func (e *NvimEditor) Close() error {
	e.manager.Close()
	return nil
}
