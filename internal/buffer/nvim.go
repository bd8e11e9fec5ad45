package buffer

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/neovim/go-client/nvim"
)

const (
	undoDir        = "~/.local/state/nvim/undo/"
	namespaceName  = "livepad"
	selectionGroup = "Visual"
)

// NvimManager handles the connection and interaction with a Neovim instance.
type NvimManager struct {
	nvim          *nvim.Nvim
	isSelfStarted bool
	cmd           *exec.Cmd
	socketPath    string
	namespace     int

	mu      sync.Mutex
	buffers map[nvim.Buffer]*Nvim
}

// NewNvimManager connects to the instance at $NVIM_LISTEN_ADDRESS or starts
// a temporary headless one.
func NewNvimManager() (*NvimManager, error) {
	if addr := os.Getenv("NVIM_LISTEN_ADDRESS"); addr != "" {
		v, err := nvim.Dial(addr)
		if err == nil {
			return newManager(v, nil, "")
		}
	}

	tmpDir, err := os.MkdirTemp("", "livepad-nvim-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir for nvim: %w", err)
	}
	socketPath := filepath.Join(tmpDir, "nvim.sock")

	cmd := exec.Command("nvim", "--headless", "--clean", "--listen", socketPath)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start headless nvim: %w. Is 'nvim' in your PATH?", err)
	}

	for i := 0; i < 20; i++ {
		if _, err := os.Stat(socketPath); err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	v, err := nvim.Dial(socketPath)
	if err != nil {
		cmd.Process.Kill()
		return nil, fmt.Errorf("failed to connect to headless nvim: %w", err)
	}
	m, err := newManager(v, cmd, socketPath)
	if err != nil {
		return nil, err
	}
	m.configureTempInstance()
	return m, nil
}

func newManager(v *nvim.Nvim, cmd *exec.Cmd, socketPath string) (*NvimManager, error) {
	ns, err := v.CreateNamespace(namespaceName)
	if err != nil {
		v.Close()
		return nil, fmt.Errorf("failed to create nvim namespace: %w", err)
	}
	m := &NvimManager{
		nvim:          v,
		isSelfStarted: cmd != nil,
		cmd:           cmd,
		socketPath:    socketPath,
		namespace:     ns,
		buffers:       make(map[nvim.Buffer]*Nvim),
	}
	if err := v.RegisterHandler("nvim_buf_lines_event", m.handleLinesEvent); err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to register buffer event handler: %w", err)
	}
	return m, nil
}

// configureTempInstance sets up undofile for persistent history.
func (m *NvimManager) configureTempInstance() {
	home, _ := os.UserHomeDir()
	expandedUndoDir := strings.Replace(undoDir, "~", home, 1)
	os.MkdirAll(expandedUndoDir, 0755)

	b := m.nvim.NewBatch()
	b.Command("set undofile")
	b.Command(fmt.Sprintf("set undodir=%s", expandedUndoDir))
	b.Command("set noswapfile")
	_ = b.Execute()
}

// Close disconnects from Neovim and cleans up if it was self-started.
func (m *NvimManager) Close() {
	if m.nvim != nil {
		m.nvim.Close()
	}
	if m.isSelfStarted && m.cmd != nil && m.cmd.Process != nil {
		if err := m.cmd.Process.Kill(); err == nil {
			m.cmd.Wait()
			os.RemoveAll(filepath.Dir(m.socketPath))
		}
	}
}

// Open edits path in Neovim, replaces the buffer content with content and
// returns the buffer. An already opened path returns the existing buffer.
func (m *NvimManager) Open(path, content string) (*Nvim, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	b := m.nvim.NewBatch()
	var handle nvim.Buffer
	b.Command(fmt.Sprintf("edit! %s", absPath))
	b.Command("setlocal noendofline nofixendofline")
	b.CurrentBuffer(&handle)
	if err := b.Execute(); err != nil {
		return nil, fmt.Errorf("failed to open %s in nvim: %w", absPath, err)
	}

	m.mu.Lock()
	buf, ok := m.buffers[handle]
	if !ok {
		buf = &Nvim{manager: m, handle: handle, listeners: make(map[int]func())}
		m.buffers[handle] = buf
	}
	m.mu.Unlock()

	if !ok {
		if err := buf.SetText(content); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// SaveAllBuffers writes all modified buffers to disk.
func (m *NvimManager) SaveAllBuffers() error {
	return m.nvim.Command("wa!")
}

func (m *NvimManager) handleLinesEvent(args ...interface{}) {
	if len(args) == 0 {
		return
	}
	handle, ok := args[0].(nvim.Buffer)
	if !ok {
		return
	}
	m.mu.Lock()
	buf := m.buffers[handle]
	m.mu.Unlock()
	if buf != nil {
		buf.notify()
	}
}

// Nvim is a Buffer backed by a Neovim buffer.
type Nvim struct {
	manager *NvimManager
	handle  nvim.Buffer

	mu        sync.Mutex
	attached  bool
	listeners map[int]func()
	nextID    int
}

func (b *Nvim) api() *nvim.Nvim { return b.manager.nvim }

func (b *Nvim) lines() ([]string, error) {
	raw, err := b.api().BufferLines(b.handle, 0, -1, true)
	if err != nil {
		return nil, err
	}
	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = string(l)
	}
	return lines, nil
}

func (b *Nvim) Text() (string, error) {
	lines, err := b.lines()
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

func (b *Nvim) SetText(text string) error {
	return b.api().SetBufferLines(b.handle, 0, -1, true, toByteLines(text))
}

// nvimView is the view state of a Neovim window.
type nvimView map[string]interface{}

func (b *Nvim) ViewState() (ViewState, error) {
	var view nvimView
	if err := b.api().Call("winsaveview", &view); err != nil {
		return nil, err
	}
	return view, nil
}

func (b *Nvim) RestoreViewState(state ViewState) error {
	view, ok := state.(nvimView)
	if !ok {
		return nil
	}
	return b.api().Call("winrestview", nil, map[string]interface{}(view))
}

func (b *Nvim) ApplyEdits(edits []Edit) error {
	for _, e := range edits {
		start, err := b.bytePosition(e.Range.Start)
		if err != nil {
			return err
		}
		end, err := b.bytePosition(e.Range.End)
		if err != nil {
			return err
		}
		if err := b.api().SetBufferText(b.handle, start.Line, start.Col, end.Line, end.Col, toByteLines(e.Text)); err != nil {
			return fmt.Errorf("set buffer text: %w", err)
		}
		caret, err := b.bytePosition(Advance(e.Range.Start, e.Text))
		if err == nil {
			_ = b.api().SetWindowCursor(0, [2]int{caret.Line + 1, caret.Col})
		}
	}
	return b.api().ClearBufferNamespace(b.handle, b.manager.namespace, 0, -1)
}

func (b *Nvim) Focus() error {
	return b.api().SetCurrentBuffer(b.handle)
}

func (b *Nvim) Reveal(r Range) error {
	start, err := b.bytePosition(r.Start)
	if err != nil {
		return err
	}
	batch := b.api().NewBatch()
	batch.SetWindowCursor(0, [2]int{start.Line + 1, start.Col})
	batch.Command("normal! zz")
	return batch.Execute()
}

// Select highlights the range with the Visual group. Remote clients cannot
// hold Neovim in visual mode, so the selection is drawn as a highlight and
// cleared by the next edit.
func (b *Nvim) Select(r Range) error {
	if err := b.api().ClearBufferNamespace(b.handle, b.manager.namespace, 0, -1); err != nil {
		return err
	}
	for line := r.Start.Line; line <= r.End.Line; line++ {
		startCol, endCol := 0, -1
		if line == r.Start.Line {
			p, err := b.bytePosition(r.Start)
			if err != nil {
				return err
			}
			startCol = p.Col
		}
		if line == r.End.Line {
			p, err := b.bytePosition(r.End)
			if err != nil {
				return err
			}
			endCol = p.Col
		}
		if _, err := b.api().AddBufferHighlight(b.handle, b.manager.namespace, selectionGroup, line, startCol, endCol); err != nil {
			return err
		}
	}
	return nil
}

func (b *Nvim) OnChange(fn func()) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	needAttach := !b.attached
	b.attached = true
	b.mu.Unlock()

	if needAttach {
		if _, err := b.api().AttachBuffer(b.handle, false, map[string]interface{}{}); err != nil {
			b.mu.Lock()
			b.attached = false
			b.mu.Unlock()
		}
	}
	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

func (b *Nvim) notify() {
	b.mu.Lock()
	fns := make([]func(), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// bytePosition converts a rune column into the byte column Neovim expects.
func (b *Nvim) bytePosition(pos Position) (Position, error) {
	raw, err := b.api().BufferLines(b.handle, pos.Line, pos.Line+1, false)
	if err != nil {
		return Position{}, err
	}
	if len(raw) == 0 {
		return pos, nil
	}
	return Position{Line: pos.Line, Col: byteCol(raw[0], pos.Col)}, nil
}

func byteCol(line []byte, runeCol int) int {
	col := 0
	for i := 0; i < runeCol && col < len(line); i++ {
		_, size := utf8.DecodeRune(line[col:])
		col += size
	}
	return col
}

func toByteLines(text string) [][]byte {
	parts := strings.Split(text, "\n")
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = []byte(p)
	}
	return out
}
