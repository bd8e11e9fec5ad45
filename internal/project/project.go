// Package project holds the file collection, the open tabs and the active
// file, and notifies observers of every change.
package project

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/sokinpui/livepad/model"
)

var (
	ErrUnsupportedExtension = errors.New("unsupported file type")
	ErrInvalidName          = errors.New("invalid file name")
	ErrExists               = errors.New("file already exists")
	ErrNotFound             = errors.New("file not found")
)

// EventKind says what changed.
type EventKind int

const (
	EventCreated EventKind = iota
	EventDeleted
	EventRenamed
	EventContent
	EventTabs
	EventActive
	EventReset
)

// Event describes one change. OldName is set for renames.
type Event struct {
	Kind    EventKind
	Name    string
	OldName string
}

// Project is the single-user file collection. It is safe for concurrent use;
// observers run synchronously after the lock is released.
type Project struct {
	mu     sync.Mutex
	files  []model.File
	open   []string
	active string

	obsMu     sync.Mutex
	observers map[int]func(Event)
	nextObs   int
}

// New returns a project holding files, with nothing open.
func New(files []model.File) *Project {
	p := &Project{observers: make(map[int]func(Event))}
	p.files = normalize(files)
	return p
}

// Default returns the starter project.
func Default() []model.File {
	return []model.File{
		{Name: "index.html", Language: model.LangHTML, Content: "<h1>Hello, livepad!</h1>\n<p>Edit the files or ask the AI for a change.</p>\n"},
		{Name: "style.css", Language: model.LangCSS, Content: "body {\n  font-family: system-ui, sans-serif;\n  margin: 2rem;\n}\n"},
		{Name: "script.js", Language: model.LangJS, Content: "console.log('Preview ready');\n"},
	}
}

// ValidateName checks the identity rule: a plain file name with a supported
// extension.
func ValidateName(name string) (model.Language, error) {
	if name == "" || strings.TrimSpace(name) != name || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	lang, ok := model.LanguageFor(name)
	if !ok {
		return "", fmt.Errorf("%w %q: supported extensions are %s", ErrUnsupportedExtension, path.Ext(name), strings.Join(model.SupportedExtensions, ", "))
	}
	return lang, nil
}

// Files returns a copy of the collection in creation order.
func (p *Project) Files() []model.File {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.File, len(p.files))
	copy(out, p.files)
	return out
}

// File returns the named file.
func (p *Project) File(name string) (model.File, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i := p.index(name); i >= 0 {
		return p.files[i], true
	}
	return model.File{}, false
}

// FirstOf returns the first file of a language.
func (p *Project) FirstOf(lang model.Language) (model.File, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range p.files {
		if f.Language == lang {
			return f, true
		}
	}
	return model.File{}, false
}

// Create adds an empty or seeded file and opens it.
func (p *Project) Create(name, content string) error {
	lang, err := ValidateName(name)
	if err != nil {
		return err
	}
	p.mu.Lock()
	if p.index(name) >= 0 {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrExists, name)
	}
	p.files = append(p.files, model.File{Name: name, Content: content, Language: lang})
	p.openLocked(name)
	p.active = name
	p.mu.Unlock()

	p.emit(Event{Kind: EventCreated, Name: name}, Event{Kind: EventTabs}, Event{Kind: EventActive, Name: name})
	return nil
}

// Upload stores content under name. An existing file is only replaced when
// confirm returns true. It reports whether the content was stored.
func (p *Project) Upload(name, content string, confirm func(name string) bool) (bool, error) {
	if _, err := ValidateName(name); err != nil {
		return false, err
	}
	if _, exists := p.File(name); exists {
		if confirm == nil || !confirm(name) {
			return false, nil
		}
		if err := p.SetContent(name, content); err != nil {
			return false, err
		}
		return true, nil
	}
	if err := p.Create(name, content); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes a file and its tab. The active file moves to a neighbouring
// tab when needed.
func (p *Project) Delete(name string) error {
	p.mu.Lock()
	i := p.index(name)
	if i < 0 {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	p.files = append(p.files[:i], p.files[i+1:]...)
	hadTab, activeChanged := p.closeLocked(name)
	active := p.active
	p.mu.Unlock()

	events := []Event{{Kind: EventDeleted, Name: name}}
	if hadTab {
		events = append(events, Event{Kind: EventTabs})
	}
	if activeChanged {
		events = append(events, Event{Kind: EventActive, Name: active})
	}
	p.emit(events...)
	return nil
}

// Rename changes a file's identity, keeping its tab position.
func (p *Project) Rename(oldName, newName string) error {
	lang, err := ValidateName(newName)
	if err != nil {
		return err
	}
	p.mu.Lock()
	i := p.index(oldName)
	if i < 0 {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, oldName)
	}
	if oldName == newName {
		p.mu.Unlock()
		return nil
	}
	if p.index(newName) >= 0 {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrExists, newName)
	}
	p.files[i].Name = newName
	p.files[i].Language = lang
	for j, n := range p.open {
		if n == oldName {
			p.open[j] = newName
		}
	}
	if p.active == oldName {
		p.active = newName
	}
	p.mu.Unlock()

	p.emit(Event{Kind: EventRenamed, Name: newName, OldName: oldName})
	return nil
}

// SetContent replaces a file's content. Unchanged content emits nothing.
func (p *Project) SetContent(name, content string) error {
	p.mu.Lock()
	i := p.index(name)
	if i < 0 {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if p.files[i].Content == content {
		p.mu.Unlock()
		return nil
	}
	p.files[i].Content = content
	p.mu.Unlock()

	p.emit(Event{Kind: EventContent, Name: name})
	return nil
}

// Replace swaps the whole collection, for example after an import. Tabs that
// no longer exist are closed.
func (p *Project) Replace(files []model.File) {
	p.mu.Lock()
	p.files = normalize(files)
	open := p.open[:0]
	for _, n := range p.open {
		if p.index(n) >= 0 {
			open = append(open, n)
		}
	}
	p.open = open
	if p.active != "" && p.index(p.active) < 0 {
		p.active = ""
		if len(p.open) > 0 {
			p.active = p.open[0]
		}
	}
	p.mu.Unlock()

	p.emit(Event{Kind: EventReset})
}

// Open adds a tab for name if it has none.
func (p *Project) Open(name string) error {
	p.mu.Lock()
	if p.index(name) < 0 {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	added := p.openLocked(name)
	p.mu.Unlock()

	if added {
		p.emit(Event{Kind: EventTabs})
	}
	return nil
}

// Close removes the tab for name.
func (p *Project) Close(name string) {
	p.mu.Lock()
	hadTab, activeChanged := p.closeLocked(name)
	active := p.active
	p.mu.Unlock()

	if hadTab {
		p.emit(Event{Kind: EventTabs})
	}
	if activeChanged {
		p.emit(Event{Kind: EventActive, Name: active})
	}
}

// SetActive opens name if needed and makes it the active file.
func (p *Project) SetActive(name string) error {
	p.mu.Lock()
	if p.index(name) < 0 {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	added := p.openLocked(name)
	changed := p.active != name
	p.active = name
	p.mu.Unlock()

	if added {
		p.emit(Event{Kind: EventTabs})
	}
	if changed {
		p.emit(Event{Kind: EventActive, Name: name})
	}
	return nil
}

// Active returns the active file name, empty for none.
func (p *Project) Active() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// OpenFiles returns the tabs in order.
func (p *Project) OpenFiles() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.open))
	copy(out, p.open)
	return out
}

// Subscribe registers fn for every change and returns its cancel func.
func (p *Project) Subscribe(fn func(Event)) func() {
	p.obsMu.Lock()
	id := p.nextObs
	p.nextObs++
	p.observers[id] = fn
	p.obsMu.Unlock()
	return func() {
		p.obsMu.Lock()
		delete(p.observers, id)
		p.obsMu.Unlock()
	}
}

func (p *Project) emit(events ...Event) {
	p.obsMu.Lock()
	fns := make([]func(Event), 0, len(p.observers))
	for i := 0; i < p.nextObs; i++ {
		if fn, ok := p.observers[i]; ok {
			fns = append(fns, fn)
		}
	}
	p.obsMu.Unlock()
	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

func (p *Project) index(name string) int {
	for i, f := range p.files {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func (p *Project) openLocked(name string) bool {
	for _, n := range p.open {
		if n == name {
			return false
		}
	}
	p.open = append(p.open, name)
	return true
}

// closeLocked removes name's tab and reports whether it had one and whether
// the active file changed.
func (p *Project) closeLocked(name string) (hadTab, activeChanged bool) {
	idx := -1
	for i, n := range p.open {
		if n == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, false
	}
	p.open = append(p.open[:idx], p.open[idx+1:]...)
	if p.active != name {
		return true, false
	}
	p.active = ""
	if len(p.open) > 0 {
		if idx >= len(p.open) {
			idx = len(p.open) - 1
		}
		p.active = p.open[idx]
	}
	return true, true
}

// normalize drops unnamed, unsupported and duplicate entries and fills in
// the language.
func normalize(files []model.File) []model.File {
	out := make([]model.File, 0, len(files))
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		lang, err := ValidateName(f.Name)
		if err != nil || seen[f.Name] {
			continue
		}
		seen[f.Name] = true
		f.Language = lang
		out = append(out, f)
	}
	return out
}
