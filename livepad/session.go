// Package livepad wires the project, the editor buffers, the preview sandbox
// and persistence into one editing session.
package livepad

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sokinpui/livepad/internal/ai"
	"github.com/sokinpui/livepad/internal/animate"
	"github.com/sokinpui/livepad/internal/buffer"
	"github.com/sokinpui/livepad/internal/debounce"
	"github.com/sokinpui/livepad/internal/fs"
	"github.com/sokinpui/livepad/internal/orchestrator"
	"github.com/sokinpui/livepad/internal/preview"
	"github.com/sokinpui/livepad/internal/project"
	"github.com/sokinpui/livepad/internal/relay"
	"github.com/sokinpui/livepad/internal/state"
	"github.com/sokinpui/livepad/internal/store"
	"github.com/sokinpui/livepad/model"
)

// Previewer runs the built preview document. *sandbox.Sandbox implements it.
type Previewer interface {
	Load(ctx context.Context, files []model.File) error
}

// PersistDelay is the quiet period before files are written to the store
// and the project directory.
const PersistDelay = time.Second

// Options configures a Session. Settings and Editor are required.
type Options struct {
	Settings *store.Settings
	Editor   Editor
	// Files seeds the project; when empty the stored files or the default
	// project are used.
	Files []model.File
	// Dir mirrors the project to disk when set.
	Dir *fs.Dir
	// NoSave keeps edits in the buffers and the store without writing the
	// project directory.
	NoSave bool
	// Watch reports edits made to Dir by other programs.
	Watch bool

	AI      ai.Client
	Model   string
	Preview Previewer
	Logs    *relay.LogStore
	Applier *animate.Applier

	SettleDelay  time.Duration
	RebuildDelay time.Duration
	PersistDelay time.Duration

	OnMode     func(orchestrator.Mode)
	OnProgress func(done, total int)
	OnJob      func(orchestrator.Job)
	// OnPreviewError receives preview rebuild failures.
	OnPreviewError func(error)

	Log *zap.Logger
}

// Session is one editing session over a project.
type Session struct {
	opts     Options
	log      *zap.Logger
	project  *project.Project
	history  *state.Manager
	applier  *animate.Applier
	orch     *orchestrator.Orchestrator
	logs     *relay.LogStore
	watcher  *fs.Watcher
	rebuild  *debounce.Debouncer
	persist  *debounce.Debouncer
	unsubscr func()

	mu      sync.Mutex
	ctx     context.Context
	buffers map[string]*openBuffer
	dirty   map[string]struct{}
	wake    chan struct{}
	closed  bool
}

type openBuffer struct {
	buf    buffer.Buffer
	cancel func()
}

// NewSession builds a session. Nothing runs in the background until Run.
func NewSession(ctx context.Context, opts Options) (*Session, error) {
	if opts.Settings == nil || opts.Editor == nil {
		return nil, errors.New("session needs settings and an editor")
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Model == "" {
		opts.Model = ai.DefaultModel
	}
	if opts.RebuildDelay == 0 {
		opts.RebuildDelay = preview.RebuildDelay
	}
	if opts.PersistDelay == 0 {
		opts.PersistDelay = PersistDelay
	}
	if opts.Logs == nil {
		opts.Logs = relay.NewLogStore(opts.Log)
	}
	if opts.Applier == nil {
		opts.Applier = animate.New(opts.Log)
	}

	files := opts.Files
	if len(files) == 0 {
		files = opts.Settings.Files(ctx, project.Default())
	}

	s := &Session{
		opts:    opts,
		log:     opts.Log,
		project: project.New(files),
		history: state.New(ctx, opts.Settings, opts.Log),
		applier: opts.Applier,
		logs:    opts.Logs,
		ctx:     context.Background(),
		buffers: make(map[string]*openBuffer),
		dirty:   make(map[string]struct{}),
		wake:    make(chan struct{}, 1),
	}
	s.orch = orchestrator.New(orchestrator.Config{
		Files:       s.project,
		Buffers:     s.Buffer,
		Applier:     s.applier,
		AI:          opts.AI,
		History:     s.history,
		Log:         opts.Log.Named("orchestrator"),
		SettleDelay: opts.SettleDelay,
		OnMode:      opts.OnMode,
		OnProgress:  opts.OnProgress,
		OnJob:       opts.OnJob,
	})
	s.rebuild = debounce.New(opts.RebuildDelay, s.rebuildPreview)
	s.persist = debounce.New(opts.PersistDelay, s.persistFiles)
	if opts.Dir != nil && opts.Watch {
		s.watcher = fs.NewWatcher(opts.Dir, s.externalChange, opts.Log.Named("watcher"))
		for _, f := range files {
			s.watcher.Remember(f.Name, f.Content)
		}
	}
	if first := s.project.Files(); len(first) > 0 {
		_ = s.project.SetActive(first[0].Name)
	}
	s.unsubscr = s.project.Subscribe(s.projectChanged)
	return s, nil
}

// Project returns the session's project.
func (s *Session) Project() *project.Project { return s.project }

// Logs returns the console log store of the preview.
func (s *Session) Logs() *relay.LogStore { return s.logs }

// History returns the edit history.
func (s *Session) History() *state.Manager { return s.history }

// Applier returns the animated applier.
func (s *Session) Applier() *animate.Applier { return s.applier }

// Buffer returns the buffer showing name, opening it on first use. Edits the
// user makes in it flow back into the project; the applier's own edits do
// not.
func (s *Session) Buffer(_ context.Context, name string) (buffer.Buffer, error) {
	f, ok := s.project.File(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", project.ErrNotFound, name)
	}
	s.mu.Lock()
	if ob, ok := s.buffers[name]; ok {
		s.mu.Unlock()
		return ob.buf, nil
	}
	s.mu.Unlock()

	buf, err := s.opts.Editor.Open(name, f.Content)
	if err != nil {
		return nil, err
	}
	// A reused editor buffer may hold stale text.
	if text, err := buf.Text(); err == nil && text != f.Content {
		if err := buf.SetText(f.Content); err != nil {
			return nil, err
		}
	}

	// Registered outside mu: change callbacks take mu themselves.
	cancel := buf.OnChange(func() {
		if s.applier.Animating(buf) {
			return
		}
		s.markDirty(name)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if ob, ok := s.buffers[name]; ok {
		cancel()
		return ob.buf, nil
	}
	s.buffers[name] = &openBuffer{buf: buf, cancel: cancel}
	return buf, nil
}

// OpenAll opens a buffer for every file and focuses the active one.
func (s *Session) OpenAll(ctx context.Context) error {
	for _, f := range s.project.Files() {
		if _, err := s.Buffer(ctx, f.Name); err != nil {
			return fmt.Errorf("open %s: %w", f.Name, err)
		}
	}
	active := s.project.Active()
	if active == "" {
		return nil
	}
	buf, err := s.Buffer(ctx, active)
	if err != nil {
		return err
	}
	return buf.Focus()
}

// markDirty queues name for syncing. Buffer reads happen on the Run loop
// because change callbacks may run on the editor's event goroutine.
func (s *Session) markDirty(name string) {
	s.mu.Lock()
	s.dirty[name] = struct{}{}
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Sync copies every buffer edited by the user into the project.
func (s *Session) Sync() {
	s.mu.Lock()
	names := make([]string, 0, len(s.dirty))
	for name := range s.dirty {
		names = append(names, name)
	}
	s.dirty = make(map[string]struct{})
	s.mu.Unlock()

	for _, name := range names {
		s.mu.Lock()
		ob, ok := s.buffers[name]
		s.mu.Unlock()
		if !ok || s.applier.Animating(ob.buf) {
			continue
		}
		text, err := ob.buf.Text()
		if err != nil {
			s.log.Warn("read buffer failed", zap.String("file", name), zap.Error(err))
			continue
		}
		if err := s.project.SetContent(name, text); err != nil {
			s.log.Debug("buffer for unknown file", zap.String("file", name), zap.Error(err))
		}
	}
}

func (s *Session) projectChanged(ev project.Event) {
	switch ev.Kind {
	case project.EventContent:
		s.pushToBuffer(ev.Name)
	case project.EventDeleted:
		s.dropBuffer(ev.Name)
		s.removeFromDisk(ev.Name)
	case project.EventRenamed:
		s.dropBuffer(ev.OldName)
		s.removeFromDisk(ev.OldName)
	case project.EventReset:
		s.dropAllBuffers()
	case project.EventCreated:
	default:
		return
	}
	s.rebuild.Trigger()
	s.persist.Trigger()
}

// pushToBuffer shows project content that did not come from the buffer,
// for example an external file edit.
func (s *Session) pushToBuffer(name string) {
	s.mu.Lock()
	ob, ok := s.buffers[name]
	s.mu.Unlock()
	if !ok || s.applier.Animating(ob.buf) {
		return
	}
	f, ok := s.project.File(name)
	if !ok {
		return
	}
	if text, err := ob.buf.Text(); err == nil && text == f.Content {
		return
	}
	if err := ob.buf.SetText(f.Content); err != nil {
		s.log.Warn("update buffer failed", zap.String("file", name), zap.Error(err))
	}
}

func (s *Session) dropBuffer(name string) {
	s.mu.Lock()
	ob, ok := s.buffers[name]
	delete(s.buffers, name)
	delete(s.dirty, name)
	s.mu.Unlock()
	if ok {
		ob.cancel()
	}
}

func (s *Session) dropAllBuffers() {
	s.mu.Lock()
	old := s.buffers
	s.buffers = make(map[string]*openBuffer)
	s.dirty = make(map[string]struct{})
	s.mu.Unlock()
	for _, ob := range old {
		ob.cancel()
	}
}

func (s *Session) removeFromDisk(name string) {
	if s.watcher != nil {
		s.watcher.Forget(name)
	}
	if s.opts.Dir == nil || s.opts.NoSave {
		return
	}
	if err := s.opts.Dir.Remove(name); err != nil {
		s.log.Warn("remove file failed", zap.String("file", name), zap.Error(err))
	}
}

func (s *Session) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Session) rebuildPreview() {
	if s.opts.Preview == nil {
		return
	}
	if err := s.opts.Preview.Load(s.runContext(), s.project.Files()); err != nil {
		s.log.Warn("preview rebuild failed", zap.Error(err))
		if s.opts.OnPreviewError != nil {
			s.opts.OnPreviewError(err)
		}
	}
}

// Refresh rebuilds the preview now.
func (s *Session) Refresh() {
	s.rebuildPreview()
}

func (s *Session) persistFiles() {
	// Pending writes still land after Run returns.
	ctx := context.WithoutCancel(s.runContext())
	files := s.project.Files()
	if err := s.opts.Settings.SaveFiles(ctx, files); err != nil {
		s.log.Warn("persist files failed", zap.Error(err))
	}
	if s.opts.Dir == nil || s.opts.NoSave {
		return
	}
	if s.watcher != nil {
		for _, f := range files {
			s.watcher.Remember(f.Name, f.Content)
		}
	}
	written, err := s.opts.Dir.Export(files)
	if err != nil {
		s.log.Warn("export files failed", zap.Error(err))
	}
	if len(written) > 0 {
		s.log.Debug("project files written", zap.Strings("files", written))
	}
}

func (s *Session) externalChange(name, content string, removed bool) {
	if removed {
		if err := s.project.Delete(name); err != nil && !errors.Is(err, project.ErrNotFound) {
			s.log.Warn("apply external delete failed", zap.String("file", name), zap.Error(err))
		}
		return
	}
	if _, ok := s.project.File(name); ok {
		_ = s.project.SetContent(name, content)
		return
	}
	if err := s.project.Create(name, content); err != nil {
		s.log.Debug("ignoring external file", zap.String("file", name), zap.Error(err))
	}
}

// Run syncs buffer edits and watches the project directory until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-s.wake:
				s.Sync()
			}
		}
	})
	if s.watcher != nil {
		g.Go(func() error {
			if err := s.watcher.Start(ctx); err != nil {
				return fmt.Errorf("watch project dir: %w", err)
			}
			<-ctx.Done()
			s.watcher.Stop()
			return nil
		})
	}
	if s.opts.Preview != nil {
		g.Go(func() error {
			s.rebuildPreview()
			return nil
		})
	}
	return g.Wait()
}

// RequestEdit asks the AI for a change and animates it into the buffers.
func (s *Session) RequestEdit(ctx context.Context, prompt string) (model.Summary, error) {
	return s.orch.RequestEdit(ctx, prompt, s.opts.Model)
}

// ApplyProposal animates a proposal that is already at hand.
func (s *Session) ApplyProposal(ctx context.Context, p model.EditProposal) (model.Summary, error) {
	return s.orch.ApplyProposal(ctx, p)
}

// Undo reverts the last applied proposal.
func (s *Session) Undo(ctx context.Context) (model.Summary, error) {
	summary, ok, err := s.orch.Undo(ctx)
	if err != nil {
		return model.Summary{}, err
	}
	if !ok {
		return model.Summary{Message: "No operation to undo."}, nil
	}
	return summary, nil
}

// Redo reapplies the last undone proposal.
func (s *Session) Redo(ctx context.Context) (model.Summary, error) {
	summary, ok, err := s.orch.Redo(ctx)
	if err != nil {
		return model.Summary{}, err
	}
	if !ok {
		return model.Summary{Message: "No operation to redo."}, nil
	}
	return summary, nil
}

// Analyze runs an analysis action over a project file.
func (s *Session) Analyze(ctx context.Context, name string, action ai.Action) (string, error) {
	if s.opts.AI == nil {
		return "", &ai.Error{Kind: ai.KindConfiguration, Op: "analyze snippet", Err: ai.ErrNoCredential}
	}
	if !action.Valid() {
		return "", fmt.Errorf("unknown analysis action %q", action)
	}
	f, ok := s.project.File(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", project.ErrNotFound, name)
	}
	return s.opts.AI.AnalyzeSnippet(ctx, f.Content, f.Language, action)
}

// AnalyzeImage asks the AI about an image given as base64 data.
func (s *Session) AnalyzeImage(ctx context.Context, base64Data, mimeType, prompt string) (string, error) {
	if s.opts.AI == nil {
		return "", &ai.Error{Kind: ai.KindConfiguration, Op: "analyze image", Err: ai.ErrNoCredential}
	}
	return s.opts.AI.AnalyzeImage(ctx, base64Data, mimeType, prompt)
}

// Search answers prompt with web grounding.
func (s *Session) Search(ctx context.Context, prompt string) (ai.SearchResult, error) {
	if s.opts.AI == nil {
		return ai.SearchResult{}, &ai.Error{Kind: ai.KindConfiguration, Op: "grounded search", Err: ai.ErrNoCredential}
	}
	return s.opts.AI.SearchGrounded(ctx, prompt)
}

// Upload adds a file to the project, asking confirm before overwriting.
func (s *Session) Upload(name, content string, confirm func(name string) bool) (bool, error) {
	return s.project.Upload(name, content, confirm)
}

// ClearConsole empties the console log.
func (s *Session) ClearConsole() {
	s.logs.Clear()
}

// Save writes the editor buffers unless the session keeps edits in buffers
// only.
func (s *Session) Save() error {
	if s.opts.NoSave {
		return nil
	}
	return s.opts.Editor.Save()
}

// Close stops the debouncers, writing any pending file change first.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.Sync()
	s.unsubscr()
	s.rebuild.Stop()
	s.persist.Flush()
	s.persist.Stop()
	s.dropAllBuffers()
}
