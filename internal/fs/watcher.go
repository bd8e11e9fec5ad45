package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/sokinpui/livepad/model"
)

// ChangeFunc receives an external edit. removed is set when the file is gone.
type ChangeFunc func(name, content string, removed bool)

// Watcher reports edits to project files made by other programs. Content the
// session itself wrote is recognised and ignored.
type Watcher struct {
	dir      *Dir
	onChange ChangeFunc
	log      *zap.Logger
	debounce time.Duration

	mu      sync.Mutex
	known   map[string]string
	pending map[string]time.Time
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher returns a Watcher for dir.
func NewWatcher(dir *Dir, onChange ChangeFunc, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		dir:      dir,
		onChange: onChange,
		log:      log,
		debounce: 200 * time.Millisecond,
		known:    make(map[string]string),
		pending:  make(map[string]time.Time),
	}
}

// Remember records content as already known, so an event caused by writing
// it is not reported back.
func (w *Watcher) Remember(name, content string) {
	w.mu.Lock()
	w.known[name] = content
	w.mu.Unlock()
}

// Forget drops what is known about name.
func (w *Watcher) Forget(name string) {
	w.mu.Lock()
	delete(w.known, name)
	w.mu.Unlock()
}

// Start begins watching. It is non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.dir.Root()); err != nil {
		fw.Close()
		return err
	}
	w.watcher = fw
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.run(ctx, fw, w.stopCh, w.doneCh)
	w.log.Debug("watching project dir", zap.String("dir", w.dir.Root()))
	return nil
}

// Stop stops watching and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	fw, stopCh, doneCh := w.watcher, w.stopCh, w.doneCh
	w.watcher = nil
	w.mu.Unlock()
	if fw == nil {
		return
	}
	close(stopCh)
	<-doneCh
	if err := fw.Close(); err != nil {
		w.log.Warn("closing watcher", zap.Error(err))
	}
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", zap.Error(err))
		case <-ticker.C:
			w.processPending()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	name := filepath.Base(event.Name)
	if _, ok := model.LanguageFor(name); !ok {
		return
	}
	w.mu.Lock()
	w.pending[name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) processPending() {
	now := time.Now()
	var ready []string
	w.mu.Lock()
	for name, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			ready = append(ready, name)
			delete(w.pending, name)
		}
	}
	w.mu.Unlock()

	for _, name := range ready {
		w.check(name)
	}
}

func (w *Watcher) check(name string) {
	data, err := os.ReadFile(w.dir.Path(name))
	removed := errors.Is(err, os.ErrNotExist)
	if err != nil && !removed {
		w.log.Debug("reading changed file", zap.String("file", name), zap.Error(err))
		return
	}
	content := string(data)

	w.mu.Lock()
	prev, known := w.known[name]
	if removed {
		delete(w.known, name)
	} else {
		w.known[name] = content
	}
	w.mu.Unlock()

	if removed && !known {
		return
	}
	if !removed && known && prev == content {
		return
	}
	w.log.Debug("external change", zap.String("file", name), zap.Bool("removed", removed))
	if w.onChange != nil {
		w.onChange(name, content, removed)
	}
}
