// Package sandbox runs the preview document in an isolated headless Chrome
// page and relays its console activity to the host.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sokinpui/livepad/internal/preview"
	"github.com/sokinpui/livepad/internal/relay"
	"github.com/sokinpui/livepad/model"
)

// BindingPrefix starts every generated binding name.
const BindingPrefix = "__livepad_"

// ErrClosed is returned by Load after Close.
var ErrClosed = errors.New("sandbox closed")

// Config selects the browser the sandbox runs in.
type Config struct {
	// ControlURL connects to an already running browser.
	ControlURL string
	// Bin is the Chrome binary to launch. Empty lets rod find or fetch one.
	Bin string
	// Headful shows the browser window.
	Headful bool
}

// Sandbox owns one browser and at most one live page. Every Load starts a new
// generation: a fresh incognito page with a fresh binding name, so messages
// from older pages cannot pass the listener's identity check.
type Sandbox struct {
	cfg      Config
	listener *relay.Listener
	store    *relay.LogStore
	log      *zap.Logger

	mu      sync.Mutex
	launch  *launcher.Launcher
	browser *rod.Browser
	current *generation
	closed  bool
}

type generation struct {
	context *rod.Browser
	page    *rod.Page
	source  relay.Source
	cancel  context.CancelFunc
	done    chan struct{}
}

// New returns a Sandbox feeding listener. The browser starts lazily on the
// first Load.
func New(cfg Config, listener *relay.Listener, store *relay.LogStore, log *zap.Logger) *Sandbox {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sandbox{cfg: cfg, listener: listener, store: store, log: log}
}

// NewBindingName returns a binding name unique to one generation.
func NewBindingName() string {
	return BindingPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Start connects to or launches the browser.
func (s *Sandbox) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

func (s *Sandbox) startLocked(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.browser != nil {
		if _, err := s.browser.Version(); err == nil {
			return nil
		}
		s.log.Debug("stale browser connection, reconnecting")
		_ = s.browser.Close()
		s.browser = nil
	}

	controlURL := s.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(!s.cfg.Headful)
		if s.cfg.Bin != "" {
			l = l.Bin(s.cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		s.launch = l
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}
	s.browser = browser
	s.log.Info("sandbox browser connected", zap.String("control_url", controlURL))
	return nil
}

// Load replaces the running page with one executing the document built from
// files. The log store is cleared before the new page runs.
func (s *Sandbox) Load(ctx context.Context, files []model.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.startLocked(ctx); err != nil {
		return err
	}
	s.dropGenerationLocked()

	incognito, err := s.browser.Incognito()
	if err != nil {
		return fmt.Errorf("incognito context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = disposeContext(incognito)
		return fmt.Errorf("create page: %w", err)
	}

	gen := &generation{
		context: incognito,
		page:    page,
		source:  relay.Source{Target: string(page.TargetID), Binding: NewBindingName()},
		done:    make(chan struct{}),
	}

	if err := (proto.RuntimeEnable{}).Call(page); err != nil {
		gen.close()
		return fmt.Errorf("enable runtime: %w", err)
	}
	if err := (proto.RuntimeAddBinding{Name: gen.source.Binding}).Call(page); err != nil {
		gen.close()
		return fmt.Errorf("add binding: %w", err)
	}

	s.listener.Expect(gen.source)
	s.store.Clear()

	var genCtx context.Context
	genCtx, gen.cancel = context.WithCancel(context.Background())
	wait := page.Context(genCtx).EachEvent(
		func(ev *proto.RuntimeBindingCalled) {
			s.listener.Handle(relay.Envelope{
				Source:  relay.Source{Target: gen.source.Target, Binding: ev.Name},
				Payload: ev.Payload,
			})
		},
		func(ev *proto.RuntimeConsoleAPICalled) {
			s.log.Debug("sandbox console", zap.String("type", string(ev.Type)), zap.Int("args", len(ev.Args)))
		},
	)
	go func() {
		defer close(gen.done)
		wait()
	}()

	doc := preview.Build(files, preview.Options{Instrumentation: relay.Snippet(gen.source.Binding)})
	if err := page.Context(ctx).SetDocumentContent(doc); err != nil {
		gen.close()
		return fmt.Errorf("set document: %w", err)
	}

	s.current = gen
	s.log.Debug("sandbox generation loaded",
		zap.String("target", gen.source.Target),
		zap.Int("files", len(files)))
	return nil
}

// Source returns the identity of the live page, zero if none.
func (s *Sandbox) Source() relay.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return relay.Source{}
	}
	return s.current.source
}

// Close tears down the page and the browser.
func (s *Sandbox) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.dropGenerationLocked()

	var err error
	if s.browser != nil {
		err = s.browser.Close()
		s.browser = nil
	}
	if s.launch != nil {
		s.launch.Kill()
		s.launch.Cleanup()
		s.launch = nil
	}
	return err
}

func (s *Sandbox) dropGenerationLocked() {
	if s.current == nil {
		return
	}
	s.listener.Expect(relay.Source{})
	s.current.close()
	s.current = nil
}

func (g *generation) close() {
	if g.cancel != nil {
		g.cancel()
	}
	_ = g.page.Close()
	_ = disposeContext(g.context)
	if g.cancel != nil {
		<-g.done
	}
}

func disposeContext(b *rod.Browser) error {
	if b == nil || b.BrowserContextID == "" {
		return nil
	}
	return proto.TargetDisposeBrowserContext{BrowserContextID: b.BrowserContextID}.Call(b)
}
