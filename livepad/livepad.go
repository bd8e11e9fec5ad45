package livepad

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sokinpui/livepad/cli"
	"github.com/sokinpui/livepad/internal/ai"
	"github.com/sokinpui/livepad/internal/animate"
	"github.com/sokinpui/livepad/internal/buffer"
	"github.com/sokinpui/livepad/internal/config"
	"github.com/sokinpui/livepad/internal/fs"
	"github.com/sokinpui/livepad/internal/orchestrator"
	"github.com/sokinpui/livepad/internal/parser"
	"github.com/sokinpui/livepad/internal/preview"
	"github.com/sokinpui/livepad/internal/project"
	"github.com/sokinpui/livepad/internal/relay"
	"github.com/sokinpui/livepad/internal/sandbox"
	"github.com/sokinpui/livepad/internal/source"
	"github.com/sokinpui/livepad/internal/store"
	"github.com/sokinpui/livepad/model"
)

// EnvAPIKey is read when no --api-key is given.
const EnvAPIKey = "GEMINI_API_KEY"

const defaultImagePrompt = "Describe this image and suggest how to build it with HTML and CSS."

// ProgressUpdate is a callback function to report progress.
type ProgressUpdate func(current, total int)

// App orchestrates the entire application logic.
type App struct {
	cfg      *cli.Config
	conf     *config.Config
	log      *zap.Logger
	kv       store.KV
	settings *store.Settings
	dir      *fs.Dir
	source   *source.SourceProvider
	ai       ai.Client

	// Editor overrides the Neovim editor.
	Editor Editor
	// Confirm is asked before an upload overwrites a file. Nil means no.
	Confirm func(name string) bool

	progressCallback ProgressUpdate
	modeCallback     func(orchestrator.Mode)
	phaseCallback    func(animate.Phase)
	jobCallback      func(orchestrator.Job)

	mu      sync.Mutex
	session *Session
	editor  Editor
	sandbox *sandbox.Sandbox
	logs    *relay.LogStore
}

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error { return e.Err }

// New creates a new App instance.
func New(ctx context.Context, cfg *cli.Config, conf *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	kv, err := store.OpenSQLite(conf.StatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	dirPath := cfg.Dir
	if dirPath == "" {
		dirPath = conf.Dir
	}
	dir, err := fs.NewDir(dirPath)
	if err != nil {
		kv.Close()
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		conf:     conf,
		log:      log,
		kv:       kv,
		settings: store.NewSettings(kv, log.Named("store")),
		dir:      dir,
		source:   source.New(),
		logs:     relay.NewLogStore(log.Named("console")),
	}
	a.ai = ai.NewGemini(a.Credential(ctx), a.model(), log.Named("ai"))
	return a, nil
}

// Credential returns the API key: --api-key, then $GEMINI_API_KEY, then the
// stored key.
func (a *App) Credential(ctx context.Context) string {
	if a.cfg.APIKey != "" {
		return a.cfg.APIKey
	}
	if key := os.Getenv(EnvAPIKey); key != "" {
		return key
	}
	return a.settings.Credential(ctx)
}

func (a *App) model() string {
	if a.cfg.Model != "" {
		return a.cfg.Model
	}
	if a.conf.Model != "" {
		return a.conf.Model
	}
	return ai.DefaultModel
}

// SetAI replaces the AI collaborator.
func (a *App) SetAI(c ai.Client) {
	a.ai = c
}

// SetProgressCallback sets a function to be called for progress updates.
func (a *App) SetProgressCallback(cb ProgressUpdate) {
	a.progressCallback = cb
}

// SetModeCallback sets a function called when the orchestrator mode changes.
func (a *App) SetModeCallback(cb func(orchestrator.Mode)) {
	a.modeCallback = cb
}

// SetPhaseCallback sets a function called on every animation phase.
func (a *App) SetPhaseCallback(cb func(animate.Phase)) {
	a.phaseCallback = cb
}

// SetJobCallback sets a function called before each file is animated.
func (a *App) SetJobCallback(cb func(orchestrator.Job)) {
	a.jobCallback = cb
}

// Logs returns the preview console log.
func (a *App) Logs() *relay.LogStore { return a.logs }

// Session returns the running session, nil before Execute opened it.
func (a *App) Session() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// Settings returns the persisted settings.
func (a *App) Settings() *store.Settings { return a.settings }

// Execute executes the main application logic based on parsed flags.
func (a *App) Execute(ctx context.Context) (summary model.Summary, err error) {
	// Centralized panic recovery.
	defer func() {
		if r := recover(); r != nil {
			err = &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	if a.cfg.Theme != "" {
		if err := a.settings.SetTheme(ctx, store.Theme(a.cfg.Theme)); err != nil {
			return model.Summary{}, fmt.Errorf("failed to store theme: %w", err)
		}
	}
	if a.cfg.SetKey != "" {
		return a.setKey(ctx)
	}

	defer a.closeSession()
	if err := a.open(ctx); err != nil {
		return model.Summary{}, err
	}

	switch {
	case a.cfg.Watch:
		return a.watch(ctx)
	case a.cfg.Undo:
		return a.session.Undo(ctx)
	case a.cfg.Redo:
		return a.session.Redo(ctx)
	case a.cfg.Analyze != "":
		return a.analyze(ctx)
	case a.cfg.Image != "":
		return a.analyzeImage(ctx)
	case a.cfg.Search != "":
		return a.search(ctx)
	case a.cfg.Upload != "":
		return a.upload()
	default:
		return a.processContent(ctx)
	}
}

func (a *App) setKey(ctx context.Context) (model.Summary, error) {
	key := strings.TrimSpace(a.cfg.SetKey)
	if err := a.settings.SetCredential(ctx, key); err != nil {
		return model.Summary{}, fmt.Errorf("failed to store API key: %w", err)
	}
	if g, ok := a.ai.(*ai.Gemini); ok {
		g.SetAPIKey(key)
	}
	return model.Summary{Message: "API key saved."}, nil
}

// open starts the editor, the sandbox for watch mode, and the session.
func (a *App) open(ctx context.Context) error {
	files, skipped, err := a.dir.Import()
	if err != nil {
		return err
	}
	if len(skipped) > 0 {
		a.log.Info("skipped unsupported project files", zap.Strings("files", skipped))
	}

	a.editor = a.Editor
	if a.editor == nil {
		editor, err := NewNvimEditor(a.dir)
		if err != nil {
			a.log.Warn("nvim unavailable, keeping buffers in memory", zap.Error(err))
			a.editor = NewMemoryEditor()
		} else {
			a.editor = editor
		}
	}

	applier := animate.New(a.log.Named("animate"))
	applier.SelectPause = config.Duration(a.conf.Animation.SelectPause, animate.DefaultSelectPause)
	applier.DeletePause = config.Duration(a.conf.Animation.DeletePause, animate.DefaultDeletePause)
	applier.KeystrokeDelay = config.Duration(a.conf.Animation.KeystrokeDelay, animate.DefaultKeystrokeDelay)
	applier.NoAnimation = a.cfg.NoAnimation || a.conf.Animation.Disabled
	if a.phaseCallback != nil {
		cb := a.phaseCallback
		applier.OnPhase = func(_ buffer.Buffer, p animate.Phase) { cb(p) }
	}

	var previewer Previewer
	if a.cfg.Watch {
		listener := relay.NewListener(a.logs, a.log.Named("relay"))
		a.sandbox = sandbox.New(sandbox.Config{
			Bin:        a.conf.Chrome.Bin,
			ControlURL: a.conf.Chrome.ControlURL,
			Headful:    a.cfg.Headful || a.conf.Chrome.Headful,
		}, listener, a.logs, a.log.Named("sandbox"))
		if err := a.sandbox.Start(ctx); err != nil {
			return fmt.Errorf("failed to start preview sandbox: %w", err)
		}
		previewer = a.sandbox
	}

	var onProgress func(done, total int)
	if a.progressCallback != nil {
		cb := a.progressCallback
		onProgress = func(done, total int) { cb(done, total) }
	}
	session, err := NewSession(ctx, Options{
		Settings:     a.settings,
		Editor:       a.editor,
		Files:        files,
		Dir:          a.dir,
		NoSave:       a.cfg.Buffer,
		Watch:        a.cfg.Watch,
		AI:           a.ai,
		Model:        a.model(),
		Preview:      previewer,
		Logs:         a.logs,
		Applier:      applier,
		SettleDelay:  config.Duration(a.conf.Animation.SettleDelay, orchestrator.DefaultSettleDelay),
		RebuildDelay: config.Duration(a.conf.Preview.RebuildDelay, preview.RebuildDelay),
		PersistDelay: config.Duration(a.conf.Preview.PersistDelay, PersistDelay),
		OnMode:       a.modeCallback,
		OnProgress:   onProgress,
		OnJob:        a.jobCallback,
		Log:          a.log.Named("session"),
	})
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.session = session
	a.mu.Unlock()
	return nil
}

func (a *App) closeSession() {
	if a.session != nil {
		a.session.Close()
		if err := a.session.Save(); err != nil {
			a.log.Warn("saving buffers failed", zap.Error(err))
		}
	}
	if a.sandbox != nil {
		if err := a.sandbox.Close(); err != nil {
			a.log.Debug("closing sandbox", zap.Error(err))
		}
	}
	if a.editor != nil {
		_ = a.editor.Close()
	}
}

// Close releases the store.
func (a *App) Close() error {
	return a.kv.Close()
}

// watch runs the live session until ctx is cancelled.
func (a *App) watch(ctx context.Context) (model.Summary, error) {
	if err := a.session.OpenAll(ctx); err != nil {
		return model.Summary{}, err
	}
	if err := a.session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return model.Summary{}, err
	}
	return model.Summary{Message: "Session ended."}, nil
}

// processContent applies pasted code blocks directly, or sends the prompt to
// the AI.
func (a *App) processContent(ctx context.Context) (model.Summary, error) {
	content, err := a.source.GetContent(a.cfg.Prompt)
	if err != nil {
		return model.Summary{}, err
	}
	if content == "" {
		return model.Summary{Message: "Source is empty. Nothing to process."}, nil
	}
	if a.cfg.Prompt == "" {
		if proposal, ok := parser.ExtractProposal([]byte(content)); ok {
			return a.session.ApplyProposal(ctx, proposal)
		}
	}
	return a.session.RequestEdit(ctx, content)
}

func (a *App) analyze(ctx context.Context) (model.Summary, error) {
	text, err := a.session.Analyze(ctx, a.cfg.File, ai.Action(a.cfg.Analyze))
	if err != nil {
		return model.Summary{Message: ai.UserMessage(err)}, err
	}
	return model.Summary{Explanation: text}, nil
}

func (a *App) analyzeImage(ctx context.Context) (model.Summary, error) {
	data, err := os.ReadFile(a.cfg.Image)
	if err != nil {
		return model.Summary{}, fmt.Errorf("failed to read image: %w", err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(a.cfg.Image))
	if !strings.HasPrefix(mimeType, "image/") {
		return model.Summary{}, fmt.Errorf("%s is not an image", a.cfg.Image)
	}
	prompt := a.cfg.Prompt
	if prompt == "" {
		prompt = defaultImagePrompt
	}
	text, err := a.session.AnalyzeImage(ctx, base64.StdEncoding.EncodeToString(data), mimeType, prompt)
	if err != nil {
		return model.Summary{Message: ai.UserMessage(err)}, err
	}
	return model.Summary{Explanation: text}, nil
}

func (a *App) search(ctx context.Context) (model.Summary, error) {
	result, err := a.session.Search(ctx, a.cfg.Search)
	if err != nil {
		return model.Summary{Message: ai.UserMessage(err)}, err
	}
	return model.Summary{Explanation: FormatSearch(result)}, nil
}

// FormatSearch renders a grounded answer and its sources as markdown.
func FormatSearch(r ai.SearchResult) string {
	if len(r.Sources) == 0 {
		return r.Text
	}
	var b strings.Builder
	b.WriteString(r.Text)
	b.WriteString("\n\n**Sources**\n\n")
	for i, s := range r.Sources {
		title := s.Title
		if title == "" {
			title = s.URI
		}
		fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, title, s.URI)
	}
	return b.String()
}

func (a *App) upload() (model.Summary, error) {
	name := filepath.Base(a.cfg.Upload)
	if _, err := project.ValidateName(name); err != nil {
		return model.Summary{}, err
	}
	data, err := os.ReadFile(a.cfg.Upload)
	if err != nil {
		return model.Summary{}, fmt.Errorf("failed to read %s: %w", a.cfg.Upload, err)
	}
	confirm := func(string) bool { return a.cfg.Yes }
	if !a.cfg.Yes && a.Confirm != nil {
		confirm = a.Confirm
	}
	stored, err := a.session.Upload(name, string(data), confirm)
	if err != nil {
		return model.Summary{}, err
	}
	if !stored {
		return model.Summary{Message: fmt.Sprintf("Kept the existing %s.", name), Failed: []string{name}}, nil
	}
	return model.Summary{Message: fmt.Sprintf("Uploaded %s.", name), Modified: []string{name}}, nil
}
