// Package orchestrator applies multi-file edit proposals one file at a time
// through the animated applier.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sokinpui/livepad/internal/ai"
	"github.com/sokinpui/livepad/internal/animate"
	"github.com/sokinpui/livepad/internal/buffer"
	"github.com/sokinpui/livepad/internal/state"
	"github.com/sokinpui/livepad/internal/textdiff"
	"github.com/sokinpui/livepad/model"
)

const (
	// DefaultSettleDelay lets a buffer swap settle before animating.
	DefaultSettleDelay = 50 * time.Millisecond
	// NoChangesSuffix is appended to the explanation of an empty proposal.
	NoChangesSuffix = " (No code changes were proposed.)"
)

// proposalOrder is the fixed order jobs are queued in.
var proposalOrder = []model.Language{model.LangHTML, model.LangCSS, model.LangJS}

// Mode is what the orchestrator is doing, for the UI.
type Mode int

const (
	ModeIdle Mode = iota
	ModeThinking
	ModeApplying
)

func (m Mode) String() string {
	switch m {
	case ModeThinking:
		return "thinking"
	case ModeApplying:
		return "applying"
	default:
		return "idle"
	}
}

// Files is the part of the project the orchestrator reads and edits.
type Files interface {
	File(name string) (model.File, bool)
	FirstOf(lang model.Language) (model.File, bool)
	SetActive(name string) error
	SetContent(name, content string) error
}

// BufferFunc returns the buffer showing the named file.
type BufferFunc func(ctx context.Context, name string) (buffer.Buffer, error)

// Job is one file to bring to new content.
type Job struct {
	File    string
	Content string
}

// Config wires an Orchestrator.
type Config struct {
	Files   Files
	Buffers BufferFunc
	Applier *animate.Applier
	AI      ai.Client
	// History records applied proposals when set.
	History *state.Manager
	Log     *zap.Logger

	SettleDelay time.Duration
	// OnMode is called when the mode changes.
	OnMode func(Mode)
	// OnProgress is called after each job with the number done and total.
	OnProgress func(done, total int)
	// OnJob is called before a job is animated.
	OnJob func(job Job)
}

// Orchestrator sequences per-file application of edits.
type Orchestrator struct {
	cfg Config
	log *zap.Logger
}

// New returns an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.Applier == nil {
		cfg.Applier = animate.New(cfg.Log)
	}
	return &Orchestrator{cfg: cfg, log: cfg.Log}
}

// Jobs returns the html, css and js jobs of p whose content differs from the
// first file of that language, in that order.
func (o *Orchestrator) Jobs(p model.EditProposal) []Job {
	var jobs []Job
	for _, lang := range proposalOrder {
		content, ok := p.Patch(lang)
		if !ok {
			continue
		}
		f, ok := o.cfg.Files.FirstOf(lang)
		if !ok {
			o.log.Debug("proposal targets a language with no file", zap.String("language", string(lang)))
			continue
		}
		if f.Content == content {
			continue
		}
		jobs = append(jobs, Job{File: f.Name, Content: content})
	}
	return jobs
}

// RequestEdit asks the AI for a proposal against the current files and
// applies it. An AI failure touches no file; the summary message then holds
// the text to show the user.
func (o *Orchestrator) RequestEdit(ctx context.Context, prompt, modelID string) (model.Summary, error) {
	if o.cfg.AI == nil {
		err := &ai.Error{Kind: ai.KindConfiguration, Op: "generate edit", Err: ai.ErrNoCredential}
		return model.Summary{Message: ai.UserMessage(err)}, err
	}
	req := ai.EditRequest{Prompt: prompt, Model: modelID}
	if f, ok := o.cfg.Files.FirstOf(model.LangHTML); ok {
		req.HTML = f.Content
	}
	if f, ok := o.cfg.Files.FirstOf(model.LangCSS); ok {
		req.CSS = f.Content
	}
	if f, ok := o.cfg.Files.FirstOf(model.LangJS); ok {
		req.JS = f.Content
	}

	o.mode(ModeThinking)
	proposal, err := o.cfg.AI.GenerateEdit(ctx, req)
	if err != nil {
		o.mode(ModeIdle)
		o.log.Warn("edit request failed", zap.Error(err))
		return model.Summary{Message: ai.UserMessage(err)}, err
	}
	return o.ApplyProposal(ctx, proposal)
}

// ApplyProposal animates every changed file of p in order. A file's content
// is committed even when its animation fails, and one file failing never
// stops the others.
func (o *Orchestrator) ApplyProposal(ctx context.Context, p model.EditProposal) (model.Summary, error) {
	jobs := o.Jobs(p)
	if len(jobs) == 0 {
		o.mode(ModeIdle)
		return model.Summary{Explanation: p.Explanation + NoChangesSuffix}, nil
	}
	summary, before := o.run(ctx, jobs)
	summary.Explanation = p.Explanation
	o.record(ctx, p.Explanation, before, summary.Modified, jobs)
	return summary, nil
}

// ApplyContents animates the named files to the given contents, in name
// order. Undo and redo replay history through it.
func (o *Orchestrator) ApplyContents(ctx context.Context, explanation string, contents map[string]string) model.Summary {
	var jobs []Job
	for _, op := range state.CreateOperations(o.currentContents(contents), contents) {
		if _, ok := o.cfg.Files.File(op.File); !ok {
			continue
		}
		jobs = append(jobs, Job{File: op.File, Content: op.After})
	}
	if len(jobs) == 0 {
		o.mode(ModeIdle)
		return model.Summary{Explanation: explanation + NoChangesSuffix}
	}
	summary, _ := o.run(ctx, jobs)
	summary.Explanation = explanation
	return summary
}

// Undo reverts the last recorded proposal.
func (o *Orchestrator) Undo(ctx context.Context) (model.Summary, bool, error) {
	if o.cfg.History == nil {
		return model.Summary{}, false, nil
	}
	entry, ok, err := o.cfg.History.Undo(ctx)
	if err != nil || !ok {
		return model.Summary{}, ok, err
	}
	return o.ApplyContents(ctx, "Undo: "+entry.Explanation, entry.Reverted()), true, nil
}

// Redo reapplies the last undone proposal.
func (o *Orchestrator) Redo(ctx context.Context) (model.Summary, bool, error) {
	if o.cfg.History == nil {
		return model.Summary{}, false, nil
	}
	entry, ok, err := o.cfg.History.Redo(ctx)
	if err != nil || !ok {
		return model.Summary{}, ok, err
	}
	return o.ApplyContents(ctx, "Redo: "+entry.Explanation, entry.Applied()), true, nil
}

// run applies jobs and returns the summary and the contents before the run.
func (o *Orchestrator) run(ctx context.Context, jobs []Job) (model.Summary, map[string]string) {
	o.mode(ModeApplying)
	defer o.mode(ModeIdle)

	before := make(map[string]string, len(jobs))
	var animationFailed []string
	added, removed := 0, 0

	processFn := func(job Job) (string, bool) {
		f, ok := o.cfg.Files.File(job.File)
		if !ok {
			o.log.Warn("job file disappeared", zap.String("file", job.File))
			return job.File, false
		}
		before[job.File] = f.Content
		a, r := textdiff.LineStat(f.Content, job.Content)
		added += a
		removed += r

		if err := o.animate(ctx, job); err != nil {
			animationFailed = append(animationFailed, job.File)
			o.log.Debug("animation failed, committing content directly", zap.String("file", job.File), zap.Error(err))
		}
		if err := o.cfg.Files.SetContent(job.File, job.Content); err != nil {
			o.log.Warn("commit failed", zap.String("file", job.File), zap.Error(err))
			return job.File, false
		}
		return job.File, true
	}
	progressCb := func(done int) {
		if o.cfg.OnProgress != nil {
			o.cfg.OnProgress(done, len(jobs))
		}
	}

	modified, failed := processSequentially(jobs, processFn, progressCb)
	summary := model.Summary{
		Modified: modified,
		Failed:   failed,
		Message:  fmt.Sprintf("%d file(s) updated, %d line(s) added, %d removed", len(modified), added, removed),
	}
	if len(animationFailed) > 0 {
		summary.Message += fmt.Sprintf("; animation skipped for %v", animationFailed)
	}
	return summary, before
}

func (o *Orchestrator) animate(ctx context.Context, job Job) error {
	if o.cfg.OnJob != nil {
		o.cfg.OnJob(job)
	}
	if err := o.cfg.Files.SetActive(job.File); err != nil {
		return fmt.Errorf("activate %s: %w", job.File, err)
	}
	if err := sleep(ctx, o.cfg.SettleDelay); err != nil {
		return err
	}
	if o.cfg.Buffers == nil {
		return fmt.Errorf("no buffer for %s", job.File)
	}
	buf, err := o.cfg.Buffers(ctx, job.File)
	if err != nil {
		return fmt.Errorf("buffer for %s: %w", job.File, err)
	}
	return o.cfg.Applier.Apply(ctx, buf, job.Content)
}

func (o *Orchestrator) record(ctx context.Context, explanation string, before map[string]string, modified []string, jobs []Job) {
	if o.cfg.History == nil || len(modified) == 0 {
		return
	}
	after := make(map[string]string, len(modified))
	committed := make(map[string]bool, len(modified))
	for _, name := range modified {
		committed[name] = true
	}
	for _, job := range jobs {
		if committed[job.File] {
			after[job.File] = job.Content
		}
	}
	if err := o.cfg.History.Write(ctx, explanation, state.CreateOperations(before, after)); err != nil {
		o.log.Warn("history write failed", zap.Error(err))
	}
}

func (o *Orchestrator) currentContents(names map[string]string) map[string]string {
	out := make(map[string]string, len(names))
	for name := range names {
		if f, ok := o.cfg.Files.File(name); ok {
			out[name] = f.Content
		}
	}
	return out
}

func (o *Orchestrator) mode(m Mode) {
	if o.cfg.OnMode != nil {
		o.cfg.OnMode(m)
	}
}

// processSequentially runs jobs one after another, collecting which
// succeeded and which failed.
func processSequentially[T any](
	items []T,
	processFn func(item T) (name string, success bool),
	progressCb func(int),
) (succeeded, failed []string) {
	for i, item := range items {
		name, success := processFn(item)
		if success {
			succeeded = append(succeeded, name)
		} else {
			failed = append(failed, name)
		}
		if progressCb != nil {
			progressCb(i + 1)
		}
	}
	return succeeded, failed
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
