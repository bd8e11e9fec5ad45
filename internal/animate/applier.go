// Package animate replays a text change against a live buffer as a visible
// select, delete and type sequence.
package animate

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sokinpui/livepad/internal/buffer"
	"github.com/sokinpui/livepad/internal/textdiff"
)

const (
	DefaultSelectPause    = 300 * time.Millisecond
	DefaultDeletePause    = 200 * time.Millisecond
	DefaultKeystrokeDelay = 15 * time.Millisecond
)

// Phase is the step an animation is in.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSelecting
	PhaseDeleting
	PhaseTyping
)

func (p Phase) String() string {
	switch p {
	case PhaseSelecting:
		return "selecting"
	case PhaseDeleting:
		return "deleting"
	case PhaseTyping:
		return "typing"
	default:
		return "idle"
	}
}

// Applier animates content changes into buffers. At most one animation runs
// per buffer; a newer Apply on the same buffer supersedes the running one.
type Applier struct {
	SelectPause    time.Duration
	DeletePause    time.Duration
	KeystrokeDelay time.Duration
	// NoAnimation replaces the changed region in one edit without pauses.
	NoAnimation bool
	// OnPhase, if set, is called on every phase transition.
	OnPhase func(buf buffer.Buffer, phase Phase)
	// Sleep waits between steps. It must return early with ctx.Err() once
	// ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error

	log *zap.Logger

	mu      sync.Mutex
	running map[buffer.Buffer]*run
}

type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns an Applier with the default pacing.
func New(log *zap.Logger) *Applier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Applier{
		SelectPause:    DefaultSelectPause,
		DeletePause:    DefaultDeletePause,
		KeystrokeDelay: DefaultKeystrokeDelay,
		log:            log,
		running:        make(map[buffer.Buffer]*run),
	}
}

// Animating reports whether an animation currently holds buf. Change
// listeners use it to tell the applier's own edits from user edits.
func (a *Applier) Animating(buf buffer.Buffer) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.running[buf]
	return ok
}

// Apply turns the content of buf into newContent. Whatever happens during
// the animation, buf holds exactly newContent when Apply returns, unless
// reading or writing the buffer itself fails. The cursor and view are put
// back only when the animation fails; after a completed apply the caret
// stays at the end of the typed text.
func (a *Applier) Apply(ctx context.Context, buf buffer.Buffer, newContent string) (err error) {
	current, err := buf.Text()
	if err != nil {
		return err
	}
	// A running animation still has to be superseded even if its
	// intermediate text happens to equal newContent.
	if current == newContent && !a.Animating(buf) {
		return nil
	}

	runCtx, release, err := a.acquire(ctx, buf)
	if err != nil {
		return err
	}
	log := a.logger().With(zap.Int("target_len", len(newContent)))

	view, viewErr := buf.ViewState()
	defer func() {
		if final, textErr := buf.Text(); textErr != nil || final != newContent {
			log.Debug("buffer diverged from target after animation, forcing final text", zap.Error(err))
			if setErr := buf.SetText(newContent); setErr != nil && err == nil {
				err = setErr
			}
		}
		if err != nil && viewErr == nil {
			_ = buf.RestoreViewState(view)
		}
		a.phase(buf, PhaseIdle)
		release()
	}()

	// The buffer may have changed while waiting for a previous animation.
	current, err = buf.Text()
	if err != nil {
		return err
	}
	if current == newContent {
		return nil
	}
	diff := textdiff.Compute(current, newContent)
	start, end := diff.RemovedRange(current)
	region := buffer.RangeFor(current, start, end)

	if a.NoAnimation {
		return buf.ApplyEdits([]buffer.Edit{{Range: region, Text: diff.Replacement}})
	}
	return a.animate(runCtx, buf, region, diff.Replacement)
}

func (a *Applier) animate(ctx context.Context, buf buffer.Buffer, region buffer.Range, replacement string) error {
	a.phase(buf, PhaseSelecting)
	if err := buf.Focus(); err != nil {
		return err
	}
	if err := buf.Select(region); err != nil {
		return err
	}
	if err := buf.Reveal(region); err != nil {
		return err
	}
	if err := a.sleep(ctx, a.SelectPause); err != nil {
		return err
	}

	a.phase(buf, PhaseDeleting)
	if !region.Empty() {
		if err := buf.ApplyEdits([]buffer.Edit{{Range: region}}); err != nil {
			return err
		}
	}
	if err := a.sleep(ctx, a.DeletePause); err != nil {
		return err
	}

	a.phase(buf, PhaseTyping)
	caret := region.Start
	for _, ch := range replacement {
		text := string(ch)
		if err := buf.ApplyEdits([]buffer.Edit{{Range: buffer.Range{Start: caret, End: caret}, Text: text}}); err != nil {
			return err
		}
		caret = buffer.Advance(caret, text)
		if err := a.sleep(ctx, a.KeystrokeDelay); err != nil {
			return err
		}
	}
	return nil
}

// acquire takes the per-buffer latch, cancelling and waiting out any
// animation that already holds it.
func (a *Applier) acquire(ctx context.Context, buf buffer.Buffer) (context.Context, func(), error) {
	for {
		a.mu.Lock()
		if a.running == nil {
			a.running = make(map[buffer.Buffer]*run)
		}
		prev, busy := a.running[buf]
		if !busy {
			runCtx, cancel := context.WithCancel(ctx)
			r := &run{cancel: cancel, done: make(chan struct{})}
			a.running[buf] = r
			a.mu.Unlock()
			release := func() {
				cancel()
				a.mu.Lock()
				if a.running[buf] == r {
					delete(a.running, buf)
				}
				a.mu.Unlock()
				close(r.done)
			}
			return runCtx, release, nil
		}
		a.mu.Unlock()

		a.logger().Debug("superseding running animation")
		prev.cancel()
		select {
		case <-prev.done:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
}

func (a *Applier) logger() *zap.Logger {
	if a.log == nil {
		return zap.NewNop()
	}
	return a.log
}

func (a *Applier) phase(buf buffer.Buffer, p Phase) {
	if a.OnPhase != nil {
		a.OnPhase(buf, p)
	}
}

func (a *Applier) sleep(ctx context.Context, d time.Duration) error {
	if a.Sleep != nil {
		return a.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
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
