// Package debounce coalesces bursts of triggers into a single call.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs fn once after Trigger has not been called for the delay.
// Every Trigger restarts the pending timer.
type Debouncer struct {
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	stopped bool
	running sync.WaitGroup
}

// New returns a Debouncer calling fn after delay of quiet.
func New(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger schedules fn, restarting the quiet period.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending = true
	d.stopTimer()
	d.running.Add(1)
	var t *time.Timer
	t = time.AfterFunc(d.delay, func() {
		defer d.running.Done()
		d.mu.Lock()
		if d.timer != t || !d.pending || d.stopped {
			d.mu.Unlock()
			return
		}
		d.pending = false
		d.timer = nil
		d.mu.Unlock()
		d.fn()
	})
	d.timer = t
}

// Flush runs a pending call immediately. It reports whether one was pending.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	if !d.pending || d.stopped {
		d.mu.Unlock()
		return false
	}
	d.pending = false
	d.stopTimer()
	d.mu.Unlock()
	d.fn()
	return true
}

// Stop cancels any pending call and waits for a running one to finish.
// Triggers after Stop are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.pending = false
	d.stopTimer()
	d.mu.Unlock()
	d.running.Wait()
}

// stopTimer must be called with mu held.
func (d *Debouncer) stopTimer() {
	if d.timer == nil {
		return
	}
	if d.timer.Stop() {
		d.running.Done()
	}
	d.timer = nil
}
