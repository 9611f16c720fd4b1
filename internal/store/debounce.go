package store

import (
	"sync"
	"time"

	"github.com/jlpt4you/exam-engine/internal/clock"
)

// Debouncer coalesces rapid successive writes into one: each Schedule
// resets a quiet-period timer, and only the last scheduled write runs when
// the quiet period elapses. It is a small state machine (Idle →
// PendingWrite → Idle) with an explicit Cancel so a submit can
// deterministically drop a pending write instead of racing it.
type Debouncer struct {
	mu    sync.Mutex
	clk   clock.Clock
	quiet time.Duration
	timer clock.Timer
	write func()
}

func NewDebouncer(clk clock.Clock, quiet time.Duration) *Debouncer {
	return &Debouncer{clk: clk, quiet: quiet}
}

// Schedule replaces any pending write with fn and restarts the quiet
// period. fn runs once, after quiet elapses with no further Schedule.
func (d *Debouncer) Schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.write = fn
	d.timer = d.clk.AfterFunc(d.quiet, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	fn := d.write
	d.write = nil
	d.timer = nil
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Cancel drops any pending write without running it.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.write = nil
}

// Flush runs any pending write immediately instead of waiting out the
// quiet period.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	fn := d.write
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.write = nil
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Pending reports whether a write is waiting on the quiet period.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write != nil
}
