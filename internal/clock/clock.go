// Package clock abstracts time so the session engine's timers, grace
// periods, and debounced writes can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Timer is a cancellable one-shot callback handle.
type Timer interface {
	// Stop cancels the pending callback. It reports whether the callback
	// was still pending; a false return means it already fired or was
	// already stopped.
	Stop() bool
}

// Ticker fires a callback repeatedly at a fixed interval until stopped.
type Ticker interface {
	Stop()
}

// Clock provides wall time and scheduled callbacks.
type Clock interface {
	Now() time.Time
	// AfterFunc schedules f to run once after d.
	AfterFunc(d time.Duration, f func()) Timer
	// TickEvery schedules f to run every interval until the Ticker is
	// stopped. The first call happens one interval after scheduling.
	TickEvery(interval time.Duration, f func()) Ticker
}

// System is a Clock backed by the time package.
type System struct{}

func NewSystem() System { return System{} }

func (System) Now() time.Time { return time.Now() }

func (System) AfterFunc(d time.Duration, f func()) Timer {
	return systemTimer{t: time.AfterFunc(d, f)}
}

func (System) TickEvery(interval time.Duration, f func()) Ticker {
	t := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-t.C:
				f()
			case <-done:
				return
			}
		}
	}()
	return &systemTicker{t: t, done: done}
}

type systemTimer struct {
	t *time.Timer
}

func (s systemTimer) Stop() bool { return s.t.Stop() }

type systemTicker struct {
	t    *time.Ticker
	done chan struct{}
	once sync.Once
}

func (s *systemTicker) Stop() {
	s.once.Do(func() {
		s.t.Stop()
		close(s.done)
	})
}
