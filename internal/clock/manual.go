package clock

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Clock whose time only moves when Advance is called. Pending
// timers and tickers fire synchronously, in deadline order, as time passes
// them. Used by the engine tests.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	seq     int
	pending []*manualEvent
}

type manualEvent struct {
	id       int
	deadline time.Time
	interval time.Duration // 0 for one-shot timers
	fn       func()
	stopped  bool
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev := m.schedule(d, 0, f)
	return manualTimer{m: m, ev: ev}
}

func (m *Manual) TickEvery(interval time.Duration, f func()) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev := m.schedule(interval, interval, f)
	return manualTicker{m: m, ev: ev}
}

// Advance moves time forward by d, firing every due event in deadline
// order. Callbacks run without the internal lock held, so they may
// schedule or stop other events.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)

	for {
		ev := m.nextDue(target)
		if ev == nil {
			break
		}
		m.now = ev.deadline
		if ev.interval > 0 {
			ev.deadline = ev.deadline.Add(ev.interval)
		} else {
			m.remove(ev)
		}
		fn := ev.fn
		m.mu.Unlock()
		fn()
		m.mu.Lock()
	}

	m.now = target
	m.mu.Unlock()
}

func (m *Manual) schedule(d, interval time.Duration, f func()) *manualEvent {
	m.seq++
	ev := &manualEvent{
		id:       m.seq,
		deadline: m.now.Add(d),
		interval: interval,
		fn:       f,
	}
	m.pending = append(m.pending, ev)
	return ev
}

// nextDue returns the earliest non-stopped event at or before target,
// breaking ties by scheduling order.
func (m *Manual) nextDue(target time.Time) *manualEvent {
	candidates := make([]*manualEvent, 0, len(m.pending))
	for _, ev := range m.pending {
		if !ev.stopped && !ev.deadline.After(target) {
			candidates = append(candidates, ev)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].deadline.Equal(candidates[j].deadline) {
			return candidates[i].id < candidates[j].id
		}
		return candidates[i].deadline.Before(candidates[j].deadline)
	})
	return candidates[0]
}

func (m *Manual) remove(ev *manualEvent) {
	for i, p := range m.pending {
		if p == ev {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
}

type manualTimer struct {
	m  *Manual
	ev *manualEvent
}

func (t manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	wasPending := !t.ev.stopped
	for _, p := range t.m.pending {
		if p == t.ev {
			t.ev.stopped = true
			t.m.remove(t.ev)
			return wasPending
		}
	}
	return false
}

type manualTicker struct {
	m  *Manual
	ev *manualEvent
}

func (t manualTicker) Stop() {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.ev.stopped = true
	t.m.remove(t.ev)
}
