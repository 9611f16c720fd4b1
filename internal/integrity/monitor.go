// Package integrity converts raw browser signals (fullscreen changes,
// window blur, tab visibility) into an escalating violation count with a
// fullscreen grace period, and fires a single termination callback when
// the cap is reached.
package integrity

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jlpt4you/exam-engine/internal/clock"
	"github.com/jlpt4you/exam-engine/internal/model"
)

// Config tunes escalation behavior. Zero values are replaced by defaults.
type Config struct {
	MaxViolations     int           // default 3
	GracePeriod       time.Duration // fullscreen re-entry window, default 3s
	RestoredNotice    time.Duration // "fullscreen restored" auto-clear, default 2s
	FinalWarningDelay time.Duration // cap reached → termination callback, default 3s
}

func (c Config) withDefaults() Config {
	if c.MaxViolations <= 0 {
		c.MaxViolations = 3
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = 3 * time.Second
	}
	if c.RestoredNotice <= 0 {
		c.RestoredNotice = 2 * time.Second
	}
	if c.FinalWarningDelay <= 0 {
		c.FinalWarningDelay = 3 * time.Second
	}
	return c
}

// Callbacks are the monitor's outputs. Any of them may be nil. They are
// invoked without the monitor's lock held, so they may safely call back
// into the engine.
type Callbacks struct {
	// OnViolation fires once per recorded violation with the running
	// count and the cap, for the warning dialog and external logging.
	// Escalation does not depend on this callback succeeding.
	OnViolation func(rec model.ViolationRecord, count, max int)
	// OnRestored fires with true when fullscreen is regained inside the
	// grace period, then with false when the transient notice auto-clears.
	OnRestored func(visible bool)
	// OnTerminate fires exactly once, after the final warning delay
	// following the cap-reaching violation.
	OnTerminate func()
}

// Monitor owns the append-only violation log for one Challenge session.
type Monitor struct {
	mu  sync.Mutex
	cfg Config
	cb  Callbacks
	clk clock.Clock
	log zerolog.Logger

	active     bool
	violations []model.ViolationRecord
	capReached bool
	terminated bool

	graceTimer    clock.Timer
	restoredTimer clock.Timer
	finalTimer    clock.Timer
}

// New creates an active monitor. The engine constructs one only for
// Challenge-mode sessions; Practice sessions have no monitor at all.
func New(clk clock.Clock, cfg Config, cb Callbacks, log zerolog.Logger) *Monitor {
	return &Monitor{
		cfg:    cfg.withDefaults(),
		cb:     cb,
		clk:    clk,
		log:    log.With().Str("component", "integrity_monitor").Logger(),
		active: true,
	}
}

// FullscreenChanged handles a fullscreen state transition. Leaving
// fullscreen starts the grace timer; regaining it before the timer fires
// cancels the pending violation and shows a transient restored notice
// instead. The cancel is atomic with respect to the grace timer: a
// regained fullscreen never yields both a violation and a notice.
func (m *Monitor) FullscreenChanged(isFullscreen bool) {
	m.mu.Lock()

	if !m.accepting() {
		m.mu.Unlock()
		return
	}

	if !isFullscreen {
		if m.graceTimer == nil {
			m.graceTimer = m.clk.AfterFunc(m.cfg.GracePeriod, m.graceExpired)
		}
		m.mu.Unlock()
		return
	}

	// Regained fullscreen.
	if m.graceTimer == nil {
		m.mu.Unlock()
		return
	}
	m.graceTimer.Stop()
	m.graceTimer = nil

	if m.restoredTimer != nil {
		m.restoredTimer.Stop()
	}
	m.restoredTimer = m.clk.AfterFunc(m.cfg.RestoredNotice, m.clearRestored)
	notify := m.cb.OnRestored
	m.mu.Unlock()

	if notify != nil {
		notify(true)
	}
}

func (m *Monitor) graceExpired() {
	m.mu.Lock()
	if m.graceTimer == nil || !m.accepting() {
		// Cancelled by a fullscreen regain (or session already over)
		// between scheduling and firing.
		m.mu.Unlock()
		return
	}
	m.graceTimer = nil
	fire := m.record(model.ViolationFullscreenExit)
	m.mu.Unlock()
	fire()
}

func (m *Monitor) clearRestored() {
	m.mu.Lock()
	m.restoredTimer = nil
	notify := m.cb.OnRestored
	m.mu.Unlock()

	if notify != nil {
		notify(false)
	}
}

// WindowBlurred records a WindowBlur violation immediately. There is no
// grace period for losing window focus.
func (m *Monitor) WindowBlurred() {
	m.signal(model.ViolationWindowBlur)
}

// VisibilityChanged records a TabSwitch violation when the page becomes
// hidden. Becoming visible again is not a signal.
func (m *Monitor) VisibilityChanged(hidden bool) {
	if !hidden {
		return
	}
	m.signal(model.ViolationTabSwitch)
}

// InteractionSuppressed notes a blocked right-click or text-selection
// attempt. These are silently suppressed client-side and intentionally
// never recorded as violations.
func (m *Monitor) InteractionSuppressed(action string) {
	m.log.Debug().Str("action", action).Msg("Blocked interaction")
}

func (m *Monitor) signal(kind model.ViolationKind) {
	m.mu.Lock()
	if !m.accepting() {
		m.mu.Unlock()
		return
	}
	fire := m.record(kind)
	m.mu.Unlock()
	fire()
}

// accepting reports whether new violations are still admissible. Once the
// cap is reached the monitor ignores further signals for the session.
func (m *Monitor) accepting() bool {
	return m.active && !m.capReached
}

// record appends the violation and returns the callback work to run after
// the lock is released. Caller must hold m.mu.
func (m *Monitor) record(kind model.ViolationKind) func() {
	rec := model.ViolationRecord{Kind: kind, Timestamp: m.clk.Now()}
	m.violations = append(m.violations, rec)
	count := len(m.violations)

	m.log.Warn().
		Str("kind", string(kind)).
		Int("count", count).
		Int("max", m.cfg.MaxViolations).
		Msg("Violation recorded")

	onViolation := m.cb.OnViolation
	if count >= m.cfg.MaxViolations {
		m.capReached = true
		// Hold the final warning on screen before terminating.
		m.finalTimer = m.clk.AfterFunc(m.cfg.FinalWarningDelay, m.terminate)
	}
	max := m.cfg.MaxViolations

	return func() {
		if onViolation != nil {
			onViolation(rec, count, max)
		}
	}
}

func (m *Monitor) terminate() {
	m.mu.Lock()
	if m.terminated || !m.active {
		m.mu.Unlock()
		return
	}
	m.terminated = true
	m.finalTimer = nil
	cb := m.cb.OnTerminate
	m.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// Count returns the number of recorded violations.
func (m *Monitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.violations)
}

// Violations returns a copy of the append-only log.
func (m *Monitor) Violations() []model.ViolationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ViolationRecord, len(m.violations))
	copy(out, m.violations)
	return out
}

// Stop deactivates the monitor and releases every pending timer. Called
// when the session reaches a terminal state or the connection unwinds;
// further signals are ignored.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.active = false
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
	if m.restoredTimer != nil {
		m.restoredTimer.Stop()
		m.restoredTimer = nil
	}
	if m.finalTimer != nil {
		m.finalTimer.Stop()
		m.finalTimer = nil
	}
}
