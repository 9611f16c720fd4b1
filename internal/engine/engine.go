// Package engine composes the session state machine, countdown timer,
// integrity monitor, and navigation interceptor for one exam attempt. It
// is the only place the four machines are wired together: timer expiry and
// the violation cap both funnel into the session's idempotent Submit, so a
// race between the two termination causes resolves first-caller-wins.
//
// All mutation is serialized behind one mutex, the Go analog of the exam
// client's single event loop. Timer ticks, grace-period callbacks, and
// debounced writes are goroutine callbacks that take the same lock; no
// operation blocks while holding it.
package engine

import (
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jlpt4you/exam-engine/internal/clock"
	"github.com/jlpt4you/exam-engine/internal/config"
	"github.com/jlpt4you/exam-engine/internal/countdown"
	"github.com/jlpt4you/exam-engine/internal/integrity"
	"github.com/jlpt4you/exam-engine/internal/model"
	"github.com/jlpt4you/exam-engine/internal/navguard"
	"github.com/jlpt4you/exam-engine/internal/session"
	"github.com/jlpt4you/exam-engine/internal/store"
)

// EventSink receives the engine's user-facing events. The WebSocket
// transport implements it by pushing frames to the client; tests implement
// it with a recorder. Calls arrive from engine callbacks and must not
// block.
type EventSink interface {
	// ViolationWarning surfaces a blocking warning showing count/max.
	ViolationWarning(rec model.ViolationRecord, count, max int)
	// FullscreenRestored shows (true) then auto-clears (false) the
	// transient "fullscreen restored" notice.
	FullscreenRestored(visible bool)
	// TimeSync pushes the remaining time for display re-sync.
	TimeSync(remainingSeconds int, display string)
	// NavPushSentinel instructs the client to plant the trap entry.
	NavPushSentinel()
	// NavPrompt surfaces the leave-confirmation dialog.
	NavPrompt()
	// NavNavigate executes a confirmed navigation to target.
	NavNavigate(target string)
	// NavForward neutralizes a cancelled back action.
	NavForward()
	// PauseChanged reports a successful pause/resume toggle.
	PauseChanged(paused bool)
	// SessionEnded reports the terminal transition, exactly once.
	SessionEnded(reason model.SubmitReason, status model.SessionStatus)
}

// Hooks are the engine's external collaborators. All optional.
type Hooks struct {
	// OnSubmit is the submission sink: invoked exactly once per session
	// with the final answers. The engine does not interpret them.
	OnSubmit func(answers map[int]model.AnswerLabel, reason model.SubmitReason)
	// OnViolation feeds each recorded violation to external
	// logging/analytics. Escalation does not depend on it.
	OnViolation func(rec model.ViolationRecord, count int)
	// OnPause fires on every successful Practice-mode pause/resume.
	OnPause func(paused bool)
}

// Options configures one attempt.
type Options struct {
	StudentID int
	Exam      *model.ExamPayload

	Clock clock.Clock
	Store store.Store
	Sink  EventSink
	Hooks Hooks

	Integrity     integrity.Config
	DebounceQuiet time.Duration // default 1s
	TimeSyncEvery int           // seconds between TimeSync pushes, default 5
}

// Engine orchestrates one exam attempt.
type Engine struct {
	mu  sync.Mutex
	log zerolog.Logger

	opts Options
	sess *session.Session
	tmr  *countdown.Countdown
	mon  *integrity.Monitor // nil in Practice mode
	nav  *navguard.Interceptor
	deb  *store.Debouncer

	ticker        clock.Ticker
	stateKey      string
	timeKey       string
	sinceLastSync int
	closed        bool

	// pendingEnd stages terminal work set by expireLocked inside a tick,
	// run by tick after the lock is released.
	pendingEnd func()
}

// New builds and starts an engine. Challenge mode always begins fresh and
// discards any stale persisted state; Practice mode restores a prior
// snapshot and remaining time when the store has them.
func New(opts Options, log zerolog.Logger) *Engine {
	if opts.DebounceQuiet <= 0 {
		opts.DebounceQuiet = time.Second
	}
	if opts.TimeSyncEvery <= 0 {
		opts.TimeSyncEvery = 5
	}

	e := &Engine{
		opts: opts,
		log: log.With().
			Str("component", "engine").
			Str("exam_id", opts.Exam.ExamID.String()).
			Int("student_id", opts.StudentID).
			Logger(),
		stateKey: config.CacheKey.SessionStateKey(opts.Exam.Title, opts.StudentID),
		timeKey:  config.CacheKey.SessionTimeKey(opts.Exam.Title, opts.StudentID),
		deb:      store.NewDebouncer(opts.Clock, opts.DebounceQuiet),
	}

	mode := opts.Exam.Mode
	questionCount := len(opts.Exam.Questions)
	limitSeconds := opts.Exam.DurationMinutes * 60

	if mode == model.ModeChallenge {
		// Fresh start: stale Practice leftovers under the same title must
		// not leak into a proctored attempt.
		opts.Store.Remove(e.stateKey)
		opts.Store.Remove(e.timeKey)
		e.sess = session.New(mode, questionCount)
		e.tmr = countdown.New(limitSeconds, e.expireLocked)
	} else {
		e.sess = e.restoreSession(mode, questionCount)
		e.tmr = countdown.New(e.restoreSeconds(limitSeconds), e.expireLocked)
	}

	e.nav = navguard.New(sinkHistory{sink: opts.Sink})

	if mode == model.ModeChallenge {
		e.mon = integrity.New(opts.Clock, opts.Integrity, integrity.Callbacks{
			OnViolation: e.violationRecorded,
			OnRestored:  opts.Sink.FullscreenRestored,
			OnTerminate: func() { e.Submit(model.SubmitViolationCapReached) },
		}, log)
	}

	e.ticker = opts.Clock.TickEvery(time.Second, e.tick)
	opts.Sink.TimeSync(e.tmr.Remaining(), countdown.Format(e.tmr.Remaining()))

	e.log.Info().
		Str("mode", string(mode)).
		Int("questions", questionCount).
		Int("seconds", e.tmr.Remaining()).
		Msg("Session engine started")

	return e
}

func (e *Engine) restoreSession(mode model.ExamMode, questionCount int) *session.Session {
	raw, ok := e.opts.Store.Get(e.stateKey)
	if !ok {
		return session.New(mode, questionCount)
	}
	snap, ok := session.DecodeSnapshot(raw)
	if !ok {
		// Malformed snapshot: recover locally with a fresh session, never
		// surface the corruption to the student.
		e.log.Warn().Msg("Discarding malformed session snapshot")
		e.opts.Store.Remove(e.stateKey)
		return session.New(mode, questionCount)
	}
	return session.Restore(mode, questionCount, snap)
}

func (e *Engine) restoreSeconds(limitSeconds int) int {
	raw, ok := e.opts.Store.Get(e.timeKey)
	if !ok {
		return limitSeconds
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 || secs > limitSeconds {
		e.log.Warn().Str("value", raw).Msg("Discarding malformed remaining-time value")
		e.opts.Store.Remove(e.timeKey)
		return limitSeconds
	}
	return secs
}

// ─── Session operations ─────────────────────────────────────────────

// SelectAnswer records an answer for a question, last write wins.
func (e *Engine) SelectAnswer(questionID int, label model.AnswerLabel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess.SelectAnswer(questionID, label) {
		e.schedulePersistLocked()
	}
}

// ToggleFlag flips a question's flagged state.
func (e *Engine) ToggleFlag(questionID int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess.ToggleFlag(questionID) {
		e.schedulePersistLocked()
	}
}

// GoTo navigates to a 1-based question index; out-of-range is a no-op.
func (e *Engine) GoTo(index int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess.GoTo(index) {
		e.schedulePersistLocked()
	}
}

// Pause suspends a Practice session and its timer. Challenge mode: silent
// no-op.
func (e *Engine) Pause() {
	e.mu.Lock()
	if !e.sess.Pause() {
		e.mu.Unlock()
		return
	}
	e.tmr.Pause()
	e.persistNowLocked()
	e.mu.Unlock()

	e.opts.Sink.PauseChanged(true)
	if e.opts.Hooks.OnPause != nil {
		e.opts.Hooks.OnPause(true)
	}
}

// Resume reactivates a paused session and its timer.
func (e *Engine) Resume() {
	e.mu.Lock()
	if !e.sess.Resume() {
		e.mu.Unlock()
		return
	}
	e.tmr.Resume()
	remaining := e.tmr.Remaining()
	e.mu.Unlock()

	e.opts.Sink.PauseChanged(false)
	e.opts.Sink.TimeSync(remaining, countdown.Format(remaining))
	if e.opts.Hooks.OnPause != nil {
		e.opts.Hooks.OnPause(false)
	}
}

// Submit ends the session for the given reason. Idempotent: the first
// caller wins and later calls are absorbed, which is also what resolves a
// same-tick race between timer expiry and the violation cap.
func (e *Engine) Submit(reason model.SubmitReason) {
	e.mu.Lock()
	after := e.submitLocked(reason)
	e.mu.Unlock()
	after()
}

// Stats returns the read-only snapshot the confirmation dialog renders.
func (e *Engine) Stats() model.SubmissionStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := e.sess.QuestionCount()
	answered := e.sess.AnsweredCount()
	return model.SubmissionStats{
		TotalQuestions:      total,
		AnsweredQuestions:   answered,
		UnansweredQuestions: total - answered,
		FlaggedQuestions:    e.sess.FlaggedCount(),
		RemainingSeconds:    e.tmr.Remaining(),
	}
}

// State returns the live session view used by the reload/state endpoint.
func (e *Engine) State() (model.SessionSnapshot, model.SessionStatus, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.Snapshot(), e.sess.Status(), e.tmr.Remaining()
}

// ─── Integrity signals (Challenge mode) ─────────────────────────────
//
// These forward to the monitor without taking the engine lock; the monitor
// serializes itself, and its callbacks re-enter the engine through Submit.

func (e *Engine) FullscreenChanged(isFullscreen bool) {
	if e.mon != nil {
		e.mon.FullscreenChanged(isFullscreen)
	}
}

func (e *Engine) WindowBlurred() {
	if e.mon != nil {
		e.mon.WindowBlurred()
	}
}

func (e *Engine) VisibilityChanged(hidden bool) {
	if e.mon != nil {
		e.mon.VisibilityChanged(hidden)
	}
}

func (e *Engine) InteractionSuppressed(action string) {
	if e.mon != nil {
		e.mon.InteractionSuppressed(action)
	}
}

// ViolationCount returns the monitor's running count; 0 in Practice mode.
func (e *Engine) ViolationCount() int {
	if e.mon == nil {
		return 0
	}
	return e.mon.Count()
}

// ─── Navigation interception ────────────────────────────────────────

// BackAttempted parks a trapped back action targeting the given route and
// surfaces the confirmation dialog.
func (e *Engine) BackAttempted(target string) {
	if e.nav.BackAttempted(func() { e.opts.Sink.NavNavigate(target) }) {
		e.opts.Sink.NavPrompt()
	}
}

// NavConfirm executes the parked navigation.
func (e *Engine) NavConfirm() { e.nav.Confirm() }

// NavCancel drops the parked navigation and pushes history forward so the
// user stays where they were.
func (e *Engine) NavCancel() { e.nav.Cancel() }

// AwaitingNavConfirmation exposes the pending slot for the state endpoint.
func (e *Engine) AwaitingNavConfirmation() bool { return e.nav.AwaitingConfirmation() }

// ─── Internals ──────────────────────────────────────────────────────

// tick runs once per clock second.
func (e *Engine) tick() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}

	wasRunning := e.tmr.State() == countdown.Running
	e.tmr.Tick() // may invoke expireLocked

	var after func()
	if e.pendingEnd != nil {
		after = e.pendingEnd
		e.pendingEnd = nil
	}

	remaining := e.tmr.Remaining()
	syncNow := false
	if wasRunning && after == nil {
		// Crash-safe countdown: the time key tracks every surviving tick
		// in Practice mode. Snapshot writes stay debounced; this is a
		// single small Set per second for one session.
		if e.sess.Mode() == model.ModePractice {
			e.opts.Store.Set(e.timeKey, strconv.Itoa(remaining))
		}
		e.sinceLastSync++
		if e.sinceLastSync >= e.opts.TimeSyncEvery {
			e.sinceLastSync = 0
			syncNow = true
		}
	}
	e.mu.Unlock()

	if syncNow {
		e.opts.Sink.TimeSync(remaining, countdown.Format(remaining))
	}
	if after != nil {
		after()
	}
}

// expireLocked is the countdown's expiry callback. It runs inside Tick,
// with the engine lock already held, so it stages the terminal work for
// tick to run after unlocking.
func (e *Engine) expireLocked() {
	e.pendingEnd = e.submitLocked(model.SubmitTimeExpired)
}

// violationRecorded bridges the monitor's per-violation callback to the
// sink and the external hook.
func (e *Engine) violationRecorded(rec model.ViolationRecord, count, max int) {
	e.opts.Sink.ViolationWarning(rec, count, max)
	if e.opts.Hooks.OnViolation != nil {
		e.opts.Hooks.OnViolation(rec, count)
	}
}

// submitLocked performs the terminal transition and returns the work to
// run after the engine lock is released. Caller must hold e.mu.
func (e *Engine) submitLocked(reason model.SubmitReason) func() {
	// A user-initiated submit must not race its own debounced write:
	// cancel it before the transition, then delete the persisted state.
	if !e.sess.Submit(reason) {
		return func() {}
	}

	e.deb.Cancel()
	if e.sess.Mode() == model.ModePractice {
		e.opts.Store.Remove(e.stateKey)
		e.opts.Store.Remove(e.timeKey)
	}
	e.releaseLocked()

	status := e.sess.Status()
	answers := e.sess.Answers()
	sink := e.opts.Sink
	onSubmit := e.opts.Hooks.OnSubmit

	e.log.Info().
		Str("reason", string(reason)).
		Str("status", string(status)).
		Int("answered", len(answers)).
		Msg("Session ended")

	return func() {
		sink.SessionEnded(reason, status)
		if onSubmit != nil {
			onSubmit(answers, reason)
		}
	}
}

// schedulePersistLocked queues a debounced snapshot write. Challenge mode
// never writes. Caller must hold e.mu.
func (e *Engine) schedulePersistLocked() {
	if e.sess.Mode() != model.ModePractice {
		return
	}
	snap := e.sess.Snapshot()
	remaining := e.tmr.Remaining()
	st := e.opts.Store
	stateKey, timeKey := e.stateKey, e.timeKey
	e.deb.Schedule(func() {
		st.Set(stateKey, session.EncodeSnapshot(snap))
		st.Set(timeKey, strconv.Itoa(remaining))
	})
}

// persistNowLocked writes the snapshot immediately (pause path). Caller
// must hold e.mu.
func (e *Engine) persistNowLocked() {
	if e.sess.Mode() != model.ModePractice {
		return
	}
	e.deb.Cancel()
	e.opts.Store.Set(e.stateKey, session.EncodeSnapshot(e.sess.Snapshot()))
	e.opts.Store.Set(e.timeKey, strconv.Itoa(e.tmr.Remaining()))
}

// releaseLocked stops the ticker, monitor, interceptor, and any pending
// debounce so nothing keeps firing against a finished session. Caller
// must hold e.mu.
func (e *Engine) releaseLocked() {
	if e.closed {
		return
	}
	e.closed = true
	if e.ticker != nil {
		e.ticker.Stop()
	}
	if e.mon != nil {
		e.mon.Stop()
	}
	e.nav.Disarm()
	e.deb.Cancel()
}

// Close releases all resources without submitting, for connection
// teardown or explicit abandonment. In Practice mode any pending snapshot
// is flushed first so a reload can restore; abandon=true removes the
// persisted state instead.
func (e *Engine) Close(abandon bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if e.sess.Mode() == model.ModePractice {
		if abandon {
			e.opts.Store.Remove(e.stateKey)
			e.opts.Store.Remove(e.timeKey)
		} else {
			e.persistNowLocked()
		}
	}
	e.releaseLocked()
}

// sinkHistory adapts the event sink to the interceptor's History driver:
// the real history lives in the client, driven over the wire.
type sinkHistory struct {
	sink EventSink
}

func (h sinkHistory) PushSentinel() { h.sink.NavPushSentinel() }
func (h sinkHistory) Forward()      { h.sink.NavForward() }
