package engine

import (
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jlpt4you/exam-engine/internal/clock"
	"github.com/jlpt4you/exam-engine/internal/config"
	"github.com/jlpt4you/exam-engine/internal/model"
	"github.com/jlpt4you/exam-engine/internal/session"
	"github.com/jlpt4you/exam-engine/internal/store"
)

// recorderSink captures every event the engine emits. All callbacks run
// on the test goroutine because the manual clock fires synchronously.
type recorderSink struct {
	warnings  []int // running counts
	restored  []bool
	timeSyncs []int // remaining seconds
	sentinels int
	prompts   int
	navTarget []string
	forwards  int
	pauses    []bool
	ended     []model.SubmitReason
	endStatus []model.SessionStatus
}

func (r *recorderSink) ViolationWarning(rec model.ViolationRecord, count, max int) {
	r.warnings = append(r.warnings, count)
}
func (r *recorderSink) FullscreenRestored(visible bool) { r.restored = append(r.restored, visible) }
func (r *recorderSink) TimeSync(remaining int, display string) {
	r.timeSyncs = append(r.timeSyncs, remaining)
}
func (r *recorderSink) NavPushSentinel()         { r.sentinels++ }
func (r *recorderSink) NavPrompt()               { r.prompts++ }
func (r *recorderSink) NavNavigate(target string) { r.navTarget = append(r.navTarget, target) }
func (r *recorderSink) NavForward()              { r.forwards++ }
func (r *recorderSink) PauseChanged(paused bool) { r.pauses = append(r.pauses, paused) }
func (r *recorderSink) SessionEnded(reason model.SubmitReason, status model.SessionStatus) {
	r.ended = append(r.ended, reason)
	r.endStatus = append(r.endStatus, status)
}

type submission struct {
	answers map[int]model.AnswerLabel
	reason  model.SubmitReason
}

type testRig struct {
	eng  *Engine
	clk  *clock.Manual
	kv   *store.Memory
	sink *recorderSink

	submissions []submission
	violations  []int
}

func payload(mode model.ExamMode, minutes, questions int) *model.ExamPayload {
	qs := make([]model.Question, questions)
	for i := range qs {
		qs[i] = model.Question{ID: i + 1, Text: "q", Options: []byte(`["A","B","C","D"]`)}
	}
	return &model.ExamPayload{
		ExamID:          uuid.New(),
		Title:           "algebra-1",
		Mode:            mode,
		DurationMinutes: minutes,
		Questions:       qs,
	}
}

func newRig(t *testing.T, exam *model.ExamPayload, kv *store.Memory) *testRig {
	t.Helper()
	if kv == nil {
		kv = store.NewMemory()
	}
	rig := &testRig{
		clk:  clock.NewManual(time.Unix(1700000000, 0)),
		kv:   kv,
		sink: &recorderSink{},
	}
	rig.eng = New(Options{
		StudentID: 42,
		Exam:      exam,
		Clock:     rig.clk,
		Store:     kv,
		Sink:      rig.sink,
		Hooks: Hooks{
			OnSubmit: func(answers map[int]model.AnswerLabel, reason model.SubmitReason) {
				rig.submissions = append(rig.submissions, submission{answers, reason})
			},
			OnViolation: func(rec model.ViolationRecord, count int) {
				rig.violations = append(rig.violations, count)
			},
		},
	}, zerolog.Nop())
	t.Cleanup(func() { rig.eng.Close(true) })
	return rig
}

func TestTimeExpirySubmitsExactlyOnce(t *testing.T) {
	rig := newRig(t, payload(model.ModeChallenge, 1, 3), nil)
	rig.eng.SelectAnswer(1, "B")

	rig.clk.Advance(59 * time.Second)
	assert.Empty(t, rig.sink.ended)

	rig.clk.Advance(time.Second)
	require.Equal(t, []model.SubmitReason{model.SubmitTimeExpired}, rig.sink.ended)
	assert.Equal(t, []model.SessionStatus{model.SessionStatusSubmitted}, rig.sink.endStatus)

	require.Len(t, rig.submissions, 1)
	assert.Equal(t, model.SubmitTimeExpired, rig.submissions[0].reason)
	assert.Equal(t, map[int]model.AnswerLabel{1: "B"}, rig.submissions[0].answers)

	// The ticker is released: no further events after expiry.
	syncs := len(rig.sink.timeSyncs)
	rig.clk.Advance(time.Minute)
	assert.Len(t, rig.sink.ended, 1)
	assert.Len(t, rig.sink.timeSyncs, syncs)
}

func TestTimeSyncCadence(t *testing.T) {
	rig := newRig(t, payload(model.ModeChallenge, 10, 3), nil)

	// One sync at start, then one every five surviving ticks.
	require.NotEmpty(t, rig.sink.timeSyncs)
	assert.Equal(t, 600, rig.sink.timeSyncs[0])

	rig.clk.Advance(10 * time.Second)
	assert.Equal(t, []int{600, 595, 590}, rig.sink.timeSyncs)
}

func TestPracticePersistsAndRestores(t *testing.T) {
	exam := payload(model.ModePractice, 10, 5)
	kv := store.NewMemory()

	rig := newRig(t, exam, kv)
	rig.eng.SelectAnswer(1, "A")
	rig.eng.SelectAnswer(2, "C")
	rig.eng.ToggleFlag(2)
	rig.eng.GoTo(3)
	rig.clk.Advance(5 * time.Second)

	// The debounced snapshot landed after the quiet period.
	stateKey := config.CacheKey.SessionStateKey(exam.Title, 42)
	raw, ok := kv.Get(stateKey)
	require.True(t, ok)
	snap, ok := session.DecodeSnapshot(raw)
	require.True(t, ok)
	assert.Equal(t, 3, snap.CurrentIndex)

	// The time key tracks every tick.
	timeKey := config.CacheKey.SessionTimeKey(exam.Title, 42)
	rawSecs, ok := kv.Get(timeKey)
	require.True(t, ok)
	assert.Equal(t, strconv.Itoa(595), rawSecs)

	rig.eng.Close(false)

	// A second engine over the same store resumes where the first left.
	rig2 := newRig(t, exam, kv)
	snap2, status, remaining := rig2.eng.State()
	assert.Equal(t, model.SessionStatusActive, status)
	assert.Equal(t, 595, remaining)
	assert.Equal(t, 3, snap2.CurrentIndex)
	assert.Equal(t, map[int]model.AnswerLabel{1: "A", 2: "C"}, snap2.Answers)
	assert.Equal(t, []int{2}, snap2.Flagged)
}

func TestDebounceCoalescesRapidEdits(t *testing.T) {
	exam := payload(model.ModePractice, 10, 5)
	kv := store.NewMemory()
	rig := newRig(t, exam, kv)

	// A burst of edits inside the quiet period yields no write yet.
	rig.eng.SelectAnswer(1, "A")
	rig.clk.Advance(300 * time.Millisecond)
	rig.eng.SelectAnswer(1, "B")
	rig.clk.Advance(300 * time.Millisecond)
	rig.eng.SelectAnswer(1, "D")

	stateKey := config.CacheKey.SessionStateKey(exam.Title, 42)
	_, ok := kv.Get(stateKey)
	assert.False(t, ok)

	rig.clk.Advance(time.Second)
	raw, ok := kv.Get(stateKey)
	require.True(t, ok)
	snap, _ := session.DecodeSnapshot(raw)
	assert.Equal(t, model.AnswerLabel("D"), snap.Answers[1])
}

func TestChallengeDiscardsStaleState(t *testing.T) {
	exam := payload(model.ModeChallenge, 10, 5)
	kv := store.NewMemory()
	kv.Set(config.CacheKey.SessionStateKey(exam.Title, 42), `{"current_question":4}`)
	kv.Set(config.CacheKey.SessionTimeKey(exam.Title, 42), "120")

	rig := newRig(t, exam, kv)

	snap, _, remaining := rig.eng.State()
	assert.Equal(t, 1, snap.CurrentIndex)
	assert.Equal(t, 600, remaining)

	_, ok := kv.Get(config.CacheKey.SessionStateKey(exam.Title, 42))
	assert.False(t, ok)
	_, ok = kv.Get(config.CacheKey.SessionTimeKey(exam.Title, 42))
	assert.False(t, ok)
}

func TestPracticeDiscardsMalformedState(t *testing.T) {
	exam := payload(model.ModePractice, 10, 5)
	kv := store.NewMemory()
	kv.Set(config.CacheKey.SessionStateKey(exam.Title, 42), "{broken")
	kv.Set(config.CacheKey.SessionTimeKey(exam.Title, 42), "999999")

	rig := newRig(t, exam, kv)

	snap, _, remaining := rig.eng.State()
	assert.Equal(t, 1, snap.CurrentIndex)
	assert.Equal(t, 600, remaining) // out-of-range time value discarded
}

func TestViolationCapTerminates(t *testing.T) {
	rig := newRig(t, payload(model.ModeChallenge, 10, 3), nil)

	rig.eng.WindowBlurred()
	rig.eng.VisibilityChanged(true)
	rig.eng.WindowBlurred()
	assert.Equal(t, []int{1, 2, 3}, rig.sink.warnings)
	assert.Equal(t, []int{1, 2, 3}, rig.violations)
	assert.Empty(t, rig.sink.ended)

	// Final warning holds for 3s, then the attempt is terminated.
	rig.clk.Advance(3 * time.Second)
	require.Equal(t, []model.SubmitReason{model.SubmitViolationCapReached}, rig.sink.ended)
	assert.Equal(t, []model.SessionStatus{model.SessionStatusTerminated}, rig.sink.endStatus)

	require.Len(t, rig.submissions, 1)
	assert.Equal(t, model.SubmitViolationCapReached, rig.submissions[0].reason)
}

func TestFullscreenRoundTripNoViolation(t *testing.T) {
	rig := newRig(t, payload(model.ModeChallenge, 10, 3), nil)

	rig.eng.FullscreenChanged(false)
	rig.clk.Advance(2 * time.Second)
	rig.eng.FullscreenChanged(true)
	rig.clk.Advance(5 * time.Second)

	assert.Empty(t, rig.sink.warnings)
	assert.Equal(t, 0, rig.eng.ViolationCount())
	assert.Equal(t, []bool{true, false}, rig.sink.restored)
}

func TestPracticeHasNoMonitor(t *testing.T) {
	rig := newRig(t, payload(model.ModePractice, 10, 3), nil)

	rig.eng.WindowBlurred()
	rig.eng.VisibilityChanged(true)
	rig.eng.FullscreenChanged(false)
	rig.clk.Advance(10 * time.Second)

	assert.Empty(t, rig.sink.warnings)
	assert.Equal(t, 0, rig.eng.ViolationCount())
}

func TestPauseFreezesTimer(t *testing.T) {
	rig := newRig(t, payload(model.ModePractice, 10, 3), nil)

	rig.clk.Advance(3 * time.Second)
	rig.eng.Pause()
	assert.Equal(t, []bool{true}, rig.sink.pauses)

	rig.clk.Advance(30 * time.Second)
	_, status, remaining := rig.eng.State()
	assert.Equal(t, model.SessionStatusPaused, status)
	assert.Equal(t, 597, remaining)

	rig.eng.Resume()
	assert.Equal(t, []bool{true, false}, rig.sink.pauses)
	rig.clk.Advance(2 * time.Second)
	_, _, remaining = rig.eng.State()
	assert.Equal(t, 595, remaining)
}

func TestChallengePauseIsSilentNoop(t *testing.T) {
	rig := newRig(t, payload(model.ModeChallenge, 10, 3), nil)

	rig.eng.Pause()
	assert.Empty(t, rig.sink.pauses)

	rig.clk.Advance(2 * time.Second)
	_, status, remaining := rig.eng.State()
	assert.Equal(t, model.SessionStatusActive, status)
	assert.Equal(t, 598, remaining)
}

func TestUserSubmitIdempotent(t *testing.T) {
	exam := payload(model.ModePractice, 10, 3)
	kv := store.NewMemory()
	rig := newRig(t, exam, kv)
	rig.eng.SelectAnswer(1, "A")

	rig.eng.Submit(model.SubmitUserConfirmed)
	rig.eng.Submit(model.SubmitUserConfirmed)

	assert.Equal(t, []model.SubmitReason{model.SubmitUserConfirmed}, rig.sink.ended)
	assert.Len(t, rig.submissions, 1)

	// Persisted Practice state is gone after submit.
	_, ok := kv.Get(config.CacheKey.SessionStateKey(exam.Title, 42))
	assert.False(t, ok)
	_, ok = kv.Get(config.CacheKey.SessionTimeKey(exam.Title, 42))
	assert.False(t, ok)

	// Late operations are absorbed.
	rig.eng.SelectAnswer(2, "B")
	snap, _, _ := rig.eng.State()
	assert.NotContains(t, snap.Answers, 2)
}

func TestStats(t *testing.T) {
	rig := newRig(t, payload(model.ModePractice, 10, 5), nil)
	rig.eng.SelectAnswer(1, "A")
	rig.eng.SelectAnswer(4, "B")
	rig.eng.ToggleFlag(2)
	rig.clk.Advance(10 * time.Second)

	stats := rig.eng.Stats()
	assert.Equal(t, 5, stats.TotalQuestions)
	assert.Equal(t, 2, stats.AnsweredQuestions)
	assert.Equal(t, 3, stats.UnansweredQuestions)
	assert.Equal(t, 1, stats.FlaggedQuestions)
	assert.Equal(t, 590, stats.RemainingSeconds)
}

func TestNavBackConfirmAndCancel(t *testing.T) {
	rig := newRig(t, payload(model.ModeChallenge, 10, 3), nil)
	assert.Equal(t, 1, rig.sink.sentinels)

	rig.eng.BackAttempted("/results")
	assert.Equal(t, 1, rig.sink.prompts)
	assert.True(t, rig.eng.AwaitingNavConfirmation())

	rig.eng.NavCancel()
	assert.Equal(t, 1, rig.sink.forwards)
	assert.Empty(t, rig.sink.navTarget)

	rig.eng.BackAttempted("/results")
	rig.eng.NavConfirm()
	assert.Equal(t, []string{"/results"}, rig.sink.navTarget)
}

func TestCloseAbandonRemovesPracticeState(t *testing.T) {
	exam := payload(model.ModePractice, 10, 3)
	kv := store.NewMemory()
	rig := newRig(t, exam, kv)

	rig.eng.SelectAnswer(1, "A")
	rig.clk.Advance(2 * time.Second)
	_, ok := kv.Get(config.CacheKey.SessionStateKey(exam.Title, 42))
	require.True(t, ok)

	rig.eng.Close(true)
	_, ok = kv.Get(config.CacheKey.SessionStateKey(exam.Title, 42))
	assert.False(t, ok)
	_, ok = kv.Get(config.CacheKey.SessionTimeKey(exam.Title, 42))
	assert.False(t, ok)
}
