package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jlpt4you/exam-engine/internal/model"
)

func TestNewStartsOnFirstQuestion(t *testing.T) {
	s := New(model.ModePractice, 10)

	assert.Equal(t, model.SessionStatusActive, s.Status())
	assert.Equal(t, 1, s.CurrentIndex())
	assert.Equal(t, 0, s.AnsweredCount())
	assert.Equal(t, 0, s.FlaggedCount())
}

func TestSelectAnswerOverwrites(t *testing.T) {
	s := New(model.ModeChallenge, 5)

	assert.True(t, s.SelectAnswer(3, "A"))
	assert.True(t, s.SelectAnswer(3, "D"))

	answers := s.Answers()
	assert.Equal(t, model.AnswerLabel("D"), answers[3])
	assert.Equal(t, 1, s.AnsweredCount())
}

func TestToggleFlag(t *testing.T) {
	s := New(model.ModePractice, 5)

	assert.True(t, s.ToggleFlag(2))
	assert.True(t, s.IsFlagged(2))
	assert.True(t, s.ToggleFlag(2))
	assert.False(t, s.IsFlagged(2))
}

func TestGoToBounds(t *testing.T) {
	s := New(model.ModePractice, 5)

	assert.False(t, s.GoTo(0))
	assert.False(t, s.GoTo(6))
	assert.Equal(t, 1, s.CurrentIndex())

	assert.True(t, s.GoTo(5))
	assert.Equal(t, 5, s.CurrentIndex())
}

func TestPauseOnlyInPractice(t *testing.T) {
	practice := New(model.ModePractice, 5)
	assert.True(t, practice.Pause())
	assert.Equal(t, model.SessionStatusPaused, practice.Status())

	// Operations are rejected while paused.
	assert.False(t, practice.SelectAnswer(1, "A"))
	assert.False(t, practice.GoTo(2))

	assert.True(t, practice.Resume())
	assert.Equal(t, model.SessionStatusActive, practice.Status())

	challenge := New(model.ModeChallenge, 5)
	assert.False(t, challenge.Pause())
	assert.Equal(t, model.SessionStatusActive, challenge.Status())
}

func TestSubmitIdempotentFirstReasonWins(t *testing.T) {
	s := New(model.ModeChallenge, 5)

	assert.True(t, s.Submit(model.SubmitTimeExpired))
	assert.Equal(t, model.SessionStatusSubmitted, s.Status())

	// A later cap-reached call must not flip the status to Terminated.
	assert.False(t, s.Submit(model.SubmitViolationCapReached))
	assert.Equal(t, model.SessionStatusSubmitted, s.Status())
	assert.Equal(t, model.SubmitTimeExpired, s.SubmitReason())
}

func TestSubmitViolationCapTerminates(t *testing.T) {
	s := New(model.ModeChallenge, 5)

	assert.True(t, s.Submit(model.SubmitViolationCapReached))
	assert.Equal(t, model.SessionStatusTerminated, s.Status())
	assert.True(t, s.Status().Terminal())

	assert.False(t, s.SelectAnswer(1, "A"))
	assert.False(t, s.ToggleFlag(1))
	assert.False(t, s.Resume())
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := New(model.ModePractice, 10)
	s.SelectAnswer(1, "A")
	s.SelectAnswer(7, "C")
	s.ToggleFlag(7)
	s.GoTo(7)

	raw := EncodeSnapshot(s.Snapshot())
	require.NotEmpty(t, raw)

	snap, ok := DecodeSnapshot(raw)
	require.True(t, ok)

	restored := Restore(model.ModePractice, 10, snap)
	assert.Equal(t, 7, restored.CurrentIndex())
	assert.Equal(t, s.Answers(), restored.Answers())
	assert.True(t, restored.IsFlagged(7))
	assert.Equal(t, model.SessionStatusActive, restored.Status())
}

func TestDecodeSnapshotMalformed(t *testing.T) {
	_, ok := DecodeSnapshot("{not json")
	assert.False(t, ok)
}

func TestRestoreOutOfRangeIndexFallsBack(t *testing.T) {
	snap := model.SessionSnapshot{CurrentIndex: 42}
	s := Restore(model.ModePractice, 10, snap)
	assert.Equal(t, 1, s.CurrentIndex())
}
