// Package session implements the exam attempt state machine: answer
// bookkeeping, flagged questions, free navigation, Practice-mode
// pause/resume, and the idempotent terminal transition.
//
// A Session is not safe for concurrent use on its own; the engine
// serializes all access behind its event-loop mutex.
package session

import (
	"encoding/json"

	"github.com/jlpt4you/exam-engine/internal/model"
)

// Session owns the mutable attempt state for one exam.
type Session struct {
	mode          model.ExamMode
	questionCount int
	status        model.SessionStatus
	currentIndex  int
	answers       map[int]model.AnswerLabel
	flagged       map[int]struct{}
	submitReason  model.SubmitReason
}

// New creates an Active session positioned on question 1.
func New(mode model.ExamMode, questionCount int) *Session {
	return &Session{
		mode:          mode,
		questionCount: questionCount,
		status:        model.SessionStatusActive,
		currentIndex:  1,
		answers:       make(map[int]model.AnswerLabel),
		flagged:       make(map[int]struct{}),
	}
}

// Restore creates a session seeded from a persisted snapshot. Out-of-range
// indices and nil maps in the snapshot fall back to fresh defaults rather
// than failing.
func Restore(mode model.ExamMode, questionCount int, snap model.SessionSnapshot) *Session {
	s := New(mode, questionCount)
	if snap.CurrentIndex >= 1 && snap.CurrentIndex <= questionCount {
		s.currentIndex = snap.CurrentIndex
	}
	for qid, label := range snap.Answers {
		s.answers[qid] = label
	}
	for _, qid := range snap.Flagged {
		s.flagged[qid] = struct{}{}
	}
	return s
}

func (s *Session) Mode() model.ExamMode       { return s.mode }
func (s *Session) Status() model.SessionStatus { return s.status }
func (s *Session) CurrentIndex() int          { return s.currentIndex }
func (s *Session) QuestionCount() int         { return s.questionCount }

// SubmitReason returns the cause of the terminal transition, or the empty
// string while the session is still live.
func (s *Session) SubmitReason() model.SubmitReason { return s.submitReason }

// SelectAnswer records the label for a question, overwriting any prior
// answer (last write wins, no history). No-op unless the session is
// Active. Reports whether state changed.
func (s *Session) SelectAnswer(questionID int, label model.AnswerLabel) bool {
	if s.status != model.SessionStatusActive {
		return false
	}
	s.answers[questionID] = label
	return true
}

// ToggleFlag adds or removes a question from the flagged set. No-op unless
// Active.
func (s *Session) ToggleFlag(questionID int) bool {
	if s.status != model.SessionStatusActive {
		return false
	}
	if _, ok := s.flagged[questionID]; ok {
		delete(s.flagged, questionID)
	} else {
		s.flagged[questionID] = struct{}{}
	}
	return true
}

// GoTo moves to the given 1-based question index. Indices outside
// [1, questionCount] leave the position unchanged. Navigation is free: the
// target does not need to be answered first.
func (s *Session) GoTo(index int) bool {
	if s.status != model.SessionStatusActive {
		return false
	}
	if index < 1 || index > s.questionCount {
		return false
	}
	s.currentIndex = index
	return true
}

// Pause suspends an Active Practice session. In Challenge mode this is a
// documented silent no-op, not an error.
func (s *Session) Pause() bool {
	if s.mode != model.ModePractice || s.status != model.SessionStatusActive {
		return false
	}
	s.status = model.SessionStatusPaused
	return true
}

// Resume reactivates a Paused session.
func (s *Session) Resume() bool {
	if s.status != model.SessionStatusPaused {
		return false
	}
	s.status = model.SessionStatusActive
	return true
}

// Submit moves the session to its terminal state: Terminated for
// ViolationCapReached, Submitted otherwise. Idempotent: once terminal,
// further calls are absorbed silently and the first reason wins. Reports
// whether this call performed the transition.
func (s *Session) Submit(reason model.SubmitReason) bool {
	if s.status.Terminal() {
		return false
	}
	if reason == model.SubmitViolationCapReached {
		s.status = model.SessionStatusTerminated
	} else {
		s.status = model.SessionStatusSubmitted
	}
	s.submitReason = reason
	return true
}

// Answers returns a copy of the answer map.
func (s *Session) Answers() map[int]model.AnswerLabel {
	out := make(map[int]model.AnswerLabel, len(s.answers))
	for qid, label := range s.answers {
		out[qid] = label
	}
	return out
}

// Flagged returns the flagged question ids, unordered.
func (s *Session) Flagged() []int {
	out := make([]int, 0, len(s.flagged))
	for qid := range s.flagged {
		out = append(out, qid)
	}
	return out
}

// IsFlagged reports whether a question is flagged.
func (s *Session) IsFlagged(questionID int) bool {
	_, ok := s.flagged[questionID]
	return ok
}

// AnsweredCount returns how many questions have an answer recorded.
func (s *Session) AnsweredCount() int { return len(s.answers) }

// FlaggedCount returns how many questions are flagged.
func (s *Session) FlaggedCount() int { return len(s.flagged) }

// Snapshot captures the restorable state for persistence.
func (s *Session) Snapshot() model.SessionSnapshot {
	return model.SessionSnapshot{
		CurrentIndex: s.currentIndex,
		Answers:      s.Answers(),
		Flagged:      s.Flagged(),
	}
}

// EncodeSnapshot serializes a snapshot for the key-value store.
func EncodeSnapshot(snap model.SessionSnapshot) string {
	data, err := json.Marshal(snap)
	if err != nil {
		return ""
	}
	return string(data)
}

// DecodeSnapshot parses a stored snapshot. A malformed value is reported
// via ok=false and callers fall back to a fresh session.
func DecodeSnapshot(raw string) (model.SessionSnapshot, bool) {
	var snap model.SessionSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return model.SessionSnapshot{}, false
	}
	return snap, true
}
