package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamMode determines pause permission, persistence behavior, and whether
// integrity monitoring is active for a session.
type ExamMode string

const (
	ModePractice  ExamMode = "PRACTICE"
	ModeChallenge ExamMode = "CHALLENGE"
)

// SessionStatus enumerates exam session states. Submitted and Terminated
// are terminal: no further mutation of answers, flags, navigation, or
// timer state is permitted once either is reached.
type SessionStatus string

const (
	SessionStatusActive     SessionStatus = "ACTIVE"
	SessionStatusPaused     SessionStatus = "PAUSED"
	SessionStatusSubmitted  SessionStatus = "SUBMITTED"
	SessionStatusTerminated SessionStatus = "TERMINATED"
)

// Terminal reports whether the status permits no further mutation.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusSubmitted || s == SessionStatusTerminated
}

// SubmitReason identifies what caused a session to end.
type SubmitReason string

const (
	SubmitUserConfirmed       SubmitReason = "USER_CONFIRMED"
	SubmitTimeExpired         SubmitReason = "TIME_EXPIRED"
	SubmitViolationCapReached SubmitReason = "VIOLATION_CAP_REACHED"
)

// AnswerLabel is one of the fixed answer options rendered to the student.
// The engine trusts the presentation layer's rendered set and does not
// validate the label against the question's options.
type AnswerLabel string

// ParseAnswerLabel normalizes and validates a wire answer value. Labels
// are a single letter A through E.
func ParseAnswerLabel(s string) (AnswerLabel, bool) {
	if len(s) != 1 {
		return "", false
	}
	c := s[0]
	if c >= 'a' && c <= 'e' {
		c -= 'a' - 'A'
	}
	if c < 'A' || c > 'E' {
		return "", false
	}
	return AnswerLabel(c), true
}

// ExamSession is the durable record of one attempt.
type ExamSession struct {
	ID         uuid.UUID     `json:"id"`
	ExamID     uuid.UUID     `json:"exam_id"`
	StudentID  int           `json:"student_id"`
	Mode       ExamMode      `json:"mode"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Status     SessionStatus `json:"status"`
}

// SessionSnapshot is the persisted form of in-flight Practice-mode state.
// Stored as JSON under the exam-state key; a malformed stored value is
// treated as absent and the session starts fresh.
type SessionSnapshot struct {
	CurrentIndex int                 `json:"current_question"`
	Answers      map[int]AnswerLabel `json:"answers"`
	Flagged      []int               `json:"flagged"`
}

// SubmissionStats is a read-only snapshot rendered by the confirmation
// dialog before a user-initiated submit.
type SubmissionStats struct {
	TotalQuestions      int `json:"total_questions"`
	AnsweredQuestions   int `json:"answered_questions"`
	UnansweredQuestions int `json:"unanswered_questions"`
	FlaggedQuestions    int `json:"flagged_questions"`
	RemainingSeconds    int `json:"remaining_seconds"`
}

// StartSessionRequest is the payload for a student starting an attempt.
type StartSessionRequest struct {
	EntryToken string `json:"entry_token" binding:"required,min=4,max=20"`
}
