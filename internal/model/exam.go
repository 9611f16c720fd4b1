package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Exam is the stored definition of a test paper.
type Exam struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	Mode            ExamMode  `json:"mode"`
	DurationMinutes int       `json:"duration_minutes"`
	EntryToken      string    `json:"entry_token,omitempty"`
	QuestionCount   int       `json:"question_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// Question carries a stable numeric id and a fixed small set of answer
// labels. The engine treats questions as read-only input.
type Question struct {
	ID      int             `json:"id"`
	Text    string          `json:"question"`
	Options json.RawMessage `json:"options"`
}

// ExamPayload is the Redis-cached paper sent to students. It never
// contains correct answers.
type ExamPayload struct {
	ExamID          uuid.UUID  `json:"exam_id"`
	Title           string     `json:"title"`
	Mode            ExamMode   `json:"mode"`
	DurationMinutes int        `json:"duration_minutes"`
	Questions       []Question `json:"questions"`
}
