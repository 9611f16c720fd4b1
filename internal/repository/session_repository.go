package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jlpt4you/exam-engine/internal/model"
)

// SessionRepository handles exam session data access.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// GetByExamAndStudent retrieves a session for a specific exam-student combination.
func (r *SessionRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, student_id, mode, started_at, finished_at, status
		 FROM exam_sessions
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID,
	).Scan(&s.ID, &s.ExamID, &s.StudentID, &s.Mode, &s.StartedAt, &s.FinishedAt, &s.Status)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a new exam session (student starts an attempt).
func (r *SessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions (exam_id, student_id, mode, status)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (exam_id, student_id) DO NOTHING
		 RETURNING id, started_at`,
		s.ExamID, s.StudentID, s.Mode, model.SessionStatusActive,
	).Scan(&s.ID, &s.StartedAt)
}

// Finish marks a session Submitted or Terminated.
func (r *SessionRepository) Finish(ctx context.Context, examID uuid.UUID, studentID int, status model.SessionStatus) error {
	now := time.Now()
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET status = $1, finished_at = $2
		 WHERE exam_id = $3 AND student_id = $4`,
		status, now, examID, studentID)
	return err
}

// Delete removes a session row (explicit abandonment of a Practice attempt).
func (r *SessionRepository) Delete(ctx context.Context, examID uuid.UUID, studentID int) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM exam_sessions WHERE exam_id = $1 AND student_id = $2`,
		examID, studentID)
	return err
}
