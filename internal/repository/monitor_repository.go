package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MonitorRepository serves the proctor dashboard's aggregate queries.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// GetViolationCounts returns student_id → recorded violation count for an exam.
func (r *MonitorRepository) GetViolationCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, COUNT(*)
		 FROM exam_violations
		 WHERE exam_id = $1
		 GROUP BY student_id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var studentID int
		var count int64
		if err := rows.Scan(&studentID, &count); err != nil {
			return nil, err
		}
		counts[studentID] = count
	}
	return counts, rows.Err()
}

// GetSessionStatuses returns student_id → session status for an exam.
func (r *MonitorRepository) GetSessionStatuses(ctx context.Context, examID uuid.UUID) (map[int]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, status
		 FROM exam_sessions
		 WHERE exam_id = $1`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	statuses := make(map[int]string)
	for rows.Next() {
		var studentID int
		var status string
		if err := rows.Scan(&studentID, &status); err != nil {
			return nil, err
		}
		statuses[studentID] = status
	}
	return statuses, rows.Err()
}
