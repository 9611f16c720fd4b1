package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jlpt4you/exam-engine/internal/repository"
)

// StudentMonitorRow is one student's aggregate line on the proctor
// dashboard.
type StudentMonitorRow struct {
	StudentID      int    `json:"student_id"`
	Status         string `json:"status"`
	ViolationCount int64  `json:"violation_count"`
}

// MonitorService builds the proctor's aggregate view of an exam. Live
// events arrive over the monitor PubSub channel; this service answers the
// initial snapshot a dashboard needs before the stream takes over.
type MonitorService struct {
	monitorRepo *repository.MonitorRepository
	log         zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(monitorRepo *repository.MonitorRepository, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		monitorRepo: monitorRepo,
		log:         log.With().Str("component", "monitor_service").Logger(),
	}
}

// GetExamOverview fetches violation counts and session statuses in
// parallel and merges them per student.
func (s *MonitorService) GetExamOverview(ctx context.Context, examID uuid.UUID) ([]StudentMonitorRow, error) {
	var (
		wg        sync.WaitGroup
		counts    map[int]int64
		statuses  map[int]string
		countsErr error
		statusErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		counts, countsErr = s.monitorRepo.GetViolationCounts(ctx, examID)
	}()
	go func() {
		defer wg.Done()
		statuses, statusErr = s.monitorRepo.GetSessionStatuses(ctx, examID)
	}()
	wg.Wait()

	if countsErr != nil {
		return nil, fmt.Errorf("violation counts: %w", countsErr)
	}
	if statusErr != nil {
		return nil, fmt.Errorf("session statuses: %w", statusErr)
	}

	rows := make([]StudentMonitorRow, 0, len(statuses))
	for studentID, status := range statuses {
		rows = append(rows, StudentMonitorRow{
			StudentID:      studentID,
			Status:         status,
			ViolationCount: counts[studentID],
		})
	}
	return rows, nil
}
