package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jlpt4you/exam-engine/internal/config"
	"github.com/jlpt4you/exam-engine/internal/model"
	"github.com/jlpt4you/exam-engine/internal/repository"
)

// ExamService is the engine's question source: exams and their question
// sequences, served from a Redis payload cache warmed out of PostgreSQL.
// The payload never contains correct answers; the engine treats questions
// as read-only input.
type ExamService struct {
	examRepo *repository.ExamRepository
	rdb      *redis.Client
}

// NewExamService creates a new ExamService.
func NewExamService(examRepo *repository.ExamRepository, rdb *redis.Client) *ExamService {
	return &ExamService{examRepo: examRepo, rdb: rdb}
}

// GetExam retrieves the exam definition (no questions).
func (s *ExamService) GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	return s.examRepo.GetByID(ctx, examID)
}

// GetPayload returns the cached student paper, warming the cache from
// PostgreSQL on a miss.
func (s *ExamService) GetPayload(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error) {
	key := config.CacheKey.ExamPayloadKey(examID.String())

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var payload model.ExamPayload
		if jsonErr := json.Unmarshal(data, &payload); jsonErr == nil {
			return &payload, nil
		}
		// Malformed cache entry: fall through and rebuild it.
		s.rdb.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get payload: %w", err)
	}

	return s.warmPayload(ctx, examID)
}

// warmPayload builds the payload from PostgreSQL and caches it.
func (s *ExamService) warmPayload(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	questions, err := s.examRepo.ListQuestions(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, errors.New("exam has no questions")
	}

	payload := &model.ExamPayload{
		ExamID:          exam.ID,
		Title:           exam.Title,
		Mode:            exam.Mode,
		DurationMinutes: exam.DurationMinutes,
		Questions:       questions,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.ExamPayloadKey(examID.String()), data, 0).Err(); err != nil {
		// Cache write failure is not fatal; the next request warms again.
		return payload, nil
	}

	return payload, nil
}
