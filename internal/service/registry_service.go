package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jlpt4you/exam-engine/internal/clock"
	"github.com/jlpt4you/exam-engine/internal/config"
	"github.com/jlpt4you/exam-engine/internal/engine"
	"github.com/jlpt4you/exam-engine/internal/integrity"
	"github.com/jlpt4you/exam-engine/internal/model"
	"github.com/jlpt4you/exam-engine/internal/repository"
	"github.com/jlpt4you/exam-engine/internal/session"
	"github.com/jlpt4you/exam-engine/internal/store"
)

// ErrAlreadyAttached is returned when a second connection tries to drive
// an attempt that already has a live engine. The key-value store is not
// cross-tab locked, so two tabs on one Practice title can clobber each
// other's saved state; refusing a second live engine per process is the
// documented extent of the protection.
var ErrAlreadyAttached = errors.New("attempt already has a live connection")

// RegistryService owns the live engines, one per (exam, student) attempt,
// and binds each engine's external hooks: the submission sink and
// violation callback feed Redis queues drained by the workers, and
// violations additionally fan out on the exam's monitor channel.
type RegistryService struct {
	mu      sync.Mutex
	engines map[string]*engine.Engine

	cfg         *config.Config
	sessionRepo *repository.SessionRepository
	examService *ExamService
	rdb         *redis.Client
	kv          store.Store
	clk         clock.Clock
	log         zerolog.Logger
}

// NewRegistryService creates a new RegistryService.
func NewRegistryService(
	cfg *config.Config,
	sessionRepo *repository.SessionRepository,
	examService *ExamService,
	rdb *redis.Client,
	kv store.Store,
	clk clock.Clock,
	log zerolog.Logger,
) *RegistryService {
	return &RegistryService{
		engines:     make(map[string]*engine.Engine),
		cfg:         cfg,
		sessionRepo: sessionRepo,
		examService: examService,
		rdb:         rdb,
		kv:          kv,
		clk:         clk,
		log:         log.With().Str("component", "registry").Logger(),
	}
}

func attemptKey(examID uuid.UUID, studentID int) string {
	return fmt.Sprintf("%s:%d", examID, studentID)
}

// Start validates the entry token and records the attempt. Idempotent for
// an unfinished attempt; a finished attempt cannot be restarted.
func (s *RegistryService) Start(ctx context.Context, examID uuid.UUID, studentID int, entryToken string) (*model.ExamSession, error) {
	exam, err := s.examService.GetExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.EntryToken != entryToken {
		return nil, errors.New("invalid entry token")
	}

	existing, err := s.sessionRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing session: %w", err)
	}
	if existing != nil {
		if existing.Status.Terminal() {
			return nil, errors.New("session already finished")
		}
		return existing, nil
	}

	sess := &model.ExamSession{
		ExamID:    examID,
		StudentID: studentID,
		Mode:      exam.Mode,
		Status:    model.SessionStatusActive,
	}
	if err := s.sessionRepo.Create(ctx, sess); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Concurrent start: the other caller's row won.
			return s.sessionRepo.GetByExamAndStudent(ctx, examID, studentID)
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	_ = s.rdb.Set(ctx, config.CacheKey.StudentActiveExamKey(studentID), examID.String(), 0)
	return sess, nil
}

// Attach builds a live engine for an unfinished attempt and hands the
// event stream to sink. One live engine per attempt.
func (s *RegistryService) Attach(ctx context.Context, examID uuid.UUID, studentID int, sink engine.EventSink) (*engine.Engine, error) {
	sess, err := s.sessionRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("no session: %w", err)
	}
	if sess.Status.Terminal() {
		return nil, errors.New("session already finished")
	}

	payload, err := s.examService.GetPayload(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get payload: %w", err)
	}

	key := attemptKey(examID, studentID)

	s.mu.Lock()
	if _, ok := s.engines[key]; ok {
		s.mu.Unlock()
		return nil, ErrAlreadyAttached
	}
	eng := engine.New(engine.Options{
		StudentID: studentID,
		Exam:      payload,
		Clock:     s.clk,
		Store:     s.kv,
		Sink:      sink,
		Hooks: engine.Hooks{
			OnSubmit:    s.submitHook(examID, studentID),
			OnViolation: s.violationHook(examID, studentID),
			OnPause:     s.pauseHook(examID, studentID),
		},
		Integrity: integrity.Config{
			MaxViolations:     s.cfg.MaxViolations,
			GracePeriod:       time.Duration(s.cfg.GraceSeconds) * time.Second,
			RestoredNotice:    time.Duration(s.cfg.RestoredSeconds) * time.Second,
			FinalWarningDelay: time.Duration(s.cfg.FinalWarnSeconds) * time.Second,
		},
		DebounceQuiet: time.Duration(s.cfg.DebounceQuietMs) * time.Millisecond,
		TimeSyncEvery: s.cfg.TimePushIntervalMs / 1000,
	}, s.log)
	s.engines[key] = eng
	s.mu.Unlock()

	return eng, nil
}

// Detach releases the live engine when its connection unwinds. abandon
// removes any persisted Practice state instead of flushing it.
func (s *RegistryService) Detach(examID uuid.UUID, studentID int, abandon bool) {
	key := attemptKey(examID, studentID)

	s.mu.Lock()
	eng, ok := s.engines[key]
	delete(s.engines, key)
	s.mu.Unlock()

	if ok {
		eng.Close(abandon)
	}
}

// Engine returns the live engine for an attempt, if any.
func (s *RegistryService) Engine(examID uuid.UUID, studentID int) (*engine.Engine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	eng, ok := s.engines[attemptKey(examID, studentID)]
	return eng, ok
}

// AttemptState is the reload view: what a reconnecting client needs to
// re-render the paper exactly where the student left it.
type AttemptState struct {
	Snapshot         model.SessionSnapshot `json:"snapshot"`
	Status           model.SessionStatus   `json:"status"`
	RemainingSeconds int                   `json:"remaining_seconds"`
	Live             bool                  `json:"live"`
}

// State serves the reload endpoint. A live engine answers directly; for a
// Practice attempt with no live engine, the persisted snapshot answers;
// anything else starts fresh.
func (s *RegistryService) State(ctx context.Context, examID uuid.UUID, studentID int) (*AttemptState, error) {
	sess, err := s.sessionRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("no session: %w", err)
	}

	if eng, ok := s.Engine(examID, studentID); ok {
		snap, status, remaining := eng.State()
		return &AttemptState{Snapshot: snap, Status: status, RemainingSeconds: remaining, Live: true}, nil
	}

	payload, err := s.examService.GetPayload(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get payload: %w", err)
	}

	state := &AttemptState{
		Snapshot:         model.SessionSnapshot{CurrentIndex: 1},
		Status:           sess.Status,
		RemainingSeconds: payload.DurationMinutes * 60,
	}

	if sess.Mode == model.ModePractice {
		if raw, ok := s.kv.Get(config.CacheKey.SessionStateKey(payload.Title, studentID)); ok {
			if snap, ok := session.DecodeSnapshot(raw); ok {
				state.Snapshot = snap
			}
		}
		if raw, ok := s.kv.Get(config.CacheKey.SessionTimeKey(payload.Title, studentID)); ok {
			if secs, convErr := strconv.Atoi(raw); convErr == nil && secs >= 0 {
				state.RemainingSeconds = secs
			}
		}
	}

	return state, nil
}

type resultPayload struct {
	StudentID int               `json:"student_id"`
	ExamID    string            `json:"exam_id"`
	Answers   map[string]string `json:"answers"`
	Reason    string            `json:"reason"`
	Timestamp int64             `json:"timestamp"`
}

type violationPayload struct {
	StudentID int    `json:"student_id"`
	ExamID    string `json:"exam_id"`
	Kind      string `json:"kind"`
	Count     int    `json:"count,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// submitHook is the submission sink: exactly one invocation per session
// with the final answers. It queues the result for durable persistence
// and closes out the attempt row.
func (s *RegistryService) submitHook(examID uuid.UUID, studentID int) func(map[int]model.AnswerLabel, model.SubmitReason) {
	return func(answers map[int]model.AnswerLabel, reason model.SubmitReason) {
		ctx := context.Background()

		flat := make(map[string]string, len(answers))
		for qid, label := range answers {
			flat[strconv.Itoa(qid)] = string(label)
		}
		data, _ := json.Marshal(resultPayload{
			StudentID: studentID,
			ExamID:    examID.String(),
			Answers:   flat,
			Reason:    string(reason),
			Timestamp: time.Now().Unix(),
		})
		if err := s.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, data).Err(); err != nil {
			s.log.Error().Err(err).Int("student_id", studentID).Msg("Failed to queue result")
		}

		status := model.SessionStatusSubmitted
		if reason == model.SubmitViolationCapReached {
			status = model.SessionStatusTerminated
		}
		if err := s.sessionRepo.Finish(ctx, examID, studentID, status); err != nil {
			s.log.Error().Err(err).Int("student_id", studentID).Msg("Failed to finish session row")
		}
		_ = s.rdb.Del(ctx, config.CacheKey.StudentActiveExamKey(studentID))

		// The engine is done; drop it from the registry. Close is
		// idempotent, so the later Detach from the connection teardown
		// is harmless.
		s.mu.Lock()
		delete(s.engines, attemptKey(examID, studentID))
		s.mu.Unlock()
	}
}

// violationHook feeds each recorded violation to the persistence queue
// and the live proctor channel. Escalation never depends on either.
func (s *RegistryService) violationHook(examID uuid.UUID, studentID int) func(model.ViolationRecord, int) {
	return func(rec model.ViolationRecord, count int) {
		ctx := context.Background()
		data, _ := json.Marshal(violationPayload{
			StudentID: studentID,
			ExamID:    examID.String(),
			Kind:      string(rec.Kind),
			Count:     count,
			Timestamp: rec.Timestamp.Unix(),
		})
		if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data).Err(); err != nil {
			s.log.Error().Err(err).Int("student_id", studentID).Msg("Failed to queue violation")
		}
		if err := s.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID.String()), data).Err(); err != nil {
			s.log.Debug().Err(err).Msg("Monitor publish failed")
		}
	}
}

// pauseHook mirrors Practice pause/resume toggles onto the monitor
// channel so proctor dashboards can dim paused students.
func (s *RegistryService) pauseHook(examID uuid.UUID, studentID int) func(bool) {
	return func(paused bool) {
		ctx := context.Background()
		data, _ := json.Marshal(map[string]interface{}{
			"student_id": studentID,
			"exam_id":    examID.String(),
			"paused":     paused,
		})
		_ = s.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID.String()), data).Err()
	}
}

// Shutdown closes every live engine, flushing Practice snapshots.
func (s *RegistryService) Shutdown() {
	s.mu.Lock()
	engines := make([]*engine.Engine, 0, len(s.engines))
	for _, eng := range s.engines {
		engines = append(engines, eng)
	}
	s.engines = make(map[string]*engine.Engine)
	s.mu.Unlock()

	for _, eng := range engines {
		eng.Close(false)
	}
}
