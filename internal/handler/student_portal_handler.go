package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jlpt4you/exam-engine/internal/middleware"
	"github.com/jlpt4you/exam-engine/internal/model"
	"github.com/jlpt4you/exam-engine/internal/response"
	"github.com/jlpt4you/exam-engine/internal/service"
	"github.com/jlpt4you/exam-engine/internal/validator"
)

// StudentPortalHandler handles the student-facing HTTP endpoints: starting
// an attempt, fetching the paper, and the reload-state view. The live
// attempt itself runs over the WebSocket stream.
type StudentPortalHandler struct {
	registry    *service.RegistryService
	examService *service.ExamService
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(registry *service.RegistryService, examService *service.ExamService) *StudentPortalHandler {
	return &StudentPortalHandler{
		registry:    registry,
		examService: examService,
	}
}

// StartSession godoc
// POST /api/v1/student/exams/:exam_id/session
// Validates the entry token and records the attempt (idempotent while
// the attempt is unfinished).
func (h *StudentPortalHandler) StartSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	session, err := h.registry.Start(c.Request.Context(), examID, claims.UserID, req.EntryToken)
	if err != nil {
		switch err.Error() {
		case "invalid entry token":
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidEntryToken)
		case "session already finished":
			response.Fail(c, http.StatusConflict, response.ErrSessionFinished)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// GetExamPaper godoc
// GET /api/v1/student/exams/:exam_id/paper
// Returns the exam payload from Redis. Requires an unfinished attempt so
// a student cannot pull papers they never joined.
func (h *StudentPortalHandler) GetExamPaper(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if _, err := h.registry.State(c.Request.Context(), examID, claims.UserID); err != nil {
		response.Fail(c, http.StatusForbidden, response.ErrNoActiveSession)
		return
	}

	payload, err := h.examService.GetPayload(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrExamNotAvailable)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"paper": payload})
}

// GetSessionState godoc
// GET /api/v1/student/exams/:exam_id/state
// Returns the attempt's restore view: snapshot, status, and remaining
// time. Served from the live engine when one is attached, otherwise from
// the persisted Practice state.
func (h *StudentPortalHandler) GetSessionState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	state, err := h.registry.State(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNoActiveSession)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"state": state})
}
