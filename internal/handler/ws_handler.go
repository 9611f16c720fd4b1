package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/jlpt4you/exam-engine/internal/engine"
	"github.com/jlpt4you/exam-engine/internal/middleware"
	"github.com/jlpt4you/exam-engine/internal/model"
	"github.com/jlpt4you/exam-engine/internal/service"
	ws "github.com/jlpt4you/exam-engine/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler drives one exam attempt over a WebSocket: inbound frames are
// engine operations and forwarded browser signals, outbound frames are
// the engine's event stream.
type WSHandler struct {
	registry *service.RegistryService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(registry *service.RegistryService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		registry: registry,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// ExamSessionStream godoc
// WS /ws/v1/student/exams/:exam_id/session
// Upgrades to WebSocket and attaches a live engine for the attempt.
func (h *WSHandler) ExamSessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam ID"})
		return
	}

	rawConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer rawConn.Close()

	studentID := claims.UserID
	conn := ws.NewConn(rawConn)

	eng, err := h.registry.Attach(c.Request.Context(), examID, studentID, &wsSink{conn: conn})
	if err != nil {
		conn.WriteError(err.Error())
		return
	}
	defer h.registry.Detach(examID, studentID, false)

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("exam_id", examID.String()).
		Logger()

	wsLog.Info().Msg("Student connected")

	for {
		var msg ws.Request
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionAnswer:
			h.handleAnswer(conn, eng, &msg)
		case ws.ActionFlag:
			if msg.QID <= 0 {
				conn.WriteError("q_id is required")
				continue
			}
			eng.ToggleFlag(msg.QID)
			conn.WriteTyped(ws.SavedEvent{Event: ws.EventSaved, QID: msg.QID})
		case ws.ActionGoto:
			eng.GoTo(msg.Index)
		case ws.ActionPause:
			eng.Pause()
		case ws.ActionResume:
			eng.Resume()
		case ws.ActionSubmit:
			eng.Submit(model.SubmitUserConfirmed)
		case ws.ActionStats:
			conn.WriteTyped(ws.StatsEvent{Event: ws.EventStats, Stats: eng.Stats()})
		case ws.ActionSignal:
			h.handleSignal(conn, eng, &msg)
		case ws.ActionNavBack:
			eng.BackAttempted(msg.Target)
		case ws.ActionNavConfirm:
			eng.NavConfirm()
		case ws.ActionNavCancel:
			eng.NavCancel()
		case ws.ActionPing:
			conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			conn.WriteError("unknown action: " + string(msg.Action))
		}
	}
}

// handleAnswer records a single answer selection, last write wins.
func (h *WSHandler) handleAnswer(conn *ws.Conn, eng *engine.Engine, msg *ws.Request) {
	if msg.QID <= 0 || msg.Answer == "" {
		conn.WriteError("q_id and ans are required")
		return
	}
	label, ok := model.ParseAnswerLabel(msg.Answer)
	if !ok {
		conn.WriteError("invalid answer label")
		return
	}
	eng.SelectAnswer(msg.QID, label)
	conn.WriteTyped(ws.SavedEvent{Event: ws.EventSaved, QID: msg.QID})
}

// handleSignal maps a forwarded browser event onto the integrity monitor.
func (h *WSHandler) handleSignal(conn *ws.Conn, eng *engine.Engine, msg *ws.Request) {
	switch msg.Signal {
	case ws.SignalFullscreen:
		eng.FullscreenChanged(msg.Value == "on")
	case ws.SignalBlur:
		eng.WindowBlurred()
	case ws.SignalHidden:
		eng.VisibilityChanged(msg.Value == "on")
	case ws.SignalSuppressed:
		eng.InteractionSuppressed(msg.Value)
	default:
		conn.WriteError("unknown signal: " + msg.Signal)
	}
}

// wsSink pushes engine events to the client as typed frames. Write
// failures are swallowed; a dead connection surfaces in the read loop.
type wsSink struct {
	conn *ws.Conn
}

func (s *wsSink) ViolationWarning(rec model.ViolationRecord, count, max int) {
	s.conn.WriteTyped(ws.WarningEvent{
		Event:     ws.EventWarning,
		Kind:      string(rec.Kind),
		Count:     count,
		Max:       max,
		Timestamp: rec.Timestamp.Unix(),
	})
}

func (s *wsSink) FullscreenRestored(visible bool) {
	s.conn.WriteTyped(ws.RestoredEvent{Event: ws.EventRestored, Visible: visible})
}

func (s *wsSink) TimeSync(remainingSeconds int, display string) {
	s.conn.WriteTyped(ws.TimeEvent{Event: ws.EventTime, Remaining: remainingSeconds, Display: display})
}

func (s *wsSink) NavPushSentinel() {
	s.conn.WriteTyped(ws.NavEvent{Event: ws.EventNavSentinel})
}

func (s *wsSink) NavPrompt() {
	s.conn.WriteTyped(ws.NavEvent{Event: ws.EventNavPrompt})
}

func (s *wsSink) NavNavigate(target string) {
	s.conn.WriteTyped(ws.NavEvent{Event: ws.EventNavGo, Target: target})
}

func (s *wsSink) NavForward() {
	s.conn.WriteTyped(ws.NavEvent{Event: ws.EventNavForward})
}

func (s *wsSink) PauseChanged(paused bool) {
	s.conn.WriteTyped(ws.PausedEvent{Event: ws.EventPaused, Paused: paused})
}

func (s *wsSink) SessionEnded(reason model.SubmitReason, status model.SessionStatus) {
	s.conn.WriteTyped(ws.EndedEvent{Event: ws.EventEnded, Reason: string(reason), Status: string(status)})
}
