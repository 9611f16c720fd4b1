package websocket

import (
	"github.com/jlpt4you/exam-engine/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer     Action = "answer"
	ActionFlag       Action = "flag"
	ActionGoto       Action = "goto"
	ActionPause      Action = "pause"
	ActionResume     Action = "resume"
	ActionSubmit     Action = "submit"
	ActionStats      Action = "stats"
	ActionSignal     Action = "signal"
	ActionNavBack    Action = "nav_back"
	ActionNavConfirm Action = "nav_confirm"
	ActionNavCancel  Action = "nav_cancel"
	ActionPing       Action = "ping"
)

// Signal names carried by ActionSignal. The client forwards raw browser
// events; the engine decides what counts as a violation.
const (
	SignalFullscreen = "fullscreen" // value: "on" / "off"
	SignalBlur       = "blur"
	SignalHidden     = "hidden" // value: "on" / "off"
	SignalSuppressed = "suppressed"
)

// Request is the single inbound frame shape; unused fields stay empty.
type Request struct {
	Action Action `json:"action"`
	QID    int    `json:"q_id,omitempty"`
	Answer string `json:"ans,omitempty"`
	Index  int    `json:"index,omitempty"`
	Signal string `json:"signal,omitempty"`
	Value  string `json:"value,omitempty"`
	Target string `json:"target,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError       Event = "error"
	EventSaved       Event = "saved"
	EventStats       Event = "stats"
	EventTime        Event = "time"
	EventWarning     Event = "warning"
	EventRestored    Event = "restored"
	EventPaused      Event = "paused"
	EventNavSentinel Event = "nav_sentinel"
	EventNavPrompt   Event = "nav_prompt"
	EventNavGo       Event = "nav_go"
	EventNavForward  Event = "nav_forward"
	EventEnded       Event = "ended"
	EventPong        Event = "pong"
)

type SavedEvent struct {
	Event Event `json:"event"`
	QID   int   `json:"q_id,omitempty"`
}

type StatsEvent struct {
	Event Event                 `json:"event"`
	Stats model.SubmissionStats `json:"stats"`
}

type TimeEvent struct {
	Event     Event  `json:"event"`
	Remaining int    `json:"remaining"`
	Display   string `json:"display"`
}

type WarningEvent struct {
	Event     Event  `json:"event"`
	Kind      string `json:"kind"`
	Count     int    `json:"count"`
	Max       int    `json:"max"`
	Timestamp int64  `json:"timestamp"`
}

type RestoredEvent struct {
	Event   Event `json:"event"`
	Visible bool  `json:"visible"`
}

type PausedEvent struct {
	Event  Event `json:"event"`
	Paused bool  `json:"paused"`
}

type NavEvent struct {
	Event  Event  `json:"event"`
	Target string `json:"target,omitempty"`
}

type EndedEvent struct {
	Event  Event  `json:"event"`
	Reason string `json:"reason"`
	Status string `json:"status"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
