package model

import "time"

// ViolationKind enumerates recordable integrity violations. Right-click and
// text-selection attempts are suppressed silently and never recorded.
type ViolationKind string

const (
	ViolationFullscreenExit ViolationKind = "FULLSCREEN_EXIT"
	ViolationWindowBlur     ViolationKind = "WINDOW_BLUR"
	ViolationTabSwitch      ViolationKind = "TAB_SWITCH"
)

// ViolationRecord is one entry in the monitor's append-only log. The
// timestamp is taken at detection, after any grace period has elapsed.
type ViolationRecord struct {
	Kind      ViolationKind `json:"kind"`
	Timestamp time.Time     `json:"timestamp"`
}
