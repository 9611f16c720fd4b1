// Package countdown implements the exam timer: a once-per-second
// countdown with Practice-mode pause semantics and an exactly-once expiry
// callback.
//
// Like session.Session, a Countdown carries no lock of its own; the engine
// serializes ticks and control calls.
package countdown

import "fmt"

// State enumerates timer phases. Expired is terminal.
type State int

const (
	Running State = iota
	Paused
	Expired
)

// Countdown tracks remaining whole seconds for one attempt.
type Countdown struct {
	remaining int
	state     State
	onExpire  func()
	fired     bool
}

// New creates a Running countdown with the given number of seconds.
// onExpire is invoked exactly once, from the Tick that reaches zero. A
// non-positive seed expires on the first tick.
func New(seconds int, onExpire func()) *Countdown {
	if seconds < 0 {
		seconds = 0
	}
	return &Countdown{
		remaining: seconds,
		state:     Running,
		onExpire:  onExpire,
	}
}

// Tick consumes one clock second: while Running, remaining decreases by 1,
// floored at zero. Reaching zero transitions to Expired and fires the
// expiry callback. Ticks received while Paused or Expired change nothing.
func (c *Countdown) Tick() {
	if c.state != Running {
		return
	}
	if c.remaining > 0 {
		c.remaining--
	}
	if c.remaining == 0 {
		c.state = Expired
		if !c.fired {
			c.fired = true
			if c.onExpire != nil {
				c.onExpire()
			}
		}
	}
}

// Pause halts the countdown. No-op when Expired.
func (c *Countdown) Pause() {
	if c.state == Running {
		c.state = Paused
	}
}

// Resume restarts a paused countdown. No-op when Expired.
func (c *Countdown) Resume() {
	if c.state == Paused {
		c.state = Running
	}
}

func (c *Countdown) State() State   { return c.state }
func (c *Countdown) Remaining() int { return c.remaining }

// Format renders seconds as a display string. Hours appear only at one
// hour or more: Format(3661) == "1:01:01", Format(61) == "1:01",
// Format(5) == "0:05".
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
