// Package navguard replaces the browser's native "leave page" prompt with
// a typed confirmation flow. A sentinel history entry traps a single back
// action; the trapped navigation is parked in a pending slot until the
// user confirms or cancels.
//
// This is best-effort: a forceful tab close outside the platform's own
// beforeunload hook cannot be prevented. That residual risk is accepted.
package navguard

import "sync"

// History is the narrow driver the interceptor needs from the platform
// layer. The transport relays these as instructions to the client.
type History interface {
	// PushSentinel adds a do-nothing history entry so the next back
	// action is trapped instead of leaving the app.
	PushSentinel()
	// Forward re-advances history by one step, neutralizing a cancelled
	// back action so the user stays exactly where they were.
	Forward()
}

// Interceptor owns the pending-navigation slot for one session.
type Interceptor struct {
	mu       sync.Mutex
	history  History
	armed    bool
	awaiting bool
	resume   func()
}

// New creates an interceptor and plants the sentinel entry.
func New(history History) *Interceptor {
	i := &Interceptor{history: history, armed: true}
	history.PushSentinel()
	return i
}

// BackAttempted handles a trapped back/forward action. The concrete
// navigation (e.g. "go to the results page") is captured without being
// executed, and the caller should surface the confirmation dialog.
// Reports whether a confirmation is now awaited; a second back while one
// is already pending is absorbed.
func (i *Interceptor) BackAttempted(resume func()) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.armed || i.awaiting {
		return false
	}
	i.awaiting = true
	i.resume = resume
	return true
}

// Confirm executes the captured navigation and clears the pending slot.
func (i *Interceptor) Confirm() {
	i.mu.Lock()
	resume := i.resume
	i.resume = nil
	i.awaiting = false
	i.mu.Unlock()

	if resume != nil {
		resume()
	}
}

// Cancel clears the pending slot and pushes the user forward one step,
// undoing the back action that already happened.
func (i *Interceptor) Cancel() {
	i.mu.Lock()
	wasAwaiting := i.awaiting
	i.resume = nil
	i.awaiting = false
	i.mu.Unlock()

	if wasAwaiting {
		i.history.Forward()
	}
}

// AwaitingConfirmation reports whether a trapped navigation is waiting on
// the user.
func (i *Interceptor) AwaitingConfirmation() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.awaiting
}

// Disarm releases the interceptor when the session ends; subsequent back
// attempts pass through untouched.
func (i *Interceptor) Disarm() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.armed = false
	i.awaiting = false
	i.resume = nil
}
