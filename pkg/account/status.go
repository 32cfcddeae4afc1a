package account

import (
	"context"
	"fmt"
	"sync"
)

// Status is the login state of the account manager.
type Status string

const (
	StatusInitializing Status = "Initializing"
	StatusLoggingIn    Status = "LoggingIn"
	StatusLoggedOut    Status = "LoggedOut"
	StatusLoggedIn     Status = "LoggedIn"
)

// UnexpectedStatusError indicates a status value outside the state machine.
// Reaching it is a programming error, not a runtime condition.
type UnexpectedStatusError struct {
	Status Status
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("unexpected status '%s'", e.Status)
}

// StatusTracker drives the Initializing -> LoggingIn <-> LoggedOut/LoggedIn
// state machine. LoggedIn is never set directly: it is recomputed from the
// session count via Update, so the invariant "LoggedIn iff sessions exist"
// holds by construction.
type StatusTracker struct {
	mu      sync.Mutex
	status  Status
	changed chan struct{}

	// onChange is invoked outside the tracker lock after every transition.
	onChange func(status Status)
}

func NewStatusTracker(onChange func(status Status)) *StatusTracker {
	if onChange == nil {
		onChange = func(Status) {}
	}

	return &StatusTracker{
		status:   StatusInitializing,
		changed:  make(chan struct{}),
		onChange: onChange,
	}
}

// Current returns the current status.
func (t *StatusTracker) Current() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.status
}

// BeginLoggingIn marks a login as in progress, unless the user is already
// logged in.
func (t *StatusTracker) BeginLoggingIn() {
	t.mu.Lock()
	if t.status == StatusLoggedIn || t.status == StatusLoggingIn {
		t.mu.Unlock()
		return
	}

	t.status = StatusLoggingIn
	t.notifyLocked()
	status := t.status
	t.mu.Unlock()

	t.onChange(status)
}

// Update recomputes the settled status from the session count and notifies
// observers only when the status actually changed.
func (t *StatusTracker) Update(sessionCount int) {
	next := StatusLoggedOut
	if sessionCount > 0 {
		next = StatusLoggedIn
	}

	t.mu.Lock()
	if t.status == next {
		t.mu.Unlock()
		return
	}

	t.status = next
	t.notifyLocked()
	t.mu.Unlock()

	t.onChange(next)
}

// WaitForLogin resolves true once the status reaches LoggedIn and false
// once it reaches LoggedOut, suspending through Initializing and LoggingIn
// however many times the status toggles through them first.
func (t *StatusTracker) WaitForLogin(ctx context.Context) (bool, error) {
	for {
		t.mu.Lock()
		status := t.status
		changed := t.changed
		t.mu.Unlock()

		switch status {
		case StatusLoggedIn:
			return true, nil
		case StatusLoggedOut:
			return false, nil
		case StatusInitializing, StatusLoggingIn:
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-changed:
			}
		default:
			return false, &UnexpectedStatusError{Status: status}
		}
	}
}

// notifyLocked wakes every waiter by closing the broadcast channel and
// arming a fresh one.
func (t *StatusTracker) notifyLocked() {
	close(t.changed)
	t.changed = make(chan struct{})
}
