package domain

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the webhook boundary and worker gates.
var (
	// ErrLockHeld means another worker holds the per-chat lock. Retryable:
	// the job stays on the queue and is redelivered after the visibility
	// timeout.
	ErrLockHeld = errors.New("chat lock held")

	// ErrSenderRateLimited means the sender exhausted its message budget for
	// the current window. Terminal: the job is not requeued.
	ErrSenderRateLimited = errors.New("sender rate limited")
)

// DispatchError wraps a failed provider send. Retryable decides whether the
// job is redelivered or terminated with a user-facing apology.
type DispatchError struct {
	Err       error
	Status    int
	Retryable bool
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch failed (status %d): %v", e.Status, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// AIError marks a failed or timed-out AI turn. Always terminal for the
// current turn: the worker sends an apology instead of retrying the model.
type AIError struct {
	Err error
}

func (e *AIError) Error() string { return "ai turn failed: " + e.Err.Error() }
func (e *AIError) Unwrap() error { return e.Err }

// IsRetryable classifies a worker error for the queue. Anything not
// explicitly terminal is retryable, so transient infrastructure faults get
// the queue's redrive/backoff rather than a silent drop.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrLockHeld) {
		return true
	}
	if errors.Is(err, ErrSenderRateLimited) {
		return false
	}
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Retryable
	}
	var ae *AIError
	if errors.As(err, &ae) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	return true
}
