package retry

import (
	"errors"
	"fmt"
)

// RetryableError wraps a transient failure: one that may succeed if
// retried. Only errors wrapped with Wrap() are retried by the
// retry policy; everything else is treated as Terminal.
//
// Use for: store unavailable, child-process crash, heartbeat timeout.
// Don't use for: validation errors, conflicts, invariant breaches.
type RetryableError struct {
	Err error
}

func (e RetryableError) Error() string { return e.Err.Error() }
func (e RetryableError) Unwrap() error { return e.Err }

// Wrap marks err as transient.
func Wrap(err error) error {
	return RetryableError{Err: err}
}

// IsRetryable reports whether err was wrapped with Wrap.
func IsRetryable(err error) bool {
	var retryable RetryableError
	return errors.As(err, &retryable)
}

// Cancelled indicates the underlying work item was cancelled while its
// worker or spec-gen attempt was in flight: the terminal state is
// cancelled, not failed, and no retry should be scheduled.
type Cancelled struct {
	Reason string
}

func (e Cancelled) Error() string {
	return fmt.Sprintf("cancelled: %s", e.Reason)
}

// IsCancelled reports whether err indicates intentional cancellation.
func IsCancelled(err error) bool {
	var cancelled Cancelled
	return errors.As(err, &cancelled)
}

// ClassifyErr maps an error produced by a fallible operation to a
// retry.Class: a Cancelled error is never retried (callers must check
// IsCancelled explicitly and transition to cancelled rather than
// failed); a wrapped transient error is Transient; anything else is
// Terminal.
func ClassifyErr(err error) Class {
	if IsRetryable(err) {
		return Transient
	}
	return Terminal
}
