// Package retry computes backoff schedules and classifies failures for
// the work-item retry policy described in the core spec: terminal
// failures fail an item outright, transient and stuck failures share a
// backoff curve but are tracked with distinct counters.
package retry

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// Class distinguishes how a failure should be handled by the policy.
type Class int

const (
	// Transient failures are retried up to Cap attempts.
	Transient Class = iota
	// Stuck is a transient subtype raised by the heartbeat sweeper; it
	// shares the backoff curve with Transient but is tracked with its
	// own counter so operators can tell the two apart.
	Stuck
	// Terminal failures fail the item immediately, no retry.
	Terminal
)

// Policy holds the tunables for backoff calculation and attempt capping.
type Policy struct {
	// Cap is the number of retryCount increments allowed before an item
	// is failed outright.
	Cap int
	// BaseDelay is the backoff ceiling for attempt 1; it doubles with
	// each later attempt. Jitter draws the actual delay from [0, ceiling).
	BaseDelay time.Duration
	// MaxDelay caps the backoff regardless of attempt count.
	MaxDelay time.Duration
}

// DefaultPolicy mirrors the spec's stated defaults: cap 3, 30s base,
// 30 minute ceiling.
func DefaultPolicy() Policy {
	return Policy{
		Cap:       3,
		BaseDelay: 30 * time.Second,
		MaxDelay:  30 * time.Minute,
	}
}

// Exhausted reports whether attempt has used up the retry budget.
func (p Policy) Exhausted(attempt int) bool {
	return attempt >= p.Cap
}

// Delay computes exponential backoff with full jitter:
// random(0, min(maxDelay, baseDelay * 2^(attempt-1))).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if backoff > float64(p.MaxDelay) {
		backoff = float64(p.MaxDelay)
	}

	maxJitter := int64(backoff)
	if maxJitter <= 0 {
		return p.BaseDelay
	}

	jitter, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
	if err != nil {
		return p.BaseDelay
	}
	return time.Duration(jitter.Int64())
}

// Decision is the outcome of applying the policy to a failure.
type Decision struct {
	// Failed is true when the item should move to status=failed.
	Failed bool
	// NextRetryAt is set when the item should return to queued with
	// this visibility gate.
	NextRetryAt time.Time
	// RetryCount and StuckCount are the updated counters to persist.
	RetryCount int
	StuckCount int
}

// Apply decides the outcome of a failure of the given class against the
// item's current counters, using now as the reference clock.
func Apply(p Policy, class Class, retryCount, stuckCount int, now time.Time) Decision {
	if class == Terminal {
		return Decision{Failed: true, RetryCount: retryCount, StuckCount: stuckCount}
	}

	newRetryCount, newStuckCount := retryCount, stuckCount
	attempt := retryCount + 1
	if class == Stuck {
		newStuckCount = stuckCount + 1
		attempt = stuckCount + 1
	} else {
		newRetryCount = retryCount + 1
	}

	if p.Exhausted(attempt) {
		return Decision{Failed: true, RetryCount: newRetryCount, StuckCount: newStuckCount}
	}

	return Decision{
		Failed:      false,
		NextRetryAt: now.Add(p.Delay(attempt)),
		RetryCount:  newRetryCount,
		StuckCount:  newStuckCount,
	}
}
