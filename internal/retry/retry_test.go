package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyTerminalFailsImmediately(t *testing.T) {
	d := Apply(DefaultPolicy(), Terminal, 0, 0, time.Now())
	assert.True(t, d.Failed)
}

func TestApplyTransientRetriesUntilCap(t *testing.T) {
	p := Policy{Cap: 3, BaseDelay: time.Second, MaxDelay: time.Minute}
	now := time.Now()

	d := Apply(p, Transient, 0, 0, now)
	require.False(t, d.Failed)
	assert.Equal(t, 1, d.RetryCount)
	assert.True(t, d.NextRetryAt.After(now))

	d = Apply(p, Transient, 1, 0, now)
	require.False(t, d.Failed)
	assert.Equal(t, 2, d.RetryCount)

	d = Apply(p, Transient, 2, 0, now)
	assert.True(t, d.Failed, "third transient failure should exhaust the cap")
}

func TestApplyStuckUsesSeparateCounter(t *testing.T) {
	p := Policy{Cap: 3, BaseDelay: time.Second, MaxDelay: time.Minute}
	now := time.Now()

	d := Apply(p, Stuck, 5, 0, now)
	require.False(t, d.Failed)
	assert.Equal(t, 5, d.RetryCount, "transient count untouched by a stuck failure")
	assert.Equal(t, 1, d.StuckCount)
}

func TestDelayIsBoundedByMaxDelay(t *testing.T) {
	p := Policy{Cap: 10, BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	for attempt := 1; attempt <= 10; attempt++ {
		d := p.Delay(attempt)
		assert.LessOrEqual(t, d, p.MaxDelay)
		assert.GreaterOrEqual(t, d, time.Duration(0))
	}
}

func TestDelayGrowsWithAttempt(t *testing.T) {
	p := Policy{Cap: 10, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Hour}
	// backoff ceiling (pre-jitter) should strictly increase for low attempts.
	low := float64(p.BaseDelay)
	high := float64(p.BaseDelay) * 8 // attempt 4 => 2^3
	assert.Less(t, low, high)

	// Delay(1) draws from [0, low) and Delay(4) from [0, high); over many
	// draws attempt 4 exceeds attempt 1's ceiling (each draw does so with
	// probability 7/8).
	var maxLow, maxHigh time.Duration
	for i := 0; i < 64; i++ {
		maxLow = max(maxLow, p.Delay(1))
		maxHigh = max(maxHigh, p.Delay(4))
	}
	assert.Less(t, maxLow, time.Duration(low))
	assert.Greater(t, maxHigh, time.Duration(low))
	assert.Less(t, maxHigh, time.Duration(high))
}
