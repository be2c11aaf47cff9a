package realtime

import (
	"context"
	"math/rand/v2"
	"time"
)

// ReconnectStrategy paces redials after the connection drops. Attempt n waits
// InitialDelay * BackoffFactor^n, capped at MaxDelay.
type ReconnectStrategy struct {
	// MaxRetries caps the attempts; a negative value retries forever.
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Jitter spreads each delay by up to this fraction either way.
	Jitter float64
}

// DefaultReconnectStrategy returns five attempts starting two seconds apart
func DefaultReconnectStrategy() *ReconnectStrategy {
	return &ReconnectStrategy{
		MaxRetries:    5,
		InitialDelay:  2 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Allows reports whether attempt (counting from zero) may run
func (rs *ReconnectStrategy) Allows(attempt int) bool {
	return rs.MaxRetries < 0 || attempt < rs.MaxRetries
}

// Delay returns how long to wait before attempt
func (rs *ReconnectStrategy) Delay(attempt int) time.Duration {
	factor := rs.BackoffFactor
	if factor < 1 {
		factor = 1
	}

	delay := float64(rs.InitialDelay)
	for i := 0; i < attempt && delay < float64(rs.MaxDelay); i++ {
		delay *= factor
	}
	if rs.MaxDelay > 0 && delay > float64(rs.MaxDelay) {
		delay = float64(rs.MaxDelay)
	}
	if rs.Jitter > 0 {
		delay += delay * rs.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(delay)
}

// Wait sleeps for attempt's delay. It returns false if ctx ended first.
func (rs *ReconnectStrategy) Wait(ctx context.Context, attempt int) bool {
	timer := time.NewTimer(rs.Delay(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
