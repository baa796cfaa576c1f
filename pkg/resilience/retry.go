package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// Backoff shapes Retry's delay schedule. Zero values use the defaults
// (3 attempts, 100ms doubling to a 10s cap, 10% jitter).
type Backoff struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Jitter       float64
}

func (b Backoff) withDefaults() Backoff {
	if b.Attempts <= 0 {
		b.Attempts = 3
	}
	if b.InitialDelay <= 0 {
		b.InitialDelay = 100 * time.Millisecond
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = 10 * time.Second
	}
	if b.Jitter <= 0 {
		b.Jitter = 0.1
	}
	return b
}

// delay returns the wait before the given retry (1-based), doubling
// each time with +-Jitter randomization, capped at MaxDelay.
func (b Backoff) delay(attempt int) time.Duration {
	d := b.InitialDelay << (attempt - 1)
	if d > b.MaxDelay || d <= 0 {
		d = b.MaxDelay
	}
	spread := float64(d) * b.Jitter * (2*rand.Float64() - 1)
	return d + time.Duration(spread)
}

// Retry runs fn up to b.Attempts times, backing off between failures.
// Context cancellation aborts the wait immediately.
func Retry(ctx context.Context, name string, b Backoff, fn func() error) error {
	b = b.withDefaults()
	logger := slog.Default().With("component", "retry", "operation", name)

	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				logger.Info("recovered", "attempt", attempt)
			}
			return nil
		}
		if attempt >= b.Attempts {
			return fmt.Errorf("%s: %d attempts exhausted: %w", name, b.Attempts, lastErr)
		}
		wait := b.delay(attempt)
		logger.Warn("attempt failed", "attempt", attempt, "error", lastErr, "retry_in", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return fmt.Errorf("%s: aborted during backoff: %w", name, ctx.Err())
		}
	}
}
