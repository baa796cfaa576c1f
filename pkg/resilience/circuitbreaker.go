// Package resilience holds the fault-tolerance wrappers service calls
// go through: a consecutive-failure circuit breaker, exponential
// backoff retry, and a deadline guard.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned while a breaker refuses calls.
var ErrBreakerOpen = errors.New("circuit breaker open")

// BreakerState is the breaker's phase.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// BreakerSettings tunes when a breaker trips and how it recovers.
// Zero values fall back to defaults.
type BreakerSettings struct {
	FailureThreshold int           // consecutive failures before tripping (default 5)
	CoolDown         time.Duration // open period before probing (default 30s)
	ProbeLimit       int           // concurrent half-open probes (default 1)

	// OnStateChange, when set, is called with every transition — the
	// hook the metrics gauge attaches through.
	OnStateChange func(name string, state BreakerState)
}

// Breaker refuses calls to an upstream after FailureThreshold
// consecutive failures, probing again after CoolDown.
type Breaker struct {
	name     string
	settings BreakerSettings
	logger   *slog.Logger

	mu          sync.Mutex
	state       BreakerState
	failures    int
	probes      int
	lastFailure time.Time
}

// NewBreaker builds a breaker named for the upstream it guards.
func NewBreaker(name string, settings BreakerSettings) *Breaker {
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = 5
	}
	if settings.CoolDown <= 0 {
		settings.CoolDown = 30 * time.Second
	}
	if settings.ProbeLimit <= 0 {
		settings.ProbeLimit = 1
	}
	return &Breaker{
		name:     name,
		settings: settings,
		logger:   slog.Default().With("component", "breaker", "name", name),
	}
}

// Do runs fn unless the breaker is refusing calls, and records the
// outcome.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

// State reports the breaker's current phase.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerOpen:
		remaining := b.settings.CoolDown - time.Since(b.lastFailure)
		if remaining > 0 {
			return fmt.Errorf("%w: %s (cool-down %v remaining)", ErrBreakerOpen, b.name, remaining)
		}
		b.transition(BreakerHalfOpen)
		b.probes = 1
		return nil
	case BreakerHalfOpen:
		if b.probes >= b.settings.ProbeLimit {
			return fmt.Errorf("%w: %s (probe in flight)", ErrBreakerOpen, b.name)
		}
		b.probes++
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		if b.state == BreakerHalfOpen {
			b.logger.Info("breaker recovered")
			b.transition(BreakerClosed)
		}
		b.failures = 0
		b.probes = 0
		return
	}

	b.failures++
	b.lastFailure = time.Now()
	switch b.state {
	case BreakerClosed:
		if b.failures >= b.settings.FailureThreshold {
			b.logger.Warn("breaker tripped", "consecutive_failures", b.failures)
			b.transition(BreakerOpen)
		}
	case BreakerHalfOpen:
		b.logger.Warn("probe failed, breaker re-opened")
		b.transition(BreakerOpen)
	}
}

// transition flips state and fires the hook. Caller holds b.mu.
func (b *Breaker) transition(next BreakerState) {
	b.state = next
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, next)
	}
}

// Reset forces the breaker closed, for administrative recovery.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probes = 0
	b.transition(BreakerClosed)
	b.logger.Info("breaker reset")
}
