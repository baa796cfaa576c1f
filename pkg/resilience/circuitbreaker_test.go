package resilience

import (
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream failed")

func failing() error { return errUpstream }
func succeeding() error { return nil }

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := NewBreaker("test", BreakerSettings{FailureThreshold: 3, CoolDown: time.Hour})
	for i := 0; i < 3; i++ {
		if err := b.Do(failing); !errors.Is(err, errUpstream) {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if b.State() != BreakerOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	if err := b.Do(succeeding); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("open breaker should refuse, got %v", err)
	}
}

func TestBreakerRecoversThroughProbe(t *testing.T) {
	b := NewBreaker("test", BreakerSettings{FailureThreshold: 1, CoolDown: 10 * time.Millisecond})
	b.Do(failing)
	if b.State() != BreakerOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	time.Sleep(20 * time.Millisecond)
	if err := b.Do(succeeding); err != nil {
		t.Fatalf("probe should run: %v", err)
	}
	if b.State() != BreakerClosed {
		t.Fatalf("state = %v, want closed after successful probe", b.State())
	}
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	b := NewBreaker("test", BreakerSettings{FailureThreshold: 1, CoolDown: 10 * time.Millisecond})
	b.Do(failing)
	time.Sleep(20 * time.Millisecond)
	b.Do(failing)
	if b.State() != BreakerOpen {
		t.Fatalf("state = %v, want re-opened", b.State())
	}
}

func TestBreakerStateChangeHook(t *testing.T) {
	var transitions []BreakerState
	b := NewBreaker("test", BreakerSettings{
		FailureThreshold: 1,
		CoolDown:         time.Hour,
		OnStateChange:    func(_ string, s BreakerState) { transitions = append(transitions, s) },
	})
	b.Do(failing)
	if len(transitions) != 1 || transitions[0] != BreakerOpen {
		t.Fatalf("transitions = %v, want [open]", transitions)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker("test", BreakerSettings{FailureThreshold: 2, CoolDown: time.Hour})
	b.Do(failing)
	b.Do(succeeding)
	b.Do(failing)
	if b.State() != BreakerClosed {
		t.Fatalf("interleaved success should keep the breaker closed")
	}
}
