package resilience

import (
	"errors"
	"testing"
	"time"
)

var errSynthDown = errors.New("synthesis backend unavailable")

// trip drives the breaker to open with n consecutive failures.
func trip(t *testing.T, cb *CircuitBreaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_ = cb.Execute(func() error { return errSynthDown })
	}
	if cb.State() != StateOpen {
		t.Fatalf("state after %d failures = %v, want open", n, cb.State())
	}
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "tts"})

	if got, want := cb.maxFailures, 5; got != want {
		t.Errorf("maxFailures = %d, want %d", got, want)
	}
	if got, want := cb.resetTimeout, 30*time.Second; got != want {
		t.Errorf("resetTimeout = %v, want %v", got, want)
	}
	if got, want := cb.halfOpenMax, 3; got != want {
		t.Errorf("halfOpenMax = %d, want %d", got, want)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_ClosedPassesThrough(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "tts", MaxFailures: 3})

	var calls int
	if err := cb.Execute(func() error { calls++; return nil }); err != nil {
		t.Fatalf("Execute = %v, want nil", err)
	}
	if calls != 1 {
		t.Fatalf("fn ran %d times, want 1", calls)
	}
}

func TestCircuitBreaker_OpensAndRejects(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "tts",
		MaxFailures:  3,
		ResetTimeout: time.Hour,
	})
	trip(t, cb, 3)

	var calls int
	err := cb.Execute(func() error { calls++; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute while open = %v, want ErrCircuitOpen", err)
	}
	if calls != 0 {
		t.Fatalf("fn ran %d times while open, want 0", calls)
	}
}

func TestCircuitBreaker_SuccessClearsFailureStreak(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "tts", MaxFailures: 3})

	_ = cb.Execute(func() error { return errSynthDown })
	_ = cb.Execute(func() error { return errSynthDown })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errSynthDown })
	_ = cb.Execute(func() error { return errSynthDown })

	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed; a success must restart the streak", cb.State())
	}
}

func TestCircuitBreaker_RecoveryProbing(t *testing.T) {
	newTripped := func(t *testing.T, halfOpenMax int) *CircuitBreaker {
		cb := NewCircuitBreaker(CircuitBreakerConfig{
			Name:         "tts",
			MaxFailures:  2,
			ResetTimeout: 20 * time.Millisecond,
			HalfOpenMax:  halfOpenMax,
		})
		trip(t, cb, 2)
		time.Sleep(30 * time.Millisecond)
		return cb
	}

	t.Run("timeout elapses", func(t *testing.T) {
		cb := newTripped(t, 2)
		if cb.State() != StateHalfOpen {
			t.Fatalf("state = %v, want half-open after reset timeout", cb.State())
		}
	})

	t.Run("probes succeed", func(t *testing.T) {
		cb := newTripped(t, 2)
		for i := 0; i < 2; i++ {
			if err := cb.Execute(func() error { return nil }); err != nil {
				t.Fatalf("probe %d: Execute = %v, want nil", i, err)
			}
		}
		if cb.State() != StateClosed {
			t.Fatalf("state = %v, want closed after successful probes", cb.State())
		}
	})

	t.Run("probe fails", func(t *testing.T) {
		cb := newTripped(t, 3)
		if err := cb.Execute(func() error { return errSynthDown }); !errors.Is(err, errSynthDown) {
			t.Fatalf("probe Execute = %v, want %v", err, errSynthDown)
		}
		if cb.State() != StateOpen {
			t.Fatalf("state = %v, want open after failed probe", cb.State())
		}
	})
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "tts",
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})
	trip(t, cb, 2)

	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after Reset", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute after Reset = %v, want nil", err)
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(99):     "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
