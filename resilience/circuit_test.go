package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func failing(context.Context) error { return errors.New("backend down") }
func passing(context.Context) error { return nil }

func newTestBreaker(cfg CircuitBreakerConfig, now *time.Time) *CircuitBreaker {
	cb := NewCircuitBreaker(cfg)
	cb.now = func() time.Time { return *now }
	return cb
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var transitions []string
	cb := newTestBreaker(CircuitBreakerConfig{
		MaxFailures:  3,
		ResetTimeout: time.Minute,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	}, &now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, failing)
	}
	if cb.State() != StateOpen {
		t.Fatalf("State() = %s, want open", cb.State())
	}

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Errorf("Execute() while open = %v, called %v", err, called)
	}

	now = now.Add(time.Minute)
	if cb.State() != StateHalfOpen {
		t.Fatalf("State() = %s, want half-open after reset timeout", cb.State())
	}
	if err := cb.Execute(ctx, passing); err != nil {
		t.Fatalf("probe error = %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %s, want closed after successful probe", cb.State())
	}

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := newTestBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Second}, &now)
	ctx := context.Background()

	_ = cb.Execute(ctx, failing)
	now = now.Add(time.Second)
	_ = cb.Execute(ctx, failing)

	if cb.State() != StateOpen {
		t.Errorf("State() = %s, want open after failed probe", cb.State())
	}
	now = now.Add(500 * time.Millisecond)
	if cb.State() != StateOpen {
		t.Error("reset timeout restarted from the old opening")
	}
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := newTestBreaker(CircuitBreakerConfig{MaxFailures: 2}, &now)
	ctx := context.Background()

	_ = cb.Execute(ctx, failing)
	_ = cb.Execute(ctx, passing)
	_ = cb.Execute(ctx, failing)
	if cb.State() != StateClosed {
		t.Errorf("State() = %s, want closed", cb.State())
	}
	if m := cb.Metrics(); m.Failures != 1 || m.LastFailure.IsZero() {
		t.Errorf("Metrics() = %+v", m)
	}
}

func TestCircuitBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := newTestBreaker(CircuitBreakerConfig{MaxFailures: 1}, &now)

	_ = cb.Execute(context.Background(), func(context.Context) error {
		return Permanent(errors.New("404"))
	})
	if cb.State() != StateClosed {
		t.Errorf("State() = %s, want closed", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := newTestBreaker(CircuitBreakerConfig{MaxFailures: 1}, &now)
	_ = cb.Execute(context.Background(), failing)
	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("State() = %s after Reset, want closed", cb.State())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
