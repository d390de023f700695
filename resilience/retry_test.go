package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond})

	attempts := 0
	err := r.Execute(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetry_Exhausted(t *testing.T) {
	errBackend := errors.New("backend down")
	r := NewRetry(RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond})

	var retries []int
	r.config.OnRetry = func(attempt int, _ error, _ time.Duration) { retries = append(retries, attempt) }

	err := r.Execute(context.Background(), func(context.Context) error { return errBackend })
	if !errors.Is(err, ErrMaxRetriesExceeded) || !errors.Is(err, errBackend) {
		t.Errorf("Execute() error = %v, want both ErrMaxRetriesExceeded and backend error", err)
	}
	if len(retries) != 1 || retries[0] != 1 {
		t.Errorf("OnRetry calls = %v, want [1]", retries)
	}
}

func TestRetry_PermanentNotRetried(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond})
	errNotFound := errors.New("404")

	attempts := 0
	err := r.Execute(context.Background(), func(context.Context) error {
		attempts++
		return Permanent(errNotFound)
	})
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if !errors.Is(err, errNotFound) || !IsPermanent(err) {
		t.Errorf("Execute() error = %v, want permanent 404", err)
	}
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 3, InitialDelay: time.Hour, MaxDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	err := r.Execute(ctx, func(context.Context) error {
		cancel()
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
}

func TestRetry_Delay(t *testing.T) {
	tests := []struct {
		name     string
		cfg      RetryConfig
		attempt  int
		expected time.Duration
	}{
		{"exponential first", RetryConfig{InitialDelay: 100 * time.Millisecond}, 1, 100 * time.Millisecond},
		{"exponential third", RetryConfig{InitialDelay: 100 * time.Millisecond}, 3, 400 * time.Millisecond},
		{"capped", RetryConfig{InitialDelay: time.Second, MaxDelay: 2 * time.Second}, 5, 2 * time.Second},
		{"linear", RetryConfig{InitialDelay: 100 * time.Millisecond, Strategy: BackoffLinear}, 3, 300 * time.Millisecond},
		{"constant", RetryConfig{InitialDelay: 100 * time.Millisecond, Strategy: BackoffConstant}, 4, 100 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewRetry(tt.cfg).delay(tt.attempt, nil); got != tt.expected {
				t.Errorf("delay(%d) = %s, want %s", tt.attempt, got, tt.expected)
			}
		})
	}

	jittered := NewRetry(RetryConfig{InitialDelay: 100 * time.Millisecond, Jitter: true})
	for i := 0; i < 20; i++ {
		d := jittered.delay(1, nil)
		if d < 100*time.Millisecond || d >= 125*time.Millisecond {
			t.Fatalf("jittered delay = %s, want [100ms, 125ms)", d)
		}
	}
}

type throttled time.Duration

func (e throttled) Error() string             { return "throttled" }
func (e throttled) RetryAfter() time.Duration { return time.Duration(e) }

func TestRetry_DelayHonorsRetryAfter(t *testing.T) {
	r := NewRetry(RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: 3 * time.Second})
	tests := []struct {
		name string
		err  error
		want time.Duration
	}{
		{"longer hint wins", throttled(2 * time.Second), 2 * time.Second},
		{"shorter hint ignored", throttled(10 * time.Millisecond), 100 * time.Millisecond},
		{"capped at max delay", throttled(time.Minute), 3 * time.Second},
		{"wrapped", fmt.Errorf("get: %w", throttled(time.Second)), time.Second},
	}
	for _, tt := range tests {
		if got := r.delay(1, tt.err); got != tt.want {
			t.Errorf("%s: delay = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestPermanent_Nil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) != nil")
	}
	if IsPermanent(errors.New("x")) {
		t.Error("plain error reported permanent")
	}
}
