package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Timeout bounds each call of an operation.
type Timeout struct {
	limit time.Duration
}

// NewTimeout creates a timeout wrapper. A non-positive limit means 30 seconds.
func NewTimeout(limit time.Duration) *Timeout {
	if limit <= 0 {
		limit = 30 * time.Second
	}
	return &Timeout{limit: limit}
}

// Execute runs op with a deadline. It returns as soon as the deadline passes,
// even if op ignores its context.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, t.limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(ctx)
	}()

	select {
	case err := <-done:
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			return fmt.Errorf("%w after %s", ErrTimeout, t.limit)
		}
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrTimeout, t.limit)
		}
		return ctx.Err()
	}
}

// Limit returns the configured timeout.
func (t *Timeout) Limit() time.Duration {
	return t.limit
}
