package resilience

import (
	"context"
	"sync"
	"time"
)

// Executor composes multiple resilience patterns.
type Executor struct {
	circuitBreaker *CircuitBreaker
	retry          *Retry
	rateLimiter    *RateLimiter
	bulkhead       *Bulkhead
	timeout        *Timeout
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates a new resilience executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithCircuitBreaker adds a circuit breaker to the executor.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) {
		e.circuitBreaker = cb
	}
}

// WithRetry adds retry logic to the executor.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) {
		e.retry = r
	}
}

// WithRateLimiter adds rate limiting to the executor.
func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) {
		e.rateLimiter = rl
	}
}

// WithBulkhead adds bulkhead isolation to the executor.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) {
		e.bulkhead = b
	}
}

// WithTimeout bounds each attempt to d.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = NewTimeout(d)
	}
}

// CircuitBreaker returns the configured breaker, or nil.
func (e *Executor) CircuitBreaker() *CircuitBreaker {
	return e.circuitBreaker
}

// Execute runs the operation through all configured resilience patterns.
//
// The execution order, outermost first:
// 1. Rate Limiter - limits request rate
// 2. Bulkhead - limits concurrency
// 3. Circuit Breaker - sees one outcome per call, after retries
// 4. Retry - retries transient failures
// 5. Timeout - bounds each attempt
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	execute := op

	if e.timeout != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.timeout.Execute(ctx, inner)
		}
	}
	if e.retry != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.retry.Execute(ctx, inner)
		}
	}
	if e.circuitBreaker != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.circuitBreaker.Execute(ctx, inner)
		}
	}
	if e.bulkhead != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.bulkhead.Execute(ctx, inner)
		}
	}
	if e.rateLimiter != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.rateLimiter.Execute(ctx, inner)
		}
	}

	return execute(ctx)
}

// Call runs a value-returning op through e. A nil executor calls op directly.
// The value of the last successful attempt is returned.
func Call[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error)) (T, error) {
	if e == nil {
		return op(ctx)
	}

	var (
		mu  sync.Mutex
		out T
	)
	err := e.Execute(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		// An attempt abandoned by Timeout may finish late; drop its value.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		mu.Lock()
		out = v
		mu.Unlock()
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	mu.Lock()
	defer mu.Unlock()
	return out, nil
}

// Config is the serializable form of an Executor.
type Config struct {
	Timeout        time.Duration     `yaml:"timeout"`
	Retry          RetrySettings     `yaml:"retry"`
	CircuitBreaker CircuitSettings   `yaml:"circuit_breaker"`
	RateLimit      RateLimitSettings `yaml:"rate_limit"`
	Bulkhead       BulkheadSettings  `yaml:"bulkhead"`
}

// RetrySettings configures retries. MaxAttempts 0 disables retry.
type RetrySettings struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// CircuitSettings configures the breaker. MaxFailures 0 disables it.
type CircuitSettings struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// RateLimitSettings configures the limiter. Rate 0 disables it.
type RateLimitSettings struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

// BulkheadSettings configures the bulkhead. MaxConcurrent 0 disables it.
type BulkheadSettings struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	MaxWait       time.Duration `yaml:"max_wait"`
}

// FromConfig builds an Executor with every pattern enabled in cfg.
func FromConfig(cfg Config) *Executor {
	var opts []ExecutorOption
	if cfg.Timeout > 0 {
		opts = append(opts, WithTimeout(cfg.Timeout))
	}
	if cfg.Retry.MaxAttempts > 0 {
		opts = append(opts, WithRetry(NewRetry(RetryConfig{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			Jitter:       true,
		})))
	}
	if cfg.CircuitBreaker.MaxFailures > 0 {
		opts = append(opts, WithCircuitBreaker(NewCircuitBreaker(CircuitBreakerConfig{
			MaxFailures:  cfg.CircuitBreaker.MaxFailures,
			ResetTimeout: cfg.CircuitBreaker.ResetTimeout,
		})))
	}
	if cfg.RateLimit.Rate > 0 {
		opts = append(opts, WithRateLimiter(NewRateLimiter(RateLimiterConfig{
			Rate:        cfg.RateLimit.Rate,
			Burst:       cfg.RateLimit.Burst,
			WaitOnLimit: true,
		})))
	}
	if cfg.Bulkhead.MaxConcurrent > 0 {
		opts = append(opts, WithBulkhead(NewBulkhead(BulkheadConfig{
			MaxConcurrent: cfg.Bulkhead.MaxConcurrent,
			MaxWait:       cfg.Bulkhead.MaxWait,
		})))
	}
	return NewExecutor(opts...)
}
