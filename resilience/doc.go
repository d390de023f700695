// Package resilience wraps calls to the staffing backend with retry, timeout,
// circuit breaking, rate limiting and bulkhead isolation.
//
// The cache never retries on its own; these patterns decorate fetch
// functions instead. Each pattern can be used alone or composed with an
// Executor:
//
//	exec := resilience.NewExecutor(
//	    resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{Rate: 20, Burst: 5})),
//	    resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{})),
//	    resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{MaxAttempts: 3})),
//	    resilience.WithTimeout(5*time.Second),
//	)
//
//	projects, err := resilience.Call(ctx, exec, func(ctx context.Context) ([]Project, error) {
//	    return client.fetchProjects(ctx)
//	})
//
// Errors wrapped with Permanent are neither retried nor counted against the
// circuit breaker.
package resilience
