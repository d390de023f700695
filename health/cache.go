package health

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonwraymond/staffcache/cache"
	"github.com/jonwraymond/staffcache/resilience"
)

// ErrCacheClosed is reported once the cache manager has been closed.
var ErrCacheClosed = errors.New("health: cache manager closed")

// CacheSource is the view of a cache manager the checker needs.
// *cache.Manager implements it.
type CacheSource interface {
	Closed() bool
	Stats() []cache.NamespaceStats
}

// CacheChecker reports the state of every namespace of a cache manager.
type CacheChecker struct {
	src CacheSource
}

// NewCacheChecker creates a checker over src.
func NewCacheChecker(src CacheSource) *CacheChecker {
	return &CacheChecker{src: src}
}

// Name returns "cache".
func (c *CacheChecker) Name() string { return "cache" }

// Check is Unhealthy when the manager is closed and Degraded when any
// namespace is serving stale data because its background refresh failed.
func (c *CacheChecker) Check(context.Context) Result {
	if c.src.Closed() {
		return Unhealthy("cache manager closed", ErrCacheClosed)
	}

	stats := c.src.Stats()
	details := make(map[string]any, len(stats))
	var failing []string
	for _, s := range stats {
		d := map[string]any{
			"entries":    s.Entries,
			"in_flight":  s.InFlight,
			"hits":       s.Hits,
			"stale_hits": s.StaleHits,
			"misses":     s.Misses,
			"evictions":  s.Evictions,
		}
		if !s.LastOK.IsZero() {
			d["last_ok"] = s.LastOK.UTC().Format(time.RFC3339)
		}
		if s.RefreshFailing() {
			d["last_error"] = s.LastErr
			d["failing"] = s.Failing
			failing = append(failing, s.Name)
		}
		details[s.Name] = d
	}

	if len(failing) > 0 {
		msg := fmt.Sprintf("serving stale data, refresh failing for %s", strings.Join(failing, ", "))
		return Degraded(msg).WithDetails(details)
	}
	return Healthy(fmt.Sprintf("%d namespaces", len(stats))).WithDetails(details)
}

// CircuitChecker reports a backend circuit breaker. An open circuit is
// Degraded because the cache keeps serving what it already holds.
type CircuitChecker struct {
	name string
	cb   *resilience.CircuitBreaker
}

// NewCircuitChecker creates a checker called name over cb.
func NewCircuitChecker(name string, cb *resilience.CircuitBreaker) *CircuitChecker {
	return &CircuitChecker{name: name, cb: cb}
}

// Name returns the checker name.
func (c *CircuitChecker) Name() string { return c.name }

// Check reports the breaker state. A nil breaker is Healthy.
func (c *CircuitChecker) Check(context.Context) Result {
	if c.cb == nil {
		return Healthy("no circuit breaker configured")
	}

	m := c.cb.Metrics()
	details := map[string]any{
		"state":    m.State.String(),
		"failures": m.Failures,
	}
	if !m.LastFailure.IsZero() {
		details["last_failure"] = m.LastFailure.UTC().Format(time.RFC3339)
	}

	switch m.State {
	case resilience.StateClosed:
		return Healthy("circuit closed").WithDetails(details)
	default:
		return Degraded("circuit " + m.State.String()).WithDetails(details)
	}
}
