package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records cache activity.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordLookup records one GetData call and the freshness it observed
	// (fresh, stale or expired).
	RecordLookup(ctx context.Context, namespace, freshness string)

	// RecordFetch records a completed fetch with duration and error status.
	RecordFetch(ctx context.Context, meta FetchMeta, duration time.Duration, err error)

	// RecordEviction records n entries removed for reason (lru, expired, invalidated).
	RecordEviction(ctx context.Context, namespace, reason string, n int)
}

type metricsImpl struct {
	lookups      metric.Int64Counter
	fetches      metric.Int64Counter
	fetchErrors  metric.Int64Counter
	evictions    metric.Int64Counter
	durationHist metric.Float64Histogram
}

// NewMetrics creates a Metrics instance backed by meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	lookups, err := meter.Int64Counter(
		"cache.lookups",
		metric.WithDescription("Number of cache lookups by observed freshness"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	fetches, err := meter.Int64Counter(
		"cache.fetches",
		metric.WithDescription("Number of fetch function invocations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	fetchErrors, err := meter.Int64Counter(
		"cache.fetch.errors",
		metric.WithDescription("Number of failed fetch function invocations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	evictions, err := meter.Int64Counter(
		"cache.evictions",
		metric.WithDescription("Number of entries removed from the cache"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"cache.fetch.duration_ms",
		metric.WithDescription("Fetch duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		lookups:      lookups,
		fetches:      fetches,
		fetchErrors:  fetchErrors,
		evictions:    evictions,
		durationHist: durationHist,
	}, nil
}

func (m *metricsImpl) RecordLookup(ctx context.Context, namespace, freshness string) {
	m.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.namespace", namespace),
		attribute.String("cache.freshness", freshness),
	))
}

func (m *metricsImpl) RecordFetch(ctx context.Context, meta FetchMeta, duration time.Duration, err error) {
	opt := metric.WithAttributes(
		attribute.String("cache.namespace", meta.Namespace),
		attribute.String("cache.fetch.kind", meta.Kind),
	)

	m.fetches.Add(ctx, 1, opt)
	if err != nil {
		m.fetchErrors.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordEviction(ctx context.Context, namespace, reason string, n int) {
	if n <= 0 {
		return
	}
	m.evictions.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("cache.namespace", namespace),
		attribute.String("cache.eviction.reason", reason),
	))
}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics {
	return noopMetrics{}
}

type noopMetrics struct{}

func (noopMetrics) RecordLookup(context.Context, string, string)                 {}
func (noopMetrics) RecordFetch(context.Context, FetchMeta, time.Duration, error) {}
func (noopMetrics) RecordEviction(context.Context, string, string, int)          {}
