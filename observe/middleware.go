package observe

import (
	"context"
	"time"
)

// Middleware wraps fetches with observability (tracing, metrics, logging).
//
// Contract:
//   - Concurrency: Run is safe for concurrent use.
//   - Context: the span context is propagated to op.
//   - Errors: errors from op are recorded and returned unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a new Middleware with the given components.
// Nil components are replaced with no-op implementations.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = NopTracer()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// Run executes op inside a span and records its duration and outcome.
func (m *Middleware) Run(ctx context.Context, meta FetchMeta, op func(context.Context) error) error {
	ctx, span := m.tracer.StartSpan(ctx, meta)
	start := time.Now()

	err := op(ctx)

	duration := time.Since(start)
	m.tracer.EndSpan(span, err)
	m.metrics.RecordFetch(ctx, meta, duration, err)

	fields := []Field{
		F("namespace", meta.Namespace),
		F("key", meta.Key),
		F("kind", meta.Kind),
		F("duration_ms", float64(duration.Milliseconds())),
	}
	if err != nil {
		fields = append(fields, F("error", err))
		m.logger.Debug(ctx, "fetch failed", fields...)
	} else {
		m.logger.Debug(ctx, "fetch completed", fields...)
	}

	return err
}

// Metrics returns the metrics recorder used by the middleware.
func (m *Middleware) Metrics() Metrics {
	return m.metrics
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}
