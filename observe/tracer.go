package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Fetch kinds reported in FetchMeta.Kind.
const (
	KindBlocking   = "blocking"
	KindRevalidate = "revalidate"
	KindPrefetch   = "prefetch"
	KindPreload    = "preload"
)

// FetchMeta describes one cache fetch for telemetry purposes.
type FetchMeta struct {
	Namespace string // cache namespace (required)
	Key       string // derived cache key
	Kind      string // blocking|revalidate|prefetch|preload
}

// SpanName returns the deterministic span name for this fetch.
// Format: cache.fetch.<namespace>
func (m FetchMeta) SpanName() string {
	return "cache.fetch." + m.Namespace
}

func (m FetchMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("cache.namespace", m.Namespace),
	}
	if m.Key != "" {
		attrs = append(attrs, attribute.String("cache.key", m.Key))
	}
	if m.Kind != "" {
		attrs = append(attrs, attribute.String("cache.fetch.kind", m.Kind))
	}
	return attrs
}

// Tracer wraps OpenTelemetry tracing with fetch-specific span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for a fetch.
	StartSpan(ctx context.Context, meta FetchMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer wrapping the given OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		return NopTracer()
	}
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta FetchMeta) (context.Context, trace.Span) {
	attrs := append(meta.attributes(), attribute.Bool("cache.error", false))
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("cache.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

// NopTracer returns a tracer that records nothing.
func NopTracer() Tracer {
	return &noopTracer{noop: tracenoop.NewTracerProvider().Tracer("noop")}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta FetchMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, _ error) {
	span.End()
}
