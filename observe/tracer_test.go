package observe

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer() (Tracer, *tracetest.SpanRecorder) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	return NewTracer(tp.Tracer("test")), rec
}

func attr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestFetchMeta_SpanName(t *testing.T) {
	meta := FetchMeta{Namespace: "projectsByMonth", Key: `"2024-05"`}
	if got, want := meta.SpanName(), "cache.fetch.projectsByMonth"; got != want {
		t.Errorf("SpanName() = %q, want %q", got, want)
	}
}

func TestTracer_SpanAttributes(t *testing.T) {
	tracer, rec := newRecordingTracer()

	_, span := tracer.StartSpan(context.Background(), FetchMeta{
		Namespace: "projects",
		Key:       "default",
		Kind:      KindRevalidate,
	})
	tracer.EndSpan(span, nil)

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", s.Status().Code)
	}
	if v, ok := attr(s.Attributes(), "cache.namespace"); !ok || v.AsString() != "projects" {
		t.Errorf("cache.namespace = %v", v.AsString())
	}
	if v, ok := attr(s.Attributes(), "cache.fetch.kind"); !ok || v.AsString() != KindRevalidate {
		t.Errorf("cache.fetch.kind = %v", v.AsString())
	}
}

func TestTracer_EndSpanWithError(t *testing.T) {
	tracer, rec := newRecordingTracer()

	_, span := tracer.StartSpan(context.Background(), FetchMeta{Namespace: "projects"})
	tracer.EndSpan(span, errors.New("backend unavailable"))

	s := rec.Ended()[0]
	if s.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", s.Status().Code)
	}
	if v, ok := attr(s.Attributes(), "cache.error"); !ok || !v.AsBool() {
		t.Error("expected cache.error=true")
	}
	if len(s.Events()) == 0 {
		t.Error("expected the error to be recorded as an event")
	}
}

func TestNopTracer(t *testing.T) {
	tracer := NopTracer()
	ctx, span := tracer.StartSpan(context.Background(), FetchMeta{Namespace: "x"})
	if ctx == nil || span == nil {
		t.Fatal("expected non-nil context and span")
	}
	tracer.EndSpan(span, errors.New("ignored"))
}
