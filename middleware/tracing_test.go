package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	mw "github.com/xraph/roster/middleware"
)

// traceOneStep runs a step through a Tracing middleware backed by a span
// recorder and returns the single ended span plus the handler's error.
func traceOneStep(t *testing.T, handler func(context.Context) error) (sdktrace.ReadOnlySpan, error) {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	m := mw.TracingWithTracer(tp.Tracer("test"))

	err := m(context.Background(), newTestStep(), handler)

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	return spans[0], err
}

func TestTracing_SpanNameAndAttributes(t *testing.T) {
	span, err := traceOneStep(t, func(_ context.Context) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if span.Name() != "roster.migration.step" {
		t.Errorf("span name = %q, want %q", span.Name(), "roster.migration.step")
	}

	attrs := make(map[string]string)
	for _, kv := range span.Attributes() {
		if kv.Value.Type() == attribute.STRING {
			attrs[string(kv.Key)] = kv.Value.AsString()
		}
	}
	if attrs["roster.step.name"] != "canonical-job-paths" {
		t.Errorf("roster.step.name = %q, want %q", attrs["roster.step.name"], "canonical-job-paths")
	}
	if attrs["roster.step.target"] != "1.2.0" {
		t.Errorf("roster.step.target = %q, want %q", attrs["roster.step.target"], "1.2.0")
	}
}

func TestTracing_Success_SetsOkStatus(t *testing.T) {
	span, _ := traceOneStep(t, func(_ context.Context) error { return nil })

	if span.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", span.Status().Code)
	}
}

func TestTracing_Error_RecordsFailure(t *testing.T) {
	stepErr := errors.New("handler failed")
	span, err := traceOneStep(t, func(_ context.Context) error { return stepErr })
	if !errors.Is(err, stepErr) {
		t.Fatalf("error = %v, want the handler's", err)
	}

	if span.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", span.Status().Code)
	}
	if span.Status().Description != "handler failed" {
		t.Errorf("status description = %q, want %q", span.Status().Description, "handler failed")
	}

	// RecordError shows up as an exception event.
	hasException := false
	for _, ev := range span.Events() {
		if ev.Name == "exception" {
			hasException = true
		}
	}
	if !hasException {
		t.Error("no exception event recorded on span")
	}
}

func TestTracing_PropagatesContext(t *testing.T) {
	var inHandler trace.SpanContext
	span, _ := traceOneStep(t, func(ctx context.Context) error {
		inHandler = trace.SpanFromContext(ctx).SpanContext()
		return nil
	})

	if !inHandler.IsValid() {
		t.Fatal("handler saw no span context")
	}
	if inHandler.TraceID() != span.SpanContext().TraceID() {
		t.Error("handler trace ID does not match the middleware span")
	}
}

func TestTracing_DefaultNoopSafe(t *testing.T) {
	// Without a configured global provider the middleware still runs the
	// handler through the no-op tracer.
	m := mw.Tracing()

	called := false
	err := m(context.Background(), newTestStep(), func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("handler was not called")
	}
}
