package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for roster tracing.
const tracerName = "github.com/xraph/roster"

// Tracing returns middleware that wraps each step run in a
// "roster.migration.step" span, attributed with the step name and target
// version. Without a configured global TracerProvider the no-op tracer is
// used and the middleware costs nothing.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer builds the middleware on a specific tracer, letting
// tests and multi-provider setups inject their own.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, s Step, next Handler) error {
		ctx, span := tracer.Start(ctx, "roster.migration.step",
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(spanAttrs(s)...),
		)
		defer span.End()

		if err := next(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		span.SetStatus(codes.Ok, "")
		return nil
	}
}

// spanAttrs tags a span with the step identity.
func spanAttrs(s Step) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("roster.step.name", s.Name),
		attribute.String("roster.step.target", s.Target),
	}
}
