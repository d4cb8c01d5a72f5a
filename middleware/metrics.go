package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for roster metrics.
const meterName = "github.com/xraph/roster"

// Metrics returns middleware that meters step runs through the global
// MeterProvider. Without a configured provider the instruments are
// no-ops and the middleware is a pass-through.
//
// Instruments:
//   - roster.migration.step.duration (Float64Histogram): run time in
//     seconds
//   - roster.migration.step.executions (Int64Counter): total runs
//
// Both tag datapoints with step, target, and status ("ok" or "error").
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter builds the middleware on a specific meter, letting
// tests and multi-provider setups inject their own.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Instruments are created once and shared across runs; creation
	// failures fall back to no-ops per the otel API contract.
	duration, _ := meter.Float64Histogram(
		"roster.migration.step.duration",
		metric.WithDescription("Duration of migration step execution in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"roster.migration.step.executions",
		metric.WithDescription("Total number of migration step executions"),
		metric.WithUnit("{execution}"),
	)

	return func(ctx context.Context, s Step, next Handler) error {
		start := time.Now()
		err := next(ctx)

		attrs := metric.WithAttributes(stepAttrs(s, err)...)
		duration.Record(ctx, time.Since(start).Seconds(), attrs)
		executions.Add(ctx, 1, attrs)
		return err
	}
}

// stepAttrs tags a datapoint with the step identity and run outcome.
func stepAttrs(s Step, err error) []attribute.KeyValue {
	status := "ok"
	if err != nil {
		status = "error"
	}
	return []attribute.KeyValue{
		attribute.String("step", s.Name),
		attribute.String("target", s.Target),
		attribute.String("status", status),
	}
}
