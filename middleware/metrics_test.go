package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	mw "github.com/xraph/roster/middleware"
)

// runInstrumentedStep executes one step through a Metrics middleware
// backed by a manual reader and returns everything it recorded.
func runInstrumentedStep(t *testing.T, stepErr error) metricdata.ResourceMetrics {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := mw.MetricsWithMeter(mp.Meter("test"))

	_ = m(context.Background(), newTestStep(), func(_ context.Context) error {
		return stepErr
	})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}
	return rm
}

func metricNamed(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Metrics {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m
			}
		}
	}
	t.Fatalf("metric %q not recorded", name)
	return metricdata.Metrics{}
}

// stringAttrs flattens a datapoint attribute set into a plain map.
func stringAttrs(set attribute.Set) map[string]string {
	out := make(map[string]string, set.Len())
	for _, kv := range set.ToSlice() {
		if kv.Value.Type() == attribute.STRING {
			out[string(kv.Key)] = kv.Value.AsString()
		}
	}
	return out
}

func TestMetrics_RecordsDuration(t *testing.T) {
	rm := runInstrumentedStep(t, nil)

	m := metricNamed(t, rm, "roster.migration.step.duration")
	hist, ok := m.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("duration data is %T, want Histogram[float64]", m.Data)
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("duration datapoints = %d, want 1", len(hist.DataPoints))
	}
	if hist.DataPoints[0].Count != 1 {
		t.Errorf("duration count = %d, want 1", hist.DataPoints[0].Count)
	}
}

func TestMetrics_CountsExecutionsByStatus(t *testing.T) {
	tests := []struct {
		name       string
		stepErr    error
		wantStatus string
	}{
		{name: "success", stepErr: nil, wantStatus: "ok"},
		{name: "failure", stepErr: errors.New("boom"), wantStatus: "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm := runInstrumentedStep(t, tt.stepErr)

			m := metricNamed(t, rm, "roster.migration.step.executions")
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("executions data is %T, want Sum[int64]", m.Data)
			}
			if len(sum.DataPoints) != 1 {
				t.Fatalf("executions datapoints = %d, want 1", len(sum.DataPoints))
			}

			dp := sum.DataPoints[0]
			if dp.Value != 1 {
				t.Errorf("executions value = %d, want 1", dp.Value)
			}
			if got := stringAttrs(dp.Attributes)["status"]; got != tt.wantStatus {
				t.Errorf("status attribute = %q, want %q", got, tt.wantStatus)
			}
		})
	}
}

func TestMetrics_StepAttributes(t *testing.T) {
	rm := runInstrumentedStep(t, nil)

	// Both instruments tag datapoints with the step identity.
	byInstrument := map[string]attribute.Set{}

	m := metricNamed(t, rm, "roster.migration.step.duration")
	if hist, ok := m.Data.(metricdata.Histogram[float64]); ok && len(hist.DataPoints) > 0 {
		byInstrument[m.Name] = hist.DataPoints[0].Attributes
	}
	m = metricNamed(t, rm, "roster.migration.step.executions")
	if sum, ok := m.Data.(metricdata.Sum[int64]); ok && len(sum.DataPoints) > 0 {
		byInstrument[m.Name] = sum.DataPoints[0].Attributes
	}

	if len(byInstrument) != 2 {
		t.Fatalf("instruments with datapoints = %d, want 2", len(byInstrument))
	}
	for name, set := range byInstrument {
		attrs := stringAttrs(set)
		if attrs["step"] != "canonical-job-paths" {
			t.Errorf("%s: step attribute = %q, want %q", name, attrs["step"], "canonical-job-paths")
		}
		if attrs["target"] != "1.2.0" {
			t.Errorf("%s: target attribute = %q, want %q", name, attrs["target"], "1.2.0")
		}
	}
}

func TestMetrics_DefaultNoopSafe(t *testing.T) {
	// Without a configured global provider the middleware still runs the
	// handler through the no-op meter.
	m := mw.Metrics()

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
