package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/roster/middleware"
)

func newTestStep() middleware.Step {
	return middleware.Step{Name: "canonical-job-paths", Target: "1.2.0"}
}

// tag returns a middleware that records when it wraps and unwraps next.
func tag(name string, order *[]string) middleware.Middleware {
	return func(ctx context.Context, _ middleware.Step, next middleware.Handler) error {
		*order = append(*order, name+"-in")
		err := next(ctx)
		*order = append(*order, name+"-out")
		return err
	}
}

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string
	chain := middleware.Chain(tag("outer", &order), tag("inner", &order))

	err := chain(context.Background(), newTestStep(), func(_ context.Context) error {
		order = append(order, "step")
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"outer-in", "inner-in", "step", "inner-out", "outer-out"}
	if len(order) != len(want) {
		t.Fatalf("call order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestChain_Empty(t *testing.T) {
	called := false
	err := middleware.Chain()(context.Background(), newTestStep(), func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("empty chain did not reach the handler")
	}
}

func TestChain_PropagatesError(t *testing.T) {
	var order []string
	chain := middleware.Chain(tag("only", &order))
	want := errors.New("handler error")

	err := chain(context.Background(), newTestStep(), func(_ context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("error = %v, want %v", err, want)
	}
	if len(order) != 2 {
		t.Errorf("middleware saw %d events, want 2; the error must pass back through", len(order))
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	mw := middleware.Recover(slog.Default())
	s := middleware.Step{Name: "panicky", Target: "1.0.0"}

	err := mw(context.Background(), s, func(_ context.Context) error {
		panic("test panic")
	})
	if err == nil {
		t.Fatal("panic did not surface as an error")
	}
	if got := err.Error(); got != "panic in step panicky: test panic" {
		t.Errorf("error = %q", got)
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	mw := middleware.Recover(slog.Default())

	called := false
	if err := mw(context.Background(), newTestStep(), func(_ context.Context) error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called")
	}
}

func TestLogging_Success(t *testing.T) {
	mw := middleware.Logging(slog.Default())

	called := false
	if err := mw(context.Background(), newTestStep(), func(_ context.Context) error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called")
	}
}

func TestLogging_Error(t *testing.T) {
	mw := middleware.Logging(slog.Default())
	want := errors.New("fail")

	err := mw(context.Background(), newTestStep(), func(_ context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("error = %v, want %v", err, want)
	}
}

func TestTimeout_CancelsSlowStep(t *testing.T) {
	mw := middleware.Timeout(10*time.Millisecond, slog.Default())

	err := mw(context.Background(), newTestStep(), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want DeadlineExceeded", err)
	}
}

func TestTimeout_DisabledWhenZero(t *testing.T) {
	mw := middleware.Timeout(0, slog.Default())

	err := mw(context.Background(), newTestStep(), func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			t.Error("zero timeout must not set a deadline")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
