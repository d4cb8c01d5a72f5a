package store_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/roster"
	"github.com/xraph/roster/store"
	"github.com/xraph/roster/store/memory"
)

func newClient(kv store.KV, timeout time.Duration) *store.Client {
	return store.NewClient(kv, timeout, slog.Default())
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestBlockingRoundTrip(t *testing.T) {
	t.Parallel()
	s := memory.New()
	c := newClient(s, time.Second)
	ctx := context.Background()

	if err := c.Put(ctx, "/web:t1", []byte("alpha")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := c.Fetch(ctx, "/web:t1")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(got) != "alpha" {
		t.Errorf("got %q, want %q", got, "alpha")
	}

	if _, err := c.Fetch(ctx, "/web:absent"); !errors.Is(err, roster.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestBlockingTimeoutStillCompletes(t *testing.T) {
	t.Parallel()
	s := memory.New()
	s.SetLatency(100 * time.Millisecond)
	c := newClient(s, 20*time.Millisecond)

	err := c.Put(context.Background(), "/web:t1", []byte("alpha"))
	if !errors.Is(err, roster.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	// The abandoned operation runs on a detached context and must still
	// land in the store.
	waitFor(t, func() bool { return s.Len() == 1 })
}

func TestBlockingHonorsCallerCancel(t *testing.T) {
	t.Parallel()
	s := memory.New()
	s.SetLatency(time.Second)
	c := newClient(s, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Fetch(ctx, "/web:t1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDeferPutCompletes(t *testing.T) {
	t.Parallel()
	s := memory.New()
	c := newClient(s, time.Second)

	d := c.DeferPut(context.Background(), "/web:t1", []byte("alpha"))
	if err := d.Wait(time.Second); err != nil {
		t.Fatalf("deferred put failed: %v", err)
	}

	got, err := s.Fetch(context.Background(), "/web:t1")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(got) != "alpha" {
		t.Errorf("got %q, want %q", got, "alpha")
	}
}

func TestDeferPutReturnsImmediately(t *testing.T) {
	t.Parallel()
	s := memory.New()
	s.SetLatency(300 * time.Millisecond)
	c := newClient(s, time.Second)

	start := time.Now()
	d := c.DeferPut(context.Background(), "/web:t1", []byte("alpha"))
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("DeferPut blocked for %v", elapsed)
	}

	if err := d.Wait(10 * time.Millisecond); !errors.Is(err, roster.ErrTimeout) {
		t.Fatalf("expected ErrTimeout from early Wait, got %v", err)
	}
	if err := d.Err(); err != nil {
		t.Fatalf("deferred put eventually failed: %v", err)
	}
}

func TestDeferSurfacesFailure(t *testing.T) {
	t.Parallel()
	s := memory.New()
	boom := errors.New("disk on fire")
	s.FailWith(memory.OpExpunge, boom)
	c := newClient(s, time.Second)

	d := c.DeferExpunge(context.Background(), "/web:t1")
	if err := d.Err(); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
}

func TestDeferSurvivesCallerCancel(t *testing.T) {
	t.Parallel()
	s := memory.New()
	s.SetLatency(50 * time.Millisecond)
	c := newClient(s, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	d := c.DeferPut(ctx, "/web:t1", []byte("alpha"))
	cancel()

	if err := d.Err(); err != nil {
		t.Fatalf("deferred put failed after caller cancel: %v", err)
	}
	if s.Len() != 1 {
		t.Error("deferred put did not land in the store")
	}
}
