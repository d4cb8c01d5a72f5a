package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/roster"
)

// Client wraps a KV with the two access modes roster uses. Blocking calls
// bound the wait with the configured timeout; Defer* calls return
// immediately. In both modes the underlying operation runs on a context
// detached from the caller's, so an abandoned call may still take effect.
// Reconciliation repairs the cache/store divergence that can leave behind.
type Client struct {
	kv      KV
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient wraps kv. A non-positive timeout falls back to the default
// from roster.DefaultConfig; a nil logger falls back to slog.Default.
func NewClient(kv KV, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = roster.DefaultConfig().StoreTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{kv: kv, timeout: timeout, logger: logger}
}

// Timeout returns the blocking-call bound.
func (c *Client) Timeout() time.Duration { return c.timeout }

// awaitOp runs fn on a detached context and waits for its result, the
// timeout, or caller cancellation, whichever comes first. Results always
// travel through the channel so an abandoned operation races with nobody.
func awaitOp[T any](c *Client, ctx context.Context, op, key string, fn func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		v   T
		err error
	}

	dctx := context.WithoutCancel(ctx)
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(dctx)
		done <- outcome{v: v, err: err}
	}()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	var zero T
	select {
	case out := <-done:
		return out.v, out.err
	case <-timer.C:
		return zero, fmt.Errorf("roster/store: %s after %v: %w", opKey(op, key), c.timeout, roster.ErrTimeout)
	case <-ctx.Done():
		return zero, fmt.Errorf("roster/store: %s: %w", opKey(op, key), ctx.Err())
	}
}

func (c *Client) awaitErr(ctx context.Context, op, key string, fn func(context.Context) error) error {
	_, err := awaitOp(c, ctx, op, key, func(dctx context.Context) (struct{}, error) {
		return struct{}{}, fn(dctx)
	})

	return err
}

func opKey(op, key string) string {
	if key == "" {
		return op
	}

	return op + " " + key
}

// Fetch reads key, blocking up to the timeout.
func (c *Client) Fetch(ctx context.Context, key string) ([]byte, error) {
	return awaitOp(c, ctx, "fetch", key, func(dctx context.Context) ([]byte, error) {
		return c.kv.Fetch(dctx, key)
	})
}

// Put writes key, blocking up to the timeout.
func (c *Client) Put(ctx context.Context, key string, value []byte) error {
	return c.awaitErr(ctx, "put", key, func(dctx context.Context) error {
		return c.kv.Put(dctx, key, value)
	})
}

// Expunge deletes key, blocking up to the timeout.
func (c *Client) Expunge(ctx context.Context, key string) error {
	return c.awaitErr(ctx, "expunge", key, func(dctx context.Context) error {
		return c.kv.Expunge(dctx, key)
	})
}

// Names lists every key, blocking up to the timeout.
func (c *Client) Names(ctx context.Context) ([]string, error) {
	return awaitOp(c, ctx, "names", "", func(dctx context.Context) ([]string, error) {
		return c.kv.Names(dctx)
	})
}

// Initialize prepares the backend, blocking up to the timeout.
func (c *Client) Initialize(ctx context.Context) error {
	return c.awaitErr(ctx, "initialize", "", func(dctx context.Context) error {
		return c.kv.Initialize(dctx)
	})
}

// DeferPut writes key without waiting. The failure, if any, is logged at
// warning level and carried by the returned handle.
func (c *Client) DeferPut(ctx context.Context, key string, value []byte) *Deferred {
	return c.deferOp(ctx, "put", key, func(dctx context.Context) error {
		return c.kv.Put(dctx, key, value)
	})
}

// DeferExpunge deletes key without waiting.
func (c *Client) DeferExpunge(ctx context.Context, key string) *Deferred {
	return c.deferOp(ctx, "expunge", key, func(dctx context.Context) error {
		return c.kv.Expunge(dctx, key)
	})
}

func (c *Client) deferOp(ctx context.Context, op, key string, fn func(context.Context) error) *Deferred {
	d := newDeferred()
	dctx := context.WithoutCancel(ctx)
	go func() {
		err := fn(dctx)
		if err != nil {
			c.logger.Warn("deferred store operation failed",
				slog.String("op", op),
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		d.complete(err)
	}()

	return d
}

// Deferred is the handle for a fire-and-forget store operation.
type Deferred struct {
	done chan struct{}
	err  error
}

func newDeferred() *Deferred {
	return &Deferred{done: make(chan struct{})}
}

// complete records the outcome. Called exactly once.
func (d *Deferred) complete(err error) {
	d.err = err
	close(d.done)
}

// Done returns a channel closed once the operation has finished.
func (d *Deferred) Done() <-chan struct{} { return d.done }

// Err blocks until the operation finishes and returns its outcome.
func (d *Deferred) Err() error {
	<-d.done

	return d.err
}

// Wait blocks up to limit for the operation to finish. Returns
// roster.ErrTimeout if it is still pending.
func (d *Deferred) Wait(limit time.Duration) error {
	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case <-d.done:
		return d.err
	case <-timer.C:
		return roster.ErrTimeout
	}
}
