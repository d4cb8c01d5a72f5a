// Package middleware provides composable middleware for migration step
// execution. Middleware wraps step runs synchronously and can modify
// execution (recover from panics, log, add tracing, record metrics).
package middleware

import (
	"context"
)

// Step identifies the migration step being executed. Middleware receive
// it by value; it carries identity only, never behavior.
type Step struct {
	// Name is the step's human-readable name.
	Name string
	// Target is the storage version the step migrates to, e.g. "1.2.0".
	Target string
}

// Handler is the terminal function that executes step logic.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic. It must call next
// to continue the chain unless it is short-circuiting with an error.
type Middleware func(ctx context.Context, s Step, next Handler) error

// Chain composes middleware into one, applied right-to-left: the first
// middleware in the list is the outermost wrapper, so
// Chain(recover, tracing, logging) runs recover → tracing → logging →
// handler.
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, s Step, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			h = bind(mws[i], s, h)
		}
		return h(ctx)
	}
}

// bind fixes one middleware around a handler for a given step.
func bind(mw Middleware, s Step, next Handler) Handler {
	return func(ctx context.Context) error {
		return mw(ctx, s, next)
	}
}
