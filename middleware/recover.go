package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Recover returns middleware that turns a panicking step into an error.
// The migration barrier treats that error like any other step failure, so
// a panic aborts the run without advancing the storage version. The panic
// value and stack are logged.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, s Step, next Handler) (retErr error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error("migration step panicked",
				slog.String("step", s.Name),
				slog.String("target", s.Target),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			retErr = fmt.Errorf("panic in step %s: %v", s.Name, r)
		}()
		return next(ctx)
	}
}
