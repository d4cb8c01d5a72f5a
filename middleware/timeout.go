package middleware

import (
	"context"
	"log/slog"
	"time"
)

// Timeout returns middleware that bounds each step run with a context
// deadline of d. A step that honors its context returns
// context.DeadlineExceeded when the bound is hit, aborting the migration.
// Non-positive d leaves step contexts unbounded.
func Timeout(d time.Duration, logger *slog.Logger) Middleware {
	return func(ctx context.Context, s Step, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}

		logger.Debug("step timeout set",
			slog.String("step", s.Name),
			slog.Duration("timeout", d),
		)
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}
