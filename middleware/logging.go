package middleware

import (
	"context"
	"log/slog"
	"time"
)

// Logging returns middleware that logs each step run: an info line when
// the step starts and an info or error line when it finishes, with the
// elapsed time.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, s Step, next Handler) error {
		logger.Info("migration step started", logAttrs(s)...)

		start := time.Now()
		err := next(ctx)

		attrs := append(logAttrs(s), slog.Duration("elapsed", time.Since(start)))
		if err != nil {
			logger.Error("migration step failed", append(attrs, slog.String("error", err.Error()))...)
			return err
		}
		logger.Info("migration step completed", attrs...)
		return nil
	}
}

func logAttrs(s Step) []any {
	return []any{
		slog.String("step", s.Name),
		slog.String("target", s.Target),
	}
}
