// Package middleware wraps migration step execution with cross-cutting
// concerns.
//
// A [Middleware] receives the [Step] being run and the next [Handler] in
// the chain. [Chain] composes several into one, applied right-to-left so
// the first listed middleware is the outermost wrapper:
//
//	// recover → tracing → logging → step
//	chain := middleware.Chain(middleware.Recover(logger), middleware.Tracing(), middleware.Logging(logger))
//
// # Built-in Middleware
//
//   - [Recover] — converts a step panic into a step failure
//   - [Logging] — start and completion lines with elapsed time
//   - [Tracing] — an OpenTelemetry span per step run
//   - [Metrics] — duration histogram and execution counter per step
//   - [Timeout] — a context deadline per step run
//
// # Writing Custom Middleware
//
//	func DryRun() middleware.Middleware {
//	    return func(ctx context.Context, s middleware.Step, next middleware.Handler) error {
//	        if !allowWrites(ctx) {
//	            return fmt.Errorf("refusing to run %s against a live store", s.Name)
//	        }
//	        return next(ctx)
//	    }
//	}
//
// A middleware that does not call next short-circuits the run; the
// migrator treats its error like a step failure.
package middleware
