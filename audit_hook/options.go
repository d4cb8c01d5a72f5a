package audithook

import "log/slog"

// Option adjusts how an Extension is built.
type Option func(*Extension)

// WithActions limits the extension to the listed actions; every other
// hook is skipped. The default is to audit all of them. Names that match
// no known action have no effect.
//
//	audithook.New(rec, audithook.WithActions(
//	    audithook.ActionTaskTerminated,
//	    audithook.ActionMigrated,
//	))
func WithActions(actions ...string) Option {
	return func(e *Extension) {
		enabled := make(map[string]bool, len(actions))
		for _, name := range actions {
			enabled[name] = true
		}
		e.enabled = enabled
	}
}

// WithLogger overrides the logger used to report recorder failures.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) { e.logger = logger }
}
