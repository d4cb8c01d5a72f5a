// Package observability provides OpenTelemetry-based metrics extensions
// for roster. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for task creation, start, termination, overdue
// flagging, persistence failure, orphan expunge, and migration events.
//
// Per-step migration spans and timings live in the middleware package
// instead; see middleware.Tracing and middleware.Metrics.
package observability
