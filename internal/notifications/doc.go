// Package notifications publishes job outcome alerts to ntfy.
//
// NewService returns a no-op publisher when no topic is configured, so
// callers never need to branch on whether notifications are enabled.
// Recorder decorates a history recorder and publishes top-level job
// completions and failures without blocking the worker that finished them.
package notifications
