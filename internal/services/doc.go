// Package services defines shared utilities consumed by the queues, the
// encoding primitive, and the daemon.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, queue names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     (external tool, validation, configuration, transient) so workers can
//     record them on the job and keep going.
//
// Use these helpers when wiring new queue logic so operational behaviour (error
// handling, observability) stays uniform across the dispatcher.
package services
