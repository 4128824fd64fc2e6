// Package logging assembles structured slog loggers and formatting helpers used
// across vidqueue.
//
// It owns the console and JSON handlers, fans records out to the terminal and
// the daemon log file, and exposes context-aware helpers so queue code can tag
// log lines with job IDs, queue names, and codec families. A no-op logger is
// provided for tests and wiring code that cannot fail.
package logging
