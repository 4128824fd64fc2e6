// Package logs reads daemon log files for the CLI.
//
// Tail returns the last N lines (negative offset) or everything written after
// a byte offset, optionally filtered to a single job id, and can block until
// new lines arrive for `vidqueue logs --follow`. Latest locates the newest
// daemon log when the daemon is not reachable.
package logs
