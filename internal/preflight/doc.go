// Package preflight provides readiness checks for the directories and
// external binaries vidqueue depends on.
//
// The daemon runs them at startup and logs failures; `vidqueue doctor` runs
// the same checks from the CLI without contacting the daemon.
package preflight
