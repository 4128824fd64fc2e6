// Package daemon coordinates the long-running vidqueue process.
//
// It wires configuration, the job history store, and the workflow manager
// into a single lifecycle with flock-based locking to prevent multiple
// instances. The daemon validates submitted paths before they reach the
// manager, exposes history maintenance helpers, and serves the optional
// read-only HTTP status API.
//
// Keep orchestration logic here: scheduling lives in the workflow package
// while the daemon focuses on startup, shutdown, and the control surface
// consumed by IPC.
package daemon
