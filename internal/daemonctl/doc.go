// Package daemonctl starts and stops the vidqueue daemon process from the CLI.
//
// Start launches `vidqueue run` detached from the terminal and waits for its
// IPC socket. Stop signals the process recorded in the pid file, waits for
// the socket to go away, and escalates to SIGKILL after a grace period.
package daemonctl
