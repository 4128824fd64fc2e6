// Package daemonrun builds the foreground daemon runtime: logger, history
// store, encoder runner, folder watcher, workflow manager, IPC server, and
// signal handling.
package daemonrun
