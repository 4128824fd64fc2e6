// Package watch implements the folder-watch Scheduler on fsnotify.
//
// Each registered folder keeps a FIFO of settled files: a created or
// written file is held until its size and modification time stop changing
// for the settle delay, then becomes available through InstanceNewFile.
// Only the top level of a folder is watched, so a "done" subdirectory is
// never rescheduled.
package watch
