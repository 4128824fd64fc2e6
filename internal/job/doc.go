// Package job defines the unit of encoding work shared by every vidqueue
// queue.
//
// A Job wraps one input, its output settings, and runtime state. The state
// flags are independently synchronized and move forward only, except the
// idle flag used by watch folders and the paused flag toggled by Pause and
// Resume. Directory and watch-folder jobs own an explicit child cursor so a
// stop request can cascade into the child currently encoding. Video and
// audio chunks are derived copies of a parent scoped to a time range.
package job
