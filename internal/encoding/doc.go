// Package encoding runs single jobs against the external encoder.
//
// Executor.RunJob is the only place a job's encoder subprocess is spawned.
// It honours the job's stop and pause flags, iterates directory children,
// builds ffmpeg arguments through an ArgBuilder, streams the subprocess
// progress output into job telemetry, and records the exit outcome on the
// job. CommandRunner launches each subprocess in its own process group so
// the ProcessTracker can terminate, suspend, or continue it as a unit.
package encoding
