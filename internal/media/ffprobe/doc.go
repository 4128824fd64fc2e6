// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect runs ffprobe against a media file; the Result helpers report the
// stream layout and the playable duration used to size encode chunks.
package ffprobe
