// Package chunking splits one encode into time-range chunks and reassembles
// the chunk outputs without re-encoding.
//
// JobChunks decides whether a job is worth splitting and derives the video
// chunks plus a single audio chunk. The Reassembler concatenates the video
// chunk outputs in index order through an ffmpeg concat manifest and then
// stream-copies the audio chunk into the parent's final container.
package chunking
