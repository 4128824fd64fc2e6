package chunking

import (
	"fmt"
	"path/filepath"
	"time"

	"vidqueue/internal/job"
)

// Set is the chunk plan for one parent job.
type Set struct {
	Parent *job.Job
	Video  []*job.Job
	Audio  *job.Job
	// Manifest is the concat list consumed by ConcatenateVideoChunks.
	Manifest string
	// Concatenated is the intermediate video-only file built from Video.
	Concatenated string
}

// Chunks returns the video chunks followed by the audio chunk.
func (s Set) Chunks() []*job.Job {
	out := make([]*job.Job, 0, len(s.Video)+1)
	out = append(out, s.Video...)
	if s.Audio != nil {
		out = append(out, s.Audio)
	}
	return out
}

// VideoComplete reports whether every video chunk finished successfully and
// none was stopped.
func (s Set) VideoComplete() bool {
	if len(s.Video) == 0 {
		return false
	}
	for _, c := range s.Video {
		if !c.Completed() {
			return false
		}
	}
	return true
}

// Complete reports whether the video chunks and the audio chunk all
// finished successfully.
func (s Set) Complete() bool {
	return s.VideoComplete() && s.Audio != nil && s.Audio.Completed()
}

// Settled reports whether every chunk reached a final state, successful or not.
func (s Set) Settled() bool {
	for _, c := range s.Chunks() {
		if !c.IsDone() && !c.IsStopped() {
			return false
		}
	}
	return true
}

// JobChunks plans target video chunks plus one audio chunk for j, with
// intermediate files under tempDir. It refuses to split passthrough jobs,
// jobs without a video stream, a target below two, and plans whose chunks
// would be shorter than minChunk.
func JobChunks(j *job.Job, target int, minChunk time.Duration, tempDir string) (Set, bool) {
	if j == nil || j.IsContainer() || j.IsChunk() {
		return Set{}, false
	}
	if j.Settings.IsPassthrough() || !j.Input.HasVideo() || target < 2 {
		return Set{}, false
	}
	r := j.EffectiveRange()
	total := r.Duration()
	if total <= 0 || total/time.Duration(target) < minChunk {
		return Set{}, false
	}

	ext := job.ContainerExt(j.Settings.Container, filepath.Ext(j.Input.Path))
	step := (total / time.Duration(target)).Truncate(time.Millisecond)
	set := Set{
		Parent:       j,
		Video:        make([]*job.Job, 0, target),
		Manifest:     filepath.Join(tempDir, j.TempName+"_concat.txt"),
		Concatenated: filepath.Join(tempDir, j.TempName+"_video"+ext),
	}
	for i := 0; i < target; i++ {
		chunkRange := job.TimeRange{Start: r.Start + time.Duration(i)*step}
		if i == target-1 {
			chunkRange.End = r.End
		} else {
			chunkRange.End = chunkRange.Start + step
		}
		output := filepath.Join(tempDir, fmt.Sprintf("%s_%03d%s", j.TempName, i, ext))
		set.Video = append(set.Video, j.VideoChunk(i, chunkRange, output))
	}
	set.Audio = j.AudioChunk(filepath.Join(tempDir, j.TempName+"_audio.mka"))
	return set, true
}
