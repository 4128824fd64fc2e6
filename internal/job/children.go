package job

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// NextChild advances the directory cursor and returns a standard job for the
// next file, making it the current child. It returns (nil, false) once the
// snapshot is exhausted or the parent is stopped.
func (j *Job) NextChild() (*Job, bool) {
	j.childMu.Lock()
	defer j.childMu.Unlock()
	if j.stopped.Load() || j.cursor >= len(j.files) {
		j.current = nil
		return nil, false
	}
	path := j.files[j.cursor]
	j.cursor++
	j.current = j.childFor(path)
	return j.current, true
}

// Remaining returns how many directory files have not been handed out.
func (j *Job) Remaining() int {
	j.childMu.Lock()
	defer j.childMu.Unlock()
	return len(j.files) - j.cursor
}

// AdoptChild wraps a newly arrived watch-folder file as the current child.
// It returns nil when the parent is stopped.
func (j *Job) AdoptChild(path string) *Job {
	j.childMu.Lock()
	defer j.childMu.Unlock()
	if j.stopped.Load() {
		return nil
	}
	j.current = j.childFor(path)
	return j.current
}

// ReleaseChild clears the current child once it has finished.
func (j *Job) ReleaseChild(child *Job) {
	j.childMu.Lock()
	defer j.childMu.Unlock()
	if j.current == child {
		j.current = nil
	}
}

// CurrentChild returns the child currently owned by the job, if any.
func (j *Job) CurrentChild() *Job {
	j.childMu.Lock()
	defer j.childMu.Unlock()
	return j.current
}

func (j *Job) childFor(path string) *Job {
	child := newJob(KindStandard, Input{Path: path}, j.Settings)
	child.ParentID = j.ID
	child.Family = j.Family
	child.Output = OutputPathFor(path, child.Settings)
	return child
}

// VideoChunk derives the video chunk with the given index and range. The
// chunk shares the parent's temp name and writes to output.
func (j *Job) VideoChunk(index int, r TimeRange, output string) *Job {
	c := j.derive(KindVideoChunk, output)
	c.ChunkIndex = index
	c.Range = r
	c.AudioDisabled = true
	return c
}

// AudioChunk derives the audio-only chunk covering the parent's full
// effective range.
func (j *Job) AudioChunk(output string) *Job {
	c := j.derive(KindAudioChunk, output)
	c.Range = j.EffectiveRange()
	c.VideoDisabled = true
	return c
}

func (j *Job) derive(kind Kind, output string) *Job {
	c := newJob(kind, j.Input, j.Settings)
	c.Input.Streams = append([]Stream(nil), j.Input.Streams...)
	c.ParentID = j.ID
	c.TempName = j.TempName
	c.Family = j.Family
	c.Output = output
	return c
}

// ScanDirectory returns the sorted, non-hidden regular files in dir whose
// extension is in extensions. An empty extension list accepts every file.
func ScanDirectory(dir string, extensions []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || strings.HasPrefix(name, ".") {
			continue
		}
		if !MatchesExtension(name, extensions) {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	slices.Sort(files)
	return files, nil
}

// MatchesExtension reports whether name carries one of extensions
// (case-insensitive, with leading dot).
func MatchesExtension(name string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	return slices.Contains(extensions, ext)
}
