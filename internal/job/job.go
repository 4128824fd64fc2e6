package job

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the job variants.
type Kind string

const (
	KindStandard    Kind = "standard"
	KindDirectory   Kind = "directory"
	KindWatchFolder Kind = "watch_folder"
	KindVideoChunk  Kind = "video_chunk"
	KindAudioChunk  Kind = "audio_chunk"
)

// PassthroughCodec selects stream copy instead of an encoder.
const PassthroughCodec = "copy"

// Stream describes one elementary stream of the input.
type Stream struct {
	Index int    `json:"index"`
	Type  string `json:"type"`
	Codec string `json:"codec,omitempty"`
}

// Input identifies the resource a job reads.
type Input struct {
	Path     string        `json:"path"`
	IsDir    bool          `json:"is_dir,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Streams  []Stream      `json:"streams,omitempty"`
}

// HasVideo reports whether the input carries at least one video stream.
func (in Input) HasVideo() bool {
	for _, s := range in.Streams {
		if s.Type == "video" {
			return true
		}
	}
	return false
}

// HasAudio reports whether the input carries at least one audio stream.
func (in Input) HasAudio() bool {
	for _, s := range in.Streams {
		if s.Type == "audio" {
			return true
		}
	}
	return false
}

// TimeRange is a half-open interval [Start, End) of the input timeline.
type TimeRange struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// Duration returns the range length.
func (r TimeRange) Duration() time.Duration { return r.End - r.Start }

// IsZero reports whether the range is unset.
func (r TimeRange) IsZero() bool { return r.Start == 0 && r.End == 0 }

// Settings is the target configuration. Only Codec (routing) and Container
// (naming) are interpreted by the scheduler; the rest is handed to the
// argument builder untouched.
type Settings struct {
	Codec      string    `json:"codec"`
	Container  string    `json:"container"`
	VideoArgs  []string  `json:"video_args,omitempty"`
	AudioCodec string    `json:"audio_codec,omitempty"`
	AudioArgs  []string  `json:"audio_args,omitempty"`
	OutputDir  string    `json:"output_dir,omitempty"`
	Trim       TimeRange `json:"trim,omitzero"`
}

// IsPassthrough reports whether the settings stream-copy the video.
func (s Settings) IsPassthrough() bool {
	return strings.EqualFold(strings.TrimSpace(s.Codec), PassthroughCodec)
}

func (s Settings) clone() Settings {
	s.VideoArgs = append([]string(nil), s.VideoArgs...)
	s.AudioArgs = append([]string(nil), s.AudioArgs...)
	return s
}

// Telemetry is the numeric progress reported by the encoder.
type Telemetry struct {
	Bitrate     float64       `json:"bitrate_kbps"`
	FileSize    int64         `json:"file_size"`
	Speed       float64       `json:"speed"`
	CurrentTime time.Duration `json:"current_time"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Job is one schedulable unit of encoding work.
//
// Identity and configuration fields are written before the job is handed to
// a queue and are read-only afterwards.
type Job struct {
	ID         string
	Kind       Kind
	Input      Input
	Settings   Settings
	Output     string
	TempName   string
	ParentID   string
	ChunkIndex int
	// Range scopes chunks to a slice of the input; zero for whole-input jobs.
	Range         TimeRange
	VideoDisabled bool
	AudioDisabled bool
	Family        string
	CreatedAt     time.Time

	started  atomic.Bool
	paused   atomic.Bool
	idle     atomic.Bool
	stopped  atomic.Bool
	done     atomic.Bool
	failed   atomic.Bool
	finished atomic.Bool

	telemetryMu sync.RWMutex
	telemetry   Telemetry
	lastError   string
	startedAt   time.Time
	finishedAt  time.Time

	pauseMu sync.Mutex
	resume  chan struct{}

	childMu sync.Mutex
	files   []string
	cursor  int
	current *Job
}

// ErrInvalidInput reports a job that cannot be constructed.
var ErrInvalidInput = errors.New("invalid job input")

// New builds a standard job, or a directory job when input.IsDir is set and
// files is the snapshot of valid inputs inside it.
func New(input Input, settings Settings) (*Job, error) {
	if strings.TrimSpace(input.Path) == "" {
		return nil, ErrInvalidInput
	}
	j := newJob(KindStandard, input, settings)
	if input.IsDir {
		j.Kind = KindDirectory
		return j, nil
	}
	j.Output = OutputPathFor(input.Path, settings)
	return j, nil
}

// NewDirectory builds a directory job over an explicit file snapshot.
func NewDirectory(dir string, files []string, settings Settings) *Job {
	j := newJob(KindDirectory, Input{Path: dir, IsDir: true}, settings)
	j.files = append([]string(nil), files...)
	return j
}

// NewWatchFolder builds a watch-folder job for dir.
func NewWatchFolder(dir string, settings Settings) *Job {
	return newJob(KindWatchFolder, Input{Path: dir, IsDir: true}, settings)
}

func newJob(kind Kind, input Input, settings Settings) *Job {
	id := uuid.New()
	return &Job{
		ID:         id.String(),
		Kind:       kind,
		Input:      input,
		Settings:   settings.clone(),
		TempName:   "vq-" + strings.ReplaceAll(id.String(), "-", "")[:8],
		ChunkIndex: -1,
		CreatedAt:  time.Now().UTC(),
	}
}

// SetFiles replaces the directory snapshot. It is only valid before the job
// is queued.
func (j *Job) SetFiles(files []string) {
	j.childMu.Lock()
	defer j.childMu.Unlock()
	j.files = append([]string(nil), files...)
	j.cursor = 0
}

// Files returns the directory snapshot.
func (j *Job) Files() []string {
	j.childMu.Lock()
	defer j.childMu.Unlock()
	return append([]string(nil), j.files...)
}

// IsContainer reports whether the job produces child jobs instead of
// encoding directly.
func (j *Job) IsContainer() bool {
	return j.Kind == KindDirectory || j.Kind == KindWatchFolder
}

// IsChunk reports whether the job is a video or audio chunk.
func (j *Job) IsChunk() bool {
	return j.Kind == KindVideoChunk || j.Kind == KindAudioChunk
}

// EffectiveRange is the portion of the input this job encodes: the chunk
// range, the trim window, or the whole input.
func (j *Job) EffectiveRange() TimeRange {
	if !j.Range.IsZero() {
		return j.Range
	}
	duration := j.Duration()
	if !j.Settings.Trim.IsZero() {
		trim := j.Settings.Trim
		if trim.End == 0 || (duration > 0 && trim.End > duration) {
			trim.End = duration
		}
		return trim
	}
	return TimeRange{End: duration}
}

// Duration returns the probed input duration.
func (j *Job) Duration() time.Duration {
	j.telemetryMu.RLock()
	defer j.telemetryMu.RUnlock()
	return j.Input.Duration
}

// ApplyProbe fills the input description from a media probe. Children of
// directory and watch-folder jobs are created with only a path and probed
// by the worker that runs them.
func (j *Job) ApplyProbe(duration time.Duration, streams []Stream) {
	j.telemetryMu.Lock()
	defer j.telemetryMu.Unlock()
	j.Input.Duration = duration
	j.Input.Streams = append([]Stream(nil), streams...)
}

// OutputPathFor derives the default output path for input under settings.
// The output lands in settings.OutputDir (or next to the input) with the
// container extension; an output that would overwrite the input gains an
// "-encoded" suffix.
func OutputPathFor(input string, settings Settings) string {
	dir := settings.OutputDir
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Dir(input)
	}
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	ext := ContainerExt(settings.Container, filepath.Ext(base))
	out := filepath.Join(dir, stem+ext)
	if out == filepath.Clean(input) {
		out = filepath.Join(dir, stem+"-encoded"+ext)
	}
	return out
}

// ContainerExt returns ".container", falling back to fallback when the
// container is unset.
func ContainerExt(container, fallback string) string {
	container = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(container)), ".")
	if container == "" {
		if fallback == "" {
			return ".mkv"
		}
		return fallback
	}
	return "." + container
}
