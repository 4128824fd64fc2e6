package chunking_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"vidqueue/internal/chunking"
	"vidqueue/internal/encoding"
	"vidqueue/internal/job"
	"vidqueue/internal/logging"
	"vidqueue/internal/services"
)

var videoAudio = []job.Stream{{Index: 0, Type: "video"}, {Index: 1, Type: "audio"}}

func newJob(t *testing.T, duration time.Duration, settings job.Settings) *job.Job {
	t.Helper()
	if settings.Codec == "" {
		settings.Codec = "libx264"
	}
	j, err := job.New(job.Input{Path: "/media/in.mp4", Duration: duration, Streams: videoAudio}, settings)
	if err != nil {
		t.Fatalf("job.New: %v", err)
	}
	return j
}

func TestJobChunksFortySecondsTargetFour(t *testing.T) {
	j := newJob(t, 40*time.Second, job.Settings{Container: "mkv"})
	set, ok := chunking.JobChunks(j, 4, 10*time.Second, "/tmp/vq")
	if !ok {
		t.Fatal("expected split")
	}
	if len(set.Video) != 4 {
		t.Fatalf("expected 4 video chunks, got %d", len(set.Video))
	}
	for i, c := range set.Video {
		if c.Range.Duration() != 10*time.Second {
			t.Fatalf("chunk %d has duration %v", i, c.Range.Duration())
		}
		want := filepath.Join("/tmp/vq", j.TempName+"_00"+string(rune('0'+i))+".mkv")
		if c.Output != want || c.ChunkIndex != i || c.Kind != job.KindVideoChunk {
			t.Fatalf("chunk %d unexpected: output=%q index=%d kind=%s", i, c.Output, c.ChunkIndex, c.Kind)
		}
	}
	if set.Audio == nil || set.Audio.Range.Duration() != 40*time.Second || !set.Audio.VideoDisabled {
		t.Fatalf("unexpected audio chunk %+v", set.Audio)
	}
	if set.Audio.Output != filepath.Join("/tmp/vq", j.TempName+"_audio.mka") {
		t.Fatalf("unexpected audio output %q", set.Audio.Output)
	}
	if set.Manifest != filepath.Join("/tmp/vq", j.TempName+"_concat.txt") || set.Concatenated != filepath.Join("/tmp/vq", j.TempName+"_video.mkv") {
		t.Fatalf("unexpected artifact names %q %q", set.Manifest, set.Concatenated)
	}
}

func TestJobChunksRefusesShortChunks(t *testing.T) {
	j := newJob(t, 40*time.Second, job.Settings{})
	if _, ok := chunking.JobChunks(j, 8, 10*time.Second, "/tmp"); ok {
		t.Fatal("40s / 8 = 5s is below the minimum and must not split")
	}
	cases := []struct {
		duration time.Duration
		target   int
	}{
		{9 * time.Second, 1},
		{19 * time.Second, 2},
		{39999 * time.Millisecond, 4},
		{time.Minute, 7},
	}
	for _, tc := range cases {
		j := newJob(t, tc.duration, job.Settings{})
		if _, ok := chunking.JobChunks(j, tc.target, 10*time.Second, "/tmp"); ok {
			t.Fatalf("duration %v target %d should not split", tc.duration, tc.target)
		}
	}
}

func TestJobChunksRefusals(t *testing.T) {
	passthrough := newJob(t, time.Hour, job.Settings{Codec: "copy"})
	if _, ok := chunking.JobChunks(passthrough, 4, time.Second, "/tmp"); ok {
		t.Fatal("passthrough must not split")
	}
	audioOnly, _ := job.New(job.Input{Path: "/a.flac", Duration: time.Hour, Streams: []job.Stream{{Type: "audio"}}}, job.Settings{Codec: "libx264"})
	if _, ok := chunking.JobChunks(audioOnly, 4, time.Second, "/tmp"); ok {
		t.Fatal("input without video must not split")
	}
	unknown := newJob(t, 0, job.Settings{})
	if _, ok := chunking.JobChunks(unknown, 4, time.Second, "/tmp"); ok {
		t.Fatal("unknown duration must not split")
	}
	if _, ok := chunking.JobChunks(newJob(t, time.Hour, job.Settings{}), 1, time.Second, "/tmp"); ok {
		t.Fatal("target below two must not split")
	}
}

func TestJobChunksCoverRangeWithoutGaps(t *testing.T) {
	cases := []struct {
		duration time.Duration
		trim     job.TimeRange
		target   int
	}{
		{40 * time.Second, job.TimeRange{}, 4},
		{100*time.Second + 7*time.Millisecond, job.TimeRange{}, 3},
		{time.Hour + 1234567*time.Microsecond, job.TimeRange{}, 7},
		{10 * time.Minute, job.TimeRange{Start: 33*time.Second + 333*time.Millisecond, End: 9 * time.Minute}, 6},
		{3 * time.Minute, job.TimeRange{Start: 20 * time.Second}, 5},
	}
	for _, tc := range cases {
		j := newJob(t, tc.duration, job.Settings{Trim: tc.trim})
		want := j.EffectiveRange()
		set, ok := chunking.JobChunks(j, tc.target, time.Second, "/tmp")
		if !ok {
			t.Fatalf("expected split for %+v", tc)
		}
		if set.Video[0].Range.Start != want.Start {
			t.Fatalf("first chunk starts at %v, want %v", set.Video[0].Range.Start, want.Start)
		}
		var sum time.Duration
		for i, c := range set.Video {
			if c.Range.Duration() <= 0 {
				t.Fatalf("chunk %d empty: %+v", i, c.Range)
			}
			if i > 0 && c.Range.Start != set.Video[i-1].Range.End {
				t.Fatalf("gap or overlap between chunk %d and %d: %+v %+v", i-1, i, set.Video[i-1].Range, c.Range)
			}
			sum += c.Range.Duration()
		}
		if last := set.Video[len(set.Video)-1].Range.End; last != want.End {
			t.Fatalf("last chunk ends at %v, want %v", last, want.End)
		}
		if sum != want.Duration() {
			t.Fatalf("chunk durations sum to %v, want %v", sum, want.Duration())
		}
		if set.Audio.Range != want {
			t.Fatalf("audio chunk covers %+v, want %+v", set.Audio.Range, want)
		}
	}
}

type recordingRunner struct {
	mu    sync.Mutex
	calls []encoding.Invocation
	exit  int
}

func (r *recordingRunner) Run(_ context.Context, inv encoding.Invocation) (encoding.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, inv)
	return encoding.Result{ExitCode: r.exit, Tail: []string{"boom"}}, nil
}

func (r *recordingRunner) ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.JobID[strings.LastIndex(c.JobID, "/")+1:])
	}
	return out
}

func finishAll(set chunking.Set) {
	for _, c := range set.Chunks() {
		c.MarkStarted()
		c.Finish(false)
	}
}

func TestReassemblyRequiresCompleteChunks(t *testing.T) {
	dir := t.TempDir()
	j := newJob(t, 40*time.Second, job.Settings{OutputDir: filepath.Join(dir, "out")})
	set, _ := chunking.JobChunks(j, 4, 10*time.Second, dir)
	runner := &recordingRunner{}
	r := chunking.NewReassembler("ffmpeg", runner, false, logging.NewNop())

	for _, c := range set.Video[:3] {
		c.Finish(false)
	}
	set.Audio.Finish(false)
	if err := r.ConcatenateVideoChunks(context.Background(), set); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error with incomplete chunk, got %v", err)
	}
	if err := r.MuxChunks(context.Background(), set); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for mux, got %v", err)
	}

	set.Video[3].Stop()
	set.Video[3].Finish(false)
	if set.VideoComplete() {
		t.Fatal("a stopped chunk must not count as complete")
	}
	if err := r.ConcatenateVideoChunks(context.Background(), set); err == nil {
		t.Fatal("expected concat refusal with stopped chunk")
	}
	if len(runner.ops()) != 0 {
		t.Fatalf("no subprocess may run with incomplete chunks, got %v", runner.ops())
	}
	if _, err := os.Stat(set.Manifest); !os.IsNotExist(err) {
		t.Fatal("manifest must not be written for incomplete chunks")
	}
}

func TestReassemblyConcatThenMux(t *testing.T) {
	dir := t.TempDir()
	j := newJob(t, 40*time.Second, job.Settings{Container: "mkv", OutputDir: filepath.Join(dir, "out")})
	set, _ := chunking.JobChunks(j, 4, 10*time.Second, dir)
	finishAll(set)
	runner := &recordingRunner{}
	r := chunking.NewReassembler("ffmpeg", runner, false, logging.NewNop())

	if err := r.ConcatenateVideoChunks(context.Background(), set); err != nil {
		t.Fatalf("concat: %v", err)
	}
	if err := r.MuxChunks(context.Background(), set); err != nil {
		t.Fatalf("mux: %v", err)
	}
	if got := strings.Join(runner.ops(), ","); got != "concatenate,mux" {
		t.Fatalf("unexpected call order %q", got)
	}

	manifest, err := os.ReadFile(set.Manifest)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(manifest)), "\n")
	if len(lines) != 4 || lines[0] != "file '"+j.TempName+"_000.mkv'" || lines[3] != "file '"+j.TempName+"_003.mkv'" {
		t.Fatalf("unexpected manifest %q", manifest)
	}

	concatArgs := strings.Join(runner.calls[0].Args, " ")
	if !strings.Contains(concatArgs, "-f concat -safe 0 -i "+set.Manifest+" -c copy "+set.Concatenated) {
		t.Fatalf("unexpected concat args %q", concatArgs)
	}
	muxArgs := strings.Join(runner.calls[1].Args, " ")
	if !strings.Contains(muxArgs, "-i "+set.Concatenated+" -i "+set.Audio.Output) || !strings.HasSuffix(muxArgs, "-c copy "+j.Output) {
		t.Fatalf("unexpected mux args %q", muxArgs)
	}
}

func TestReassemblyManifestFailureSkipsSubprocess(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	j := newJob(t, 40*time.Second, job.Settings{})
	// A regular file in place of the temp directory makes the manifest unwritable.
	set, _ := chunking.JobChunks(j, 2, time.Second, filepath.Join(blocker, "tmp"))
	finishAll(set)
	runner := &recordingRunner{}
	r := chunking.NewReassembler("", runner, false, logging.NewNop())

	err := r.ConcatenateVideoChunks(context.Background(), set)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient manifest error, got %v", err)
	}
	if len(runner.ops()) != 0 {
		t.Fatal("subprocess must not run after manifest failure")
	}
}

func TestReassemblyNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	j := newJob(t, 40*time.Second, job.Settings{})
	set, _ := chunking.JobChunks(j, 2, time.Second, dir)
	finishAll(set)
	r := chunking.NewReassembler("ffmpeg", &recordingRunner{exit: 1}, false, logging.NewNop())
	if err := r.ConcatenateVideoChunks(context.Background(), set); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestCleanupRemovesIntermediates(t *testing.T) {
	dir := t.TempDir()
	j := newJob(t, 40*time.Second, job.Settings{})
	set, _ := chunking.JobChunks(j, 2, time.Second, dir)
	for _, path := range []string{set.Manifest, set.Concatenated, set.Video[0].Output, set.Audio.Output} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	chunking.NewReassembler("ffmpeg", &recordingRunner{}, true, nil).Cleanup(set)
	if _, err := os.Stat(set.Manifest); err != nil {
		t.Fatal("keep_intermediates should retain files")
	}
	chunking.NewReassembler("ffmpeg", &recordingRunner{}, false, nil).Cleanup(set)
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected temp dir emptied, found %d entries", len(entries))
	}
}
