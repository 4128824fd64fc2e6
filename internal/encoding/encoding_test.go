package encoding_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"vidqueue/internal/encoding"
	"vidqueue/internal/job"
	"vidqueue/internal/logging"
	"vidqueue/internal/media/ffprobe"
	"vidqueue/internal/services"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []encoding.Invocation
	lines []string
	exit  func(inv encoding.Invocation) int
}

func (f *fakeRunner) Run(_ context.Context, inv encoding.Invocation) (encoding.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	f.mu.Unlock()
	for _, line := range f.lines {
		inv.OnLine(line)
	}
	code := 0
	if f.exit != nil {
		code = f.exit(inv)
	}
	return encoding.Result{ExitCode: code, Tail: []string{"last line"}}, nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newExecutor(t *testing.T, runner encoding.Runner) *encoding.Executor {
	t.Helper()
	restore := encoding.SetProbeForTests(func(context.Context, string, string) (ffprobe.Result, error) {
		return ffprobe.Result{
			Streams: []ffprobe.Stream{{Index: 0, CodecType: "video"}, {Index: 1, CodecType: "audio"}},
			Format:  ffprobe.Format{Duration: "40"},
		}, nil
	})
	t.Cleanup(restore)
	return encoding.NewExecutor(nil, runner, logging.NewNop())
}

func standardJob(t *testing.T, dir string) *job.Job {
	t.Helper()
	j, err := job.New(job.Input{Path: filepath.Join(dir, "in.mp4")}, job.Settings{Codec: "libx264", Container: "mkv", OutputDir: filepath.Join(dir, "out")})
	if err != nil {
		t.Fatalf("job.New: %v", err)
	}
	return j
}

func TestRunJobStoppedHasNoSideEffects(t *testing.T) {
	runner := &fakeRunner{}
	exec := newExecutor(t, runner)
	j := standardJob(t, t.TempDir())
	j.Stop()
	if err := exec.RunJob(context.Background(), j); err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if runner.count() != 0 || j.HasStarted() || j.IsDone() {
		t.Fatalf("stopped job should not run: calls=%d started=%v done=%v", runner.count(), j.HasStarted(), j.IsDone())
	}
}

func TestRunJobSuccessRecordsTelemetry(t *testing.T) {
	runner := &fakeRunner{lines: []string{
		"frame=10", "out_time_us=20000000", "total_size=4096", "bitrate=1200.5kbits/s", "speed=2.5x", "progress=continue",
	}}
	exec := newExecutor(t, runner)
	var progressCalls int
	exec.OnProgress = func(*job.Job) { progressCalls++ }
	j := standardJob(t, t.TempDir())

	if err := exec.RunJob(context.Background(), j); err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if !j.HasStarted() || !j.IsDone() || j.HasFailed() {
		t.Fatalf("unexpected state %s", j.State())
	}
	tel := j.Telemetry()
	if tel.CurrentTime != 20*time.Second || tel.FileSize != 4096 || tel.Speed != 2.5 || tel.Bitrate != 1200.5 {
		t.Fatalf("unexpected telemetry %+v", tel)
	}
	if progressCalls != 1 {
		t.Fatalf("expected one progress callback, got %d", progressCalls)
	}
	if j.Duration() != 40*time.Second {
		t.Fatalf("expected probed duration, got %v", j.Duration())
	}
	if runner.count() != 1 || runner.calls[0].JobID != j.ID || runner.calls[0].Binary != "ffmpeg" {
		t.Fatalf("unexpected invocation %+v", runner.calls)
	}
}

func TestRunJobNonZeroExitFails(t *testing.T) {
	runner := &fakeRunner{exit: func(encoding.Invocation) int { return 1 }}
	exec := newExecutor(t, runner)
	j := standardJob(t, t.TempDir())

	err := exec.RunJob(context.Background(), j)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !j.IsDone() || !j.HasFailed() || !strings.Contains(j.LastError(), "status 1") {
		t.Fatalf("unexpected state %s err=%q", j.State(), j.LastError())
	}
}

func TestRunJobDirectoryPropagatesChildFailure(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{exit: func(inv encoding.Invocation) int {
		for _, arg := range inv.Args {
			if strings.HasSuffix(arg, "bad.mkv") {
				return 2
			}
		}
		return 0
	}}
	exec := newExecutor(t, runner)
	parent := job.NewDirectory(dir, []string{
		filepath.Join(dir, "a.mkv"), filepath.Join(dir, "bad.mkv"), filepath.Join(dir, "c.mkv"),
	}, job.Settings{Codec: "libx265", Container: "mp4"})

	err := exec.RunJob(context.Background(), parent)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected aggregated failure, got %v", err)
	}
	if runner.count() != 3 {
		t.Fatalf("expected every child to run, got %d", runner.count())
	}
	if !parent.IsDone() || !parent.HasFailed() {
		t.Fatalf("expected parent done and failed, got %s", parent.State())
	}
	if parent.CurrentChild() != nil {
		t.Fatal("expected no current child after directory run")
	}
}

func TestRunJobDirectoryStopsMidway(t *testing.T) {
	dir := t.TempDir()
	var parent *job.Job
	runner := &fakeRunner{exit: func(encoding.Invocation) int {
		parent.Stop()
		return 255
	}}
	exec := newExecutor(t, runner)
	parent = job.NewDirectory(dir, []string{filepath.Join(dir, "a.mkv"), filepath.Join(dir, "b.mkv")}, job.Settings{Codec: "libx264"})

	_ = exec.RunJob(context.Background(), parent)
	if runner.count() != 1 {
		t.Fatalf("expected iteration to end after stop, got %d runs", runner.count())
	}
	if parent.State() != job.StateStopped {
		t.Fatalf("expected stopped state, got %s", parent.State())
	}
}

func TestRunJobRejectsWatchFolder(t *testing.T) {
	exec := newExecutor(t, &fakeRunner{})
	err := exec.RunJob(context.Background(), job.NewWatchFolder(t.TempDir(), job.Settings{}))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRunJobWaitsWhilePaused(t *testing.T) {
	runner := &fakeRunner{}
	exec := newExecutor(t, runner)
	j := standardJob(t, t.TempDir())
	j.Pause()

	done := make(chan error, 1)
	go func() { done <- exec.RunJob(context.Background(), j) }()
	time.Sleep(20 * time.Millisecond)
	if runner.count() != 0 {
		t.Fatal("paused job should not start")
	}
	j.Resume()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunJob: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunJob did not resume")
	}
	if runner.count() != 1 {
		t.Fatalf("expected one run after resume, got %d", runner.count())
	}
}
