package workflow_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"vidqueue/internal/config"
	"vidqueue/internal/encoding"
	"vidqueue/internal/job"
	"vidqueue/internal/logging"
	"vidqueue/internal/media/ffprobe"
	"vidqueue/internal/services"
	"vidqueue/internal/testsupport"
	"vidqueue/internal/workflow"
)

func TestSerialQueueRunsJobsInOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := &stubRunner{}
	rec := &stubRecorder{}
	mgr := workflow.NewManager(cfg, runner, logging.NewNop(), workflow.WithRecorder(rec))

	var submitted []*job.Job
	for _, name := range []string{"a.mkv", "b.mkv", "c.mkv"} {
		j := mustJob(t, "/media/"+name, "libx264")
		if err := mgr.AddTask(context.Background(), j); err != nil {
			t.Fatalf("AddTask: %v", err)
		}
		submitted = append(submitted, j)
	}
	if got := len(mgr.Status().Jobs); got != 3 {
		t.Fatalf("status lists %d queued jobs, want 3", got)
	}
	start(t, mgr)

	if err := mgr.WaitForStandardTasks(deadline(t)); err != nil {
		t.Fatalf("WaitForStandardTasks: %v", err)
	}
	calls := runner.jobs()
	if len(calls) != len(submitted) {
		t.Fatalf("runner called %d times, want %d", len(calls), len(submitted))
	}
	for i, j := range submitted {
		if calls[i] != j {
			t.Fatalf("job %d ran out of order", i)
		}
		if !j.Completed() {
			t.Fatalf("job %d not completed: %s", i, j.State())
		}
	}
	if running := mgr.CurrentlyRunningTasks(); len(running) != 0 {
		t.Fatalf("expected no running tasks, got %d", len(running))
	}
	if got := len(mgr.Status().Jobs); got != 0 {
		t.Fatalf("finished jobs still listed: %d", got)
	}
	if s, _, f := rec.counts(); s != 3 || f != 3 {
		t.Fatalf("history submitted=%d finished=%d, want 3/3", s, f)
	}
}

func TestAddTaskValidation(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithParallel())
	mgr := workflow.NewManager(cfg, &stubRunner{}, logging.NewNop())

	if err := mgr.AddTask(context.Background(), nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("nil job: expected validation error, got %v", err)
	}
	unknown := mustJob(t, "/media/a.mkv", "libmystery")
	if err := mgr.AddTask(context.Background(), unknown); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("unknown codec: expected validation error, got %v", err)
	}
	parent := mustJob(t, "/media/b.mkv", "libx264")
	chunk := parent.VideoChunk(0, job.TimeRange{End: time.Second}, "/tmp/c.mkv")
	if err := mgr.AddTask(context.Background(), chunk); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("chunk: expected validation error, got %v", err)
	}
	folder := job.NewWatchFolder(t.TempDir(), job.Settings{Codec: "libx264"})
	if err := mgr.AddTask(context.Background(), folder); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("watch folder without scheduler: expected configuration error, got %v", err)
	}
	if err := mgr.SetMode("sideways"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("bad mode: expected validation error, got %v", err)
	}
}

func TestSerialAndParallelNeverOverlap(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithParallel())
	var mu sync.Mutex
	route := map[*job.Job]string{}
	active := map[string]int{}
	violations := 0
	runner := &stubRunner{run: func(_ context.Context, j *job.Job) error {
		mu.Lock()
		mode := route[j]
		active[mode]++
		for other, n := range active {
			if other != mode && n > 0 {
				violations++
			}
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		active[mode]--
		mu.Unlock()
		return nil
	}}
	mgr := workflow.NewManager(cfg, runner, logging.NewNop())

	add := func(mode, path, codec string) {
		if err := mgr.SetMode(mode); err != nil {
			t.Fatal(err)
		}
		j := mustJob(t, path, codec)
		mu.Lock()
		route[j] = mode
		mu.Unlock()
		if err := mgr.AddTask(context.Background(), j); err != nil {
			t.Fatalf("AddTask: %v", err)
		}
	}
	add(config.ModeParallel, "/m/p1.mkv", "libx264")
	add(config.ModeParallel, "/m/p2.mkv", "libx264")
	add(config.ModeParallel, "/m/p3.mkv", "libvpx")
	add(config.ModeSerial, "/m/s1.mkv", "libx264")
	add(config.ModeSerial, "/m/s2.mkv", "libx265")
	add(config.ModeParallel, "/m/p4.mkv", "libvpx")
	add(config.ModeSerial, "/m/s3.mkv", "libx264")
	start(t, mgr)

	if err := mgr.WaitForAllTasks(deadline(t)); err != nil {
		t.Fatalf("WaitForAllTasks: %v", err)
	}
	if got := len(runner.jobs()); got != 7 {
		t.Fatalf("ran %d jobs, want 7", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if violations != 0 {
		t.Fatalf("serial and parallel work overlapped %d times", violations)
	}
}

func TestPauseHoldsQueuedJobUntilResume(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := &stubRunner{}
	procs := newStubProcs()
	mgr := workflow.NewManager(cfg, runner, logging.NewNop(), workflow.WithProcessControl(procs))
	j := mustJob(t, "/media/a.mkv", "libx264")
	if err := mgr.AddTask(context.Background(), j); err != nil {
		t.Fatal(err)
	}
	if err := mgr.PauseJob(j.ID); err != nil {
		t.Fatalf("PauseJob: %v", err)
	}
	start(t, mgr)

	time.Sleep(50 * time.Millisecond)
	if len(runner.jobs()) != 0 {
		t.Fatal("paused job ran")
	}
	if err := mgr.ResumeJob(j.ID); err != nil {
		t.Fatalf("ResumeJob: %v", err)
	}
	if err := mgr.WaitForStandardTasks(deadline(t)); err != nil {
		t.Fatal(err)
	}
	if !j.Completed() {
		t.Fatalf("job not completed after resume: %s", j.State())
	}
	procs.mu.Lock()
	defer procs.mu.Unlock()
	if len(procs.suspended) == 0 || len(procs.continued) == 0 {
		t.Fatalf("expected suspend and continue signals, got %v / %v", procs.suspended, procs.continued)
	}
	if err := mgr.PauseJob("missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for unknown job, got %v", err)
	}
}

func TestKillStopsQueuedAndRunningJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	procs := newStubProcs()
	started := make(chan *job.Job, 4)
	runner := &stubRunner{run: func(ctx context.Context, j *job.Job) error {
		started <- j
		select {
		case <-procs.channel(j.ID):
			return errors.New("terminated")
		case <-ctx.Done():
			return ctx.Err()
		}
	}}
	mgr := workflow.NewManager(cfg, runner, logging.NewNop(), workflow.WithProcessControl(procs))
	var jobs []*job.Job
	for _, name := range []string{"a.mkv", "b.mkv", "c.mkv"} {
		j := mustJob(t, "/media/"+name, "libx264")
		if err := mgr.AddTask(context.Background(), j); err != nil {
			t.Fatal(err)
		}
		jobs = append(jobs, j)
	}
	start(t, mgr)

	select {
	case first := <-started:
		if first != jobs[0] {
			t.Fatal("unexpected first job")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first job never started")
	}
	if got := mgr.CurrentlyRunningTasks(); len(got) != 1 || got[0].ID != jobs[0].ID {
		t.Fatalf("unexpected running tasks %+v", got)
	}

	mgr.Kill()
	if err := mgr.WaitForStandardTasks(deadline(t)); err != nil {
		t.Fatalf("WaitForStandardTasks: %v", err)
	}
	for i, j := range jobs {
		if !j.IsStopped() {
			t.Fatalf("job %d not stopped", i)
		}
	}
	if got := len(runner.jobs()); got != 1 {
		t.Fatalf("queued jobs ran after kill: %d calls", got)
	}
	if got := len(mgr.Status().Jobs); got != 0 {
		t.Fatalf("killed jobs still tracked: %d", got)
	}
	procs.mu.Lock()
	defer procs.mu.Unlock()
	if procs.terminateAll != 1 {
		t.Fatalf("TerminateAll called %d times", procs.terminateAll)
	}
}

func TestDirectoryStopCascadesToCurrentChild(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	srcDir := filepath.Join(testsupport.BaseDir(cfg), "season")
	testsupport.WriteMediaFiles(t, srcDir, "e01.mkv", "e02.mkv", "e03.mkv", ".hidden.mkv", "notes.txt")

	restore := encoding.SetProbeForTests(func(context.Context, string, string) (ffprobe.Result, error) {
		return ffprobe.Result{
			Streams: []ffprobe.Stream{{CodecType: "video"}, {CodecType: "audio"}},
			Format:  ffprobe.Format{Duration: "60"},
		}, nil
	})
	t.Cleanup(restore)

	procs := newStubProcs()
	invocations := make(chan string, 8)
	encRunner := &blockingEncoder{procs: procs, started: invocations}
	exec := encoding.NewExecutor(cfg, encRunner, logging.NewNop())
	mgr := workflow.NewManager(cfg, exec, logging.NewNop(), workflow.WithProcessControl(procs))

	dir := job.NewDirectory(srcDir, nil, job.Settings{Codec: "libx264", OutputDir: cfg.Paths.OutputDir})
	if err := mgr.AddTask(context.Background(), dir); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if got := len(dir.Files()); got != 3 {
		t.Fatalf("directory snapshot has %d files, want 3", got)
	}
	start(t, mgr)

	var childID string
	select {
	case childID = <-invocations:
	case <-time.After(2 * time.Second):
		t.Fatal("first child never started")
	}
	child := dir.CurrentChild()
	if child == nil || child.ID != childID {
		t.Fatal("running invocation does not belong to the current child")
	}

	if err := mgr.StopJob(dir.ID); err != nil {
		t.Fatalf("StopJob: %v", err)
	}
	if err := mgr.WaitForStandardTasks(deadline(t)); err != nil {
		t.Fatal(err)
	}
	if !child.IsStopped() {
		t.Fatal("stop did not cascade to the current child")
	}
	if !dir.IsStopped() || !dir.IsDone() {
		t.Fatalf("directory should be stopped and done, state %s", dir.State())
	}
	if dir.Remaining() != 2 {
		t.Fatalf("remaining files = %d, want 2", dir.Remaining())
	}
	select {
	case id := <-invocations:
		t.Fatalf("another child started after stop: %s", id)
	default:
	}
}

// blockingEncoder is an encoding.Runner whose invocations block until the
// process control terminates them.
type blockingEncoder struct {
	procs   *stubProcs
	started chan<- string
}

func (b *blockingEncoder) Run(ctx context.Context, inv encoding.Invocation) (encoding.Result, error) {
	b.started <- inv.JobID
	select {
	case <-b.procs.channel(inv.JobID):
		return encoding.Result{ExitCode: 143, Tail: []string{"terminated"}}, nil
	case <-ctx.Done():
		return encoding.Result{ExitCode: 143}, nil
	}
}

func TestProgressIsThrottledIntoHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := &stubRecorder{}
	var mgr *workflow.Manager
	runner := &stubRunner{run: func(_ context.Context, j *job.Job) error {
		for i := range 10 {
			j.UpdateTelemetry(job.Telemetry{CurrentTime: time.Duration(i) * time.Second})
			mgr.ObserveProgress(j)
		}
		return nil
	}}
	mgr = workflow.NewManager(cfg, runner, logging.NewNop(), workflow.WithRecorder(rec))
	if err := mgr.AddTask(context.Background(), mustJob(t, "/media/a.mkv", "libx264")); err != nil {
		t.Fatal(err)
	}
	start(t, mgr)
	if err := mgr.WaitForStandardTasks(deadline(t)); err != nil {
		t.Fatal(err)
	}
	submitted, progress, finished := rec.counts()
	if submitted != 1 || finished != 1 {
		t.Fatalf("submitted=%d finished=%d, want 1/1", submitted, finished)
	}
	if progress != 1 {
		t.Fatalf("progress writes = %d, want 1 within the throttle interval", progress)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.finished[0].State != job.StateDone {
		t.Fatalf("final state = %s", rec.finished[0].State)
	}
}
