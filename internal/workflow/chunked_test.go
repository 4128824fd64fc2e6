package workflow_test

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"vidqueue/internal/job"
	"vidqueue/internal/logging"
	"vidqueue/internal/testsupport"
	"vidqueue/internal/workflow"
)

func newChunkingManager(t *testing.T, chunks int, runner workflow.JobRunner, r *stubReassembler) *workflow.Manager {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithChunking(chunks, 10))
	return workflow.NewManager(cfg, runner, logging.NewNop(),
		workflow.WithProber(stubProber{duration: 40 * time.Second, streams: videoAndAudio}),
		workflow.WithReassembler(r),
	)
}

func TestChunkedJobSplitsAndReassemblesOnce(t *testing.T) {
	var mgr *workflow.Manager
	runner := &stubRunner{run: func(_ context.Context, j *job.Job) error {
		if j.Kind == job.KindVideoChunk {
			j.UpdateTelemetry(job.Telemetry{CurrentTime: j.Range.Duration(), FileSize: 100})
			mgr.ObserveProgress(j)
		}
		return nil
	}}
	reasm := &stubReassembler{}
	mgr = newChunkingManager(t, 4, runner, reasm)

	parent := mustJob(t, "/media/movie.mkv", "libx264")
	if err := mgr.AddTask(context.Background(), parent); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	start(t, mgr)
	if err := mgr.WaitForParallelTasks(deadline(t)); err != nil {
		t.Fatalf("WaitForParallelTasks: %v", err)
	}

	calls := runner.jobs()
	if len(calls) != 5 {
		t.Fatalf("runner called %d times, want 4 video + 1 audio", len(calls))
	}
	var video []job.TimeRange
	var audio []*job.Job
	for _, c := range calls {
		if c.ParentID != parent.ID {
			t.Fatalf("chunk %s not linked to parent", c.ID)
		}
		switch c.Kind {
		case job.KindVideoChunk:
			video = append(video, c.Range)
		case job.KindAudioChunk:
			audio = append(audio, c)
		default:
			t.Fatalf("unexpected kind %s", c.Kind)
		}
	}
	sort.Slice(video, func(i, k int) bool { return video[i].Start < video[k].Start })
	want := []job.TimeRange{
		{Start: 0, End: 10 * time.Second},
		{Start: 10 * time.Second, End: 20 * time.Second},
		{Start: 20 * time.Second, End: 30 * time.Second},
		{Start: 30 * time.Second, End: 40 * time.Second},
	}
	if !slices.Equal(video, want) {
		t.Fatalf("video ranges = %v, want %v", video, want)
	}
	if len(audio) != 1 || audio[0].Range != (job.TimeRange{End: 40 * time.Second}) || !audio[0].VideoDisabled {
		t.Fatalf("unexpected audio chunk %+v", audio)
	}

	ops, incomplete := reasm.snapshot()
	if !slices.Equal(ops, []string{"concat", "mux", "cleanup"}) {
		t.Fatalf("reassembly calls = %v", ops)
	}
	if len(incomplete) != 0 {
		t.Fatalf("reassembly ran with incomplete chunks: %v", incomplete)
	}
	if !parent.Completed() {
		t.Fatalf("parent not completed: %s", parent.State())
	}
	if got := parent.Telemetry().CurrentTime; got != 40*time.Second {
		t.Fatalf("aggregated progress = %v, want 40s", got)
	}
	if got := len(mgr.Status().Jobs); got != 0 {
		t.Fatalf("parent still tracked after reassembly: %d", got)
	}
}

func TestShortJobIsNotSplit(t *testing.T) {
	runner := &stubRunner{}
	reasm := &stubReassembler{}
	mgr := newChunkingManager(t, 8, runner, reasm)

	j := mustJob(t, "/media/short.mkv", "libx264")
	if err := mgr.AddTask(context.Background(), j); err != nil {
		t.Fatal(err)
	}
	start(t, mgr)
	if err := mgr.WaitForParallelTasks(deadline(t)); err != nil {
		t.Fatal(err)
	}
	calls := runner.jobs()
	if len(calls) != 1 || calls[0] != j || calls[0].Kind != job.KindStandard {
		t.Fatalf("expected one standard run, got %d calls", len(calls))
	}
	if ops, _ := reasm.snapshot(); len(ops) != 0 {
		t.Fatalf("reassembler used for unsplit job: %v", ops)
	}
	if !j.Completed() {
		t.Fatalf("job not completed: %s", j.State())
	}
}

func TestPassthroughJobIsNotSplit(t *testing.T) {
	runner := &stubRunner{}
	reasm := &stubReassembler{}
	mgr := newChunkingManager(t, 4, runner, reasm)

	j := mustJob(t, "/media/remux.mkv", "copy")
	if err := mgr.AddTask(context.Background(), j); err != nil {
		t.Fatal(err)
	}
	start(t, mgr)
	if err := mgr.WaitForParallelTasks(deadline(t)); err != nil {
		t.Fatal(err)
	}
	if calls := runner.jobs(); len(calls) != 1 || calls[0] != j {
		t.Fatalf("expected a single passthrough run, got %d", len(calls))
	}
}

func TestFailedChunkPreventsReassembly(t *testing.T) {
	var once sync.Once
	runner := &stubRunner{run: func(_ context.Context, j *job.Job) error {
		if j.Kind == job.KindVideoChunk && j.ChunkIndex == 1 {
			var err error
			once.Do(func() { err = errors.New("encoder crashed") })
			return err
		}
		return nil
	}}
	reasm := &stubReassembler{}
	mgr := newChunkingManager(t, 4, runner, reasm)

	parent := mustJob(t, "/media/movie.mkv", "libx264")
	if err := mgr.AddTask(context.Background(), parent); err != nil {
		t.Fatal(err)
	}
	start(t, mgr)
	if err := mgr.WaitForParallelTasks(deadline(t)); err != nil {
		t.Fatal(err)
	}

	if ops, _ := reasm.snapshot(); len(ops) != 0 {
		t.Fatalf("reassembly must not run after a chunk failure, got %v", ops)
	}
	if !parent.IsDone() || !parent.HasFailed() {
		t.Fatalf("parent should be failed, state %s", parent.State())
	}
	if parent.LastError() == "" {
		t.Fatal("parent failure should carry a message")
	}
}

func TestStoppingChunkedParentStopsChunks(t *testing.T) {
	procs := newStubProcs()
	started := make(chan *job.Job, 8)
	runner := &stubRunner{run: func(ctx context.Context, j *job.Job) error {
		started <- j
		select {
		case <-procs.channel(j.ID):
			return errors.New("terminated")
		case <-ctx.Done():
			return ctx.Err()
		}
	}}
	reasm := &stubReassembler{}
	cfg := testsupport.NewConfig(t, testsupport.WithChunking(4, 10))
	mgr := workflow.NewManager(cfg, runner, logging.NewNop(),
		workflow.WithProber(stubProber{duration: 40 * time.Second, streams: videoAndAudio}),
		workflow.WithReassembler(reasm),
		workflow.WithProcessControl(procs),
	)
	parent := mustJob(t, "/media/movie.mkv", "libx264")
	if err := mgr.AddTask(context.Background(), parent); err != nil {
		t.Fatal(err)
	}
	start(t, mgr)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("no chunk started")
	}
	if err := mgr.StopJob(parent.ID); err != nil {
		t.Fatalf("StopJob: %v", err)
	}
	if err := mgr.WaitForParallelTasks(deadline(t)); err != nil {
		t.Fatal(err)
	}
	if !parent.IsStopped() || !parent.IsDone() {
		t.Fatalf("parent should be stopped and finished, state %s", parent.State())
	}
	if ops, _ := reasm.snapshot(); len(ops) != 0 {
		t.Fatalf("reassembly ran for a stopped job: %v", ops)
	}
	for _, c := range runner.jobs() {
		if !c.IsStopped() {
			t.Fatalf("chunk %d kept running after stop", c.ChunkIndex)
		}
	}
}
