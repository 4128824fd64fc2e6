package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vidqueue/internal/config"
	"vidqueue/internal/job"
	"vidqueue/internal/logging"
	"vidqueue/internal/testsupport"
)

type recordingRunner struct {
	mu    sync.Mutex
	order []*job.Job
	run   func(ctx context.Context, j *job.Job) error
}

func (r *recordingRunner) RunJob(ctx context.Context, j *job.Job) error {
	if j.IsStopped() {
		return nil
	}
	r.mu.Lock()
	r.order = append(r.order, j)
	r.mu.Unlock()
	j.MarkStarted()
	if r.run != nil {
		if err := r.run(ctx, j); err != nil {
			j.Fail(err)
			return err
		}
	}
	j.Finish(false)
	return nil
}

func (r *recordingRunner) jobs() []*job.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*job.Job(nil), r.order...)
}

func newTestJob(t *testing.T, path, codec string) *job.Job {
	t.Helper()
	j, err := job.New(job.Input{Path: path}, job.Settings{Codec: codec})
	if err != nil {
		t.Fatalf("job.New: %v", err)
	}
	return j
}

func startManager(t *testing.T, m *Manager) {
	t.Helper()
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestLoopCrashRestartsUntilLimitThenDegrades(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Queue.WorkerRestartLimit = 2
	m := NewManager(cfg, &recordingRunner{}, logging.NewNop())
	var crashes atomic.Int32
	m.hook = func(queue string) {
		if queue == serialQueueName {
			crashes.Add(1)
			panic("loop exploded")
		}
	}
	startManager(t, m)

	health := func() PoolHealth {
		for _, h := range m.Status().Health {
			if h.Name == serialQueueName {
				return h
			}
		}
		t.Fatal("serial pool missing from status")
		return PoolHealth{}
	}
	testsupport.Eventually(t, 2*time.Second, func() bool { return health().Degraded }, "serial pool degraded")

	h := health()
	if h.Restarts != 2 {
		t.Fatalf("restarts = %d, want 2", h.Restarts)
	}
	if got := crashes.Load(); got != 3 {
		t.Fatalf("crashes = %d, want 3", got)
	}
	if !m.Status().Degraded() {
		t.Fatal("status should report degraded")
	}
	for _, other := range m.Status().Health {
		if other.Name != serialQueueName && other.Degraded {
			t.Fatalf("pool %s degraded by serial crash", other.Name)
		}
	}
}

func TestLoopCrashRecoversWithinLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Queue.WorkerRestartLimit = 3
	runner := &recordingRunner{}
	m := NewManager(cfg, runner, logging.NewNop())
	var crashes atomic.Int32
	m.hook = func(queue string) {
		if queue == serialQueueName && crashes.Add(1) <= 2 {
			panic("transient loop failure")
		}
	}
	j := newTestJob(t, "/media/in.mkv", "libx264")
	if err := m.AddTask(context.Background(), j); err != nil {
		t.Fatal(err)
	}
	startManager(t, m)

	if err := m.WaitForStandardTasks(waitCtx(t)); err != nil {
		t.Fatalf("WaitForStandardTasks: %v", err)
	}
	if !j.Completed() {
		t.Fatalf("job not completed: %s", j.State())
	}
	for _, h := range m.Status().Health {
		if h.Name == serialQueueName && (h.Degraded || h.Restarts != 2) {
			t.Fatalf("unexpected serial health %+v", h)
		}
	}
}

func TestJobPanicFailsOnlyThatJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := &recordingRunner{}
	bad := newTestJob(t, "/media/bad.mkv", "libx264")
	good := newTestJob(t, "/media/good.mkv", "libx264")
	runner.run = func(_ context.Context, j *job.Job) error {
		if j == bad {
			panic("encoder wrapper bug")
		}
		return nil
	}
	m := NewManager(cfg, runner, logging.NewNop())
	for _, j := range []*job.Job{bad, good} {
		if err := m.AddTask(context.Background(), j); err != nil {
			t.Fatal(err)
		}
	}
	startManager(t, m)
	if err := m.WaitForStandardTasks(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	if !bad.HasFailed() || bad.LastError() == "" {
		t.Fatalf("panicking job should be failed with an error, state %s", bad.State())
	}
	if !good.Completed() {
		t.Fatalf("next job should still run, state %s", good.State())
	}
	if m.Status().LastError == "" {
		t.Fatal("status should expose the last error")
	}
}

func TestParallelFairnessRotatesFamilies(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithParallel(),
		testsupport.WithCodecs(
			config.CodecFamily{Name: "fa", Encoders: []string{"enc_a"}, Workers: 1},
			config.CodecFamily{Name: "fb", Encoders: []string{"enc_b"}, Workers: 1},
			config.CodecFamily{Name: "fc", Encoders: []string{"enc_c"}, Workers: 1},
		),
	)
	release := make(chan struct{})
	var first sync.Once
	var mu sync.Mutex
	var families []string
	inFlight := map[string]int{}
	overlap := false
	runner := &recordingRunner{run: func(_ context.Context, j *job.Job) error {
		mu.Lock()
		families = append(families, j.Family)
		inFlight[j.Family]++
		for fam, n := range inFlight {
			if fam != j.Family && n > 0 {
				overlap = true
			}
		}
		mu.Unlock()
		first.Do(func() { <-release })
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		inFlight[j.Family]--
		mu.Unlock()
		return nil
	}}
	m := NewManager(cfg, runner, logging.NewNop())
	for i := range 3 {
		for _, enc := range []string{"enc_a", "enc_b", "enc_c"} {
			j := newTestJob(t, "/media/"+enc+string(rune('0'+i))+".mkv", enc)
			if err := m.AddTask(context.Background(), j); err != nil {
				t.Fatal(err)
			}
		}
	}
	startManager(t, m)

	testsupport.Eventually(t, 2*time.Second, func() bool {
		total := 0
		for _, fam := range []string{"fa", "fb", "fc"} {
			total += m.parallel.fair.waiters(fam)
		}
		return total == 2
	}, "two families waiting behind the first")
	close(release)

	if err := m.WaitForParallelTasks(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if overlap {
		t.Fatal("two codec families ran at the same time")
	}
	if len(families) != 9 {
		t.Fatalf("ran %d jobs, want 9", len(families))
	}
	for i := 1; i < len(families); i++ {
		if families[i] == families[i-1] {
			t.Fatalf("family %s served twice in a row: %v", families[i], families)
		}
		if i >= 2 && families[i] == families[i-2] {
			t.Fatalf("rotation skipped a waiting family: %v", families)
		}
	}
}

func TestAddTaskRoutesByEncoderAndFamily(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithParallel())
	m := NewManager(cfg, &recordingRunner{}, logging.NewNop())
	cases := map[string]string{
		"libx264":    "x264",
		"LIBX265":    "x265",
		"libsvtav1":  "av1",
		"av1":        "av1",
		"copy":       config.PassthroughFamily,
		"libvpx-vp9": "vpx",
	}
	for codec, family := range cases {
		j := newTestJob(t, "/media/"+codec+".mkv", codec)
		if err := m.AddTask(context.Background(), j); err != nil {
			t.Fatalf("AddTask(%s): %v", codec, err)
		}
		if j.Family != family {
			t.Fatalf("codec %s routed to %q, want %q", codec, j.Family, family)
		}
	}
	if _, err := m.parallel.route("h264_nvenc"); err == nil {
		t.Fatal("hardware encoder must not route without a detected hardware family")
	}
}

func TestHardwareFamilyBypassesGateWhenConcurrent(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithParallel())
	cfg.Hardware.Enabled = true
	cfg.Hardware.Concurrent = true
	m := NewManager(cfg, &recordingRunner{}, logging.NewNop(), WithHardwareEncoders([]string{"h264_nvenc"}))
	h, err := m.parallel.route("h264_nvenc")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if !h.hardware || h.family != cfg.Hardware.Name {
		t.Fatalf("unexpected handle %+v", h)
	}
	if m.parallel.gated(h) {
		t.Fatal("concurrent hardware family should bypass the fairness gate")
	}
	sw, _ := m.parallel.route("libx264")
	if !m.parallel.gated(sw) {
		t.Fatal("software family must use the fairness gate")
	}

	cfg.Hardware.Concurrent = false
	m = NewManager(cfg, &recordingRunner{}, logging.NewNop(), WithHardwareEncoders([]string{"h264_nvenc"}))
	h, _ = m.parallel.route("h264_nvenc")
	if !m.parallel.gated(h) {
		t.Fatal("non-concurrent hardware family must use the gate")
	}
}

func TestShutdownStopsLoops(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithParallel())
	m := NewManager(cfg, &recordingRunner{}, logging.NewNop())
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if m.Status().Running {
		t.Fatal("status still running after shutdown")
	}
	if err := m.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("second Shutdown: %v", err)
	}
}
