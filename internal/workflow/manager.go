package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"vidqueue/internal/chunking"
	"vidqueue/internal/config"
	"vidqueue/internal/job"
	"vidqueue/internal/logging"
	"vidqueue/internal/services"
)

// JobRunner executes one job to completion.
type JobRunner interface {
	RunJob(ctx context.Context, j *job.Job) error
}

// Prober fills a job's duration and stream list before it is split.
type Prober interface {
	Probe(ctx context.Context, j *job.Job) error
}

// Reassembler joins chunk outputs back into the parent's output file.
type Reassembler interface {
	ConcatenateVideoChunks(ctx context.Context, set chunking.Set) error
	MuxChunks(ctx context.Context, set chunking.Set) error
	Cleanup(set chunking.Set)
}

// ProcessControl signals in-flight encoder subprocesses by job ID.
type ProcessControl interface {
	Terminate(jobID string) bool
	TerminateAll()
	Suspend(jobID string) bool
	Continue(jobID string) bool
}

// Scheduler reports new files arriving in watched folders.
type Scheduler interface {
	AddFolderPath(path string) error
	RemoveFolderPath(path string)
	IsInstanceEmpty(path string) bool
	InstanceNewFile(path string) (string, bool)
}

// task is one FIFO entry. A stop task ends the worker that takes it.
type task struct {
	job   *job.Job
	group *chunkGroup
	stop  bool
}

// Manager routes jobs to the serial, parallel, and folder-watch queues and
// owns their worker loops.
type Manager struct {
	cfg          *config.Config
	runner       JobRunner
	logger       *slog.Logger
	prober       Prober
	reassembler  Reassembler
	procs        ProcessControl
	scheduler    Scheduler
	history      *historyRecorder
	hwEncoders   []string
	restartLimit int
	pollInterval time.Duration

	// hook runs at the top of every worker loop iteration, outside the
	// per-item recovery boundary.
	hook func(queue string)

	modes    *modeGate
	running  runningSet
	serial   *serialQueue
	parallel *parallelQueue
	watch    *watchQueue

	mu      sync.RWMutex
	mode    string
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	jobs    map[string]*job.Job
	groups  map[string]*chunkGroup
}

// ManagerOption configures optional Manager collaborators.
type ManagerOption func(*Manager)

// WithProber sets the media prober used before chunk planning.
func WithProber(p Prober) ManagerOption {
	return func(m *Manager) { m.prober = p }
}

// WithReassembler enables chunked encoding with r joining the outputs.
func WithReassembler(r Reassembler) ManagerOption {
	return func(m *Manager) { m.reassembler = r }
}

// WithProcessControl sets the tracker used to signal running subprocesses.
func WithProcessControl(pc ProcessControl) ManagerOption {
	return func(m *Manager) { m.procs = pc }
}

// WithScheduler enables watch-folder jobs.
func WithScheduler(s Scheduler) ManagerOption {
	return func(m *Manager) { m.scheduler = s }
}

// WithRecorder persists job history through rec.
func WithRecorder(rec Recorder) ManagerOption {
	return func(m *Manager) { m.history = newHistoryRecorder(rec, m.logger) }
}

// WithHardwareEncoders creates the hardware family with the encoders the
// host supports. Without it the hardware family does not exist.
func WithHardwareEncoders(encoders []string) ManagerOption {
	return func(m *Manager) { m.hwEncoders = append([]string(nil), encoders...) }
}

// NewManager constructs a manager. Jobs may be added before Start; they wait
// in their FIFOs until the workers run.
func NewManager(cfg *config.Config, runner JobRunner, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:          cfg,
		runner:       runner,
		logger:       logging.NewComponentLogger(logger, "workflow"),
		restartLimit: cfg.Queue.WorkerRestartLimit,
		pollInterval: time.Duration(cfg.Watch.PollIntervalSeconds) * time.Second,
		modes:        newModeGate(),
		mode:         cfg.Queue.Mode,
		jobs:         make(map[string]*job.Job),
		groups:       make(map[string]*chunkGroup),
	}
	if m.pollInterval <= 0 {
		m.pollInterval = 200 * time.Millisecond
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.history == nil {
		m.history = newHistoryRecorder(nil, m.logger)
	}
	m.serial = newSerialQueue()
	m.parallel = newParallelQueue(cfg, m.hwEncoders)
	m.watch = newWatchQueue()
	return m
}

// Start launches every worker loop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.started = true
	m.mu.Unlock()

	m.supervise(runCtx, m.serial.pool, m.serialLoop)
	for _, h := range m.parallel.handles {
		for range h.workers {
			m.supervise(runCtx, h.pool, func(ctx context.Context) { m.parallelLoop(ctx, h) })
		}
	}
	m.supervise(runCtx, m.watch.pool, m.watchLoop)

	m.logger.Info("workflow started",
		logging.String(logging.FieldEventType, "workflow_started"),
		logging.String("mode", m.Mode()),
		logging.Bool("chunking", m.chunkingEnabled()),
		logging.Int("codec_families", len(m.parallel.handles)),
	)
	return nil
}

// Shutdown stops every job, sends stop tasks to all pools, and waits for
// the loops to exit or ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	cancel := m.cancel
	m.started = false
	m.cancel = nil
	m.mu.Unlock()

	m.Kill()
	m.serial.addStopTask()
	m.parallel.addStopTask()
	m.watch.addStopTask()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	cancel()
	<-done
	m.logger.Info("workflow stopped", logging.String(logging.FieldEventType, "workflow_stopped"))
	return err
}

// Mode returns the execution mode used to route new jobs.
func (m *Manager) Mode() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// SetMode changes the execution mode for jobs submitted from now on.
func (m *Manager) SetMode(mode string) error {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode != config.ModeSerial && mode != config.ModeParallel {
		return services.Wrap(services.ErrValidation, "workflow", "set mode", "mode must be serial or parallel", nil)
	}
	m.mu.Lock()
	m.mode = mode
	m.mu.Unlock()
	return nil
}

func (m *Manager) chunkingEnabled() bool {
	return m.cfg.Queue.Chunking && m.reassembler != nil
}

// AddTask routes j to its queue. Watch-folder jobs go to the folder-watch
// queue; everything else goes to the serial queue or, in parallel mode, to
// the FIFO of its codec family. In parallel mode with chunking enabled a
// standard job long enough to split is queued as chunks instead.
func (m *Manager) AddTask(ctx context.Context, j *job.Job) error {
	if j == nil {
		return services.Wrap(services.ErrValidation, "workflow", "add task", "job is required", nil)
	}
	if j.IsChunk() {
		return services.Wrap(services.ErrValidation, "workflow", "add task", "chunk jobs are created internally", nil)
	}
	if j.Kind == job.KindDirectory && len(j.Files()) == 0 {
		files, err := job.ScanDirectory(j.Input.Path, m.cfg.Watch.Extensions)
		if err != nil {
			return services.Wrap(services.ErrNotFound, "workflow", "add task", "Unable to read directory", err)
		}
		j.SetFiles(files)
	}

	if j.Kind == job.KindWatchFolder {
		if m.scheduler == nil {
			return services.Wrap(services.ErrConfiguration, "workflow", "add task", "folder watching is not available", nil)
		}
		if h, err := m.parallel.route(j.Settings.Codec); err == nil {
			j.Family = h.family
		}
		if strings.TrimSpace(j.Settings.OutputDir) == "" {
			j.Settings.OutputDir = watchOutputDir(j.Input.Path)
		}
		m.track(ctx, j)
		m.watch.fifo.Put(task{job: j})
		m.logQueued(j, "watch")
		return nil
	}

	if m.Mode() != config.ModeParallel {
		if h, err := m.parallel.route(j.Settings.Codec); err == nil {
			j.Family = h.family
		}
		m.track(ctx, j)
		m.serial.fifo.Put(task{job: j})
		m.logQueued(j, "serial")
		return nil
	}

	h, err := m.parallel.route(j.Settings.Codec)
	if err != nil {
		return err
	}
	j.Family = h.family
	if group := m.planChunks(ctx, j); group != nil {
		m.track(ctx, j)
		m.mu.Lock()
		m.groups[j.ID] = group
		m.mu.Unlock()
		for _, chunk := range group.set.Chunks() {
			m.parallel.put(h, task{job: chunk, group: group})
		}
		m.logger.Info("job split into chunks",
			logging.String(logging.FieldEventType, "job_chunked"),
			logging.String(logging.FieldJobID, j.ID),
			logging.String(logging.FieldCodecFamily, h.family),
			logging.Int("video_chunks", len(group.set.Video)),
			logging.Duration("duration", j.EffectiveRange().Duration()),
		)
		return nil
	}
	m.track(ctx, j)
	m.parallel.put(h, task{job: j})
	m.logQueued(j, h.family)
	return nil
}

func (m *Manager) planChunks(ctx context.Context, j *job.Job) *chunkGroup {
	if !m.chunkingEnabled() || j.Kind != job.KindStandard {
		return nil
	}
	if (j.Duration() == 0 || len(j.Input.Streams) == 0) && m.prober != nil {
		if err := m.prober.Probe(ctx, j); err != nil {
			logging.WarnWithContext(m.logger, "media probe failed; encoding without chunks", "chunk_probe_failed",
				append(logging.ErrorDetail(err),
					logging.String(logging.FieldJobID, j.ID),
					logging.String(logging.FieldImpact, "job runs as a single encode"),
				)...)
			return nil
		}
	}
	set, ok := chunking.JobChunks(j, m.cfg.Queue.ChunkConcurrency,
		time.Duration(m.cfg.Queue.MinChunkSeconds)*time.Second, m.cfg.Paths.TempDir)
	if !ok {
		return nil
	}
	return newChunkGroup(set, m.reassembler, m.procs, m.logger, m.finished)
}

func (m *Manager) logQueued(j *job.Job, queue string) {
	m.logger.Info("job queued",
		logging.String(logging.FieldEventType, "job_queued"),
		logging.String(logging.FieldJobID, j.ID),
		logging.String(logging.FieldQueue, queue),
		logging.String("kind", string(j.Kind)),
		logging.String("input", j.Input.Path),
	)
}

func (m *Manager) track(ctx context.Context, j *job.Job) {
	m.mu.Lock()
	m.jobs[j.ID] = j
	m.mu.Unlock()
	m.history.submitted(ctx, j)
}

// finished records the final state of a top-level job and forgets it.
func (m *Manager) finished(ctx context.Context, j *job.Job) {
	m.mu.Lock()
	_, ok := m.jobs[j.ID]
	delete(m.jobs, j.ID)
	delete(m.groups, j.ID)
	m.mu.Unlock()
	if ok {
		m.history.finished(ctx, j)
	}
}

func (m *Manager) lookup(id string) (*job.Job, *chunkGroup) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id], m.groups[id]
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// WaitForStandardTasks blocks until the serial queue is drained.
func (m *Manager) WaitForStandardTasks(ctx context.Context) error {
	return m.serial.fifo.Join(ctx)
}

// WaitForParallelTasks blocks until every codec family FIFO is drained.
func (m *Manager) WaitForParallelTasks(ctx context.Context) error {
	return m.parallel.join(ctx)
}

// WaitForWatchFolderTasks blocks until every watched folder is idle with no
// file in progress.
func (m *Manager) WaitForWatchFolderTasks(ctx context.Context) error {
	if err := m.watch.fifo.Join(ctx); err != nil {
		return err
	}
	return m.watch.waitIdle(ctx)
}

// WaitForAllTasks blocks until all three queues are drained.
func (m *Manager) WaitForAllTasks(ctx context.Context) error {
	if err := m.waitQueues(ctx); err != nil {
		return err
	}
	return m.WaitForWatchFolderTasks(ctx)
}

func (m *Manager) waitQueues(ctx context.Context) error {
	if err := m.WaitForStandardTasks(ctx); err != nil {
		return err
	}
	return m.WaitForParallelTasks(ctx)
}

// CurrentlyRunningTasks returns snapshots of the jobs executing right now.
func (m *Manager) CurrentlyRunningTasks() []job.Snapshot {
	return m.running.snapshot()
}

// ObserveProgress is called after a job accepted new telemetry. Chunk
// progress is folded into the parent before the throttled history update.
func (m *Manager) ObserveProgress(j *job.Job) {
	target := j
	if j.IsChunk() {
		_, group := m.lookup(j.ParentID)
		if group == nil {
			return
		}
		group.aggregate()
		target = group.set.Parent
	}
	if tracked, _ := m.lookup(target.ID); tracked == nil {
		return
	}
	m.history.progress(context.Background(), target)
}

// Kill stops every queued and running job and terminates in-flight
// subprocesses. Worker loops keep running.
func (m *Manager) Kill() {
	m.mu.RLock()
	jobs := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	groups := make([]*chunkGroup, 0, len(m.groups))
	for _, g := range m.groups {
		groups = append(groups, g)
	}
	m.mu.RUnlock()

	for _, g := range groups {
		g.stop()
	}
	for _, j := range jobs {
		m.stopJob(j)
	}

	ctx := context.Background()
	drained := m.serial.fifo.Drain()
	for _, h := range m.parallel.handles {
		drained = append(drained, h.fifo.Drain()...)
	}
	drained = append(drained, m.watch.fifo.Drain()...)
	for _, t := range drained {
		if t.stop {
			continue
		}
		t.job.Stop()
		if t.group != nil {
			t.group.settle(ctx)
			continue
		}
		m.finished(ctx, t.job)
	}
	if m.procs != nil {
		m.procs.TerminateAll()
	}
	m.watch.nudge()
	m.logger.Info("all jobs killed",
		logging.String(logging.FieldEventType, "jobs_killed"),
		logging.Int("jobs", len(jobs)),
		logging.Int("dequeued", len(drained)),
	)
}

func (m *Manager) stopJob(j *job.Job) {
	child := j.CurrentChild()
	j.Stop()
	if m.procs == nil {
		return
	}
	m.procs.Terminate(j.ID)
	if child != nil {
		m.procs.Terminate(child.ID)
	}
}

// StopJob stops one submitted job. Stopping a directory or watch-folder job
// stops its current file; stopping a chunked job stops every chunk.
func (m *Manager) StopJob(id string) error {
	j, group := m.lookup(id)
	if j == nil {
		return services.Wrap(services.ErrNotFound, "workflow", "stop job", "no active job with id "+id, nil)
	}
	if group != nil {
		group.stop()
	} else {
		m.stopJob(j)
	}
	m.watch.nudge()
	return nil
}

// PauseJob suspends one submitted job and its running subprocesses.
func (m *Manager) PauseJob(id string) error {
	j, group := m.lookup(id)
	if j == nil {
		return services.Wrap(services.ErrNotFound, "workflow", "pause job", "no active job with id "+id, nil)
	}
	if group != nil {
		group.pause()
		return nil
	}
	j.Pause()
	m.signal(j, func(pc ProcessControl, id string) { pc.Suspend(id) })
	return nil
}

// ResumeJob continues a paused job.
func (m *Manager) ResumeJob(id string) error {
	j, group := m.lookup(id)
	if j == nil {
		return services.Wrap(services.ErrNotFound, "workflow", "resume job", "no active job with id "+id, nil)
	}
	if group != nil {
		group.resume()
		return nil
	}
	m.signal(j, func(pc ProcessControl, id string) { pc.Continue(id) })
	j.Resume()
	return nil
}

func (m *Manager) signal(j *job.Job, fn func(ProcessControl, string)) {
	if m.procs == nil {
		return
	}
	fn(m.procs, j.ID)
	if child := j.CurrentChild(); child != nil {
		fn(m.procs, child.ID)
	}
}

func (m *Manager) beforeDequeue(queue string) {
	if m.hook != nil {
		m.hook(queue)
	}
}

func (m *Manager) queueLogger(queue string) *slog.Logger {
	return m.logger.With(logging.String(logging.FieldQueue, queue))
}

// runTask executes a dequeued job and records its outcome. Top-level jobs
// are finished here; chunks are settled by their group.
func (m *Manager) runTask(ctx context.Context, logger *slog.Logger, t task) {
	j := t.job
	if !j.IsStopped() {
		if t.group != nil {
			t.group.begin()
		}
		m.running.add(j)
		err := m.invoke(ctx, logger, j)
		m.running.remove(j)
		if err != nil && !j.IsStopped() && ctx.Err() == nil {
			m.setLastError(err)
			logging.WarnWithContext(logger, "job failed; queue continues", "job_failed",
				append(logging.ErrorDetail(err), jobAttrs(j)...)...)
		}
	}
	if t.group == nil {
		m.finished(ctx, j)
	}
}

func (m *Manager) invoke(ctx context.Context, logger *slog.Logger, j *job.Job) (err error) {
	defer m.recoverItem(logger, j)
	ctx = services.WithJobID(ctx, j.ID)
	return m.runner.RunJob(ctx, j)
}
