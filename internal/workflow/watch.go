package workflow

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"vidqueue/internal/fileutil"
	"vidqueue/internal/job"
	"vidqueue/internal/logging"
	"vidqueue/internal/services"
)

const (
	watchQueueName = "watch"
	// watchOutputSubdir receives encodes of watched files when the job has no
	// output directory, keeping them out of the watched folder itself.
	watchOutputSubdir = "encoded"
)

func watchOutputDir(folder string) string {
	return filepath.Join(folder, watchOutputSubdir)
}

// watchQueue dispatches watch-folder jobs to one goroutine each.
type watchQueue struct {
	fifo *fifo[task]
	pool *poolState

	// folderMu serializes encodes across folders when configured.
	folderMu sync.Mutex

	mu      sync.Mutex
	folders map[string]*job.Job
	changed chan struct{}
	wake    chan struct{}
}

func newWatchQueue() *watchQueue {
	return &watchQueue{
		fifo:    newFIFO[task](),
		pool:    newPoolState(watchQueueName, 1),
		folders: make(map[string]*job.Job),
		changed: make(chan struct{}),
		wake:    make(chan struct{}),
	}
}

func (q *watchQueue) addStopTask() {
	q.fifo.Put(task{stop: true})
	q.nudge()
}

func (q *watchQueue) register(j *job.Job) {
	q.mu.Lock()
	q.folders[j.ID] = j
	q.notifyLocked()
	q.mu.Unlock()
}

func (q *watchQueue) unregister(j *job.Job) {
	q.mu.Lock()
	delete(q.folders, j.ID)
	q.notifyLocked()
	q.mu.Unlock()
}

func (q *watchQueue) setIdle(j *job.Job, idle bool) {
	if j.IsIdle() == idle {
		return
	}
	j.SetIdle(idle)
	q.mu.Lock()
	q.notifyLocked()
	q.mu.Unlock()
}

func (q *watchQueue) notifyLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// nudge wakes every folder sleeping between polls.
func (q *watchQueue) nudge() {
	q.mu.Lock()
	close(q.wake)
	q.wake = make(chan struct{})
	q.mu.Unlock()
}

func (q *watchQueue) sleep(ctx context.Context, d time.Duration) {
	q.mu.Lock()
	wake := q.wake
	q.mu.Unlock()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-wake:
	case <-ctx.Done():
	}
}

func (q *watchQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.folders)
}

// waitIdle blocks until every registered folder is idle or finished.
func (q *watchQueue) waitIdle(ctx context.Context) error {
	for {
		q.mu.Lock()
		settled := true
		for _, j := range q.folders {
			if !j.IsIdle() && !j.IsStopped() && !j.IsDone() {
				settled = false
				break
			}
		}
		changed := q.changed
		q.mu.Unlock()
		if settled {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Manager) watchLoop(ctx context.Context) {
	q := m.watch
	for {
		m.beforeDequeue(watchQueueName)
		t, err := q.fifo.Get(ctx)
		if err != nil {
			return
		}
		if t.stop {
			q.fifo.TaskDone()
			return
		}
		if t.job.IsStopped() {
			m.finished(ctx, t.job)
		} else {
			q.register(t.job)
			m.wg.Add(1)
			go m.watchFolder(ctx, t.job)
		}
		q.fifo.TaskDone()
	}
}

func (m *Manager) watchFolder(ctx context.Context, parent *job.Job) {
	defer m.wg.Done()
	q := m.watch
	defer q.unregister(parent)
	dir := parent.Input.Path
	logger := m.queueLogger(watchQueueName).With(
		logging.String(logging.FieldJobID, parent.ID),
		logging.String("folder", dir),
	)

	if err := m.scheduler.AddFolderPath(dir); err != nil {
		wrapped := services.Wrap(services.ErrConfiguration, "workflow", "watch folder", "Unable to watch folder", err)
		parent.Fail(wrapped)
		logging.ErrorWithContext(logger, "folder watch failed to start", "watch_start_failed",
			append(logging.ErrorDetail(wrapped),
				logging.String(logging.FieldErrorHint, "check that the folder exists and is readable"),
			)...)
		m.finished(ctx, parent)
		return
	}
	parent.MarkStarted()
	m.running.add(parent)
	logger.Info("watching folder", logging.String(logging.FieldEventType, "watch_started"))

	for !parent.IsStopped() && ctx.Err() == nil {
		if m.scheduler.IsInstanceEmpty(dir) {
			q.setIdle(parent, true)
			q.sleep(ctx, m.pollInterval)
			continue
		}
		q.setIdle(parent, false)
		path, ok := m.scheduler.InstanceNewFile(dir)
		if !ok {
			continue
		}
		m.processWatchFile(ctx, logger, parent, path)
	}

	m.scheduler.RemoveFolderPath(dir)
	m.running.remove(parent)
	parent.Finish(false)
	q.setIdle(parent, true)
	logger.Info("folder watch ended", logging.String(logging.FieldEventType, "watch_stopped"))
	m.finished(ctx, parent)
}

func (m *Manager) processWatchFile(ctx context.Context, logger *slog.Logger, parent *job.Job, path string) {
	child := parent.AdoptChild(path)
	if child == nil {
		return
	}
	defer parent.ReleaseChild(child)
	defer m.recoverItem(logger, child)

	m.track(ctx, child)
	if m.cfg.Watch.WaitForAllTasks {
		if err := m.waitQueues(ctx); err != nil {
			child.Stop()
			m.finished(ctx, child)
			return
		}
	}
	if m.cfg.Watch.SerializeFolders {
		m.watch.folderMu.Lock()
		defer m.watch.folderMu.Unlock()
	}
	m.runTask(ctx, logger, task{job: child})

	if !child.Completed() || !m.cfg.Watch.MoveToDone {
		return
	}
	doneDir := filepath.Join(filepath.Dir(path), m.cfg.Watch.DoneDirName)
	dest, err := fileutil.MoveIntoDir(path, doneDir)
	if err != nil {
		logging.WarnWithContext(logger, "move to done directory failed", "watch_move_failed",
			logging.Error(err),
			logging.String("path", path),
			logging.String(logging.FieldImpact, "source stays in the watched folder"),
		)
		return
	}
	logger.Info("source moved to done directory",
		logging.String(logging.FieldEventType, "watch_source_done"),
		logging.String("path", dest),
	)
}
