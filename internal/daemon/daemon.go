package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"vidqueue/internal/config"
	"vidqueue/internal/job"
	"vidqueue/internal/jobstore"
	"vidqueue/internal/logging"
	"vidqueue/internal/services"
	"vidqueue/internal/workflow"
)

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *jobstore.Store
	workflow *workflow.Manager
	logPath  string
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	History      jobstore.Summary
	DatabasePath string
	LockFilePath string
	LogPath      string
}

// Submission describes a job requested by a client.
type Submission struct {
	Path     string
	Watch    bool
	Settings job.Settings
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *jobstore.Store, logger *slog.Logger, wf *workflow.Manager, logPath string) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		logPath:  logPath,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock, closes out history left by a previous run,
// and launches the workflow manager.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vidqueue daemon instance is already running")
	}

	if n, err := d.store.MarkInterrupted(ctx); err != nil {
		logging.WarnWithContext(d.logger, "history recovery failed", "history_recovery_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "jobs from the previous run keep their last recorded state"),
			logging.String(logging.FieldErrorHint, "check the history database or clear it"),
		)
	} else if n > 0 {
		d.logger.Info("jobs from previous run marked interrupted",
			logging.String(logging.FieldEventType, "history_recovered"),
			logging.Int64("jobs", n),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		logging.WarnWithContext(d.logger, "status api unavailable", "api_start_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "HTTP status endpoint disabled for this run"),
			logging.String(logging.FieldErrorHint, "check api.bind in the config"),
		)
	}
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("vidqueue daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("mode", d.workflow.Mode()),
	)
	return nil
}

// Stop shuts the workflow down and releases the daemon lock. In-flight jobs
// are terminated.
func (d *Daemon) Stop(ctx context.Context) {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	d.api.stop()
	if err := d.workflow.Shutdown(ctx); err != nil {
		logging.WarnWithContext(d.logger, "workflow shutdown incomplete", "daemon_shutdown_timeout",
			logging.Error(err),
			logging.String(logging.FieldImpact, "some workers may still be exiting"),
		)
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "next daemon start may report another instance"),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"),
		)
	}
	d.logger.Info("vidqueue daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	d.Stop(ctx)
	return d.store.Close()
}

// Running reports whether the daemon has been started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Submit validates a client submission and hands it to the workflow manager.
func (d *Daemon) Submit(ctx context.Context, sub Submission) (job.Snapshot, error) {
	trimmed := strings.TrimSpace(sub.Path)
	if trimmed == "" {
		return job.Snapshot{}, services.Wrap(services.ErrValidation, "daemon", "submit", "path is required", nil)
	}
	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return job.Snapshot{}, services.Wrap(services.ErrValidation, "daemon", "submit", "Unable to resolve path", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return job.Snapshot{}, services.Wrap(services.ErrNotFound, "daemon", "submit", "Unable to stat "+absPath, err)
	}

	settings := sub.Settings
	if strings.TrimSpace(settings.OutputDir) == "" && !sub.Watch {
		settings.OutputDir = d.cfg.Paths.OutputDir
	}

	var j *job.Job
	switch {
	case sub.Watch:
		if !info.IsDir() {
			return job.Snapshot{}, services.Wrap(services.ErrValidation, "daemon", "submit", "watch path must be a directory", nil)
		}
		j = job.NewWatchFolder(absPath, settings)
	case info.IsDir():
		j, err = job.New(job.Input{Path: absPath, IsDir: true}, settings)
	default:
		if !job.MatchesExtension(info.Name(), d.cfg.Watch.Extensions) {
			return job.Snapshot{}, services.Wrap(services.ErrValidation, "daemon", "submit",
				fmt.Sprintf("unsupported file extension %q", filepath.Ext(info.Name())), nil)
		}
		j, err = job.New(job.Input{Path: absPath}, settings)
	}
	if err != nil {
		return job.Snapshot{}, services.Wrap(services.ErrValidation, "daemon", "submit", "Unable to build job", err)
	}
	if err := d.workflow.AddTask(ctx, j); err != nil {
		return job.Snapshot{}, err
	}
	return j.Snapshot(), nil
}

// RunningJobs returns the jobs currently executing, including idle watch folders.
func (d *Daemon) RunningJobs() []job.Snapshot {
	return d.workflow.CurrentlyRunningTasks()
}

// Kill stops every job and empties the queues.
func (d *Daemon) Kill() {
	d.workflow.Kill()
}

// StopJob stops one job.
func (d *Daemon) StopJob(id string) error { return d.workflow.StopJob(strings.TrimSpace(id)) }

// PauseJob pauses one job.
func (d *Daemon) PauseJob(id string) error { return d.workflow.PauseJob(strings.TrimSpace(id)) }

// ResumeJob resumes one job.
func (d *Daemon) ResumeJob(id string) error { return d.workflow.ResumeJob(strings.TrimSpace(id)) }

// SetMode switches between serial and parallel dispatch for new jobs.
func (d *Daemon) SetMode(mode string) error {
	if err := d.workflow.SetMode(mode); err != nil {
		return err
	}
	d.logger.Info("execution mode changed",
		logging.String(logging.FieldEventType, "mode_changed"),
		logging.String("mode", d.workflow.Mode()),
	)
	return nil
}

// History lists recorded jobs.
func (d *Daemon) History(ctx context.Context, opts jobstore.ListOptions) ([]jobstore.Record, error) {
	return d.store.List(ctx, opts)
}

// Describe returns one history record, or nil when the id is unknown.
func (d *Daemon) Describe(ctx context.Context, id string) (*jobstore.Record, error) {
	return d.store.Get(ctx, strings.TrimSpace(id))
}

// ClearHistory removes finished records.
func (d *Daemon) ClearHistory(ctx context.Context) (int64, error) {
	return d.store.Clear(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (jobstore.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Status(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		LogPath:      d.logPath,
	}
	if summary, err := d.store.Summary(ctx); err == nil {
		status.History = summary
	} else {
		d.logger.Debug("history summary unavailable", logging.Error(err))
	}
	return status
}
