package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"vidqueue/internal/chunking"
	"vidqueue/internal/config"
	"vidqueue/internal/daemon"
	"vidqueue/internal/deps"
	"vidqueue/internal/encoding"
	"vidqueue/internal/ipc"
	"vidqueue/internal/jobstore"
	"vidqueue/internal/logging"
	"vidqueue/internal/notifications"
	"vidqueue/internal/preflight"
	"vidqueue/internal/watch"
	"vidqueue/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

const shutdownTimeout = 30 * time.Second

// Chunk intermediates older than this are left over from a previous run.
const staleChunkAge = 24 * time.Hour

// Run starts the vidqueue daemon runtime loop and blocks until SIGINT or
// SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sessionID := uuid.NewString()
	logPath := logging.DaemonLogPath(cfg.Paths.LogDir, time.Now())
	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		FilePath:    logPath,
		SessionID:   sessionID,
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.PruneLogs(logger, cfg.Paths.LogDir, "vidqueue-*.log", logPath, cfg.Logging.RetentionDays)
	logDependencySnapshot(logger, cfg)
	logPreflight(logger, cfg)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := jobstore.Open(cfg)
	if err != nil {
		logger.Error("open history store", logging.Error(err))
		return err
	}

	if !cfg.Queue.KeepIntermediates {
		chunking.CleanStale(signalCtx, cfg.Paths.TempDir, staleChunkAge, logger)
	}

	tracker := encoding.NewProcessTracker(time.Duration(cfg.Encoder.KillGraceSeconds) * time.Second)
	runner := encoding.NewCommandRunner(tracker, cfg.Encoder.OutputTailLines)
	executor := encoding.NewExecutor(cfg, runner, logger)
	reassembler := chunking.NewReassembler(cfg.FFmpegBinary(), runner, cfg.Queue.KeepIntermediates, logger)

	hwEncoders, err := deps.DetectHardwareEncoders(signalCtx, cfg)
	if err != nil {
		logging.WarnWithContext(logger, "hardware encoder detection failed", "hardware_detect_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "hardware jobs are routed to no pool"),
			logging.String(logging.FieldErrorHint, "run ffmpeg -encoders to confirm the build"),
		)
	}

	scheduler, err := watch.New(logger, watch.Options{
		SettleDelay:     time.Duration(cfg.Watch.SettleSeconds) * time.Second,
		Extensions:      cfg.Watch.Extensions,
		ProcessExisting: cfg.Watch.ProcessExisting,
	})
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create folder watcher: %w", err)
	}
	defer scheduler.Close()

	notifier := notifications.NewRecorder(store, notifications.NewService(cfg), logger)
	defer notifier.Wait()

	mgr := workflow.NewManager(cfg, executor, logger,
		workflow.WithProber(executor),
		workflow.WithReassembler(reassembler),
		workflow.WithProcessControl(tracker),
		workflow.WithScheduler(scheduler),
		workflow.WithRecorder(notifier),
		workflow.WithHardwareEncoders(hwEncoders),
	)
	executor.OnProgress = mgr.ObserveProgress

	d, err := daemon.New(cfg, store, logger, mgr, logPath)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		return scheduler.Start(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("vidqueue daemon shutting down",
			logging.String(logging.FieldEventType, "daemon_shutdown"))
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(cmdCtx), shutdownTimeout)
		defer cancel()
		d.Stop(shutdownCtx)
		return nil
	})
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	attrs := []logging.Attr{logging.String(logging.FieldEventType, "dependency_snapshot")}
	for _, status := range statuses {
		key := strings.ToLower(status.Name)
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_binary", status.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}

func logPreflight(logger *slog.Logger, cfg *config.Config) {
	for _, failed := range preflight.Failed(preflight.RunAll(cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail),
			logging.String(logging.FieldImpact, "jobs may fail until this is resolved"),
			logging.String(logging.FieldErrorHint, "run `vidqueue doctor` for details"),
		)
	}
}
