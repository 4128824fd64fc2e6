package encoding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"vidqueue/internal/config"
	"vidqueue/internal/job"
	"vidqueue/internal/logging"
	"vidqueue/internal/media/ffprobe"
	"vidqueue/internal/services"
)

// Executor runs jobs against the external encoder.
type Executor struct {
	Binary      string
	ProbeBinary string
	Runner      Runner
	Args        ArgBuilder
	Logger      *slog.Logger
	// OnProgress is called after every accepted telemetry update.
	OnProgress func(j *job.Job)
}

// NewExecutor builds an executor from configuration.
func NewExecutor(cfg *config.Config, runner Runner, logger *slog.Logger) *Executor {
	e := &Executor{
		Binary:      "ffmpeg",
		ProbeBinary: "ffprobe",
		Runner:      runner,
		Args:        FFmpegArgs{},
		Logger:      logging.NewComponentLogger(logger, "encoding"),
	}
	if cfg != nil {
		e.Binary = cfg.FFmpegBinary()
		e.ProbeBinary = cfg.FFprobeBinary()
	}
	return e
}

// RunJob executes j. A stopped job returns immediately with no side
// effects. Directory jobs run each remaining child in turn and propagate
// child failures into the parent. Every other job spawns exactly one
// encoder subprocess and is finished with the exit outcome. The returned
// error describes a failure already recorded on the job.
func (e *Executor) RunJob(ctx context.Context, j *job.Job) error {
	if j == nil || j.IsStopped() {
		return nil
	}
	switch j.Kind {
	case job.KindDirectory:
		return e.runDirectory(ctx, j)
	case job.KindWatchFolder:
		return services.Wrap(services.ErrValidation, "encoding", "run job",
			"watch-folder jobs are driven by the watch queue", nil)
	default:
		return e.runSingle(ctx, j)
	}
}

func (e *Executor) runDirectory(ctx context.Context, parent *job.Job) error {
	logger := e.logger(ctx, parent)
	parent.MarkStarted()
	total, failed := 0, 0
	for ctx.Err() == nil {
		child, ok := parent.NextChild()
		if !ok {
			break
		}
		total++
		if err := e.runSingle(ctx, child); (err != nil || child.HasFailed()) && !child.IsStopped() {
			failed++
			parent.MarkFailed()
			logging.WarnWithContext(logger, "directory child failed; continuing with next file", "directory_child_failed",
				append(logging.ErrorDetail(err),
					logging.String("path", child.Input.Path),
					logging.String(logging.FieldImpact, "file was not encoded"),
				)...)
		}
		parent.ReleaseChild(child)
	}
	parent.Finish(failed > 0)
	if failed > 0 {
		msg := fmt.Sprintf("%d of %d files failed", failed, total)
		parent.SetError(msg)
		return services.Wrap(services.ErrExternalTool, "encoding", "run directory", msg, nil)
	}
	return ctx.Err()
}

func (e *Executor) runSingle(ctx context.Context, j *job.Job) error {
	if j.IsStopped() {
		return nil
	}
	if err := j.WaitWhilePaused(ctx); err != nil {
		return err
	}
	if j.IsStopped() {
		return nil
	}
	logger := e.logger(ctx, j)
	if !j.IsChunk() && j.Duration() == 0 {
		if err := e.Probe(ctx, j); err != nil {
			logging.WarnWithContext(logger, "media probe failed; progress will be unavailable", "probe_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "percent complete is unknown for this job"),
			)
		}
	}

	j.MarkStarted()
	args, err := e.Args.Build(j)
	if err != nil {
		wrapped := services.Wrap(services.ErrValidation, "encoding", "build arguments", "Unable to build encoder arguments", err)
		j.Fail(wrapped)
		return wrapped
	}
	if dir := filepath.Dir(j.Output); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			wrapped := services.Wrap(services.ErrConfiguration, "encoding", "create output dir", "Unable to create output directory", err)
			j.Fail(wrapped)
			return wrapped
		}
	}

	logger.Info("encode started",
		logging.String(logging.FieldEventType, "encode_started"),
		logging.String("input", j.Input.Path),
		logging.String("output", j.Output),
		logging.String("codec", j.Settings.Codec),
		logging.String("kind", string(j.Kind)),
	)

	parser := NewProgressParser()
	sampler := logging.NewProgressSampler(0, 0)
	result, err := e.Runner.Run(ctx, Invocation{
		JobID:  j.ID,
		Binary: e.Binary,
		Args:   args,
		Dir:    filepath.Dir(j.Output),
		OnLine: func(line string) {
			telemetry, ok := parser.Feed(line)
			if !ok || !j.UpdateTelemetry(telemetry) {
				return
			}
			if e.OnProgress != nil {
				e.OnProgress(j)
			}
			if pct := j.Progress(); sampler.ShouldLog(pct) {
				logger.Debug("encode progress",
					logging.Float64("percent", pct),
					logging.Float64("speed", telemetry.Speed),
				)
			}
		},
	})
	if err != nil {
		wrapped := services.Wrap(services.ErrExternalTool, "encoding", "run encoder", "Encoder could not be run", err)
		j.Fail(wrapped)
		return wrapped
	}

	if result.ExitCode != 0 {
		var cause error
		if n := len(result.Tail); n > 0 {
			cause = errors.New(strings.TrimSpace(result.Tail[n-1]))
		}
		wrapped := services.Wrap(services.ErrExternalTool, "encoding", "run encoder",
			fmt.Sprintf("Encoder exited with status %d", result.ExitCode), cause)
		j.Fail(wrapped)
		if j.IsStopped() {
			logger.Info("encode stopped", logging.String(logging.FieldEventType, "encode_stopped"))
			return nil
		}
		return wrapped
	}
	j.Finish(false)
	logger.Info("encode finished",
		logging.String(logging.FieldEventType, "encode_finished"),
		logging.Duration("elapsed", j.Telemetry().Elapsed),
	)
	return nil
}

// probeMedia is the ffprobe function used by the executor. Tests replace it
// through SetProbeForTests.
var probeMedia = ffprobe.Inspect

// SetProbeForTests overrides the ffprobe runner during tests.
func SetProbeForTests(fn func(context.Context, string, string) (ffprobe.Result, error)) func() {
	previous := probeMedia
	probeMedia = fn
	return func() {
		probeMedia = previous
	}
}

// Probe fills j's input duration and streams from ffprobe.
func (e *Executor) Probe(ctx context.Context, j *job.Job) error {
	result, err := probeMedia(ctx, e.ProbeBinary, j.Input.Path)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "encoding", "probe", "Unable to inspect input media", err)
	}
	streams := make([]job.Stream, 0, len(result.Streams))
	for _, s := range result.Streams {
		streams = append(streams, job.Stream{Index: s.Index, Type: strings.ToLower(s.CodecType), Codec: s.CodecName})
	}
	j.ApplyProbe(result.Duration(), streams)
	return nil
}

func (e *Executor) logger(ctx context.Context, j *job.Job) *slog.Logger {
	logger := e.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx = services.WithJobID(ctx, j.ID)
	logger = logging.WithContext(ctx, logger)
	if j.ParentID != "" {
		logger = logger.With(logging.String(logging.FieldParentID, j.ParentID))
	}
	return logger
}
