package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"vidqueue/internal/job"
	"vidqueue/internal/logging"
)

// Recorder persists job history.
type Recorder interface {
	RecordSubmitted(ctx context.Context, snap job.Snapshot) error
	RecordProgress(ctx context.Context, snap job.Snapshot) error
	RecordFinished(ctx context.Context, snap job.Snapshot) error
}

const progressPersistInterval = 2 * time.Second

// historyRecorder forwards job events to a Recorder, throttling progress
// writes per job.
type historyRecorder struct {
	rec    Recorder
	logger *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Sometimes
}

func newHistoryRecorder(rec Recorder, logger *slog.Logger) *historyRecorder {
	return &historyRecorder{rec: rec, logger: logger, limiters: make(map[string]*rate.Sometimes)}
}

func (h *historyRecorder) submitted(ctx context.Context, j *job.Job) {
	if h.rec == nil {
		return
	}
	h.report(h.rec.RecordSubmitted(ctx, j.Snapshot()), j)
}

func (h *historyRecorder) progress(ctx context.Context, j *job.Job) {
	if h.rec == nil {
		return
	}
	h.mu.Lock()
	limiter, ok := h.limiters[j.ID]
	if !ok {
		limiter = &rate.Sometimes{Interval: progressPersistInterval}
		h.limiters[j.ID] = limiter
	}
	h.mu.Unlock()
	limiter.Do(func() {
		h.report(h.rec.RecordProgress(ctx, j.Snapshot()), j)
	})
}

func (h *historyRecorder) finished(ctx context.Context, j *job.Job) {
	if h.rec == nil {
		return
	}
	h.mu.Lock()
	delete(h.limiters, j.ID)
	h.mu.Unlock()
	h.report(h.rec.RecordFinished(context.WithoutCancel(ctx), j.Snapshot()), j)
}

func (h *historyRecorder) report(err error, j *job.Job) {
	if err == nil {
		return
	}
	logging.WarnWithContext(h.logger, "job history write failed", "history_write_failed",
		logging.Error(err),
		logging.String(logging.FieldJobID, j.ID),
		logging.String(logging.FieldImpact, "history shows stale state for this job"),
		logging.String(logging.FieldErrorHint, "check the state directory database"),
	)
}
