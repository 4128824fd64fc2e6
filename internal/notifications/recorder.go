package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vidqueue/internal/job"
	"vidqueue/internal/logging"
)

const publishTimeout = 30 * time.Second

// HistoryWriter is the recorder surface the workflow manager calls.
type HistoryWriter interface {
	RecordSubmitted(ctx context.Context, snap job.Snapshot) error
	RecordProgress(ctx context.Context, snap job.Snapshot) error
	RecordFinished(ctx context.Context, snap job.Snapshot) error
}

// Recorder forwards history writes to next and publishes the outcome of
// standard jobs once they finish. Chunks and container jobs are skipped;
// their parents and children report instead.
type Recorder struct {
	next   HistoryWriter
	svc    Service
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewRecorder wraps next. A nil next only publishes.
func NewRecorder(next HistoryWriter, svc Service, logger *slog.Logger) *Recorder {
	if svc == nil {
		svc = noopService{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Recorder{next: next, svc: svc, logger: logging.NewComponentLogger(logger, "notifications")}
}

func (r *Recorder) RecordSubmitted(ctx context.Context, snap job.Snapshot) error {
	if r.next == nil {
		return nil
	}
	return r.next.RecordSubmitted(ctx, snap)
}

func (r *Recorder) RecordProgress(ctx context.Context, snap job.Snapshot) error {
	if r.next == nil {
		return nil
	}
	return r.next.RecordProgress(ctx, snap)
}

func (r *Recorder) RecordFinished(ctx context.Context, snap job.Snapshot) error {
	var err error
	if r.next != nil {
		err = r.next.RecordFinished(ctx, snap)
	}
	event, ok := outcomeEvent(snap)
	if !ok {
		return err
	}
	payload := Payload{
		"id":     snap.ID,
		"input":  snap.Input,
		"output": snap.Output,
		"codec":  snap.Codec,
		"error":  snap.LastError,
	}
	if !snap.StartedAt.IsZero() && !snap.FinishedAt.IsZero() {
		payload["elapsed"] = snap.FinishedAt.Sub(snap.StartedAt).Round(time.Second).String()
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if err := r.svc.Publish(pubCtx, event, payload); err != nil {
			logging.WarnWithContext(r.logger, "notification failed", "notification_failed",
				logging.Error(err),
				logging.String(logging.FieldJobID, snap.ID),
				logging.String(logging.FieldImpact, "job outcome was not pushed"),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			)
		}
	}()
	return err
}

// Wait blocks until in-flight notifications have been sent.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

func outcomeEvent(snap job.Snapshot) (Event, bool) {
	if snap.Kind != job.KindStandard {
		return "", false
	}
	switch snap.State {
	case job.StateDone:
		return EventJobCompleted, true
	case job.StateFailed:
		return EventJobFailed, true
	default:
		return "", false
	}
}
