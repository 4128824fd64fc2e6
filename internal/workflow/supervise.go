package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"vidqueue/internal/job"
	"vidqueue/internal/logging"
	"vidqueue/internal/services"
)

// supervise runs loop on its own goroutine. A panic escaping loop restarts
// it until the pool has used its restart allowance; the next crash marks
// the pool degraded and the loop stays down.
func (m *Manager) supervise(ctx context.Context, pool *poolState, loop func(context.Context)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		logger := m.logger.With(logging.String(logging.FieldQueue, pool.name))
		for {
			crashed, detail := runLoop(ctx, loop)
			if !crashed || ctx.Err() != nil {
				return
			}
			if pool.crashed(m.restartLimit, detail) {
				logging.WarnWithContext(logger, "worker loop crashed; restarting", "worker_restarted",
					logging.String("panic", detail),
					logging.String(logging.FieldImpact, "queued jobs wait until the loop is back"),
				)
				continue
			}
			logger.Error("worker loop crashed too often; pool degraded",
				logging.String(logging.FieldEventType, "pool_degraded"),
				logging.String(logging.FieldErrorHint, "restart the daemon and inspect the log for the panic"),
				logging.Alert("pool_degraded"),
				logging.String("panic", detail),
				logging.Int("restart_limit", m.restartLimit),
			)
			return
		}
	}()
}

func runLoop(ctx context.Context, loop func(context.Context)) (crashed bool, detail string) {
	defer func() {
		if r := recover(); r != nil {
			crashed = true
			detail = fmt.Sprint(r)
		}
	}()
	loop(ctx)
	return false, ""
}

// recoverItem is deferred around one dequeued item. A panic fails the job
// and the loop carries on with the next item.
func (m *Manager) recoverItem(logger *slog.Logger, j *job.Job) {
	r := recover()
	if r == nil {
		return
	}
	err := services.Wrap(services.ErrTransient, "workflow", "process job", "Job processing panicked", fmt.Errorf("%v", r))
	if j != nil {
		j.Fail(err)
	}
	attrs := append(jobAttrs(j),
		logging.String(logging.FieldEventType, "job_panic"),
		logging.String(logging.FieldErrorHint, "inspect the stack trace; the queue continues with the next job"),
		logging.String("panic", fmt.Sprint(r)),
		logging.String("stack", string(debug.Stack())),
	)
	logger.Error("job processing panicked", logging.Args(attrs...)...)
	m.setLastError(err)
}

func jobAttrs(j *job.Job) []logging.Attr {
	if j == nil {
		return nil
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldJobID, j.ID),
		logging.String("kind", string(j.Kind)),
		logging.String("codec", j.Settings.Codec),
	}
	if j.ParentID != "" {
		attrs = append(attrs, logging.String(logging.FieldParentID, j.ParentID))
	}
	return attrs
}
