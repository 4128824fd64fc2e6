package job

import (
	"context"
	"time"
)

func (j *Job) HasStarted() bool { return j.started.Load() }
func (j *Job) IsPaused() bool   { return j.paused.Load() }
func (j *Job) IsIdle() bool     { return j.idle.Load() }
func (j *Job) IsStopped() bool  { return j.stopped.Load() }
func (j *Job) IsDone() bool     { return j.done.Load() }
func (j *Job) HasFailed() bool  { return j.failed.Load() }

// Completed reports whether the job finished successfully and was not stopped.
func (j *Job) Completed() bool {
	return j.IsDone() && !j.IsStopped() && !j.HasFailed()
}

// MarkStarted records that the job began executing.
func (j *Job) MarkStarted() {
	if j.started.CompareAndSwap(false, true) {
		j.telemetryMu.Lock()
		j.startedAt = time.Now()
		j.telemetryMu.Unlock()
	}
}

// SetIdle toggles the watch-folder idle flag.
func (j *Job) SetIdle(idle bool) {
	j.idle.Store(idle)
}

// MarkFailed sets the failure flag without finishing the job. Directory jobs
// use it to record a failed child while iteration continues.
func (j *Job) MarkFailed() {
	j.failed.Store(true)
}

// Finish records the final outcome. The failure flag is published before
// the done flag, and only the first call has any effect. Telemetry of a
// stopped job is left as it was when the stop landed.
func (j *Job) Finish(failed bool) bool {
	if !j.finished.CompareAndSwap(false, true) {
		return false
	}
	j.telemetryMu.Lock()
	j.finishedAt = time.Now()
	if !j.startedAt.IsZero() && !j.stopped.Load() {
		j.telemetry.Elapsed = j.finishedAt.Sub(j.startedAt)
	}
	j.telemetryMu.Unlock()
	if failed {
		j.failed.Store(true)
	}
	j.done.Store(true)
	j.releasePause()
	return true
}

// Fail records err and finishes the job as failed.
func (j *Job) Fail(err error) bool {
	if err != nil {
		j.SetError(err.Error())
	}
	return j.Finish(true)
}

// SetError records the most recent failure message.
func (j *Job) SetError(msg string) {
	j.telemetryMu.Lock()
	j.lastError = msg
	j.telemetryMu.Unlock()
}

// LastError returns the most recent failure message.
func (j *Job) LastError() string {
	j.telemetryMu.RLock()
	defer j.telemetryMu.RUnlock()
	return j.lastError
}

// Stop marks the job stopped and cascades to the current child. It reports
// whether this call changed the state.
func (j *Job) Stop() bool {
	changed := j.stopped.CompareAndSwap(false, true)
	j.childMu.Lock()
	child := j.current
	j.childMu.Unlock()
	if child != nil {
		child.Stop()
	}
	j.releasePause()
	return changed
}

// Pause arms the pause gate. It cascades to the current child and reports
// whether the job was running and not already paused.
func (j *Job) Pause() bool {
	if j.IsStopped() || j.IsDone() {
		return false
	}
	j.pauseMu.Lock()
	changed := false
	if !j.paused.Load() {
		j.resume = make(chan struct{})
		j.paused.Store(true)
		changed = true
	}
	j.pauseMu.Unlock()
	if child := j.CurrentChild(); child != nil {
		child.Pause()
	}
	return changed
}

// Resume releases the pause gate and cascades to the current child.
func (j *Job) Resume() bool {
	changed := j.releasePause()
	if child := j.CurrentChild(); child != nil {
		child.Resume()
	}
	return changed
}

func (j *Job) releasePause() bool {
	j.pauseMu.Lock()
	defer j.pauseMu.Unlock()
	if !j.paused.Load() {
		return false
	}
	j.paused.Store(false)
	close(j.resume)
	j.resume = nil
	return true
}

// WaitWhilePaused blocks while the job is paused. It returns early when ctx
// is cancelled; stopping or finishing the job releases the gate.
func (j *Job) WaitWhilePaused(ctx context.Context) error {
	j.pauseMu.Lock()
	ch := j.resume
	j.pauseMu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateTelemetry replaces the telemetry snapshot. Stopped or done jobs are
// frozen and the call reports false.
func (j *Job) UpdateTelemetry(t Telemetry) bool {
	if j.IsStopped() || j.IsDone() {
		return false
	}
	j.telemetryMu.Lock()
	defer j.telemetryMu.Unlock()
	if j.stopped.Load() || j.done.Load() {
		return false
	}
	if !j.startedAt.IsZero() && t.Elapsed == 0 {
		t.Elapsed = time.Since(j.startedAt)
	}
	j.telemetry = t
	return true
}

// Telemetry returns the latest telemetry snapshot.
func (j *Job) Telemetry() Telemetry {
	j.telemetryMu.RLock()
	defer j.telemetryMu.RUnlock()
	return j.telemetry
}

// Progress returns the completed percentage of the effective range, or -1
// when the duration is unknown.
func (j *Job) Progress() float64 {
	if j.IsDone() && !j.HasFailed() && !j.IsStopped() {
		return 100
	}
	total := j.EffectiveRange().Duration()
	if total <= 0 {
		return -1
	}
	pct := float64(j.Telemetry().CurrentTime) / float64(total) * 100
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}
