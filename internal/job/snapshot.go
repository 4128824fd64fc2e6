package job

import "time"

// State labels used by status surfaces and the job store.
const (
	StateQueued  = "queued"
	StateRunning = "running"
	StatePaused  = "paused"
	StateIdle    = "idle"
	StateStopped = "stopped"
	StateFailed  = "failed"
	StateDone    = "done"
)

// Snapshot is an immutable view of a job for status reporting.
type Snapshot struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	State       string    `json:"state"`
	Input       string    `json:"input"`
	Output      string    `json:"output,omitempty"`
	Codec       string    `json:"codec,omitempty"`
	Family      string    `json:"family,omitempty"`
	ParentID    string    `json:"parent_id,omitempty"`
	ChunkIndex  int       `json:"chunk_index"`
	Range       TimeRange `json:"range,omitzero"`
	Progress    float64   `json:"progress"`
	Telemetry   Telemetry `json:"telemetry"`
	LastError   string    `json:"last_error,omitempty"`
	Child       string    `json:"child,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
	HasStarted  bool      `json:"has_started"`
	IsStopped   bool      `json:"is_stopped"`
	IsDone      bool      `json:"is_done"`
	HasFailed   bool      `json:"has_failed"`
	IsPaused    bool      `json:"is_paused"`
	IsIdle      bool      `json:"is_idle"`
	RemainingIn int       `json:"remaining,omitempty"`
}

// State summarizes the flags into a single label.
func (j *Job) State() string {
	switch {
	case j.IsStopped():
		return StateStopped
	case j.IsDone() && j.HasFailed():
		return StateFailed
	case j.IsDone():
		return StateDone
	case j.IsPaused():
		return StatePaused
	case j.Kind == KindWatchFolder && j.IsIdle():
		return StateIdle
	case j.HasStarted():
		return StateRunning
	default:
		return StateQueued
	}
}

// Snapshot captures the job's current state.
func (j *Job) Snapshot() Snapshot {
	j.telemetryMu.RLock()
	telemetry := j.telemetry
	lastErr := j.lastError
	startedAt, finishedAt := j.startedAt, j.finishedAt
	j.telemetryMu.RUnlock()

	snap := Snapshot{
		ID:         j.ID,
		Kind:       j.Kind,
		State:      j.State(),
		Input:      j.Input.Path,
		Output:     j.Output,
		Codec:      j.Settings.Codec,
		Family:     j.Family,
		ParentID:   j.ParentID,
		ChunkIndex: j.ChunkIndex,
		Range:      j.Range,
		Progress:   j.Progress(),
		Telemetry:  telemetry,
		LastError:  lastErr,
		CreatedAt:  j.CreatedAt,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		HasStarted: j.HasStarted(),
		IsStopped:  j.IsStopped(),
		IsDone:     j.IsDone(),
		HasFailed:  j.HasFailed(),
		IsPaused:   j.IsPaused(),
		IsIdle:     j.IsIdle(),
	}
	if j.IsContainer() {
		if child := j.CurrentChild(); child != nil {
			snap.Child = child.Input.Path
		}
		if j.Kind == KindDirectory {
			snap.RemainingIn = j.Remaining()
		}
	}
	return snap
}
