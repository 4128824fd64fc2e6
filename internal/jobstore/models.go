package jobstore

import (
	"time"

	"vidqueue/internal/job"
)

// StateInterrupted marks jobs that were still in flight when the daemon
// stopped.
const StateInterrupted = "interrupted"

var terminalStates = []string{job.StateStopped, job.StateFailed, job.StateDone, StateInterrupted}

// IsTerminal reports whether a recorded state is final.
func IsTerminal(state string) bool {
	for _, s := range terminalStates {
		if s == state {
			return true
		}
	}
	return false
}

// Record is one row of job history.
type Record struct {
	ID         string        `json:"id"`
	ParentID   string        `json:"parent_id,omitempty"`
	Kind       job.Kind      `json:"kind"`
	State      string        `json:"state"`
	Input      string        `json:"input"`
	Output     string        `json:"output,omitempty"`
	Codec      string        `json:"codec,omitempty"`
	Family     string        `json:"family,omitempty"`
	Progress   float64       `json:"progress"`
	Position   time.Duration `json:"position"`
	FileSize   int64         `json:"file_size"`
	Speed      float64       `json:"speed"`
	LastError  string        `json:"last_error,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	StartedAt  time.Time     `json:"started_at,omitzero"`
	FinishedAt time.Time     `json:"finished_at,omitzero"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Elapsed returns how long the job ran, or zero when it never started.
func (r Record) Elapsed() time.Duration {
	if r.StartedAt.IsZero() {
		return 0
	}
	end := r.FinishedAt
	if end.IsZero() {
		end = r.UpdatedAt
	}
	if end.Before(r.StartedAt) {
		return 0
	}
	return end.Sub(r.StartedAt)
}

// ListOptions filters history queries.
type ListOptions struct {
	States   []string
	ParentID string
	Limit    int
}

// Summary aggregates history counts for status output.
type Summary struct {
	Total       int `json:"total"`
	Active      int `json:"active"`
	Done        int `json:"done"`
	Failed      int `json:"failed"`
	Stopped     int `json:"stopped"`
	Interrupted int `json:"interrupted"`
}

// DatabaseHealth describes the database file for diagnostics.
type DatabaseHealth struct {
	DBPath           string `json:"db_path"`
	DatabaseExists   bool   `json:"database_exists"`
	DatabaseReadable bool   `json:"database_readable"`
	SchemaVersion    int    `json:"schema_version"`
	TableExists      bool   `json:"table_exists"`
	Error            string `json:"error,omitempty"`
}
