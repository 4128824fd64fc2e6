package ipc

import (
	"time"

	"vidqueue/internal/job"
	"vidqueue/internal/jobstore"
	"vidqueue/internal/workflow"
)

// AddRequest submits a file, directory, or watch folder.
type AddRequest struct {
	Path       string        `json:"path"`
	Watch      bool          `json:"watch"`
	Codec      string        `json:"codec"`
	Container  string        `json:"container"`
	OutputDir  string        `json:"output_dir"`
	VideoArgs  []string      `json:"video_args"`
	AudioCodec string        `json:"audio_codec"`
	AudioArgs  []string      `json:"audio_args"`
	TrimStart  time.Duration `json:"trim_start"`
	TrimEnd    time.Duration `json:"trim_end"`
}

// AddResponse describes the accepted job.
type AddResponse struct {
	Job job.Snapshot `json:"job"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon/workflow status information.
type StatusResponse struct {
	Running      bool                  `json:"running"`
	PID          int                   `json:"pid"`
	Mode         string                `json:"mode"`
	Chunking     bool                  `json:"chunking"`
	Active       []job.Snapshot        `json:"active"`
	Jobs         []job.Snapshot        `json:"jobs"`
	Queues       []workflow.QueueDepth `json:"queues"`
	Health       []workflow.PoolHealth `json:"health"`
	GateOwner    string                `json:"gate_owner"`
	Priority     []string              `json:"priority"`
	LastError    string                `json:"last_error"`
	History      jobstore.Summary      `json:"history"`
	DatabasePath string                `json:"database_path"`
	LockPath     string                `json:"lock_path"`
	LogPath      string                `json:"log_path"`
}

// RunningRequest fetches the currently executing jobs.
type RunningRequest struct{}

// RunningResponse lists running jobs.
type RunningResponse struct {
	Jobs []job.Snapshot `json:"jobs"`
}

// HistoryRequest filters the job history.
type HistoryRequest struct {
	States   []string `json:"states"`
	ParentID string   `json:"parent_id"`
	Limit    int      `json:"limit"`
}

// HistoryResponse contains history records, newest first.
type HistoryResponse struct {
	Jobs []jobstore.Record `json:"jobs"`
}

// DescribeRequest fetches one history record.
type DescribeRequest struct {
	ID string `json:"id"`
}

// DescribeResponse carries the record.
type DescribeResponse struct {
	Job jobstore.Record `json:"job"`
}

// ClearHistoryRequest removes finished history records.
type ClearHistoryRequest struct{}

// ClearHistoryResponse reports the number of removed records.
type ClearHistoryResponse struct {
	Removed int64 `json:"removed"`
}

// KillRequest stops every job and empties the queues.
type KillRequest struct{}

// KillResponse acknowledges a kill.
type KillResponse struct {
	Killed bool `json:"killed"`
}

// JobRequest targets one job by id.
type JobRequest struct {
	ID string `json:"id"`
}

// JobActionResponse acknowledges a per-job action.
type JobActionResponse struct {
	ID string `json:"id"`
	OK bool   `json:"ok"`
}

// SetModeRequest switches the execution mode.
type SetModeRequest struct {
	Mode string `json:"mode"`
}

// SetModeResponse reports the mode now in effect.
type SetModeResponse struct {
	Mode string `json:"mode"`
}

// DatabaseHealthRequest fetches database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse contains database diagnostics.
type DatabaseHealthResponse struct {
	Health jobstore.DatabaseHealth `json:"health"`
}
