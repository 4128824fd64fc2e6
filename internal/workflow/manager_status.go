package workflow

import (
	"slices"
	"strings"

	"vidqueue/internal/job"
)

// QueueDepth reports the backlog of one queue.
type QueueDepth struct {
	Name     string `json:"name"`
	Pending  int    `json:"pending"`
	Workers  int    `json:"workers"`
	Hardware bool   `json:"hardware,omitempty"`
}

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running   bool           `json:"running"`
	Mode      string         `json:"mode"`
	Chunking  bool           `json:"chunking"`
	Active    []job.Snapshot `json:"active"`
	Jobs      []job.Snapshot `json:"jobs"`
	Queues    []QueueDepth   `json:"queues"`
	Health    []PoolHealth   `json:"health"`
	GateOwner string         `json:"gate_owner,omitempty"`
	Priority  []string       `json:"priority,omitempty"`
	LastError string         `json:"last_error,omitempty"`
}

// Degraded reports whether any pool stopped restarting its loops.
func (s StatusSummary) Degraded() bool {
	return slices.ContainsFunc(s.Health, func(h PoolHealth) bool { return h.Degraded })
}

// Status returns the latest workflow information.
func (m *Manager) Status() StatusSummary {
	m.mu.RLock()
	running := m.started
	mode := m.mode
	lastErr := m.lastErr
	jobs := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	m.mu.RUnlock()

	slices.SortFunc(jobs, func(a, b *job.Job) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	snaps := make([]job.Snapshot, 0, len(jobs))
	for _, j := range jobs {
		snaps = append(snaps, j.Snapshot())
	}

	summary := StatusSummary{
		Running:  running,
		Mode:     mode,
		Chunking: m.chunkingEnabled(),
		Active:   m.running.snapshot(),
		Jobs:     snaps,
	}
	summary.Queues = append(summary.Queues, QueueDepth{Name: serialQueueName, Pending: m.serial.fifo.Len(), Workers: 1})
	summary.Health = append(summary.Health, m.serial.pool.health())
	for _, h := range m.parallel.handles {
		summary.Queues = append(summary.Queues, QueueDepth{Name: h.family, Pending: h.fifo.Len(), Workers: h.workers, Hardware: h.hardware})
		summary.Health = append(summary.Health, h.pool.health())
	}
	summary.Queues = append(summary.Queues, QueueDepth{Name: watchQueueName, Pending: m.watch.fifo.Len() + m.watch.count(), Workers: 1})
	summary.Health = append(summary.Health, m.watch.pool.health())
	summary.GateOwner, _, summary.Priority = m.parallel.fair.state()
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	return summary
}
