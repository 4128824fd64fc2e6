package workflow

import (
	"slices"
	"sync"

	"vidqueue/internal/job"
)

// runningSet holds the jobs currently executing on any queue.
type runningSet struct {
	mu   sync.Mutex
	jobs []*job.Job
}

func (r *runningSet) add(j *job.Job) {
	r.mu.Lock()
	r.jobs = append(r.jobs, j)
	r.mu.Unlock()
}

func (r *runningSet) remove(j *job.Job) {
	r.mu.Lock()
	if i := slices.Index(r.jobs, j); i >= 0 {
		r.jobs = slices.Delete(r.jobs, i, i+1)
	}
	r.mu.Unlock()
}

func (r *runningSet) list() []*job.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.jobs)
}

func (r *runningSet) snapshot() []job.Snapshot {
	jobs := r.list()
	out := make([]job.Snapshot, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Snapshot())
	}
	return out
}
