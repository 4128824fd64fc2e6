package encoding

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// ProcessTracker maps job IDs to running subprocess groups so a job can be
// terminated, suspended, or continued from another goroutine.
type ProcessTracker struct {
	mu    sync.Mutex
	procs map[string]int
	// live holds every group leader that has not been reaped yet.
	live  map[int]struct{}
	grace time.Duration
	kill  func(pid int, sig unix.Signal) error
}

// NewProcessTracker returns a tracker that escalates from SIGTERM to SIGKILL
// after grace.
func NewProcessTracker(grace time.Duration) *ProcessTracker {
	if grace <= 0 {
		grace = defaultKillGrace
	}
	return &ProcessTracker{
		procs: make(map[string]int),
		live:  make(map[int]struct{}),
		grace: grace,
		kill:  unix.Kill,
	}
}

func (t *ProcessTracker) register(jobID string, pid int) {
	t.mu.Lock()
	t.live[pid] = struct{}{}
	if jobID != "" {
		t.procs[jobID] = pid
	}
	t.mu.Unlock()
}

func (t *ProcessTracker) unregister(jobID string, pid int) {
	t.mu.Lock()
	delete(t.live, pid)
	if jobID != "" && t.procs[jobID] == pid {
		delete(t.procs, jobID)
	}
	t.mu.Unlock()
}

func (t *ProcessTracker) alive(pid int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.live[pid]
	return ok
}

func (t *ProcessTracker) lookup(jobID string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pid, ok := t.procs[jobID]
	return pid, ok
}

// Running returns the number of tracked subprocesses.
func (t *ProcessTracker) Running() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.procs)
}

// Terminate signals the job's process group to exit. It reports whether a
// process was tracked for the job.
func (t *ProcessTracker) Terminate(jobID string) bool {
	pid, ok := t.lookup(jobID)
	if !ok {
		return false
	}
	t.TerminatePID(pid)
	return true
}

// TerminateAll terminates every tracked process group.
func (t *ProcessTracker) TerminateAll() {
	t.mu.Lock()
	pids := make([]int, 0, len(t.procs))
	for _, pid := range t.procs {
		pids = append(pids, pid)
	}
	t.mu.Unlock()
	for _, pid := range pids {
		t.TerminatePID(pid)
	}
}

// TerminatePID sends SIGTERM to the process group led by pid, continuing it
// first in case it was suspended, and escalates to SIGKILL if the leader has
// not been reaped after the grace period. Once the runner has reaped the
// leader the group id may belong to another process, so no SIGKILL is sent.
func (t *ProcessTracker) TerminatePID(pid int) {
	_ = t.kill(-pid, unix.SIGCONT)
	if err := t.kill(-pid, unix.SIGTERM); err != nil {
		return
	}
	go func() {
		timer := time.NewTimer(t.grace)
		defer timer.Stop()
		<-timer.C
		if !t.alive(pid) {
			return
		}
		// Signal 0 probes for existence without delivering anything.
		if t.kill(-pid, 0) == nil {
			_ = t.kill(-pid, unix.SIGKILL)
		}
	}()
}

// Suspend stops the job's process group with SIGSTOP.
func (t *ProcessTracker) Suspend(jobID string) bool {
	return t.signal(jobID, unix.SIGSTOP)
}

// Continue resumes a suspended process group with SIGCONT.
func (t *ProcessTracker) Continue(jobID string) bool {
	return t.signal(jobID, unix.SIGCONT)
}

func (t *ProcessTracker) signal(jobID string, sig unix.Signal) bool {
	pid, ok := t.lookup(jobID)
	if !ok {
		return false
	}
	return t.kill(-pid, sig) == nil
}
