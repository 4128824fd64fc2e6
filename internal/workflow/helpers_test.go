package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"vidqueue/internal/chunking"
	"vidqueue/internal/job"
	"vidqueue/internal/workflow"
)

// stubRunner emulates the executor for single jobs: stopped jobs are
// skipped, everything else is started, handed to run, and finished.
type stubRunner struct {
	mu    sync.Mutex
	calls []*job.Job
	run   func(ctx context.Context, j *job.Job) error
}

func (s *stubRunner) RunJob(ctx context.Context, j *job.Job) error {
	if j.IsStopped() {
		return nil
	}
	s.mu.Lock()
	s.calls = append(s.calls, j)
	s.mu.Unlock()
	j.MarkStarted()
	if s.run != nil {
		if err := s.run(ctx, j); err != nil {
			j.Fail(err)
			return err
		}
	}
	j.Finish(false)
	return nil
}

func (s *stubRunner) jobs() []*job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*job.Job(nil), s.calls...)
}

// stubProcs releases blocked invocations when asked to terminate them.
type stubProcs struct {
	mu           sync.Mutex
	channels     map[string]chan struct{}
	terminated   []string
	suspended    []string
	continued    []string
	terminateAll int
}

func newStubProcs() *stubProcs {
	return &stubProcs{channels: make(map[string]chan struct{})}
}

func (p *stubProcs) channel(id string) chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.channels[id]
	if !ok {
		ch = make(chan struct{})
		p.channels[id] = ch
	}
	return ch
}

func (p *stubProcs) Terminate(id string) bool {
	ch := p.channel(id)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminated = append(p.terminated, id)
	select {
	case <-ch:
	default:
		close(ch)
	}
	return true
}

func (p *stubProcs) TerminateAll() {
	p.mu.Lock()
	p.terminateAll++
	ids := make([]string, 0, len(p.channels))
	for id := range p.channels {
		ids = append(ids, id)
	}
	p.mu.Unlock()
	for _, id := range ids {
		p.Terminate(id)
	}
}

func (p *stubProcs) Suspend(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.suspended = append(p.suspended, id)
	return true
}

func (p *stubProcs) Continue(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.continued = append(p.continued, id)
	return true
}

// stubProber fills every probed job with the configured media description.
type stubProber struct {
	duration time.Duration
	streams  []job.Stream
}

func (p stubProber) Probe(_ context.Context, j *job.Job) error {
	j.ApplyProbe(p.duration, p.streams)
	return nil
}

var videoAndAudio = []job.Stream{{Index: 0, Type: "video", Codec: "h264"}, {Index: 1, Type: "audio", Codec: "aac"}}

// stubReassembler records reassembly calls and the completeness of the set
// at the time of each call.
type stubReassembler struct {
	mu         sync.Mutex
	calls      []string
	incomplete []string
}

func (r *stubReassembler) record(op string, complete bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, op)
	if !complete {
		r.incomplete = append(r.incomplete, op)
	}
}

func (r *stubReassembler) ConcatenateVideoChunks(_ context.Context, set chunking.Set) error {
	r.record("concat", set.VideoComplete())
	return nil
}

func (r *stubReassembler) MuxChunks(_ context.Context, set chunking.Set) error {
	r.record("mux", set.Complete())
	return nil
}

func (r *stubReassembler) Cleanup(chunking.Set) {
	r.record("cleanup", true)
}

func (r *stubReassembler) snapshot() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...), append([]string(nil), r.incomplete...)
}

type stubRecorder struct {
	mu        sync.Mutex
	submitted []job.Snapshot
	progress  []job.Snapshot
	finished  []job.Snapshot
}

func (r *stubRecorder) RecordSubmitted(_ context.Context, s job.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted = append(r.submitted, s)
	return nil
}

func (r *stubRecorder) RecordProgress(_ context.Context, s job.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, s)
	return nil
}

func (r *stubRecorder) RecordFinished(_ context.Context, s job.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, s)
	return nil
}

func (r *stubRecorder) counts() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.submitted), len(r.progress), len(r.finished)
}

func mustJob(t *testing.T, path, codec string) *job.Job {
	t.Helper()
	j, err := job.New(job.Input{Path: path}, job.Settings{Codec: codec})
	if err != nil {
		t.Fatalf("job.New: %v", err)
	}
	return j
}

func start(t *testing.T, m *workflow.Manager) {
	t.Helper()
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
}

func deadline(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
