package workflow

import (
	"context"
	"strings"

	"vidqueue/internal/config"
	"vidqueue/internal/job"
	"vidqueue/internal/services"
)

// codecHandle is one codec family's FIFO and worker pool.
type codecHandle struct {
	family   string
	encoders []string
	workers  int
	hardware bool
	fifo     *fifo[task]
	pool     *poolState
}

func newCodecHandle(family string, encoders []string, workers int) *codecHandle {
	if workers < 1 {
		workers = 1
	}
	return &codecHandle{
		family:   family,
		encoders: encoders,
		workers:  workers,
		fifo:     newFIFO[task](),
		pool:     newPoolState(family, workers),
	}
}

// parallelQueue holds one handle per codec family plus the passthrough and
// optional hardware families.
type parallelQueue struct {
	handles   []*codecHandle
	byFamily  map[string]*codecHandle
	byEncoder map[string]*codecHandle
	fair      *fairness
	// hardwareBypass lets the hardware family skip the fairness gate.
	hardwareBypass bool
}

func newParallelQueue(cfg *config.Config, hwEncoders []string) *parallelQueue {
	q := &parallelQueue{
		byFamily:  make(map[string]*codecHandle),
		byEncoder: make(map[string]*codecHandle),
		fair:      newFairness(),
	}
	for _, family := range cfg.Codecs {
		q.addHandle(newCodecHandle(family.Name, family.Encoders, family.Workers))
	}
	q.addHandle(newCodecHandle(config.PassthroughFamily, []string{job.PassthroughCodec}, 1))
	if cfg.Hardware.Enabled && len(hwEncoders) > 0 {
		h := newCodecHandle(cfg.Hardware.Name, hwEncoders, cfg.Hardware.Workers)
		h.hardware = true
		q.addHandle(h)
		q.hardwareBypass = cfg.Hardware.Concurrent
	}
	return q
}

func (q *parallelQueue) addHandle(h *codecHandle) {
	q.handles = append(q.handles, h)
	q.byFamily[strings.ToLower(h.family)] = h
	for _, enc := range h.encoders {
		q.byEncoder[strings.ToLower(enc)] = h
	}
}

// route maps an encoder (or family) name to its handle.
func (q *parallelQueue) route(codec string) (*codecHandle, error) {
	key := strings.ToLower(strings.TrimSpace(codec))
	if key == "" {
		return nil, services.Wrap(services.ErrValidation, "workflow", "route job", "codec is required", nil)
	}
	if h, ok := q.byEncoder[key]; ok {
		return h, nil
	}
	if h, ok := q.byFamily[key]; ok {
		return h, nil
	}
	return nil, services.Wrap(services.ErrValidation, "workflow", "route job",
		"no codec family handles encoder "+codec, nil)
}

func (q *parallelQueue) put(h *codecHandle, t task) {
	h.fifo.Put(t)
	q.fair.add(h.family)
}

func (q *parallelQueue) gated(h *codecHandle) bool {
	return !h.hardware || !q.hardwareBypass
}

func (q *parallelQueue) addStopTask() {
	for _, h := range q.handles {
		for range h.workers {
			h.fifo.Put(task{stop: true})
		}
	}
}

func (q *parallelQueue) join(ctx context.Context) error {
	for _, h := range q.handles {
		if err := h.fifo.Join(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) parallelLoop(ctx context.Context, h *codecHandle) {
	for {
		m.beforeDequeue(h.family)
		if h.fifo.Len() == 0 {
			m.parallel.fair.demote(h.family)
		}
		t, err := h.fifo.Get(ctx)
		if err != nil {
			return
		}
		if t.stop {
			h.fifo.TaskDone()
			return
		}
		m.processParallel(ctx, h, t)
	}
}

func (m *Manager) processParallel(ctx context.Context, h *codecHandle, t task) {
	defer h.fifo.TaskDone()
	logger := m.queueLogger(h.family)
	defer m.recoverItem(logger, t.job)

	if t.job.IsStopped() {
		m.runTask(ctx, logger, t)
		m.settle(ctx, t)
		return
	}
	releaseFair, err := m.admitParallel(ctx, h, t.job)
	if err != nil {
		return
	}
	defer m.modes.leave(modeParallel)
	func() {
		defer releaseFair()
		m.runTask(ctx, logger, t)
	}()
	m.settle(ctx, t)
}

// admitParallel waits out the pause gate, the mode gate and the fairness
// gate. A job paused while it waited on a gate hands both slots back and
// waits again, so a paused job never holds a slot. On success the caller
// owns the parallel mode slot and must call the returned func to give the
// fairness slot back.
func (m *Manager) admitParallel(ctx context.Context, h *codecHandle, j *job.Job) (func(), error) {
	gated := m.parallel.gated(h)
	releaseFair := func() {
		if gated {
			m.parallel.fair.release(h.family)
		}
	}
	for {
		if err := j.WaitWhilePaused(ctx); err != nil {
			return nil, err
		}
		if err := m.modes.enter(ctx, modeParallel); err != nil {
			return nil, err
		}
		if gated {
			if err := m.parallel.fair.acquire(ctx, h.family); err != nil {
				m.modes.leave(modeParallel)
				return nil, err
			}
		}
		if !j.IsPaused() || j.IsStopped() {
			return releaseFair, nil
		}
		releaseFair()
		m.modes.leave(modeParallel)
	}
}

func (m *Manager) settle(ctx context.Context, t task) {
	if t.group != nil {
		t.group.settle(ctx)
	}
}
