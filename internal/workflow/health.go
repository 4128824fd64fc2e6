package workflow

import "sync"

// PoolHealth summarizes the worker loops of one queue.
type PoolHealth struct {
	Name     string `json:"name"`
	Workers  int    `json:"workers"`
	Restarts int    `json:"restarts"`
	Ready    bool   `json:"ready"`
	Degraded bool   `json:"degraded"`
	Detail   string `json:"detail,omitempty"`
}

// HealthyPool constructs a ready PoolHealth record.
func HealthyPool(name string, workers int) PoolHealth {
	return PoolHealth{Name: name, Workers: workers, Ready: true}
}

// DegradedPool constructs a degraded PoolHealth record with context detail.
func DegradedPool(name string, workers int, detail string) PoolHealth {
	return PoolHealth{Name: name, Workers: workers, Degraded: true, Detail: detail}
}

// poolState tracks restarts for the loops of one pool.
type poolState struct {
	name    string
	workers int

	mu       sync.Mutex
	restarts int
	degraded bool
	detail   string
}

func newPoolState(name string, workers int) *poolState {
	return &poolState{name: name, workers: workers}
}

// crashed records a loop failure and reports whether the loop may restart.
func (p *poolState) crashed(limit int, detail string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detail = detail
	if p.restarts >= limit {
		p.degraded = true
		return false
	}
	p.restarts++
	return true
}

func (p *poolState) health() PoolHealth {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := HealthyPool(p.name, p.workers)
	if p.degraded {
		h = DegradedPool(p.name, p.workers, p.detail)
	}
	h.Restarts = p.restarts
	return h
}
