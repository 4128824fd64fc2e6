package workflow

import (
	"context"
	"sync"
)

type execMode int

const (
	modeSerial execMode = iota
	modeParallel
)

func (m execMode) String() string {
	if m == modeSerial {
		return "serial"
	}
	return "parallel"
}

// modeGate keeps serial and parallel work from overlapping.
type modeGate struct {
	mu     sync.Mutex
	cond   *sync.Cond
	active [2]int
}

func newModeGate() *modeGate {
	g := &modeGate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// enter waits until the other mode has no work in flight and counts one
// more job for mode.
func (g *modeGate) enter(ctx context.Context, mode execMode) error {
	stop := context.AfterFunc(ctx, func() {
		g.mu.Lock()
		g.cond.Broadcast()
		g.mu.Unlock()
	})
	defer stop()

	other := modeParallel
	if mode == modeParallel {
		other = modeSerial
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.active[other] > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		g.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	g.active[mode]++
	return nil
}

func (g *modeGate) leave(mode execMode) {
	g.mu.Lock()
	g.active[mode]--
	g.cond.Broadcast()
	g.mu.Unlock()
}

func (g *modeGate) inFlight(mode execMode) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active[mode]
}
