package workflow

import (
	"context"
	"slices"
	"sync"
)

// fairness is the gate shared by the codec family pools. At most one family
// holds it. A free gate goes to the first family in the priority list that
// has a waiting worker; the owner keeps admitting its own workers only while
// no other family waits. When the owner drains it moves to the back of the
// list.
type fairness struct {
	mu       sync.Mutex
	cond     *sync.Cond
	order    []string
	waiting  map[string]int
	owner    string
	inFlight int
}

func newFairness() *fairness {
	f := &fairness{waiting: make(map[string]int)}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// add appends family to the priority list if it is not already there.
func (f *fairness) add(family string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !slices.Contains(f.order, family) {
		f.order = append(f.order, family)
		f.cond.Broadcast()
	}
}

// demote moves family to the end of the priority list.
func (f *fairness) demote(family string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moveToEnd(family)
	f.cond.Broadcast()
}

func (f *fairness) moveToEnd(family string) {
	if i := slices.Index(f.order, family); i >= 0 {
		f.order = slices.Delete(f.order, i, i+1)
	}
	f.order = append(f.order, family)
}

// acquire blocks until family may run one more job.
func (f *fairness) acquire(ctx context.Context, family string) error {
	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	defer stop()

	f.mu.Lock()
	defer f.mu.Unlock()
	if !slices.Contains(f.order, family) {
		f.order = append(f.order, family)
	}
	f.waiting[family]++
	defer func() { f.waiting[family]-- }()
	for !f.admits(family) {
		if err := ctx.Err(); err != nil {
			f.cond.Broadcast()
			return err
		}
		f.cond.Wait()
	}
	f.owner = family
	f.inFlight++
	f.cond.Broadcast()
	return nil
}

func (f *fairness) admits(family string) bool {
	switch f.owner {
	case "":
		return f.firstWaiting() == family
	case family:
		return !f.othersWaiting(family)
	default:
		return false
	}
}

func (f *fairness) firstWaiting() string {
	for _, name := range f.order {
		if f.waiting[name] > 0 {
			return name
		}
	}
	return ""
}

func (f *fairness) othersWaiting(family string) bool {
	for name, n := range f.waiting {
		if name != family && n > 0 {
			return true
		}
	}
	return false
}

// release returns one slot held by family.
func (f *fairness) release(family string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.owner != family || f.inFlight == 0 {
		return
	}
	f.inFlight--
	if f.inFlight == 0 {
		f.owner = ""
		f.moveToEnd(family)
	}
	f.cond.Broadcast()
}

// state returns the owner, its in-flight count, and the priority list.
func (f *fairness) state() (string, int, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.owner, f.inFlight, slices.Clone(f.order)
}

func (f *fairness) waiters(family string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waiting[family]
}
