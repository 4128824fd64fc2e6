package workflow

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFIFOPreservesOrder(t *testing.T) {
	q := newFIFO[int]()
	for i := range 3 {
		q.Put(i)
	}
	for want := range 3 {
		got, err := q.Get(context.Background())
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got != want {
			t.Fatalf("Get = %d, want %d", got, want)
		}
		q.TaskDone()
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}
}

func TestFIFOGetBlocksUntilPut(t *testing.T) {
	q := newFIFO[string]()
	got := make(chan string, 1)
	go func() {
		v, _ := q.Get(context.Background())
		got <- v
	}()
	select {
	case <-got:
		t.Fatal("Get returned before Put")
	case <-time.After(20 * time.Millisecond):
	}
	q.Put("job")
	select {
	case v := <-got:
		if v != "job" {
			t.Fatalf("unexpected value %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Get did not wake after Put")
	}
}

func TestFIFOGetHonorsContext(t *testing.T) {
	q := newFIFO[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := q.Get(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestFIFOJoinWaitsForTaskDone(t *testing.T) {
	q := newFIFO[int]()
	q.Put(1)
	if _, err := q.Get(context.Background()); err != nil {
		t.Fatal(err)
	}

	joined := make(chan error, 1)
	go func() { joined <- q.Join(context.Background()) }()
	select {
	case <-joined:
		t.Fatal("Join returned while item was still in progress")
	case <-time.After(20 * time.Millisecond):
	}
	q.TaskDone()
	select {
	case err := <-joined:
		if err != nil {
			t.Fatalf("Join: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Join did not return after TaskDone")
	}
}

func TestFIFODrainCompletesAccounting(t *testing.T) {
	q := newFIFO[int]()
	q.Put(1)
	q.Put(2)
	items := q.Drain()
	if len(items) != 2 {
		t.Fatalf("expected 2 drained items, got %d", len(items))
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := q.Join(ctx); err != nil {
		t.Fatalf("Join after Drain: %v", err)
	}
}
