package registry_test

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/colinxiong/MURS/internal/model"
	"github.com/colinxiong/MURS/internal/registry"
	"github.com/colinxiong/MURS/internal/stopqueue"
)

// fixedSource is a MemorySource returning a constant consumption.
type fixedSource struct {
	bytes int64
}

func (f *fixedSource) ConsumptionBytes() int64 { return f.bytes }

func newTestRegistry(t *testing.T) (*registry.Registry, *stopqueue.Queue) {
	t.Helper()
	q := stopqueue.New()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return registry.New(q, logger), q
}

func TestRegisterIdempotent(t *testing.T) {
	r, _ := newTestRegistry(t)

	r.Register(1, &fixedSource{bytes: 100})
	r.MarkResult(1)
	// Re-registering a live task must not reset its flags or handle.
	r.Register(1, &fixedSource{bytes: 999})

	if got := r.RunningCount(); got != 1 {
		t.Fatalf("RunningCount() = %d, want 1", got)
	}
	result, _, ok := r.Facets(1)
	if !ok || !result {
		t.Errorf("Facets(1) = result=%v ok=%v, want result=true ok=true", result, ok)
	}
	if c, _ := r.Consumption(1); c != 100 {
		t.Errorf("Consumption(1) = %d, want 100 (original handle kept)", c)
	}
}

func TestUnregisterRemovesAllState(t *testing.T) {
	r, _ := newTestRegistry(t)

	r.Register(1, &fixedSource{})
	r.MarkResult(1)
	r.MarkExternalRead(1)
	r.RequestSampleAll()
	r.Unregister(1)

	if got := r.RunningCount(); got != 0 {
		t.Fatalf("RunningCount() = %d, want 0", got)
	}
	if _, _, ok := r.Facets(1); ok {
		t.Error("Facets(1) ok = true after Unregister")
	}
	if _, ok := r.Consumption(1); ok {
		t.Error("Consumption(1) ok = true after Unregister")
	}
	if r.IsSampleRequested(1) {
		t.Error("IsSampleRequested(1) = true after Unregister")
	}
}

func TestUnregisterReleasesOldestPaused(t *testing.T) {
	r, q := newTestRegistry(t)

	for id := model.TaskID(1); id <= 3; id++ {
		r.Register(id, &fixedSource{})
	}
	q.Pause(2)
	q.Pause(3)

	// Task 1 finishes; the room it frees releases the oldest paused task.
	released, ok := r.Unregister(1)
	if !ok || released != 2 {
		t.Errorf("Unregister(1) released %d, %v, want 2, true", released, ok)
	}
	if q.Contains(2) {
		t.Error("Contains(2) = true after unregister-triggered release")
	}
	if !q.Contains(3) {
		t.Error("Contains(3) = false, release must be strictly FIFO")
	}
}

func TestUnregisterResolvesOwnPause(t *testing.T) {
	r, q := newTestRegistry(t)

	r.Register(1, &fixedSource{})
	r.Register(2, &fixedSource{})
	q.Pause(1)

	// The finishing task was itself the only paused one: its entry resolves
	// silently and the follow-up head release finds nothing.
	released, ok := r.Unregister(1)
	if ok {
		t.Errorf("Unregister(1) released %d, want none", released)
	}
	if !q.IsEmpty() {
		t.Error("queue not empty after paused task finished")
	}
}

func TestUnregisterUnknownIsNoOp(t *testing.T) {
	r, q := newTestRegistry(t)

	r.Register(1, &fixedSource{})
	q.Pause(1)

	if _, ok := r.Unregister(42); ok {
		t.Error("Unregister(42) released a task for an unknown id")
	}
	if !q.Contains(1) {
		t.Error("unknown-id Unregister must not release anything")
	}
}

func TestSamplingSignalCycle(t *testing.T) {
	r, _ := newTestRegistry(t)

	r.Register(1, &fixedSource{})
	r.Register(2, &fixedSource{})

	if r.IsSampleRequested(1) {
		t.Error("IsSampleRequested(1) = true before RequestSampleAll")
	}

	r.RequestSampleAll()
	if !r.IsSampleRequested(1) || !r.IsSampleRequested(2) {
		t.Error("RequestSampleAll did not raise every flag")
	}

	// Each task clears only its own flag.
	r.AcknowledgeSample(1)
	if r.IsSampleRequested(1) {
		t.Error("IsSampleRequested(1) = true after acknowledge")
	}
	if !r.IsSampleRequested(2) {
		t.Error("acknowledge for task 1 cleared task 2's flag")
	}
}

func TestIDsOrdered(t *testing.T) {
	r, _ := newTestRegistry(t)

	for _, id := range []model.TaskID{5, 1, 9, 3} {
		r.Register(id, &fixedSource{})
	}

	ids := r.IDs()
	want := []model.TaskID{1, 3, 5, 9}
	if len(ids) != len(want) {
		t.Fatalf("IDs() returned %d ids, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("IDs()[%d] = %d, want %d", i, ids[i], want[i])
		}
	}
}

func TestConcurrentLifecycle(t *testing.T) {
	r, _ := newTestRegistry(t)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := model.TaskID(base*50 + i)
				r.Register(id, &fixedSource{bytes: int64(i)})
				r.MarkResult(id)
				r.IsSampleRequested(id)
				r.AcknowledgeSample(id)
				r.Unregister(id)
			}
		}(g)
	}
	// One goroutine playing the governor's read side.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			r.RequestSampleAll()
			r.RunningCount()
			r.IDs()
		}
	}()
	wg.Wait()

	if got := r.RunningCount(); got != 0 {
		t.Errorf("RunningCount() = %d after all tasks unregistered, want 0", got)
	}
}
