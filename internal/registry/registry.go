// Package registry tracks the set of currently running tasks on one worker.
// Each task has a single record holding its memory-accounting handle, its kind
// facets, and its sampling flag; the record table is the only writer-shared
// state, guarded by one mutex.
package registry

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/colinxiong/MURS/internal/model"
	"github.com/colinxiong/MURS/internal/stopqueue"
)

// MemorySource reports the current memory consumption of one task, as
// measured by the external per-task accounting subsystem.
type MemorySource interface {
	ConsumptionBytes() int64
}

type record struct {
	source          MemorySource
	sampleRequested bool
	result          bool
	externalRead    bool
}

// Registry is the authoritative table of running tasks. It is safe for
// concurrent use; task threads register, tag, and acknowledge from arbitrary
// goroutines while the governor reads snapshots.
type Registry struct {
	mu     sync.Mutex
	tasks  map[model.TaskID]*record
	queue  *stopqueue.Queue
	logger *slog.Logger
}

// New creates an empty registry. Releases triggered by task completion go
// through the given queue.
func New(queue *stopqueue.Queue, logger *slog.Logger) *Registry {
	return &Registry{
		tasks:  make(map[model.TaskID]*record),
		queue:  queue,
		logger: logger,
	}
}

// Register adds a task with default flags. Registering an already-present id
// is a no-op, so a duplicate registration cannot clobber flags set in between.
func (r *Registry) Register(id model.TaskID, source MemorySource) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; ok {
		return
	}
	r.tasks[id] = &record{source: source}
}

// Unregister removes all per-task state for id. A finishing task resolves its
// own pause, and the room it frees makes the oldest paused task eligible for
// release, so one head-release attempt follows. The released id, if any, is
// returned so the caller can account for it.
func (r *Registry) Unregister(id model.TaskID) (released model.TaskID, ok bool) {
	r.mu.Lock()
	if _, present := r.tasks[id]; !present {
		r.mu.Unlock()
		return 0, false
	}
	delete(r.tasks, id)
	r.mu.Unlock()

	if r.queue.Remove(id) {
		r.logger.Debug("paused task finished", "task_id", id)
	}
	return r.queue.ReleaseOldest()
}

// MarkResult tags id as a result-stage task. Unknown ids are ignored.
func (r *Registry) MarkResult(id model.TaskID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.tasks[id]; ok {
		rec.result = true
	}
}

// MarkExternalRead tags id as reading from an external source. Unknown ids
// are ignored.
func (r *Registry) MarkExternalRead(id model.TaskID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.tasks[id]; ok {
		rec.externalRead = true
	}
}

// Facets returns the kind facets for id. ok is false if the task is gone.
func (r *Registry) Facets(id model.TaskID) (result, externalRead, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, present := r.tasks[id]
	if !present {
		return false, false, false
	}
	return rec.result, rec.externalRead, true
}

// Consumption queries the task's memory-accounting source. ok is false if the
// task unregistered since the caller last saw it.
func (r *Registry) Consumption(id model.TaskID) (int64, bool) {
	r.mu.Lock()
	rec, present := r.tasks[id]
	r.mu.Unlock()

	if !present {
		return 0, false
	}
	return rec.source.ConsumptionBytes(), true
}

// RunningCount returns the number of registered tasks.
func (r *Registry) RunningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// IDs returns the registered task ids in ascending order.
func (r *Registry) IDs() []model.TaskID {
	r.mu.Lock()
	ids := make([]model.TaskID, 0, len(r.tasks))
	for id := range r.tasks {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RequestSampleAll raises the sampling flag on every registered task. Tasks
// poll the flag and push fresh metrics before acknowledging.
func (r *Registry) RequestSampleAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.tasks {
		rec.sampleRequested = true
	}
}

// IsSampleRequested is the task-side poll of the sampling flag.
func (r *Registry) IsSampleRequested(id model.TaskID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.tasks[id]
	return ok && rec.sampleRequested
}

// AcknowledgeSample clears the sampling flag for id. Only the task itself
// calls this, after it has pushed updated metrics.
func (r *Registry) AcknowledgeSample(id model.TaskID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.tasks[id]; ok {
		rec.sampleRequested = false
	}
}
