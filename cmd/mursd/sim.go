package main

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/colinxiong/MURS/internal/governor"
	"github.com/colinxiong/MURS/internal/model"
)

// Simulated workload parameters. The simulation stands in for a real
// execution engine so the daemon exercises the governor end to end: tasks
// grow memory as they progress, honor the pause flag cooperatively, and
// answer sampling requests.
const (
	simWorkers   = 8
	simStep      = 50 * time.Millisecond
	simTaskBytes = 64 << 20 // peak consumption of one simulated task
)

// simPool is a managed memory pool fed by the simulated tasks.
type simPool struct {
	capacity int64
	exec     atomic.Int64
	storage  atomic.Int64
}

func newSimPool(totalBudget int64) *simPool {
	return &simPool{capacity: totalBudget / 2}
}

func (p *simPool) ExecutionUsed() int64   { return p.exec.Load() }
func (p *simPool) StorageUsed() int64     { return p.storage.Load() }
func (p *simPool) StorageCapacity() int64 { return p.capacity }

// simSampler implements the metrics sampler over the simulated tasks.
type simSampler struct {
	mu    sync.Mutex
	ids   []model.TaskID
	tasks map[model.TaskID]*simTask
}

func newSimSampler() *simSampler {
	return &simSampler{tasks: make(map[model.TaskID]*simTask)}
}

func (s *simSampler) add(t *simTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, t.id)
	s.tasks[t.id] = t
}

func (s *simSampler) remove(id model.TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	for i, queued := range s.ids {
		if queued == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			break
		}
	}
}

func (s *simSampler) TaskIDs() []model.TaskID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]model.TaskID, len(s.ids))
	copy(ids, s.ids)
	return ids
}

func (s *simSampler) lookup(id model.TaskID) (*simTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

func (s *simSampler) MemoryUsage(id model.TaskID) (int64, bool) {
	t, ok := s.lookup(id)
	if !ok {
		return 0, false
	}
	return t.usage.Load(), true
}

func (s *simSampler) UsageRate(id model.TaskID) (float64, bool) {
	t, ok := s.lookup(id)
	if !ok {
		return 0, false
	}
	return float64(t.usage.Load()) / float64(simTaskBytes), true
}

func (s *simSampler) CompletionPercent(id model.TaskID) (float64, bool) {
	t, ok := s.lookup(id)
	if !ok {
		return 0, false
	}
	return float64(t.progress.Load()) / 100, true
}

func (s *simSampler) RecordInputRead(id model.TaskID, bytes, records int64)   {}
func (s *simSampler) RecordShuffleRead(id model.TaskID, bytes, records int64) {}
func (s *simSampler) RecordCacheRead(id model.TaskID, bytes, records int64)   {}
func (s *simSampler) MarkShuffleWrite(id model.TaskID)                        {}

func (s *simSampler) RecordSampledShuffleMemory(id model.TaskID, bytes int64) {
	if t, ok := s.lookup(id); ok {
		t.sampled.Store(bytes)
	}
}

func (s *simSampler) RecordSampledCacheMemory(id model.TaskID, bytes int64) {
	if t, ok := s.lookup(id); ok {
		t.sampled.Store(bytes)
	}
}

// simTask is one simulated task's live state.
type simTask struct {
	id       model.TaskID
	progress atomic.Int64 // 0..100
	usage    atomic.Int64
	sampled  atomic.Int64
}

// ConsumptionBytes implements the per-task memory accounting source.
func (t *simTask) ConsumptionBytes() int64 {
	return t.usage.Load()
}

// simulation runs a rolling set of simulated tasks against the governor.
type simulation struct {
	gov     *governor.Governor
	sampler *simSampler
	pool    *simPool
	logger  *slog.Logger
	nextID  atomic.Int64
}

func newSimulation(gov *governor.Governor, sampler *simSampler, pool *simPool, logger *slog.Logger) *simulation {
	return &simulation{gov: gov, sampler: sampler, pool: pool, logger: logger}
}

func (s *simulation) run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < simWorkers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for ctx.Err() == nil {
				s.runTask(ctx, worker)
			}
		}(i)
	}
	wg.Wait()
}

// runTask executes one simulated task from registration to completion.
func (s *simulation) runTask(ctx context.Context, worker int) {
	id := model.TaskID(s.nextID.Add(1))
	task := &simTask{id: id}

	s.sampler.add(task)
	s.gov.Register(id, task)
	if worker%4 == 0 {
		s.gov.MarkResult(id)
	}
	if worker%4 == 1 {
		s.gov.MarkExternalRead(id)
	}

	defer func() {
		s.pool.exec.Add(-task.usage.Load())
		s.gov.Unregister(id)
		s.sampler.remove(id)
	}()

	ticker := time.NewTicker(simStep)
	defer ticker.Stop()

	for task.progress.Load() < 100 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// A paused task holds its memory but makes no progress.
		if s.gov.ShouldStop(id) {
			continue
		}

		step := int64(1 + rand.Intn(5))
		if p := task.progress.Add(step); p > 100 {
			task.progress.Store(100)
		}
		grow := simTaskBytes * step / 100
		task.usage.Add(grow)
		s.pool.exec.Add(grow)

		if s.gov.IsSampleRequested(id) {
			s.gov.AcknowledgeAfterShuffleSample(id, task.usage.Load())
		}
	}
}
