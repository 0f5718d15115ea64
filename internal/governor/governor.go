// Package governor implements the memory-pressure admission controller for
// one worker process. It watches the heap baseline against configured
// threshold lines and pauses or releases running tasks to keep the worker
// inside its memory budget. Pausing is advisory: the execution engine must
// cooperatively honor the flag, and nothing in this package blocks.
package governor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/colinxiong/MURS/internal/metrics"
	"github.com/colinxiong/MURS/internal/model"
	"github.com/colinxiong/MURS/internal/pressure"
	"github.com/colinxiong/MURS/internal/registry"
	"github.com/colinxiong/MURS/internal/stopqueue"
	"github.com/colinxiong/MURS/internal/store"
)

// Tunables are the operator-facing knobs of the decision procedure.
type Tunables struct {
	// MinRunning is the floor below which victim selection never shrinks the
	// running set.
	MinRunning int
	// StopCount is how many of the lowest-indexed tasks to pause when the
	// running set is homogeneous.
	StopCount int
	// EstimateMul scales the remaining-memory estimate during victim
	// selection.
	EstimateMul float64
	// ProtectResult exempts result-stage tasks from homogeneous-set pausing.
	ProtectResult bool
}

// Governor owns the admission-control state for one worker: the task
// registry, the pause queue, and the pressure tracker. Exactly one goroutine
// calls Tick on a fixed cadence; task threads call everything else from
// arbitrary goroutines.
type Governor struct {
	registry *registry.Registry
	queue    *stopqueue.Queue
	pressure *pressure.Tracker
	broker   *Broker

	pool    ManagedPool
	heap    HeapSource
	sampler Sampler
	store   store.Store // may be nil; decision history is best-effort
	logger  *slog.Logger

	tn Tunables

	tickSeq         atomic.Uint64
	prevManagedUsed atomic.Int64
	lastManagedUsed atomic.Int64

	mu           sync.Mutex
	lastDecision *model.Event
}

// New creates a governor wired to the given collaborators. st may be nil to
// disable decision-history persistence.
func New(pool ManagedPool, heap HeapSource, sampler Sampler, st store.Store, logger *slog.Logger, tn Tunables) *Governor {
	queue := stopqueue.New()
	return &Governor{
		registry: registry.New(queue, logger),
		queue:    queue,
		pressure: pressure.New(),
		broker:   NewBroker(),
		pool:     pool,
		heap:     heap,
		sampler:  sampler,
		store:    st,
		logger:   logger,
		tn:       tn,
	}
}

// Configure sets the memory thresholds once before ticking starts. The red
// line is always a fixed fraction of the total budget.
func (g *Governor) Configure(totalBudget, yellowLine int64) {
	g.pressure.Configure(totalBudget, yellowLine)
	metrics.YellowLine.Set(float64(g.pressure.YellowLine()))
	metrics.RedLine.Set(float64(g.pressure.RedLine()))
}

// Broker returns the decision-event broker for subscription.
func (g *Governor) Broker() *Broker {
	return g.broker
}

// Register adds a running task with its memory-accounting handle.
// Registering a live id again is a no-op.
func (g *Governor) Register(id model.TaskID, source registry.MemorySource) {
	g.registry.Register(id, source)
}

// Unregister removes a finished task. Its own pause, if any, resolves
// silently, and the oldest remaining paused task becomes eligible for
// release.
func (g *Governor) Unregister(id model.TaskID) {
	released, ok := g.registry.Unregister(id)
	if !ok {
		return
	}
	metrics.ReleasesTotal.WithLabelValues(model.ReasonFinished).Inc()
	g.emit(context.Background(), released, model.ActionRelease, model.ReasonFinished)
}

// MarkResult tags id as a result-stage task.
func (g *Governor) MarkResult(id model.TaskID) {
	g.registry.MarkResult(id)
}

// MarkExternalRead tags id as reading from an external source.
func (g *Governor) MarkExternalRead(id model.TaskID) {
	g.registry.MarkExternalRead(id)
}

// RunningCount returns the number of registered tasks.
func (g *Governor) RunningCount() int {
	return g.registry.RunningCount()
}

// ShouldStop is the task-side poll of the pause flag.
func (g *Governor) ShouldStop(id model.TaskID) bool {
	return g.queue.Contains(id)
}

// PausedCount returns the number of currently paused tasks.
func (g *Governor) PausedCount() int {
	return g.queue.Len()
}

// RequestSampleAll asks every running task to report fresh metrics.
func (g *Governor) RequestSampleAll() {
	g.registry.RequestSampleAll()
}

// IsSampleRequested is the task-side poll of the sampling flag.
func (g *Governor) IsSampleRequested(id model.TaskID) bool {
	return g.registry.IsSampleRequested(id)
}

// AcknowledgeSample clears the sampling flag for id.
func (g *Governor) AcknowledgeSample(id model.TaskID) {
	g.registry.AcknowledgeSample(id)
}

// AcknowledgeAfterShuffleSample forwards a sampled shuffle memory result to
// the metrics sampler, then clears the sampling flag.
func (g *Governor) AcknowledgeAfterShuffleSample(id model.TaskID, bytes int64) {
	g.sampler.RecordSampledShuffleMemory(id, bytes)
	g.registry.AcknowledgeSample(id)
}

// AcknowledgeAfterCacheSample forwards a sampled cache memory result to the
// metrics sampler, then clears the sampling flag.
func (g *Governor) AcknowledgeAfterCacheSample(id model.TaskID, bytes int64) {
	g.sampler.RecordSampledCacheMemory(id, bytes)
	g.registry.AcknowledgeSample(id)
}

// UpdateInputRead forwards input-read totals to the metrics sampler.
func (g *Governor) UpdateInputRead(id model.TaskID, bytes, records int64) {
	g.sampler.RecordInputRead(id, bytes, records)
}

// UpdateShuffleRead forwards shuffle-read totals to the metrics sampler.
func (g *Governor) UpdateShuffleRead(id model.TaskID, bytes, records int64) {
	g.sampler.RecordShuffleRead(id, bytes, records)
}

// UpdateCacheRead forwards cache-read totals to the metrics sampler.
func (g *Governor) UpdateCacheRead(id model.TaskID, bytes, records int64) {
	g.sampler.RecordCacheRead(id, bytes, records)
}

// MarkShuffleWrite tells the metrics sampler that id is now writing shuffle
// output.
func (g *Governor) MarkShuffleWrite(id model.TaskID) {
	g.sampler.MarkShuffleWrite(id)
}

// Stats is the externally visible governor state snapshot.
type Stats struct {
	Running          int          `json:"running"`
	Paused           int          `json:"paused"`
	Ticks            uint64       `json:"ticks"`
	HeapBaseline     int64        `json:"heap_baseline"`
	PeakBaseline     int64        `json:"peak_baseline"`
	YellowLine       int64        `json:"yellow_line"`
	RedLine          int64        `json:"red_line"`
	TotalBudget      int64        `json:"total_budget"`
	FullGCOverYellow int64        `json:"full_gc_over_yellow"`
	ManagedUsed      int64        `json:"managed_used"`
	LastDecision     *model.Event `json:"last_decision,omitempty"`
}

// Stats returns the current governor state.
func (g *Governor) Stats() Stats {
	g.mu.Lock()
	last := g.lastDecision
	g.mu.Unlock()

	return Stats{
		Running:          g.registry.RunningCount(),
		Paused:           g.queue.Len(),
		Ticks:            g.tickSeq.Load(),
		HeapBaseline:     g.pressure.Baseline(),
		PeakBaseline:     g.pressure.PeakBaseline(),
		YellowLine:       g.pressure.YellowLine(),
		RedLine:          g.pressure.RedLine(),
		TotalBudget:      g.pressure.TotalBudget(),
		FullGCOverYellow: g.pressure.FullGCOverYellow(),
		ManagedUsed:      g.lastManagedUsed.Load(),
		LastDecision:     last,
	}
}

// TaskList returns the externally visible view of every registered task.
func (g *Governor) TaskList() []model.TaskInfo {
	infos := make([]model.TaskInfo, 0, g.registry.RunningCount())
	for _, id := range g.registry.IDs() {
		cons, ok := g.registry.Consumption(id)
		if !ok {
			continue
		}
		result, externalRead, ok := g.registry.Facets(id)
		if !ok {
			continue
		}
		usage, _ := g.sampler.MemoryUsage(id)
		rate, _ := g.sampler.UsageRate(id)
		pct, _ := g.sampler.CompletionPercent(id)
		infos = append(infos, model.TaskInfo{
			ID:              id,
			Percent:         pct,
			UsageBytes:      usage,
			UsageRate:       rate,
			Consumption:     cons,
			Result:          result,
			ExternalRead:    externalRead,
			Paused:          g.queue.Contains(id),
			SampleRequested: g.registry.IsSampleRequested(id),
		})
	}
	return infos
}

// emit records one decision: structured log, broker fan-out, and best-effort
// persistence. Store failures never surface; the governor has no fatal paths.
func (g *Governor) emit(ctx context.Context, id model.TaskID, action, reason string) {
	e := model.Event{
		ID:           model.NewID(),
		TaskID:       id,
		Action:       action,
		Reason:       reason,
		HeapBaseline: g.pressure.Baseline(),
		ManagedUsed:  g.lastManagedUsed.Load(),
		Tick:         g.tickSeq.Load(),
		CreatedAt:    time.Now().UTC(),
	}

	g.logger.Info("admission decision",
		"task_id", id,
		"action", action,
		"reason", reason,
		"heap_baseline", e.HeapBaseline,
		"managed_used", e.ManagedUsed,
		"tick", e.Tick,
	)

	g.mu.Lock()
	g.lastDecision = &e
	g.mu.Unlock()

	g.broker.Publish(e)

	if g.store != nil {
		if err := g.store.InsertEvent(ctx, &e); err != nil {
			g.logger.Error("persist decision event", "event_id", e.ID, "error", err)
		}
	}
}
