package governor

import (
	"context"
	"time"

	"github.com/colinxiong/MURS/internal/metrics"
	"github.com/colinxiong/MURS/internal/model"
)

// Spill-risk constants: a task is considered close to spilling when its
// extrapolated memory need exceeds this fraction of its current consumption
// and it is not yet near completion.
const (
	spillNeedFraction    = 0.8
	spillPercentCeiling  = 0.8
	spillReserveMultiple = 2
)

// Tick runs one decision cycle. It samples the heap, rebuilds the per-task
// snapshot, and applies exactly one of the three pressure branches. Never
// blocks and never fails: missing tasks are skipped and store errors are
// absorbed.
func (g *Governor) Tick(ctx context.Context) {
	start := time.Now()
	g.tickSeq.Add(1)

	heapUsed := g.heap.CurrentHeapUsed()
	g.pressure.Sample(heapUsed)

	running := g.registry.RunningCount()
	paused := g.queue.Len()

	// Deadlock avoidance: if every running task is paused, nothing can make
	// progress, so force one release before any branch runs.
	if running > 0 && running == paused {
		if id, ok := g.queue.ReleaseOldest(); ok {
			metrics.ReleasesTotal.WithLabelValues(model.ReasonDeadlock).Inc()
			g.emit(ctx, id, model.ActionRelease, model.ReasonDeadlock)
		}
		paused = g.queue.Len()
	}

	baseline := g.pressure.Baseline()
	yellow := g.pressure.YellowLine()
	red := g.pressure.RedLine()
	managedUsed := g.pool.ExecutionUsed() + g.pool.StorageUsed()
	freeStorage := g.pool.StorageCapacity() - g.pool.StorageUsed()
	g.lastManagedUsed.Store(managedUsed)

	switch {
	case paused == 0 && baseline > yellow:
		g.enterPressure(ctx, heapUsed, managedUsed, freeStorage, running)
	case paused > 0 && baseline < yellow:
		g.relieve(ctx)
	case paused > 0 && baseline > red:
		g.preventSpill(ctx, freeStorage)
	}

	g.prevManagedUsed.Store(managedUsed)

	metrics.HeapBaseline.Set(float64(baseline))
	metrics.PeakBaseline.Set(float64(g.pressure.PeakBaseline()))
	metrics.FullGCOverYellow.Set(float64(g.pressure.FullGCOverYellow()))
	metrics.RunningTasks.Set(float64(g.registry.RunningCount()))
	metrics.PausedTasks.Set(float64(g.queue.Len()))
	metrics.TickDuration.Observe(time.Since(start).Seconds())
}

// snapshot rebuilds the per-tick task view from collaborator queries. Tasks
// that unregister mid-build are skipped; the snapshot is never reused across
// ticks.
func (g *Governor) snapshot() []model.TaskSample {
	ids := g.sampler.TaskIDs()
	snap := make([]model.TaskSample, 0, len(ids))
	for _, id := range ids {
		consumption, ok := g.registry.Consumption(id)
		if !ok {
			continue
		}
		result, externalRead, ok := g.registry.Facets(id)
		if !ok {
			continue
		}
		usage, _ := g.sampler.MemoryUsage(id)
		rate, _ := g.sampler.UsageRate(id)
		percent, _ := g.sampler.CompletionPercent(id)
		snap = append(snap, model.TaskSample{
			ID:           id,
			Consumption:  consumption,
			Usage:        usage,
			UsageRate:    rate,
			Percent:      percent,
			Result:       result,
			ExternalRead: externalRead,
			Paused:       g.queue.Contains(id),
		})
	}
	return snap
}

// enterPressure is branch (a): no task paused yet and the baseline crossed
// the yellow line. It decides whether pausing is warranted at all, then picks
// victims.
func (g *Governor) enterPressure(ctx context.Context, heapUsed, managedUsed, freeStorage int64, running int) {
	yellow := g.pressure.YellowLine()
	red := g.pressure.RedLine()

	ensureStop := managedUsed > g.prevManagedUsed.Load() ||
		heapUsed > red ||
		heapUsed > 2*yellow
	if !ensureStop || running <= g.tn.MinRunning {
		return
	}

	snap := g.snapshot()
	if len(snap) == 0 {
		return
	}

	allExternal, allResult := true, true
	for _, s := range snap {
		if !s.ExternalRead {
			allExternal = false
		}
		if !s.Result {
			allResult = false
		}
	}

	if !allExternal && !allResult {
		g.pauseByEstimate(ctx, snap, freeStorage, running)
	} else {
		g.pauseHomogeneousPrefix(ctx, snap)
	}
}

// pauseByEstimate runs victim selection over a mixed running set. Each round
// protects the task closest to completion below the current cutoff, charges
// its estimated remaining need against the free budget, and tightens the
// cutoff to its completion percent. Every unprotected task below the final
// cutoff is paused, except result-stage tasks, which are never throttled this
// way.
func (g *Governor) pauseByEstimate(ctx context.Context, snap []model.TaskSample, freeStorage int64, running int) {
	threshold := 1.0
	remaining := running
	free := float64(freeStorage)
	estimate := 0.0

	for free > 0 && remaining > g.tn.MinRunning {
		pick := -1
		best := -1.0
		for i, s := range snap {
			if s.Percent < threshold && s.Percent > best {
				best = s.Percent
				pick = i
			}
		}
		if pick < 0 {
			break
		}
		s := snap[pick]
		// Remaining need extrapolated from progress so far. A task with zero
		// consumption or zero percent would divide to a non-finite value, so
		// it contributes the previously computed estimate instead.
		if s.Consumption > 0 && s.Percent > 0 {
			estimate = float64(s.Consumption) * (1/s.Percent - 1) * g.tn.EstimateMul
		}
		free -= estimate + float64(s.Consumption)
		threshold = s.Percent
		remaining--
	}

	for _, s := range snap {
		if s.Result {
			continue
		}
		if s.Percent < threshold || (threshold == 0 && s.Percent <= threshold) {
			g.pause(ctx, s.ID, model.ReasonPressure)
		}
	}
}

// pauseHomogeneousPrefix handles a running set that is all external-read or
// all result tasks: pause the configured number of lowest-indexed tasks,
// skipping result-stage tasks when they are protected.
func (g *Governor) pauseHomogeneousPrefix(ctx context.Context, snap []model.TaskSample) {
	limit := g.tn.StopCount
	if limit > len(snap) {
		limit = len(snap)
	}
	for _, s := range snap[:limit] {
		if g.tn.ProtectResult && s.Result {
			continue
		}
		g.pause(ctx, s.ID, model.ReasonHomogeneous)
	}
}

// relieve is branch (b): the baseline dropped back below the yellow line, so
// the prior collection cycle freed enough memory and every pause is lifted.
func (g *Governor) relieve(ctx context.Context) {
	for _, id := range g.queue.ReleaseAll() {
		metrics.ReleasesTotal.WithLabelValues(model.ReasonRelief).Inc()
		g.emit(ctx, id, model.ActionRelease, model.ReasonRelief)
	}
}

// preventSpill is branch (c): pressure persists above the red line while
// tasks are already paused. Tasks whose extrapolated need says they are about
// to spill are charged a reserve against the free budget; once the budget
// goes negative, each further at-risk task is paused pre-emptively.
func (g *Governor) preventSpill(ctx context.Context, freeStorage int64) {
	free := float64(freeStorage)
	for _, s := range g.snapshot() {
		if s.Paused {
			continue
		}
		if s.Percent >= spillPercentCeiling {
			continue
		}
		// Zero percent would extrapolate to an unbounded need; treat the
		// task as at risk without dividing.
		atRisk := s.Percent <= 0 ||
			float64(s.Usage)*2/s.Percent > float64(s.Consumption)*spillNeedFraction
		if !atRisk {
			continue
		}
		free -= spillReserveMultiple * float64(s.Consumption)
		if free < 0 {
			g.pause(ctx, s.ID, model.ReasonSpill)
		}
	}
}

// pause flags one task. Pausing an already-paused or already-gone task is a
// silent no-op.
func (g *Governor) pause(ctx context.Context, id model.TaskID, reason string) {
	if _, ok := g.registry.Consumption(id); !ok {
		return
	}
	if !g.queue.Pause(id) {
		return
	}
	metrics.PausesTotal.WithLabelValues(reason).Inc()
	g.emit(ctx, id, model.ActionPause, reason)
}
