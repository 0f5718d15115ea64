// Package pressure maintains a smoothed view of heap usage against the
// configured threshold lines. Heap samples are noisy; the tracker keeps the
// lowest sample since the last detected minor collection as a proxy for the
// true live-set size, and watches that floor itself drop as a proxy for a
// major collection having run.
package pressure

import "sync"

// redLineFraction is the fixed fraction of the total budget used as the red
// line. Not user-settable.
const redLineFraction = 0.66 * 0.8

// Tracker holds the worker-wide heap-pressure state. Thresholds are set once
// via Configure before the governor starts ticking and are immutable
// thereafter. Sample is called by the single governor thread; accessors may be
// called from any goroutine.
type Tracker struct {
	mu sync.Mutex

	totalBudget int64
	yellowLine  int64
	redLine     int64
	configured  bool

	baseline         int64 // heap usage just after the last detected minor collection
	priorBaseline    int64
	peakBaseline     int64
	priorHeapSample  int64 // previous tick's raw heap sample
	fullGCOverYellow int64
}

// New creates an unconfigured tracker.
func New() *Tracker {
	return &Tracker{}
}

// Configure sets the immutable thresholds. The red line is always a fixed
// fraction of the total budget. The previous-sample seed starts at the full
// budget so the first real sample registers as a post-collection dip.
// Calling Configure a second time is a no-op.
func (t *Tracker) Configure(totalBudget, yellowLine int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.configured {
		return
	}
	t.totalBudget = totalBudget
	t.yellowLine = yellowLine
	t.redLine = int64(float64(totalBudget) * redLineFraction)
	t.priorHeapSample = totalBudget
	t.configured = true
}

// Sample folds one heap-usage reading into the rolling state. A reading below
// the previous one means a minor collection ran since the last tick; the
// post-collection floor dropping below its own prior value means a major
// collection ran. Both comparisons use the previous tick's values: the priors
// are only updated at the end of the call, never mid-step.
func (t *Tracker) Sample(heapUsed int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if heapUsed < t.priorHeapSample {
		t.baseline = heapUsed
	}
	if t.baseline < t.priorBaseline {
		over := t.baseline - t.yellowLine
		if over < 0 {
			over = 0
		}
		t.fullGCOverYellow = over
	}
	if t.baseline > t.peakBaseline {
		t.peakBaseline = t.baseline
	}

	t.priorHeapSample = heapUsed
	t.priorBaseline = t.baseline
}

// Baseline returns the heap usage observed just after the last detected minor
// collection.
func (t *Tracker) Baseline() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baseline
}

// PeakBaseline returns the running maximum of the post-collection baseline.
func (t *Tracker) PeakBaseline() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peakBaseline
}

// FullGCOverYellow returns how far the post-collection baseline sat above the
// yellow line when the last major collection was detected. Diagnostic only.
func (t *Tracker) FullGCOverYellow() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fullGCOverYellow
}

// YellowLine returns the configured yellow line in bytes.
func (t *Tracker) YellowLine() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.yellowLine
}

// RedLine returns the derived red line in bytes.
func (t *Tracker) RedLine() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.redLine
}

// TotalBudget returns the configured total memory budget in bytes.
func (t *Tracker) TotalBudget() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalBudget
}
