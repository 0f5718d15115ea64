// Package metrics exposes the governor's prometheus instruments.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// HeapBaseline is the post-collection heap baseline in bytes.
	HeapBaseline = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "murs_heap_baseline_bytes",
		Help: "Heap usage observed just after the last detected minor collection.",
	})

	// PeakBaseline is the running maximum of the heap baseline.
	PeakBaseline = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "murs_heap_peak_baseline_bytes",
		Help: "Running maximum of the post-collection heap baseline.",
	})

	// YellowLine is the configured yellow threshold in bytes.
	YellowLine = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "murs_yellow_line_bytes",
		Help: "Configured yellow heap-pressure threshold.",
	})

	// RedLine is the derived red threshold in bytes.
	RedLine = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "murs_red_line_bytes",
		Help: "Derived red heap-pressure threshold.",
	})

	// FullGCOverYellow is the diagnostic overshoot recorded at the last
	// detected major collection.
	FullGCOverYellow = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "murs_full_gc_over_yellow_bytes",
		Help: "Post-collection baseline overshoot above the yellow line at the last major collection.",
	})

	// RunningTasks is the current number of registered tasks.
	RunningTasks = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "murs_running_tasks",
		Help: "Number of currently registered tasks.",
	})

	// PausedTasks is the current number of paused tasks.
	PausedTasks = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "murs_paused_tasks",
		Help: "Number of currently paused tasks.",
	})

	// PausesTotal counts pause decisions by reason.
	PausesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "murs_pauses_total",
			Help: "Total pause decisions made by the governor.",
		},
		[]string{"reason"},
	)

	// ReleasesTotal counts release decisions by reason.
	ReleasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "murs_releases_total",
			Help: "Total release decisions made by the governor.",
		},
		[]string{"reason"},
	)

	// TickDuration observes the decision-procedure duration.
	TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "murs_tick_duration_seconds",
		Help:    "Duration of one governor decision cycle.",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		HeapBaseline,
		PeakBaseline,
		YellowLine,
		RedLine,
		FullGCOverYellow,
		RunningTasks,
		PausedTasks,
		PausesTotal,
		ReleasesTotal,
		TickDuration,
	)
}
