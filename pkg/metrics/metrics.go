// Package metrics exposes Prometheus collectors for pipeline activity:
// rows flowing through each stage, rows rejected by the cleaner, run
// durations and run outcomes. Collectors register themselves with the
// default registry via promauto.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RowsProcessed counts rows leaving a stage, labeled by stage and entity.
	RowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratum_rows_processed_total",
			Help: "Total rows emitted by a pipeline stage",
		},
		[]string{"stage", "entity"},
	)

	// RowsRejected counts rows the cleaner dropped, labeled by entity and
	// drop reason (null_key, bad_key, rule, duplicate).
	RowsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratum_rows_rejected_total",
			Help: "Total rows dropped during cleaning",
		},
		[]string{"entity", "reason"},
	)

	// RunDuration observes end-to-end run time in seconds.
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stratum_run_duration_seconds",
			Help:    "Warehouse rebuild duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	// RunsTotal counts completed runs by outcome (success, failed, conflict).
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratum_runs_total",
			Help: "Total pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	// StageDuration observes per-stage latency in seconds.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stratum_stage_duration_seconds",
			Help:    "Per-stage duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		},
		[]string{"stage"},
	)

	// TableRows reports the current row count of each gold table.
	TableRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stratum_table_rows",
			Help: "Row count of a warehouse table after the last refresh",
		},
		[]string{"table"},
	)
)

// Timer measures a stage's elapsed time and records it on Stop.
type Timer struct {
	stage string
	start time.Time
}

// NewTimer starts timing a stage.
func NewTimer(stage string) *Timer {
	return &Timer{stage: stage, start: time.Now()}
}

// Stop records the elapsed time against the stage histogram and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	StageDuration.WithLabelValues(t.stage).Observe(elapsed.Seconds())
	return elapsed
}
