// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the progression engine.
var (
	// Counters.
	RewardEventsAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reward_events_applied_total",
			Help: "Total number of reward events applied to the ledger",
		},
		[]string{"source_type"},
	)

	RewardEventsDuplicateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reward_events_duplicate_total",
			Help: "Total number of reward events rejected as idempotent duplicates",
		},
		[]string{"source_type"},
	)

	TasksCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_completed_total",
			Help: "Total number of task completions granted",
		},
		[]string{"task_name"},
	)

	BadgesAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "badges_awarded_total",
			Help: "Total number of badges awarded",
		},
		[]string{"badge_name", "via"},
	)

	LevelUpsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "level_ups_total",
			Help: "Total number of user level increases",
		},
	)

	// Gauges.
	ActiveBadgeHolders = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "active_badge_holders",
			Help: "Current number of users holding each badge",
		},
		[]string{"badge_name"},
	)

	// Sweep job metrics.
	SweepJobsRunTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_jobs_run_total",
			Help: "Total catalog sweep job executions",
		},
		[]string{"status"},
	)

	SweepDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sweep_duration_seconds",
			Help:    "Time taken to execute a full catalog sweep",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~1024s
		},
	)

	// Content actions that feed the engine.
	ContentActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_actions_total",
			Help: "Total content creations that triggered reward recording",
		},
		[]string{"kind", "status"},
	)
)

// RecordRewardEventApplied records a successfully applied reward event.
func RecordRewardEventApplied(sourceType string) {
	RewardEventsAppliedTotal.WithLabelValues(sourceType).Inc()
}

// RecordRewardEventDuplicate records an apply that no-opped on the idempotency key.
func RecordRewardEventDuplicate(sourceType string) {
	RewardEventsDuplicateTotal.WithLabelValues(sourceType).Inc()
}

// RecordTaskCompleted records a granted task completion.
func RecordTaskCompleted(taskName string) {
	TasksCompletedTotal.WithLabelValues(taskName).Inc()
}

// RecordBadgeAwarded records a badge grant. via is 'scan' or 'task_reward'.
func RecordBadgeAwarded(badgeName, via string) {
	BadgesAwardedTotal.WithLabelValues(badgeName, via).Inc()
}

// RecordLevelUp records a user level increase.
func RecordLevelUp() {
	LevelUpsTotal.Inc()
}

// SetActiveBadgeHolders sets the number of holders for a badge.
func SetActiveBadgeHolders(badgeName string, count int) {
	ActiveBadgeHolders.WithLabelValues(badgeName).Set(float64(count))
}

// RecordSweepJobRun records a catalog sweep job execution.
func RecordSweepJobRun(status string) {
	SweepJobsRunTotal.WithLabelValues(status).Inc()
}

// ObserveSweepDuration observes the duration of a catalog sweep.
func ObserveSweepDuration(seconds float64) {
	SweepDurationSeconds.Observe(seconds)
}

// RecordContentAction records a content creation and its reward outcome.
func RecordContentAction(kind, status string) {
	ContentActionsTotal.WithLabelValues(kind, status).Inc()
}
