// Package metrics exposes the bridge's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MergesTotal counts completed reconciliation merges.
	MergesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "syncbridge_merges_total",
		Help: "Number of completed remote-to-local merges.",
	})

	// MergeFailuresTotal counts bootstrap cycles that failed before merge.
	MergeFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "syncbridge_merge_failures_total",
		Help: "Number of bootstrap cycles that failed to fetch or merge.",
	})

	// QueueDepth tracks the number of pending queued actions.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "syncbridge_queue_depth",
		Help: "Number of actions currently pending in the sync queue.",
	})

	// DrainActionsTotal counts per-action drain outcomes.
	DrainActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncbridge_drain_actions_total",
		Help: "Queued actions processed by drains, by outcome.",
	}, []string{"outcome"})

	// BookingsTotal counts bookings by delivery mode.
	BookingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncbridge_bookings_total",
		Help: "Bookings created, by delivery mode.",
	}, []string{"mode"})
)
