package lock

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusAcquired  = "acquired"
	statusContended = "contended"
	statusRenewed   = "renewed"
	statusLost      = "lost"
	statusReleased  = "released"
	statusNoop      = "noop"
	statusError     = "error"
)

var (
	acquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locks_acquire_total",
			Help: "Lock acquisition attempts by outcome",
		},
		[]string{"status"},
	)

	extendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locks_extend_total",
			Help: "Lease extensions by outcome",
		},
		[]string{"status"},
	)

	releaseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locks_release_total",
			Help: "Lock releases by outcome",
		},
		[]string{"status"},
	)

	// counts handles not yet released, including ones whose lease was lost
	locksHeld = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "locks_held",
			Help: "Lock handles currently held by this process",
		},
	)

	extendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "locks_extend_duration_seconds",
			Help:    "Round trip time of lease extensions",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)
)
