package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collection pipeline metrics, exposed on the health listener at /metrics.

var (
	// SymbolsFetched counts symbols successfully fetched from the quote source.
	SymbolsFetched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ticker_monitor",
		Name:      "symbols_fetched_total",
		Help:      "Symbols successfully fetched from the quote source",
	})

	// SymbolsFailed counts symbols that failed permanently for a run.
	SymbolsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ticker_monitor",
		Name:      "symbols_failed_total",
		Help:      "Symbols marked as permanent failures",
	})

	// BatchRetries counts retry attempts across all batches.
	BatchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ticker_monitor",
		Name:      "batch_retries_total",
		Help:      "Retry attempts across quote source batches",
	})

	// BatchDuration observes wall time per batch including retries.
	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ticker_monitor",
		Name:      "batch_duration_seconds",
		Help:      "Wall time per quote source batch including retries",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	// JobsCompleted counts finished jobs by terminal status.
	JobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ticker_monitor",
		Name:      "jobs_completed_total",
		Help:      "Jobs finished, labelled by terminal status",
	}, []string{"status"})

	// ActiveRateLimits tracks currently open throttle events.
	ActiveRateLimits = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ticker_monitor",
		Name:      "rate_limit_events_active",
		Help:      "Currently open rate limit events",
	})

	// SnapshotsSaved counts snapshots committed to the store.
	SnapshotsSaved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ticker_monitor",
		Name:      "snapshots_saved_total",
		Help:      "Quote snapshots committed to the store",
	})
)
