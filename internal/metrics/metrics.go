package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for monitoring engine health and throughput
var (
	EventsReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_events_received_total",
			Help: "Total number of event reports received",
		},
	)

	EventsRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_events_rejected_total",
			Help: "Total number of event reports rejected as invalid",
		},
	)

	EventsReplayedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_events_replayed_total",
			Help: "Total number of event reports skipped as replays",
		},
	)

	EventsSuppressedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_events_suppressed_total",
			Help: "Total number of events suppressed as retriggers",
		},
	)

	EventsFilteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_events_filtered_total",
			Help: "Total number of events dropped by the filter pipeline",
		},
		[]string{"reason"},
	)

	EventsReviewedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_events_reviewed_total",
			Help: "Total number of events queued for human review",
		},
	)

	EventsFinalizedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_events_finalized_total",
			Help: "Total number of events finalized as violations",
		},
	)

	EventProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engine_event_processing_duration_seconds",
			Help:    "Duration of one event report through the engine",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Register registers all Prometheus metrics
func Register() {
	prometheus.MustRegister(EventsReceivedTotal)
	prometheus.MustRegister(EventsRejectedTotal)
	prometheus.MustRegister(EventsReplayedTotal)
	prometheus.MustRegister(EventsSuppressedTotal)
	prometheus.MustRegister(EventsFilteredTotal)
	prometheus.MustRegister(EventsReviewedTotal)
	prometheus.MustRegister(EventsFinalizedTotal)
	prometheus.MustRegister(EventProcessingDuration)
}
