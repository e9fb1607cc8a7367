package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Send attempts per channel, including retries
	ChannelAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_channel_attempts_total",
			Help: "Total number of channel send attempts",
		},
		[]string{"channel"}, // push, email
	)

	// Final outcome per channel delivery (after retries)
	ChannelOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_channel_outcomes_total",
			Help: "Final delivery outcome per channel",
		},
		[]string{"channel", "outcome"}, // outcome: delivered, transient_failure, permanent_failure
	)

	ChannelRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_channel_retries_total",
			Help: "Total number of retries after transient failures",
		},
		[]string{"channel"},
	)

	SubscriptionsDeactivated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "push_subscriptions_deactivated_total",
			Help: "Push subscriptions deactivated after a permanent failure",
		},
	)

	// One per recipient record written
	DeliveryRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_delivery_records_total",
			Help: "Delivery records written",
		},
		[]string{"status"}, // sent, failed, duplicate
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "delivery_run_duration_seconds",
			Help:    "Wall-clock duration of one delivery run",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.4min
		},
	)

	RunErrorRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "delivery_run_error_rate",
			Help: "Error rate of the most recent delivery run",
		},
	)

	Alerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_alerts_total",
			Help: "High severity alerts raised by delivery runs",
		},
		[]string{"kind"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	SlowQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_queries_total",
			Help: "Queries slower than the configured threshold",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)

	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_events_published_total",
			Help: "Outbox events handed to the broker",
		},
		[]string{"routing_key", "status"}, // status: sent, failed
	)
)

func RecordAttempt(channel string) {
	ChannelAttempts.WithLabelValues(channel).Inc()
}

func RecordRetry(channel string) {
	ChannelRetries.WithLabelValues(channel).Inc()
}

func RecordOutcome(channel, outcome string) {
	ChannelOutcomes.WithLabelValues(channel, outcome).Inc()
}

func RecordDeliveryRecord(status string) {
	DeliveryRecords.WithLabelValues(status).Inc()
}

// RecordRun observes one finished run.
func RecordRun(duration time.Duration, errorRate float64) {
	RunDuration.Observe(duration.Seconds())
	RunErrorRate.Set(errorRate)
}

func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

func IncrementSlowQuery() {
	SlowQueries.Inc()
}

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
