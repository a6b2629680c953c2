package handler

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	messagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "kafka_consumer",
			Name:      "messages_processed_total",
			Help:      "Total number of successfully processed messages",
		},
		[]string{"topic"},
	)

	messagesFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "kafka_consumer",
			Name:      "messages_failed_total",
			Help:      "Total number of failed message processing attempts",
		},
		[]string{"topic"},
	)

	messagesDLQ = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "kafka_consumer",
			Name:      "messages_dlq_total",
			Help:      "Total number of messages written to DLQ",
		},
		[]string{"topic"},
	)

	commitErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "kafka_consumer",
			Name:      "commit_errors_total",
			Help:      "Total number of Kafka commit errors",
		},
		[]string{"topic"},
	)

	processingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "marketplace",
			Subsystem: "kafka_consumer",
			Name:      "message_processing_duration_seconds",
			Help:      "Histogram of message processing durations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"topic"},
	)

	messagesInProgress = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "marketplace",
			Subsystem: "kafka_consumer",
			Name:      "messages_in_progress",
			Help:      "Number of messages currently being processed",
		},
		[]string{"topic"},
	)
)

var webhookEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "marketplace",
		Subsystem: "webhook",
		Name:      "events_total",
		Help:      "Total number of payment webhook events by type and result",
	},
	[]string{"type", "result"},
)

func RegisterMetrics() {
	prometheus.MustRegister(
		messagesProcessed,
		messagesFailed,
		messagesDLQ,
		commitErrors,
		processingDuration,
		messagesInProgress,

		webhookEvents,
	)
}
