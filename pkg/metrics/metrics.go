// Package metrics provides Prometheus metrics for the clover data client and API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal tracks model operations by outcome
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "client",
			Name:      "operations_total",
			Help:      "Total number of model operations by model, action and outcome",
		},
		[]string{"model", "action", "outcome"},
	)

	// QueryDuration tracks model operation duration in seconds
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "client",
			Name:      "operation_duration_seconds",
			Help:      "Duration of model operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"model", "action"},
	)

	// StatementsTotal tracks SQL statements sent to the database
	StatementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "database",
			Name:      "statements_total",
			Help:      "Total number of SQL statements executed",
		},
		[]string{"kind", "status"},
	)

	// TransactionsTotal tracks transactions by kind and outcome
	TransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "database",
			Name:      "transactions_total",
			Help:      "Total number of transactions by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// CacheRequestsTotal tracks query cache lookups
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Total number of query cache lookups by model and result",
		},
		[]string{"model", "result"},
	)

	// KafkaMessagesPublished tracks change events published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of change events published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// AuditLogsRecorded tracks audit rows written by the audit middleware
	AuditLogsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "audit",
			Name:      "records_total",
			Help:      "Total number of audit log rows recorded",
		},
		[]string{"entity", "action", "status"},
	)
)
