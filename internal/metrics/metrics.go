// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disputes_notifications_delivered_total",
			Help: "Notification deliveries by type and outcome.",
		},
		[]string{"type", "status"},
	)
	DisputeTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disputes_transitions_total",
			Help: "Dispute creations and status changes by outcome.",
		},
		[]string{"action", "outcome"},
	)
	AggregatorPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disputes_aggregator_polls_total",
			Help: "Aggregator poll attempts by outcome.",
		},
		[]string{"outcome"},
	)
	EmailAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disputes_email_alerts_total",
			Help: "Email alert attempts by outcome.",
		},
		[]string{"status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "disputes_http_request_duration_seconds",
			Help:    "Duration of API requests.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"route", "status"},
	)
)
