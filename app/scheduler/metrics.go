package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whatsflow_messages_dispatched_total",
			Help: "Outbound template messages attempted by the dispatcher, by result.",
		},
		[]string{"result"},
	)

	campaignsCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "whatsflow_campaigns_completed_total",
			Help: "Campaigns fully drained by the dispatcher.",
		},
	)

	campaignsPromotedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "whatsflow_campaigns_promoted_total",
			Help: "Scheduled campaigns promoted to sending by the scheduler.",
		},
	)

	statusEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whatsflow_status_events_total",
			Help: "Delivery status events received from the gateway webhook, by status and outcome.",
		},
		[]string{"status", "outcome"},
	)

	dispatchDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "whatsflow_send_duration_seconds",
			Help:    "Wall time of individual gateway send calls.",
			Buckets: prometheus.DefBuckets,
		},
	)
)
