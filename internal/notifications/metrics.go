package notifications

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	outboxDeliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_delivered_total",
		Help: "Outbox events delivered to the notification sink",
	}, []string{"event"})

	outboxFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_failed_total",
		Help: "Outbox delivery attempts that failed",
	}, []string{"event", "gave_up"})

	outboxBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_batch_size",
		Help:    "Number of events claimed per dispatcher poll",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})
)
