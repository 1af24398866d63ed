package rides

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ridesRequestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rides_requested_total",
		Help: "Ride requests accepted for dispatch",
	}, []string{"vehicle_type", "scheduled"})

	ridesTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rides_transitions_total",
		Help: "Ride status changes by resulting status",
	}, []string{"status"})

	rideAcceptConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rides_accept_conflicts_total",
		Help: "Accept attempts that lost the assignment race",
	})

	rideCancellationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rides_cancelled_total",
		Help: "Ride cancellations by party and whether a penalty was charged",
	}, []string{"cancelled_by", "penalty"})

	rideDispatchCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rides_dispatch_candidates",
		Help:    "Drivers notified of a new ride",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
	})

	rideCompensationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rides_compensations_total",
		Help: "Wallet and voucher side effects undone after a failed request",
	}, []string{"kind", "result"})
)
