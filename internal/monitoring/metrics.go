// Package monitoring defines the Prometheus instruments exported at
// /metrics.  Counters are registered through promauto at package load.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BookingsCreated counts bookings accepted by the orchestrator.
	BookingsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ticketing",
		Name:      "bookings_created_total",
		Help:      "Bookings created.",
	})

	// BookingsConfirmed counts bookings confirmed by the reconciler.
	BookingsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ticketing",
		Name:      "bookings_confirmed_total",
		Help:      "Bookings confirmed after payment settled.",
	})

	// BookingsCancelled counts cancellations by origin (buyer, admin,
	// payment_failed, expired).
	BookingsCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ticketing",
		Name:      "bookings_cancelled_total",
		Help:      "Bookings cancelled.",
	}, []string{"reason"})

	// ReservationRejections counts reservation attempts the ledger
	// turned down, by cause (capacity, sale_closed, limit).
	ReservationRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ticketing",
		Name:      "reservation_rejections_total",
		Help:      "Reservation attempts rejected by the inventory ledger.",
	}, []string{"cause"})

	// CheckIns counts check-in attempts by outcome (admitted, duplicate,
	// rejected).
	CheckIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ticketing",
		Name:      "checkins_total",
		Help:      "Check-in attempts.",
	}, []string{"outcome"})

	// RefundsIssued counts refunds granted on cancellation.
	RefundsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ticketing",
		Name:      "refunds_issued_total",
		Help:      "Refunds issued through the gateway.",
	})
)
