// Package metrics holds the Prometheus collectors of the booking core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReservationsTotal counts reserve calls by outcome
	// (ok, insufficient_seats, trip_closed, not_found, error).
	ReservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carpool_reservations_total",
		Help: "Seat reservation attempts by outcome",
	}, []string{"outcome"})

	ReservationAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "carpool_reservation_cas_attempts",
		Help:    "Compare-and-swap attempts needed per reservation",
		Buckets: []float64{1, 2, 3, 5, 8},
	})

	SeatsReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carpool_seats_released_total",
		Help: "Seats returned to inventory",
	})

	BookingTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carpool_booking_transitions_total",
		Help: "Booking state changes by target status",
	}, []string{"status"})

	ExpiredHoldsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carpool_expired_holds_total",
		Help: "Pending bookings cancelled by the hold sweeper",
	})

	EventPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carpool_event_publish_failures_total",
		Help: "Lifecycle events a subscriber failed to handle",
	}, []string{"subscriber"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "carpool_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
