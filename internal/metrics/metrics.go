// Package metrics registers the Prometheus collectors of the seat
// inventory. They are exposed by the HTTP server on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReservationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bus_reservations_created_total",
		Help: "The total number of reservations created",
	})
	ReservationsCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_reservations_cancelled_total",
		Help: "The total number of reservations cancelled, by origin (holder or trip)",
	}, []string{"origin"})
	ReservationsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bus_reservations_completed_total",
		Help: "The total number of reservations completed with their trip",
	})
	ReservationsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bus_reservations_expired_total",
		Help: "The total number of reservations expired after departure",
	})
	SeatRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bus_seat_rejections_total",
		Help: "The total number of reservation attempts refused because the seat was taken",
	})
	TransactionRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_transaction_retries_total",
		Help: "The total number of units of work retried after a version conflict",
	}, []string{"operation"})
	TripTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_trip_transitions_total",
		Help: "The total number of trip lifecycle transitions, by target status",
	}, []string{"status"})
	EventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bus_events_published_total",
		Help: "The total number of domain events handed to the broker",
	})
	PublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bus_event_publish_errors_total",
		Help: "The total number of failed publish attempts",
	})
)
