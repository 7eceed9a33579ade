package model

import (
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the aggregates.
const (
	EventTripCreated          = "Trip.Created"
	EventTripRescheduled      = "Trip.Rescheduled"
	EventTripSeatReserved     = "Trip.SeatReserved"
	EventTripSeatOccupied     = "Trip.SeatOccupied"
	EventTripSeatReleased     = "Trip.SeatReleased"
	EventTripStarted          = "Trip.Started"
	EventTripCompleted        = "Trip.Completed"
	EventTripCancelled        = "Trip.Cancelled"
	EventReservationCreated   = "Reservation.Created"
	EventReservationCancelled = "Reservation.Cancelled"
	EventReservationCompleted = "Reservation.Completed"
	EventReservationExpired   = "Reservation.Expired"
	EventRouteBookingRecorded = "Route.BookingRecorded"
)

// Event is a record of something that happened to an aggregate. Mutating
// methods return the events they produced instead of storing them; the
// caller decides whether to publish, log or drop them.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	EntityID   uint64         `json:"entity_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

func newEvent(eventType string, entityID uint64, data map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		EntityID:   entityID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// BindEntity fills in the entity id of events raised before the aggregate
// was first persisted.
func BindEntity(events []Event, id uint64) []Event {
	for i := range events {
		if events[i].EntityID == 0 {
			events[i].EntityID = id
		}
	}
	return events
}
