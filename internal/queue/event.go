// Package queue defines message payloads exchanged over the message broker.
package queue

import (
	"time"

	"github.com/iliyamo/bus-seat-reservation/internal/model"
)

// TripEventsQueue carries every committed domain event of the seat
// inventory: trip, reservation and route events alike.
const TripEventsQueue = "trip.events"

// EventMessage is the JSON body of a message on trip.events. It holds
// enough for downstream consumers to log, notify or feed analytics
// without querying the primary database.
type EventMessage struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	EntityID   uint64         `json:"entity_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

func NewEventMessage(ev model.Event) EventMessage {
	return EventMessage{
		ID:         ev.ID,
		Type:       ev.Type,
		EntityID:   ev.EntityID,
		OccurredAt: ev.OccurredAt.UTC(),
		Data:       ev.Data,
	}
}
