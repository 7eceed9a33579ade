package service

import (
	"context"
	"log"

	"github.com/iliyamo/bus-seat-reservation/internal/model"
)

// EventPublisher hands committed domain events to the outside world.
type EventPublisher interface {
	Publish(ctx context.Context, events ...model.Event) error
}

// LogPublisher writes events to the standard logger. It is the fallback
// when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, events ...model.Event) error {
	for _, ev := range events {
		log.Printf("event: %s entity=%d id=%s", ev.Type, ev.EntityID, ev.ID)
	}
	return nil
}

// publish is called only after the unit of work committed. A failure is
// logged and never reaches the caller; the state change already happened.
func publish(ctx context.Context, p EventPublisher, events []model.Event) {
	if p == nil || len(events) == 0 {
		return
	}
	if err := p.Publish(ctx, events...); err != nil {
		log.Printf("events: publish of %d events failed: %v", len(events), err)
	}
}
