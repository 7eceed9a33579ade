package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/iliyamo/bus-seat-reservation/internal/metrics"
	"github.com/iliyamo/bus-seat-reservation/internal/model"
	"github.com/iliyamo/bus-seat-reservation/internal/repository"
)

// CreateTripInput describes a trip to schedule. Capacity zero takes the
// bus capacity.
type CreateTripInput struct {
	RouteID     uint64
	BusID       uint64
	DepartureAt time.Time
	ArrivalAt   time.Time
	Capacity    int
}

// TripScheduler owns the trip lifecycle: scheduling with bus conflict
// detection, rescheduling, start, completion, cancellation and boarding.
type TripScheduler struct {
	tx           Transactor
	trips        TripRepository
	routes       RouteRepository
	buses        BusRepository
	seats        *SeatAllocationService
	reservations *ReservationService
	events       EventPublisher
	maxRetries   int
	loc          *time.Location
	now          func() time.Time
}

func NewTripScheduler(
	tx Transactor,
	trips TripRepository,
	routes RouteRepository,
	buses BusRepository,
	seats *SeatAllocationService,
	reservations *ReservationService,
	events EventPublisher,
	loc *time.Location,
) *TripScheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &TripScheduler{
		tx:           tx,
		trips:        trips,
		routes:       routes,
		buses:        buses,
		seats:        seats,
		reservations: reservations,
		events:       events,
		maxRetries:   reservations.cfg.MaxRetries,
		loc:          loc,
		now:          func() time.Time { return time.Now().In(loc) },
	}
}

// SetClock replaces the time source; tests pin it.
func (s *TripScheduler) SetClock(now func() time.Time) { s.now = now }

func (s *TripScheduler) Location() *time.Location { return s.loc }

// ParseTripTimes combines a travel date with departure and arrival clock
// times ("15:04") in loc. An arrival earlier on the clock than the
// departure lands on the next day.
func ParseTripTimes(date, departure, arrival string, loc *time.Location) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(time.DateOnly, date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, model.ValidationError{Field: "date", Value: date, Msg: "expected YYYY-MM-DD"}
	}
	dep, err := clockOn(day, departure, loc)
	if err != nil {
		return time.Time{}, time.Time{}, model.ValidationError{Field: "departure_time", Value: departure, Msg: "expected HH:MM"}
	}
	arr, err := clockOn(day, arrival, loc)
	if err != nil {
		return time.Time{}, time.Time{}, model.ValidationError{Field: "arrival_time", Value: arrival, Msg: "expected HH:MM"}
	}
	if arr.Before(dep) {
		arr = arr.AddDate(0, 0, 1)
	}
	return dep, arr, nil
}

func clockOn(day time.Time, clock string, loc *time.Location) (time.Time, error) {
	c, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour(), c.Minute(), 0, 0, loc), nil
}

// CreateTrip schedules a new SCHEDULED trip. An inactive bus is reported
// as not found; a bus already on the road in the slot fails with
// ScheduleConflictError naming the first clash.
func (s *TripScheduler) CreateTrip(ctx context.Context, in CreateTripInput) (*model.TripInventory, error) {
	dep, arr := in.DepartureAt.In(s.loc), in.ArrivalAt.In(s.loc)
	var (
		trip   *model.TripInventory
		events []model.Event
	)
	err := runWithRetry(ctx, s.tx, s.maxRetries, "schedule", func(ctx context.Context) error {
		events = nil
		if _, err := s.routes.FindByID(ctx, in.RouteID); err != nil {
			return notFound(err, "route", in.RouteID)
		}
		bus, err := s.buses.FindByIDForUpdate(ctx, in.BusID)
		if err != nil {
			return notFound(err, "bus", in.BusID)
		}
		if !bus.IsActive() {
			return model.NotFoundError{Entity: "bus", ID: in.BusID}
		}
		capacity := in.Capacity
		if capacity == 0 {
			capacity = bus.SeatCapacity()
		}
		if capacity > bus.SeatCapacity() {
			return model.ValidationError{
				Field: "capacity",
				Value: capacity,
				Msg:   fmt.Sprintf("bus %d seats only %d", bus.ID, bus.SeatCapacity()),
			}
		}
		if err := s.checkConflicts(ctx, in.BusID, dep, arr, 0); err != nil {
			return err
		}
		t, evs, err := model.NewTrip(model.NewTripParams{
			RouteID:     in.RouteID,
			BusID:       in.BusID,
			DepartureAt: dep,
			ArrivalAt:   arr,
			Capacity:    capacity,
		})
		if err != nil {
			return err
		}
		if err := s.trips.Create(ctx, t); err != nil {
			return fmt.Errorf("create trip: %w", err)
		}
		trip = t
		events = model.BindEntity(evs, t.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.TripTransitions.WithLabelValues(string(model.TripScheduled)).Inc()
	log.Printf("schedule: trip %d created (bus=%d route=%d %s)", trip.ID, trip.BusID, trip.RouteID, trip.DepartureAt.Format(time.RFC3339))
	publish(ctx, s.events, events)
	return trip, nil
}

// RescheduleTrip moves a SCHEDULED trip. The conflict check ignores the
// trip itself.
func (s *TripScheduler) RescheduleTrip(ctx context.Context, tripID uint64, departure, arrival time.Time) (*model.TripInventory, error) {
	dep, arr := departure.In(s.loc), arrival.In(s.loc)
	return s.mutate(ctx, "reschedule", tripID, func(ctx context.Context, t *model.TripInventory) ([]model.Event, error) {
		if t.Status() != model.TripScheduled {
			return nil, model.InvalidStateError{Entity: "trip", Current: string(t.Status()), Required: string(model.TripScheduled)}
		}
		if _, err := s.buses.FindByIDForUpdate(ctx, t.BusID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("lock bus %d: %w", t.BusID, err)
		}
		if err := s.checkConflicts(ctx, t.BusID, dep, arr, t.ID); err != nil {
			return nil, err
		}
		return t.Reschedule(dep, arr)
	})
}

// StartTrip records the departure; a nil actual time means now.
func (s *TripScheduler) StartTrip(ctx context.Context, tripID uint64, actual *time.Time) (*model.TripInventory, error) {
	at := s.at(actual)
	trip, err := s.mutate(ctx, "start", tripID, func(_ context.Context, t *model.TripInventory) ([]model.Event, error) {
		return t.Start(at)
	})
	if err == nil {
		metrics.TripTransitions.WithLabelValues(string(model.TripInProgress)).Inc()
	}
	return trip, err
}

// CompleteTrip records the arrival and completes every ACTIVE
// reservation of the trip in the same unit of work.
func (s *TripScheduler) CompleteTrip(ctx context.Context, tripID uint64, actual *time.Time) (*model.TripInventory, int, error) {
	at := s.at(actual)
	var completed int
	trip, err := s.mutate(ctx, "complete", tripID, func(ctx context.Context, t *model.TripInventory) ([]model.Event, error) {
		events, err := t.Complete(at)
		if err != nil {
			return nil, err
		}
		if err := s.trips.Update(ctx, t); err != nil {
			return nil, err
		}
		n, resEvents, err := s.reservations.completeTripReservations(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		completed = n
		return append(events, resEvents...), errAlreadySaved
	})
	if err != nil {
		return nil, 0, err
	}
	metrics.TripTransitions.WithLabelValues(string(model.TripCompleted)).Inc()
	return trip, completed, nil
}

// CancelTrip cancels the trip, frees all of its seats and cancels every
// ACTIVE reservation on it with the same reason.
func (s *TripScheduler) CancelTrip(ctx context.Context, tripID uint64, reason string) (*model.TripInventory, model.CancellationSummary, error) {
	var (
		summary   model.CancellationSummary
		cancelled int
	)
	trip, err := s.mutate(ctx, "cancel", tripID, func(ctx context.Context, t *model.TripInventory) ([]model.Event, error) {
		sum, events, err := t.Cancel(reason)
		if err != nil {
			return nil, err
		}
		if err := s.trips.Update(ctx, t); err != nil {
			return nil, err
		}
		n, resEvents, err := s.reservations.cancelTripReservations(ctx, t.ID, reason)
		if err != nil {
			return nil, err
		}
		summary, cancelled = sum, n
		return append(events, resEvents...), errAlreadySaved
	})
	if err != nil {
		return nil, model.CancellationSummary{}, err
	}
	metrics.TripTransitions.WithLabelValues(string(model.TripCancelled)).Inc()
	log.Printf("schedule: trip %d cancelled, %d reservations cancelled (%d reserved, %d occupied seats freed)",
		tripID, cancelled, summary.ReservedReleased, summary.OccupiedReleased)
	return trip, summary, nil
}

// CheckIn boards the holder of an ACTIVE reservation on seat.
func (s *TripScheduler) CheckIn(ctx context.Context, tripID uint64, seat int) (*model.Reservation, error) {
	var (
		res    *model.Reservation
		events []model.Event
	)
	err := runWithRetry(ctx, s.tx, s.maxRetries, "check-in", func(ctx context.Context) error {
		events = nil
		active, err := s.reservations.reservations.FindActiveByTrip(ctx, tripID)
		if err != nil {
			return fmt.Errorf("active reservations of trip %d: %w", tripID, err)
		}
		res = nil
		for _, r := range active {
			if r.Seat.Number() == seat {
				res = r
				break
			}
		}
		if res == nil {
			return model.NotFoundError{Entity: "active reservation for seat", ID: seat}
		}
		events, err = s.seats.Occupy(ctx, tripID, seat)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Printf("schedule: %s checked in (trip=%d seat=%d)", res.Code, tripID, seat)
	publish(ctx, s.events, events)
	return res, nil
}

func (s *TripScheduler) GetTrip(ctx context.Context, tripID uint64) (*model.TripInventory, error) {
	t, err := s.trips.FindByID(ctx, tripID)
	if err != nil {
		return nil, notFound(err, "trip", tripID)
	}
	return t, nil
}

// SearchTrips lists the trips of a route on a date. availableOnly keeps
// the ones still taking reservations.
func (s *TripScheduler) SearchTrips(ctx context.Context, routeID uint64, date string, availableOnly bool) ([]*model.TripInventory, error) {
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return nil, model.ValidationError{Field: "date", Value: date, Msg: "expected YYYY-MM-DD"}
	}
	trips, err := s.trips.FindByRouteAndDate(ctx, routeID, date)
	if err != nil || !availableOnly {
		return trips, err
	}
	out := trips[:0]
	for _, t := range trips {
		if t.CanAcceptReservations() {
			out = append(out, t)
		}
	}
	return out, nil
}

// RouteAvailability is one route search hit with its bookable trips.
type RouteAvailability struct {
	Route *model.Route
	Trips []*model.TripInventory
}

// SearchRoutes looks up ACTIVE routes by origin and destination fragments
// and keeps those with a trip on date that still takes reservations and
// has at least minSeats free. Routes are ordered by popularity.
func (s *TripScheduler) SearchRoutes(ctx context.Context, origin, destination, date string, minSeats int) ([]RouteAvailability, error) {
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return nil, model.ValidationError{Field: "date", Value: date, Msg: "expected YYYY-MM-DD"}
	}
	if minSeats < 1 {
		minSeats = 1
	}
	routes, err := s.routes.Search(ctx, origin, destination)
	if err != nil {
		return nil, fmt.Errorf("search routes: %w", err)
	}
	out := []RouteAvailability{}
	for _, rt := range routes {
		trips, err := s.trips.FindByRouteAndDate(ctx, rt.ID, date)
		if err != nil {
			return nil, fmt.Errorf("trips of route %d: %w", rt.ID, err)
		}
		var open []*model.TripInventory
		for _, t := range trips {
			if t.CanAcceptReservations() && t.AvailableSeats() >= minSeats {
				open = append(open, t)
			}
		}
		if len(open) > 0 {
			out = append(out, RouteAvailability{Route: rt, Trips: open})
		}
	}
	return out, nil
}

func (s *TripScheduler) ListByStatus(ctx context.Context, status model.TripStatus) ([]*model.TripInventory, error) {
	return s.trips.FindByStatus(ctx, status)
}

func (s *TripScheduler) checkConflicts(ctx context.Context, busID uint64, dep, arr time.Time, excludeID uint64) error {
	conflicts, err := s.trips.FindConflicting(ctx, busID, dep, arr, excludeID)
	if err != nil {
		return fmt.Errorf("conflict check for bus %d: %w", busID, err)
	}
	if len(conflicts) > 0 {
		return model.ScheduleConflictError{BusID: busID, ConflictingTripID: conflicts[0].ID}
	}
	return nil
}

// errAlreadySaved tells mutate that fn persisted the trip itself.
var errAlreadySaved = errors.New("trip already saved")

// mutate loads the trip for update, applies fn and saves the trip unless
// fn did, all in one retried unit of work. Events go out after commit.
func (s *TripScheduler) mutate(ctx context.Context, op string, tripID uint64,
	fn func(ctx context.Context, t *model.TripInventory) ([]model.Event, error)) (*model.TripInventory, error) {
	var (
		trip   *model.TripInventory
		events []model.Event
	)
	err := runWithRetry(ctx, s.tx, s.maxRetries, op, func(ctx context.Context) error {
		t, err := s.trips.FindByIDForUpdate(ctx, tripID)
		if err != nil {
			return notFound(err, "trip", tripID)
		}
		evs, err := fn(ctx, t)
		switch {
		case errors.Is(err, errAlreadySaved):
		case err != nil:
			return err
		case len(evs) > 0:
			if err := s.trips.Update(ctx, t); err != nil {
				return err
			}
		}
		trip, events = t, evs
		return nil
	})
	if err != nil {
		return nil, err
	}
	publish(ctx, s.events, events)
	return trip, nil
}

func (s *TripScheduler) at(actual *time.Time) time.Time {
	if actual != nil {
		return actual.In(s.loc)
	}
	return s.now()
}

// notFound turns repository.ErrNotFound into the domain error for entity
// and wraps anything else.
func notFound(err error, entity string, id any) error {
	if errors.Is(err, repository.ErrNotFound) {
		return model.NotFoundError{Entity: entity, ID: id}
	}
	return fmt.Errorf("load %s %v: %w", entity, id, err)
}
