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

// DefaultMaxRetries bounds how often a unit of work is re-run after a
// version conflict.
const DefaultMaxRetries = 3

// ReservationConfig tunes the coordinator.
type ReservationConfig struct {
	CancellationDeadline time.Duration
	MaxRetries           int
	Location             *time.Location
}

// ReservationService coordinates the seat hold on the trip, the
// reservation row and the route counter. The three writes of a booking
// or a cancellation share one transaction, so an ACTIVE reservation
// exists exactly when its seat is held.
type ReservationService struct {
	tx           Transactor
	trips        TripRepository
	reservations ReservationRepository
	routes       RouteRepository
	seats        *SeatAllocationService
	events       EventPublisher
	cfg          ReservationConfig
	now          func() time.Time
}

func NewReservationService(
	tx Transactor,
	trips TripRepository,
	reservations ReservationRepository,
	routes RouteRepository,
	seats *SeatAllocationService,
	events EventPublisher,
	cfg ReservationConfig,
) *ReservationService {
	if cfg.CancellationDeadline <= 0 {
		cfg.CancellationDeadline = model.DefaultCancellationDeadline
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = DefaultMaxRetries
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s := &ReservationService{
		tx:           tx,
		trips:        trips,
		reservations: reservations,
		routes:       routes,
		seats:        seats,
		events:       events,
		cfg:          cfg,
	}
	s.now = func() time.Time { return time.Now().In(s.cfg.Location) }
	return s
}

// SetClock replaces the time source; tests pin it.
func (s *ReservationService) SetClock(now func() time.Time) { s.now = now }

func (s *ReservationService) CancellationDeadline() time.Duration { return s.cfg.CancellationDeadline }

// CreateReservation books seatNumber on tripID for holderID at the
// route's current price.
func (s *ReservationService) CreateReservation(ctx context.Context, holderID, tripID uint64, seatNumber int) (*model.Reservation, error) {
	var (
		res    *model.Reservation
		events []model.Event
	)
	err := s.withRetry(ctx, "create", func(ctx context.Context) error {
		events = nil
		trip, err := s.trips.FindByIDForUpdate(ctx, tripID)
		if errors.Is(err, repository.ErrNotFound) {
			return model.ValidationError{Field: "trip_id", Value: tripID, Msg: "trip not found"}
		}
		if err != nil {
			return fmt.Errorf("load trip %d: %w", tripID, err)
		}
		route, err := s.routes.FindByIDForUpdate(ctx, trip.RouteID)
		if errors.Is(err, repository.ErrNotFound) {
			return model.ValidationError{Field: "route_id", Value: trip.RouteID, Msg: "route not found"}
		}
		if err != nil {
			return fmt.Errorf("load route %d: %w", trip.RouteID, err)
		}
		if !trip.CanAcceptReservations() {
			return model.ValidationError{
				Field: "trip_id",
				Value: tripID,
				Msg:   fmt.Sprintf("trip cannot accept reservations (status %s, %d seats left)", trip.Status(), trip.AvailableSeats()),
			}
		}
		seat, err := model.NewSeatNumber(seatNumber, trip.TotalCapacity())
		if err != nil {
			return err
		}
		if !trip.IsSeatAvailable(seatNumber) {
			return model.SeatNotAvailableError{Seat: seatNumber}
		}
		taken, err := s.reservations.ExistsActive(ctx, tripID, seatNumber)
		if err != nil {
			return fmt.Errorf("check active reservation: %w", err)
		}
		if taken {
			return model.SeatNotAvailableError{Seat: seatNumber}
		}

		seatEvents, err := s.seats.Reserve(ctx, tripID, seatNumber, holderID)
		if err != nil {
			return err
		}
		r, resEvents, err := model.NewReservation(holderID, tripID, seat, route.Price, s.now())
		if err != nil {
			return err
		}
		if err := s.reservations.Create(ctx, r); err != nil {
			return err
		}
		routeEvents := route.RecordBooking()
		if err := s.routes.Update(ctx, route); err != nil {
			return err
		}
		res = r
		events = append(events, seatEvents...)
		events = append(events, model.BindEntity(resEvents, r.ID)...)
		events = append(events, routeEvents...)
		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrSeatNotAvailable) {
			metrics.SeatRejections.Inc()
		}
		return nil, err
	}
	metrics.ReservationsCreated.Inc()
	log.Printf("reservation: %s created (trip=%d seat=%d holder=%d)", res.Code, tripID, seatNumber, holderID)
	publish(ctx, s.events, events)
	return res, nil
}

// CancelReservation cancels an ACTIVE reservation before the deadline
// and frees its seat. holderID restricts the call to the owner; zero
// skips the ownership check.
func (s *ReservationService) CancelReservation(ctx context.Context, reservationID, holderID uint64, reason string) (*model.Reservation, error) {
	var (
		res    *model.Reservation
		events []model.Event
	)
	err := s.withRetry(ctx, "cancel", func(ctx context.Context) error {
		events = nil
		r, err := s.reservations.FindByID(ctx, reservationID)
		if errors.Is(err, repository.ErrNotFound) {
			return model.ValidationError{Field: "reservation_id", Value: reservationID, Msg: "reservation not found"}
		}
		if err != nil {
			return fmt.Errorf("load reservation %d: %w", reservationID, err)
		}
		if holderID != 0 && r.HolderID != holderID {
			return repository.ErrForbidden
		}
		var departure time.Time
		trip, err := s.trips.FindByIDForUpdate(ctx, r.TripID)
		switch {
		case err == nil:
			departure = trip.DepartureAt
		case !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("load trip %d: %w", r.TripID, err)
		}
		now := s.now()
		if err := r.CanBeCancelled(departure, now, s.cfg.CancellationDeadline); err != nil {
			return err
		}
		resEvents, err := r.Cancel(reason, now)
		if err != nil {
			return err
		}
		if err := s.reservations.Update(ctx, r); err != nil {
			return err
		}
		_, seatEvents, err := s.seats.Release(ctx, r.TripID, r.Seat.Number())
		if err != nil {
			return err
		}
		res = r
		events = append(append(events, resEvents...), seatEvents...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.ReservationsCancelled.WithLabelValues("holder").Inc()
	log.Printf("reservation: %s cancelled (trip=%d seat=%d)", res.Code, res.TripID, res.Seat.Number())
	publish(ctx, s.events, events)
	return res, nil
}

// CompleteTripReservations marks every ACTIVE reservation of the trip
// COMPLETED and returns how many changed.
func (s *ReservationService) CompleteTripReservations(ctx context.Context, tripID uint64) (int, error) {
	var (
		n      int
		events []model.Event
	)
	err := s.withRetry(ctx, "complete", func(ctx context.Context) error {
		var err error
		n, events, err = s.completeTripReservations(ctx, tripID)
		return err
	})
	if err != nil {
		return 0, err
	}
	publish(ctx, s.events, events)
	return n, nil
}

// completeTripReservations runs inside the caller's unit of work.
func (s *ReservationService) completeTripReservations(ctx context.Context, tripID uint64) (int, []model.Event, error) {
	active, err := s.reservations.FindActiveByTrip(ctx, tripID)
	if err != nil {
		return 0, nil, fmt.Errorf("active reservations of trip %d: %w", tripID, err)
	}
	now := s.now()
	var events []model.Event
	for _, r := range active {
		evs, err := r.Complete(now)
		if err != nil {
			return 0, nil, err
		}
		if err := s.reservations.Update(ctx, r); err != nil {
			return 0, nil, err
		}
		events = append(events, evs...)
	}
	metrics.ReservationsCompleted.Add(float64(len(active)))
	return len(active), events, nil
}

// cancelTripReservations cancels every ACTIVE reservation of a trip that
// is itself being cancelled. The deadline does not apply and seats are
// left alone because the trip clears them in the same unit of work.
func (s *ReservationService) cancelTripReservations(ctx context.Context, tripID uint64, reason string) (int, []model.Event, error) {
	active, err := s.reservations.FindActiveByTrip(ctx, tripID)
	if err != nil {
		return 0, nil, fmt.Errorf("active reservations of trip %d: %w", tripID, err)
	}
	now := s.now()
	var events []model.Event
	for _, r := range active {
		evs, err := r.Cancel(reason, now)
		if err != nil {
			return 0, nil, err
		}
		if err := s.reservations.Update(ctx, r); err != nil {
			return 0, nil, err
		}
		events = append(events, evs...)
	}
	metrics.ReservationsCancelled.WithLabelValues("trip").Add(float64(len(active)))
	return len(active), events, nil
}

// ExpireStaleReservations moves ACTIVE reservations whose trip departed
// before cutoff to EXPIRED. Seats stay as they are. Each reservation is
// its own unit of work; one that lost a race is skipped and picked up by
// the next sweep.
func (s *ReservationService) ExpireStaleReservations(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := s.reservations.FindActiveDepartedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find stale reservations: %w", err)
	}
	expired := 0
	for _, candidate := range stale {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		var events []model.Event
		err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
			r, err := s.reservations.FindByID(ctx, candidate.ID)
			if err != nil {
				return err
			}
			ok, evs := r.Expire(s.now())
			if !ok {
				return nil
			}
			if err := s.reservations.Update(ctx, r); err != nil {
				return err
			}
			events = evs
			return nil
		})
		if errors.Is(err, repository.ErrConflict) {
			log.Printf("reservation: expire %d skipped: %v", candidate.ID, err)
			continue
		}
		if err != nil {
			return expired, fmt.Errorf("expire reservation %d: %w", candidate.ID, err)
		}
		if len(events) > 0 {
			expired++
			publish(ctx, s.events, events)
		}
	}
	metrics.ReservationsExpired.Add(float64(expired))
	return expired, nil
}

func (s *ReservationService) GetReservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	r, err := s.reservations.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NotFoundError{Entity: "reservation", ID: id}
	}
	return r, err
}

func (s *ReservationService) GetByCode(ctx context.Context, code string) (*model.Reservation, error) {
	r, err := s.reservations.FindByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NotFoundError{Entity: "reservation", ID: code}
	}
	return r, err
}

func (s *ReservationService) ListHolderReservations(ctx context.Context, holderID uint64) ([]*model.Reservation, error) {
	return s.reservations.FindByHolder(ctx, holderID)
}

// withRetry runs fn in a fresh transaction and re-runs it while the
// commit reports a version conflict, up to MaxRetries extra attempts.
func (s *ReservationService) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return runWithRetry(ctx, s.tx, s.cfg.MaxRetries, op, fn)
}

func runWithRetry(ctx context.Context, tx Transactor, maxRetries int, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = tx.WithinTransaction(ctx, fn)
		if !errors.Is(err, repository.ErrConflict) {
			return err
		}
		metrics.TransactionRetries.WithLabelValues(op).Inc()
		log.Printf("reservation: %s conflict on attempt %d/%d: %v", op, attempt+1, maxRetries+1, err)
	}
	return err
}
