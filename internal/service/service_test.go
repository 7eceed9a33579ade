package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/bus-seat-reservation/internal/model"
	"github.com/iliyamo/bus-seat-reservation/internal/repository"
	"github.com/iliyamo/bus-seat-reservation/internal/repository/memstore"
)

var lima = time.FixedZone("America/Lima", -5*60*60)

// recordingPublisher keeps every event it is handed. onPublish, when
// set, runs before recording so tests can inspect committed state.
type recordingPublisher struct {
	mu        sync.Mutex
	events    []model.Event
	err       error
	onPublish func(events []model.Event)
}

func (p *recordingPublisher) Publish(_ context.Context, events ...model.Event) error {
	if p.onPublish != nil {
		p.onPublish(events)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

type fixture struct {
	store *memstore.Store
	seats *SeatAllocationService
	res   *ReservationService
	sched *TripScheduler
	pub   *recordingPublisher
	route *model.Route
	bus   *model.Bus
	trip  *model.TripInventory
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, nil)
}

// newFixtureWith builds the services over a fresh store with one route,
// one 40-seat bus and one trip departing two days from the pinned clock.
// wrap, when given, decorates the reservation repository.
func newFixtureWith(t *testing.T, wrap func(ReservationRepository) ReservationRepository) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store: memstore.New(),
		pub:   &recordingPublisher{},
		now:   time.Date(2025, 3, 1, 9, 0, 0, 0, lima),
	}
	price, err := model.NewMoney("45.50", "PEN")
	require.NoError(t, err)
	f.route = &model.Route{CompanyID: 1, Origin: "Lima", Destination: "Arequipa", Price: price, Status: model.RouteActive}
	require.NoError(t, f.store.Routes().Create(ctx, f.route))
	f.bus = &model.Bus{CompanyID: 1, PlateNumber: "ABC-123", Capacity: 40, Status: model.BusActive}
	require.NoError(t, f.store.Buses().Create(ctx, f.bus))

	var reservations ReservationRepository = f.store.Reservations()
	if wrap != nil {
		reservations = wrap(reservations)
	}
	f.seats = NewSeatAllocationService(f.store.Trips(), DefaultSeatLayout)
	f.res = NewReservationService(f.store, f.store.Trips(), reservations, f.store.Routes(), f.seats, f.pub,
		ReservationConfig{Location: lima})
	f.res.SetClock(func() time.Time { return f.now })
	f.sched = NewTripScheduler(f.store, f.store.Trips(), f.store.Routes(), f.store.Buses(), f.seats, f.res, f.pub, lima)
	f.sched.SetClock(func() time.Time { return f.now })

	dep := f.now.Add(48 * time.Hour)
	f.trip, err = f.sched.CreateTrip(ctx, CreateTripInput{
		RouteID: f.route.ID, BusID: f.bus.ID, DepartureAt: dep, ArrivalAt: dep.Add(16 * time.Hour),
	})
	require.NoError(t, err)
	f.pub.reset()
	return f
}

func (f *fixture) loadTrip(t *testing.T) *model.TripInventory {
	t.Helper()
	trip, err := f.store.Trips().FindByID(context.Background(), f.trip.ID)
	require.NoError(t, err)
	return trip
}

func (f *fixture) loadRoute(t *testing.T) *model.Route {
	t.Helper()
	rt, err := f.store.Routes().FindByID(context.Background(), f.route.ID)
	require.NoError(t, err)
	return rt
}

func TestCreateReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.res.CreateReservation(ctx, 11, f.trip.ID, 7)
	require.NoError(t, err)
	assert.NotZero(t, res.ID)
	assert.Equal(t, model.ReservationActive, res.Status())
	assert.Equal(t, 7, res.Seat.Number())
	assert.Equal(t, int64(4550), res.Price.Cents())
	assert.Regexp(t, `^RES\d+[A-Z0-9]{4}$`, res.Code)

	trip := f.loadTrip(t)
	assert.True(t, trip.IsReserved(7))
	assert.Equal(t, 39, trip.AvailableSeats())
	assert.Equal(t, 1, f.loadRoute(t).TotalBookings)
	assert.Equal(t, []string{
		model.EventTripSeatReserved,
		model.EventReservationCreated,
		model.EventRouteBookingRecorded,
	}, f.pub.types())

	byCode, err := f.res.GetByCode(ctx, res.Code)
	require.NoError(t, err)
	assert.Equal(t, res.ID, byCode.ID)
}

func TestCreateReservationRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.res.CreateReservation(ctx, 1, f.trip.ID, 5)
	require.NoError(t, err)

	_, err = f.res.CreateReservation(ctx, 2, f.trip.ID, 5)
	var seatErr model.SeatNotAvailableError
	require.ErrorAs(t, err, &seatErr)
	assert.Equal(t, 5, seatErr.Seat)

	_, err = f.res.CreateReservation(ctx, 2, f.trip.ID, 41)
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = f.res.CreateReservation(ctx, 2, f.trip.ID, 0)
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = f.res.CreateReservation(ctx, 2, 999, 1)
	assert.ErrorIs(t, err, model.ErrValidation)

	assert.Equal(t, 1, f.loadRoute(t).TotalBookings)
	assert.Equal(t, 39, f.loadTrip(t).AvailableSeats())
}

func TestCreateReservationOnCancelledTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.sched.CancelTrip(ctx, f.trip.ID, "weather")
	require.NoError(t, err)

	_, err = f.res.CreateReservation(ctx, 1, f.trip.ID, 1)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestConcurrentBookingsOfOneSeat(t *testing.T) {
	f := newFixture(t)
	const n = 10

	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		errs      = make([]error, n)
		successes = make([]*model.Reservation, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			successes[i], errs[i] = f.res.CreateReservation(context.Background(), uint64(100+i), f.trip.ID, 7)
		}(i)
	}
	close(start)
	wg.Wait()

	won, rejected := 0, 0
	for i := range errs {
		switch {
		case errs[i] == nil:
			won++
		case errors.Is(errs[i], model.ErrSeatNotAvailable):
			rejected++
		default:
			t.Errorf("goroutine %d: unexpected error %v", i, errs[i])
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, n-1, rejected)

	trip := f.loadTrip(t)
	assert.Equal(t, 39, trip.AvailableSeats())
	assert.Equal(t, []int{7}, trip.ReservedSeats())
	active, err := f.store.Reservations().FindActiveByTrip(context.Background(), f.trip.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	assert.Equal(t, 1, f.loadRoute(t).TotalBookings)
}

// failingReservations fails Create after the seat hold was already
// written in the same unit of work.
type failingReservations struct {
	ReservationRepository
	err error
}

func (r failingReservations) Create(context.Context, *model.Reservation) error { return r.err }

func TestFailedCreateLeavesNothingBehind(t *testing.T) {
	boom := errors.New("disk full")
	f := newFixtureWith(t, func(inner ReservationRepository) ReservationRepository {
		return failingReservations{ReservationRepository: inner, err: boom}
	})
	before := f.loadTrip(t)

	_, err := f.res.CreateReservation(context.Background(), 1, f.trip.ID, 3)
	require.ErrorIs(t, err, boom)

	after := f.loadTrip(t)
	assert.True(t, after.IsSeatAvailable(3))
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, 40, after.AvailableSeats())
	assert.Zero(t, f.loadRoute(t).TotalBookings)
	assert.Empty(t, f.pub.types())
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	f := newFixture(t)
	var seen []bool
	f.pub.onPublish = func(events []model.Event) {
		for _, ev := range events {
			if ev.Type != model.EventReservationCreated {
				continue
			}
			_, err := f.store.Reservations().FindByID(context.Background(), ev.EntityID)
			seen = append(seen, err == nil)
		}
	}

	_, err := f.res.CreateReservation(context.Background(), 1, f.trip.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, seen)
}

func TestPublishFailureDoesNotFailBooking(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker down")

	res, err := f.res.CreateReservation(context.Background(), 1, f.trip.ID, 2)
	require.NoError(t, err)
	assert.True(t, res.IsActive())
}

func TestCancelReservationDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dep := f.trip.DepartureAt

	early, err := f.res.CreateReservation(ctx, 1, f.trip.ID, 1)
	require.NoError(t, err)
	late, err := f.res.CreateReservation(ctx, 1, f.trip.ID, 2)
	require.NoError(t, err)

	f.now = dep.Add(-4*time.Hour - time.Second)
	cancelled, err := f.res.CancelReservation(ctx, early.ID, 1, "plans changed")
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCancelled, cancelled.Status())
	assert.Equal(t, "plans changed", cancelled.CancellationReason)
	assert.True(t, f.loadTrip(t).IsSeatAvailable(1))

	f.now = dep.Add(-4*time.Hour + time.Second)
	_, err = f.res.CancelReservation(ctx, late.ID, 1, "")
	assert.ErrorIs(t, err, model.ErrReservationNotCancellable)
	assert.True(t, f.loadTrip(t).IsReserved(2))
}

func TestCancelReservationRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.res.CreateReservation(ctx, 1, f.trip.ID, 9)
	require.NoError(t, err)

	_, err = f.res.CancelReservation(ctx, res.ID, 2, "")
	assert.ErrorIs(t, err, repository.ErrForbidden)

	_, err = f.res.CancelReservation(ctx, 999, 1, "")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.res.CancelReservation(ctx, res.ID, 1, "")
	require.NoError(t, err)
	_, err = f.res.CancelReservation(ctx, res.ID, 1, "")
	assert.ErrorIs(t, err, model.ErrReservationNotCancellable)

	again, err := f.res.CreateReservation(ctx, 3, f.trip.ID, 9)
	require.NoError(t, err, "seat is bookable again after cancellation")
	assert.NotEqual(t, res.ID, again.ID)
}

func TestExpireStaleReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.res.CreateReservation(ctx, 1, f.trip.ID, 4)
	require.NoError(t, err)

	n, err := f.res.ExpireStaleReservations(ctx, f.trip.DepartureAt.Add(-time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)

	f.pub.reset()
	n, err = f.res.ExpireStaleReservations(ctx, f.trip.DepartureAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := f.res.GetReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationExpired, got.Status())
	assert.Equal(t, []string{model.EventReservationExpired}, f.pub.types())
}

// conflictingTx reports a lost update on every commit.
type conflictingTx struct{ calls int }

func (c *conflictingTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	c.calls++
	return repository.ErrConflict
}

func TestRetryBudget(t *testing.T) {
	store := memstore.New()
	seats := NewSeatAllocationService(store.Trips(), DefaultSeatLayout)
	tx := &conflictingTx{}
	svc := NewReservationService(tx, store.Trips(), store.Reservations(), store.Routes(), seats, nil,
		ReservationConfig{MaxRetries: 2})

	_, err := svc.CreateReservation(context.Background(), 1, 1, 1)
	assert.ErrorIs(t, err, repository.ErrConflict)
	assert.Equal(t, 3, tx.calls)

	tx.calls = 0
	svc = NewReservationService(tx, store.Trips(), store.Reservations(), store.Routes(), seats, nil,
		ReservationConfig{MaxRetries: -1})
	_, err = svc.CreateReservation(context.Background(), 1, 1, 1)
	assert.ErrorIs(t, err, repository.ErrConflict)
	assert.Equal(t, 1, tx.calls)

	svc = NewReservationService(tx, store.Trips(), store.Reservations(), store.Routes(), seats, nil, ReservationConfig{})
	assert.Equal(t, model.DefaultCancellationDeadline, svc.CancellationDeadline())
}
