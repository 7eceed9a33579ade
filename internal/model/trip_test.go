package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lima = time.FixedZone("America/Lima", -5*60*60)

func newTestTrip(t *testing.T, capacity int) *TripInventory {
	t.Helper()
	dep := time.Date(2025, 1, 10, 8, 0, 0, 0, lima)
	trip, events, err := NewTrip(NewTripParams{
		RouteID:     1,
		BusID:       2,
		DepartureAt: dep,
		ArrivalAt:   dep.Add(8 * time.Hour),
		Capacity:    capacity,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventTripCreated, events[0].Type)
	return trip
}

func assertSeatInvariant(t *testing.T, trip *TripInventory) {
	t.Helper()
	st := trip.State()
	assert.False(t, st.Occupied.Intersects(st.Reserved), "occupied and reserved overlap")
	assert.Equal(t, trip.TotalCapacity(), trip.AvailableSeats()+st.Occupied.Len()+st.Reserved.Len())
}

func TestNewTripStartsEmpty(t *testing.T) {
	trip := newTestTrip(t, 40)
	assert.Equal(t, TripScheduled, trip.Status())
	assert.Equal(t, 40, trip.AvailableSeats())
	assert.Equal(t, "2025-01-10", trip.Date)
	assert.Len(t, trip.AvailableSeatNumbers(), 40)
	assert.True(t, trip.CanAcceptReservations())
	assertSeatInvariant(t, trip)
}

func TestNewTripValidation(t *testing.T) {
	dep := time.Date(2025, 1, 10, 8, 0, 0, 0, lima)
	_, _, err := NewTrip(NewTripParams{DepartureAt: dep, ArrivalAt: dep, Capacity: 40})
	assert.ErrorIs(t, err, ErrValidation)
	_, _, err = NewTrip(NewTripParams{DepartureAt: dep, ArrivalAt: dep.Add(time.Hour), Capacity: 61})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestReserveReleaseRoundTrip(t *testing.T) {
	trip := newTestTrip(t, 40)

	events, err := trip.Reserve(5)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventTripSeatReserved, events[0].Type)
	assert.Equal(t, 39, trip.AvailableSeats())
	assert.False(t, trip.IsSeatAvailable(5))
	assertSeatInvariant(t, trip)

	_, err = trip.Reserve(5)
	assert.ErrorIs(t, err, ErrSeatNotAvailable)

	events = trip.Release(5)
	require.Len(t, events, 1)
	assert.Equal(t, 40, trip.AvailableSeats())
	assert.False(t, trip.IsReserved(5))
	assert.False(t, trip.IsOccupied(5))
	assertSeatInvariant(t, trip)
}

func TestReleaseFreeSeatIsNoop(t *testing.T) {
	trip := newTestTrip(t, 40)
	assert.Empty(t, trip.Release(9))
	assert.Equal(t, 40, trip.AvailableSeats())
	assert.Empty(t, trip.Release(9))
	assert.Equal(t, 40, trip.AvailableSeats())
}

func TestReserveOutOfBounds(t *testing.T) {
	trip := newTestTrip(t, 10)
	_, err := trip.Reserve(0)
	assert.ErrorIs(t, err, ErrSeatNotAvailable)
	_, err = trip.Reserve(11)
	assert.ErrorIs(t, err, ErrSeatNotAvailable)
	assert.Equal(t, 10, trip.AvailableSeats())
}

func TestReserveRequiresScheduled(t *testing.T) {
	trip := newTestTrip(t, 10)
	_, err := trip.Start(trip.DepartureAt)
	require.NoError(t, err)

	_, err = trip.Reserve(1)
	assert.ErrorIs(t, err, ErrInvalidEntityState)
}

func TestReserveFullTrip(t *testing.T) {
	trip := newTestTrip(t, 2)
	_, err := trip.Reserve(1)
	require.NoError(t, err)
	_, err = trip.Reserve(2)
	require.NoError(t, err)
	assert.True(t, trip.IsFull())
	assert.False(t, trip.CanAcceptReservations())
	assert.Equal(t, float64(100), trip.OccupancyRate())
}

func TestOccupy(t *testing.T) {
	trip := newTestTrip(t, 40)
	_, err := trip.Reserve(3)
	require.NoError(t, err)

	events, err := trip.Occupy(3)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, trip.IsOccupied(3))
	assert.False(t, trip.IsReserved(3))
	assert.Equal(t, 39, trip.AvailableSeats(), "promotion keeps counts")

	events, err = trip.Occupy(3)
	require.NoError(t, err)
	assert.Empty(t, events, "already occupied")
	assert.Equal(t, 39, trip.AvailableSeats())

	_, err = trip.Occupy(4)
	require.NoError(t, err)
	assert.Equal(t, 38, trip.AvailableSeats())
	assertSeatInvariant(t, trip)

	_, err = trip.Occupy(41)
	assert.ErrorIs(t, err, ErrSeatNotAvailable)

	trip.Release(3)
	assert.Equal(t, 39, trip.AvailableSeats())
	assertSeatInvariant(t, trip)
}

func TestTripLifecycle(t *testing.T) {
	trip := newTestTrip(t, 40)

	_, err := trip.Complete(trip.ArrivalAt)
	assert.ErrorIs(t, err, ErrInvalidEntityState)

	_, err = trip.Start(trip.DepartureAt.Add(5 * time.Minute))
	require.NoError(t, err)
	require.NotNil(t, trip.ActualDeparture())
	assert.Equal(t, TripInProgress, trip.Status())

	_, err = trip.Start(trip.DepartureAt)
	assert.ErrorIs(t, err, ErrInvalidEntityState)

	events, err := trip.Complete(trip.ArrivalAt)
	require.NoError(t, err)
	assert.Equal(t, EventTripCompleted, events[0].Type)
	assert.Equal(t, TripCompleted, trip.Status())
	assert.True(t, trip.Status().IsTerminal())

	_, _, err = trip.Cancel("late")
	assert.ErrorIs(t, err, ErrInvalidEntityState)
}

func TestCancelClearsHolds(t *testing.T) {
	trip := newTestTrip(t, 40)
	for _, s := range []int{1, 2, 3} {
		_, err := trip.Reserve(s)
		require.NoError(t, err)
	}
	_, err := trip.Occupy(10)
	require.NoError(t, err)

	sum, events, err := trip.Cancel("bus broke down")
	require.NoError(t, err)
	assert.Equal(t, CancellationSummary{ReservedReleased: 3, OccupiedReleased: 1}, sum)
	require.Len(t, events, 1)
	assert.Equal(t, 3, events[0].Data["affected_reservations"])
	assert.Equal(t, TripCancelled, trip.Status())
	assert.Equal(t, 40, trip.AvailableSeats())
	assert.Empty(t, trip.ReservedSeats())
	assert.Empty(t, trip.OccupiedSeats())

	_, _, err = trip.Cancel("again")
	assert.ErrorIs(t, err, ErrInvalidEntityState)
	_, err = trip.Occupy(1)
	assert.ErrorIs(t, err, ErrInvalidEntityState)
}

func TestReschedule(t *testing.T) {
	trip := newTestTrip(t, 40)
	dep := trip.DepartureAt.Add(24 * time.Hour)

	events, err := trip.Reschedule(dep, dep.Add(6*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "2025-01-11", trip.Date)

	events, err = trip.Reschedule(dep, dep.Add(6*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = trip.Reschedule(dep, dep.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRestoreTripRejectsBrokenState(t *testing.T) {
	trip := newTestTrip(t, 10)
	_, err := trip.Reserve(2)
	require.NoError(t, err)

	st := trip.State()
	restored, err := RestoreTrip(st)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, restored.ReservedSeats())

	bad := trip.State()
	bad.AvailableSeats = 10
	_, err = RestoreTrip(bad)
	assert.Error(t, err)

	bad = trip.State()
	bad.Occupied.Add(2)
	bad.AvailableSeats = 8
	_, err = RestoreTrip(bad)
	assert.Error(t, err)
}

func TestStateIsACopy(t *testing.T) {
	trip := newTestTrip(t, 10)
	st := trip.State()
	st.Reserved.Add(1)
	assert.True(t, trip.IsSeatAvailable(1))

	c := trip.Clone()
	_, err := c.Reserve(1)
	require.NoError(t, err)
	assert.True(t, trip.IsSeatAvailable(1))
}

func TestOverlaps(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2025, 1, 10, h, 0, 0, 0, lima) }
	exDep, exArr := at(8), at(16)

	assert.True(t, Overlaps(exDep, exArr, at(15), at(20)), "start inside")
	assert.True(t, Overlaps(exDep, exArr, at(7), at(9)), "end inside")
	assert.True(t, Overlaps(exDep, exArr, at(6), at(17)), "encloses")
	assert.True(t, Overlaps(exDep, exArr, at(9), at(10)), "enclosed")
	assert.True(t, Overlaps(exDep, exArr, at(8), at(16)), "identical")
	assert.False(t, Overlaps(exDep, exArr, at(16), at(18)), "back-to-back after")
	assert.False(t, Overlaps(exDep, exArr, at(5), at(8)), "back-to-back before")
}

func TestTripStatusTransitions(t *testing.T) {
	assert.True(t, TripScheduled.CanTransitionTo(TripInProgress))
	assert.True(t, TripScheduled.CanTransitionTo(TripCancelled))
	assert.False(t, TripScheduled.CanTransitionTo(TripCompleted))
	assert.True(t, TripInProgress.CanTransitionTo(TripCancelled))
	assert.False(t, TripCancelled.CanTransitionTo(TripScheduled))
	assert.False(t, TripCompleted.CanTransitionTo(TripCancelled))

	_, err := ParseTripStatus("DELAYED")
	assert.ErrorIs(t, err, ErrValidation)
}
