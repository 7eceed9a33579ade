package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/bus-seat-reservation/internal/model"
)

func TestFindBestSeats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got, err := f.seats.FindBestSeats(ctx, f.trip.ID, 3, false, false)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)

	got, err = f.seats.FindBestSeats(ctx, f.trip.ID, 1, true, true)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, got)

	// seats 2 and 3 break every run in row one
	for _, seat := range []int{2, 3} {
		_, err := f.res.CreateReservation(ctx, 1, f.trip.ID, seat)
		require.NoError(t, err)
	}
	got, err = f.seats.FindBestSeats(ctx, f.trip.ID, 3, false, false)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 6, 7}, got)

	_, err = f.seats.FindBestSeats(ctx, f.trip.ID, 39, false, false)
	var short model.InsufficientSeatsError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 39, short.Requested)
	assert.Equal(t, 38, short.Available)

	_, err = f.seats.FindBestSeats(ctx, f.trip.ID, 0, false, false)
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = f.seats.FindBestSeats(ctx, 999, 1, false, false)
	assert.ErrorIs(t, err, model.ErrEntityNotFound)
}

func TestFindBestSeatsScoresWithoutRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// leave only seats 4, 8 and 12 free in the front section
	for n := 1; n <= 12; n++ {
		if n%4 == 0 {
			continue
		}
		_, err := f.res.CreateReservation(ctx, 1, f.trip.ID, n)
		require.NoError(t, err)
	}
	for n := 13; n <= 40; n++ {
		_, err := f.res.CreateReservation(ctx, 1, f.trip.ID, n)
		require.NoError(t, err)
	}

	got, err := f.seats.FindBestSeats(ctx, f.trip.ID, 2, true, false)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 8}, got, "no adjacent pair, so highest scores win")
}

func TestSeatAvailabilityAndRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.True(t, f.seats.CheckAvailability(ctx, f.trip.ID, 10))
	assert.False(t, f.seats.CheckAvailability(ctx, f.trip.ID, 41))
	assert.False(t, f.seats.CheckAvailability(ctx, 999, 1))

	_, err := f.seats.Reserve(ctx, f.trip.ID, 10, 1)
	require.NoError(t, err)
	assert.False(t, f.seats.CheckAvailability(ctx, f.trip.ID, 10))
	_, err = f.seats.Reserve(ctx, f.trip.ID, 10, 2)
	assert.ErrorIs(t, err, model.ErrSeatNotAvailable)

	seats, err := f.seats.ListAvailableSeats(ctx, f.trip.ID)
	require.NoError(t, err)
	assert.Len(t, seats, 39)
	assert.Equal(t, SeatInfo{Number: 1, Label: "Row 1, Seat A (Window)", Window: true, Aisle: false, Row: 1, Position: 1}, seats[0])

	ok, events, err := f.seats.Release(ctx, f.trip.ID, 10)
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventTripSeatReleased, events[0].Type)

	ok, events, err = f.seats.Release(ctx, f.trip.ID, 10)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, events)

	ok, _, err = f.seats.Release(ctx, 999, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSeatMap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, seat := range []int{1, 2} {
		_, err := f.res.CreateReservation(ctx, 1, f.trip.ID, seat)
		require.NoError(t, err)
	}
	_, err := f.sched.CheckIn(ctx, f.trip.ID, 2)
	require.NoError(t, err)

	m, err := f.seats.SeatMap(ctx, f.trip.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, m.TotalSeats)
	assert.Equal(t, 38, m.Available)
	assert.Equal(t, 1, m.Reserved)
	assert.Equal(t, 1, m.Occupied)
	require.Len(t, m.Rows, 10)
	require.Len(t, m.Rows[0].Seats, 4)
	assert.Equal(t, SeatReserved, m.Rows[0].Seats[0].Status)
	assert.Equal(t, SeatOccupied, m.Rows[0].Seats[1].Status)
	assert.Equal(t, SeatAvailable, m.Rows[0].Seats[2].Status)
	assert.Equal(t, 10, m.Rows[9].Row)
}
