package model

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReservation(t *testing.T) *Reservation {
	t.Helper()
	seat, err := NewSeatNumber(7, 40)
	require.NoError(t, err)
	price, err := NewMoney("45.50", "PEN")
	require.NoError(t, err)
	r, events, err := NewReservation(11, 3, seat, price, time.Unix(1736500000, 0))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventReservationCreated, events[0].Type)
	return r
}

func TestNewReservation(t *testing.T) {
	r := newTestReservation(t)
	assert.Equal(t, ReservationActive, r.Status())
	assert.True(t, r.IsActive())
	assert.Regexp(t, regexp.MustCompile(`^RES1736500000[A-Z0-9]{4}$`), r.Code)

	_, _, err := NewReservation(0, 3, r.Seat, r.Price, time.Now())
	assert.ErrorIs(t, err, ErrValidation)
	_, _, err = NewReservation(1, 3, SeatNumber{}, r.Price, time.Now())
	assert.ErrorIs(t, err, ErrValidation)
}

func TestReservationCancellationDeadline(t *testing.T) {
	r := newTestReservation(t)
	dep := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	deadline := DefaultCancellationDeadline

	assert.NoError(t, r.CanBeCancelled(dep, dep.Add(-deadline-time.Second), deadline))
	assert.NoError(t, r.CanBeCancelled(dep, dep.Add(-deadline), deadline), "exactly at the deadline")
	err := r.CanBeCancelled(dep, dep.Add(-deadline+time.Second), deadline)
	assert.ErrorIs(t, err, ErrReservationNotCancellable)

	assert.NoError(t, r.CanBeCancelled(time.Time{}, dep, deadline), "unknown departure")
}

func TestReservationCancel(t *testing.T) {
	r := newTestReservation(t)
	at := time.Date(2025, 1, 9, 12, 0, 0, 0, time.UTC)

	events, err := r.Cancel("change of plans", at)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ReservationCancelled, r.Status())
	assert.Equal(t, "change of plans", r.CancellationReason)
	require.NotNil(t, r.CancelledAt())
	assert.Equal(t, at, *r.CancelledAt())

	_, err = r.Cancel("again", at)
	assert.ErrorIs(t, err, ErrReservationNotCancellable)
	assert.ErrorIs(t, r.CanBeCancelled(time.Time{}, at, time.Hour), ErrReservationNotCancellable)
}

func TestReservationTerminalStatesAreFinal(t *testing.T) {
	now := time.Now()

	r := newTestReservation(t)
	_, err := r.Complete(now)
	require.NoError(t, err)
	require.NotNil(t, r.CompletedAt())
	_, err = r.Complete(now)
	assert.ErrorIs(t, err, ErrInvalidEntityState)
	ok, events := r.Expire(now)
	assert.False(t, ok)
	assert.Empty(t, events)

	r = newTestReservation(t)
	ok, events = r.Expire(now)
	assert.True(t, ok)
	assert.Len(t, events, 1)
	assert.Equal(t, ReservationExpired, r.Status())
	_, err = r.Cancel("", now)
	assert.ErrorIs(t, err, ErrReservationNotCancellable)
}

func TestReservationRefundAmount(t *testing.T) {
	r := newTestReservation(t)
	refund, err := r.RefundAmount("10")
	require.NoError(t, err)
	assert.Equal(t, "40.95", refund.Amount())
}

func TestRestoreReservation(t *testing.T) {
	at := time.Now()
	r, err := RestoreReservation(Reservation{ID: 9}, ReservationState{Status: ReservationCancelled, CancelledAt: &at})
	require.NoError(t, err)
	assert.Equal(t, ReservationCancelled, r.Status())

	_, err = RestoreReservation(Reservation{ID: 9}, ReservationState{Status: "PENDING"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRouteRecordBooking(t *testing.T) {
	r := &Route{ID: 1, TotalBookings: 149}
	events := r.RecordBooking()
	require.Len(t, events, 1)
	assert.Equal(t, 150, r.TotalBookings)
	assert.Equal(t, 1.5, r.PopularityScore)

	assert.Equal(t, 5.0, PopularityScore(1200))
	assert.Equal(t, 0.01, PopularityScore(1))
}

func TestBindEntity(t *testing.T) {
	events := []Event{{Type: EventTripCreated}, {Type: EventTripSeatReserved, EntityID: 4}}
	BindEntity(events, 9)
	assert.Equal(t, uint64(9), events[0].EntityID)
	assert.Equal(t, uint64(4), events[1].EntityID)
}
