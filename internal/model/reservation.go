package model

import (
	"crypto/rand"
	"fmt"
	"time"
)

// ReservationStatus is the lifecycle state of a single-seat booking.
// ACTIVE is the only non-terminal state.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationCancelled ReservationStatus = "CANCELLED"
	ReservationCompleted ReservationStatus = "COMPLETED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

func ParseReservationStatus(s string) (ReservationStatus, error) {
	switch st := ReservationStatus(s); st {
	case ReservationActive, ReservationCancelled, ReservationCompleted, ReservationExpired:
		return st, nil
	}
	return "", ValidationError{Field: "status", Value: s, Msg: "unknown reservation status"}
}

func (s ReservationStatus) IsTerminal() bool { return s != ReservationActive }

// DefaultCancellationDeadline is the minimum lead time before departure
// during which a reservation may still be cancelled.
const DefaultCancellationDeadline = 4 * time.Hour

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Reservation holds exactly one seat on one trip for one holder.
//
// Fields mirror the reservations table; Status and the terminal
// timestamps change only through Cancel, Complete and Expire.
type Reservation struct {
	ID                 uint64     // reservations.id
	HolderID           uint64     // reservations.holder_id
	TripID             uint64     // reservations.trip_id
	Seat               SeatNumber // reservations.seat_number
	Price              Money      // reservations.price_cents + currency
	Code               string     // reservations.code
	CancellationReason string     // reservations.cancellation_reason
	Version            uint32     // reservations.version
	CreatedAt          time.Time  // reservations.created_at
	UpdatedAt          time.Time  // reservations.updated_at

	status      ReservationStatus
	cancelledAt *time.Time
	completedAt *time.Time
}

// ReservationState carries the lifecycle fields for RestoreReservation.
type ReservationState struct {
	Status      ReservationStatus
	CancelledAt *time.Time
	CompletedAt *time.Time
}

// NewReservation creates an ACTIVE reservation with a fresh code.
func NewReservation(holderID, tripID uint64, seat SeatNumber, price Money, now time.Time) (*Reservation, []Event, error) {
	if holderID == 0 {
		return nil, nil, ValidationError{Field: "holder_id", Value: holderID, Msg: "holder is required"}
	}
	if tripID == 0 {
		return nil, nil, ValidationError{Field: "trip_id", Value: tripID, Msg: "trip is required"}
	}
	if seat.Number() < MinSeatNumber {
		return nil, nil, ValidationError{Field: "seat_number", Value: seat.Number(), Msg: "seat is required"}
	}
	code, err := NewReservationCode(now)
	if err != nil {
		return nil, nil, err
	}
	r := &Reservation{
		HolderID:  holderID,
		TripID:    tripID,
		Seat:      seat,
		Price:     price,
		Code:      code,
		CreatedAt: now,
		UpdatedAt: now,
		status:    ReservationActive,
	}
	return r, []Event{r.event(EventReservationCreated, map[string]any{
		"holder_id":   holderID,
		"trip_id":     tripID,
		"seat_number": seat.Number(),
		"price":       price.Amount(),
		"currency":    price.Currency(),
		"code":        code,
	})}, nil
}

// RestoreReservation rebuilds a stored reservation.
func RestoreReservation(r Reservation, s ReservationState) (*Reservation, error) {
	if _, err := ParseReservationStatus(string(s.Status)); err != nil {
		return nil, err
	}
	r.status = s.Status
	r.cancelledAt = copyTime(s.CancelledAt)
	r.completedAt = copyTime(s.CompletedAt)
	return &r, nil
}

// NewReservationCode returns "RES", the unix seconds of now and four
// random upper-case alphanumerics, e.g. RES1736500000K3ZQ.
func NewReservationCode(now time.Time) (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reservation code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return fmt.Sprintf("RES%d%s", now.Unix(), buf), nil
}

func (r *Reservation) Status() ReservationStatus { return r.status }
func (r *Reservation) CancelledAt() *time.Time   { return copyTime(r.cancelledAt) }
func (r *Reservation) CompletedAt() *time.Time   { return copyTime(r.completedAt) }
func (r *Reservation) IsActive() bool            { return r.status == ReservationActive }

func (r *Reservation) State() ReservationState {
	return ReservationState{
		Status:      r.status,
		CancelledAt: copyTime(r.cancelledAt),
		CompletedAt: copyTime(r.completedAt),
	}
}

func (r *Reservation) Clone() *Reservation {
	c := *r
	c.cancelledAt = copyTime(r.cancelledAt)
	c.completedAt = copyTime(r.completedAt)
	return &c
}

// CanBeCancelled checks the status and that departure is at least
// deadline away from now. A zero departure skips the deadline check.
func (r *Reservation) CanBeCancelled(departure, now time.Time, deadline time.Duration) error {
	if r.status != ReservationActive {
		return NotCancellableError{
			ReservationID: r.ID,
			Reason:        fmt.Sprintf("reservation is in '%s' status", r.status),
		}
	}
	if departure.IsZero() {
		return nil
	}
	if departure.Sub(now) < deadline {
		return NotCancellableError{
			ReservationID: r.ID,
			Reason:        fmt.Sprintf("cancellation deadline of %s before departure has passed", deadline),
		}
	}
	return nil
}

// Cancel marks the reservation CANCELLED. Deadline rules are checked by
// CanBeCancelled; trip cancellation bypasses them.
func (r *Reservation) Cancel(reason string, at time.Time) ([]Event, error) {
	if r.status != ReservationActive {
		return nil, NotCancellableError{
			ReservationID: r.ID,
			Reason:        fmt.Sprintf("reservation is in '%s' status", r.status),
		}
	}
	r.status = ReservationCancelled
	r.CancellationReason = reason
	r.cancelledAt = &at
	r.UpdatedAt = at
	return []Event{r.event(EventReservationCancelled, map[string]any{
		"trip_id":     r.TripID,
		"seat_number": r.Seat.Number(),
		"reason":      reason,
	})}, nil
}

// Complete marks an ACTIVE reservation COMPLETED once its trip finished.
func (r *Reservation) Complete(at time.Time) ([]Event, error) {
	if r.status != ReservationActive {
		return nil, InvalidStateError{Entity: "reservation", Current: string(r.status), Required: string(ReservationActive)}
	}
	r.status = ReservationCompleted
	r.completedAt = &at
	r.UpdatedAt = at
	return []Event{r.event(EventReservationCompleted, map[string]any{
		"trip_id":     r.TripID,
		"seat_number": r.Seat.Number(),
	})}, nil
}

// Expire turns an ACTIVE reservation into EXPIRED. It reports false and
// does nothing for any other status.
func (r *Reservation) Expire(at time.Time) (bool, []Event) {
	if r.status != ReservationActive {
		return false, nil
	}
	r.status = ReservationExpired
	r.UpdatedAt = at
	return true, []Event{r.event(EventReservationExpired, map[string]any{
		"trip_id":     r.TripID,
		"seat_number": r.Seat.Number(),
	})}
}

// RefundAmount is the price minus a fee given in percent.
func (r *Reservation) RefundAmount(feePercent string) (Money, error) {
	fee, err := r.Price.Percentage(feePercent)
	if err != nil {
		return Money{}, err
	}
	return r.Price.Subtract(fee)
}

func (r *Reservation) event(eventType string, data map[string]any) Event {
	return newEvent(eventType, r.ID, data)
}
