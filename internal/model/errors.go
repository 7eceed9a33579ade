package model

import (
	"errors"
	"fmt"
)

// Sentinel values for the failure classes of the seat inventory core.
// Every typed error below matches exactly one of them through errors.Is,
// so callers can branch on the class without caring about the details.
var (
	ErrEntityNotFound            = errors.New("entity not found")
	ErrSeatNotAvailable          = errors.New("seat not available")
	ErrInsufficientSeats         = errors.New("insufficient seats")
	ErrScheduleConflict          = errors.New("schedule conflict")
	ErrReservationNotCancellable = errors.New("reservation not cancellable")
	ErrInvalidEntityState        = errors.New("invalid entity state")
	ErrValidation                = errors.New("validation error")
)

// NotFoundError reports that a trip, reservation, route or bus is absent.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s with id '%v' not found", e.Entity, e.ID)
}

func (e NotFoundError) Is(target error) bool { return target == ErrEntityNotFound }

// SeatNotAvailableError reports a seat that is already held or out of bounds.
type SeatNotAvailableError struct {
	Seat int
}

func (e SeatNotAvailableError) Error() string {
	return fmt.Sprintf("seat %d is not available", e.Seat)
}

func (e SeatNotAvailableError) Is(target error) bool { return target == ErrSeatNotAvailable }

type InsufficientSeatsError struct {
	Requested int
	Available int
}

func (e InsufficientSeatsError) Error() string {
	return fmt.Sprintf("requested %d seats, but only %d available", e.Requested, e.Available)
}

func (e InsufficientSeatsError) Is(target error) bool { return target == ErrInsufficientSeats }

// ScheduleConflictError names the first trip that overlaps the requested
// slot for the same bus.
type ScheduleConflictError struct {
	BusID             uint64
	ConflictingTripID uint64
}

func (e ScheduleConflictError) Error() string {
	return fmt.Sprintf("bus %d has a scheduling conflict with trip %d", e.BusID, e.ConflictingTripID)
}

func (e ScheduleConflictError) Is(target error) bool { return target == ErrScheduleConflict }

type NotCancellableError struct {
	ReservationID uint64
	Reason        string
}

func (e NotCancellableError) Error() string {
	return fmt.Sprintf("reservation %d cannot be cancelled: %s", e.ReservationID, e.Reason)
}

func (e NotCancellableError) Is(target error) bool { return target == ErrReservationNotCancellable }

// InvalidStateError reports an operation attempted in a state that forbids it.
type InvalidStateError struct {
	Entity   string
	Current  string
	Required string
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("%s is in '%s' state, but '%s' is required", e.Entity, e.Current, e.Required)
}

func (e InvalidStateError) Is(target error) bool { return target == ErrInvalidEntityState }

// ValidationError reports malformed input or a missing referenced entity.
type ValidationError struct {
	Field string
	Value any
	Msg   string
}

func (e ValidationError) Error() string {
	switch {
	case e.Field != "" && e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	case e.Msg != "":
		return e.Msg
	case e.Field != "":
		return fmt.Sprintf("invalid %s", e.Field)
	default:
		return "validation error"
	}
}

func (e ValidationError) Is(target error) bool { return target == ErrValidation }
