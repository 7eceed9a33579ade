package model

import (
	"fmt"
	"strings"
	"time"
)

// TripStatus is the lifecycle state of a scheduled trip.
type TripStatus string

const (
	TripScheduled  TripStatus = "SCHEDULED"
	TripInProgress TripStatus = "IN_PROGRESS"
	TripCompleted  TripStatus = "COMPLETED"
	TripCancelled  TripStatus = "CANCELLED"
)

// tripTransitions is the only source of truth for legal status changes.
var tripTransitions = map[TripStatus][]TripStatus{
	TripScheduled:  {TripInProgress, TripCancelled},
	TripInProgress: {TripCompleted, TripCancelled},
	TripCompleted:  nil,
	TripCancelled:  nil,
}

// ParseTripStatus accepts the canonical upper-case names.
func ParseTripStatus(s string) (TripStatus, error) {
	st := TripStatus(s)
	if _, ok := tripTransitions[st]; !ok {
		return "", ValidationError{Field: "status", Value: s, Msg: "unknown trip status"}
	}
	return st, nil
}

func (s TripStatus) CanTransitionTo(next TripStatus) bool {
	for _, allowed := range tripTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s TripStatus) IsTerminal() bool { return len(tripTransitions[s]) == 0 }

// TripInventory is one scheduled run of a bus along a route, with its own
// seat map. Identity and schedule fields are exported; the seat state is
// reachable only through the methods below, which keep
//
//	occupied ∩ reserved = ∅
//	occupied ∪ reserved ⊆ [1, capacity]
//	available = capacity − |occupied| − |reserved|
//
// at every observable point.
type TripInventory struct {
	ID          uint64
	RouteID     uint64
	BusID       uint64
	Date        string // YYYY-MM-DD in the trip's local zone
	DepartureAt time.Time
	ArrivalAt   time.Time
	Version     uint32
	CreatedAt   time.Time
	UpdatedAt   time.Time

	capacity        int
	available       int
	occupied        SeatSet
	reserved        SeatSet
	status          TripStatus
	actualDeparture *time.Time
	actualArrival   *time.Time
}

// TripState is the flat persistence view of a TripInventory.
type TripState struct {
	ID              uint64
	RouteID         uint64
	BusID           uint64
	Date            string
	DepartureAt     time.Time
	ArrivalAt       time.Time
	TotalCapacity   int
	AvailableSeats  int
	Occupied        SeatSet
	Reserved        SeatSet
	Status          TripStatus
	ActualDeparture *time.Time
	ActualArrival   *time.Time
	Version         uint32
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewTripParams describes a trip to be scheduled.
type NewTripParams struct {
	RouteID     uint64
	BusID       uint64
	DepartureAt time.Time
	ArrivalAt   time.Time
	Capacity    int
}

// NewTrip creates a SCHEDULED inventory with every seat free. The trip
// date is taken from the departure in the departure's location.
func NewTrip(p NewTripParams) (*TripInventory, []Event, error) {
	if p.Capacity < MinSeatNumber || p.Capacity > MaxSeatNumber {
		return nil, nil, ValidationError{
			Field: "capacity",
			Value: p.Capacity,
			Msg:   fmt.Sprintf("capacity must be between %d and %d", MinSeatNumber, MaxSeatNumber),
		}
	}
	if err := validateTripTimes(p.DepartureAt, p.ArrivalAt); err != nil {
		return nil, nil, err
	}
	t := &TripInventory{
		RouteID:     p.RouteID,
		BusID:       p.BusID,
		Date:        p.DepartureAt.Format(time.DateOnly),
		DepartureAt: p.DepartureAt,
		ArrivalAt:   p.ArrivalAt,
		capacity:    p.Capacity,
		available:   p.Capacity,
		occupied:    NewSeatSet(p.Capacity),
		reserved:    NewSeatSet(p.Capacity),
		status:      TripScheduled,
	}
	return t, []Event{t.event(EventTripCreated, map[string]any{
		"route_id":        t.RouteID,
		"bus_id":          t.BusID,
		"departure_at":    t.DepartureAt,
		"date":            t.Date,
		"available_seats": t.available,
	})}, nil
}

// RestoreTrip rebuilds an inventory from storage and rejects states that
// break the seat invariants.
func RestoreTrip(s TripState) (*TripInventory, error) {
	if _, err := ParseTripStatus(string(s.Status)); err != nil {
		return nil, err
	}
	if s.TotalCapacity < 0 || s.Occupied.Capacity() != s.TotalCapacity || s.Reserved.Capacity() != s.TotalCapacity {
		return nil, fmt.Errorf("restore trip %d: seat sets do not match capacity %d", s.ID, s.TotalCapacity)
	}
	if s.Occupied.Intersects(s.Reserved) {
		return nil, fmt.Errorf("restore trip %d: seat both occupied and reserved", s.ID)
	}
	if s.AvailableSeats != s.TotalCapacity-s.Occupied.Len()-s.Reserved.Len() {
		return nil, fmt.Errorf("restore trip %d: available seats %d inconsistent with holds", s.ID, s.AvailableSeats)
	}
	return &TripInventory{
		ID:              s.ID,
		RouteID:         s.RouteID,
		BusID:           s.BusID,
		Date:            s.Date,
		DepartureAt:     s.DepartureAt,
		ArrivalAt:       s.ArrivalAt,
		Version:         s.Version,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
		capacity:        s.TotalCapacity,
		available:       s.AvailableSeats,
		occupied:        s.Occupied.Clone(),
		reserved:        s.Reserved.Clone(),
		status:          s.Status,
		actualDeparture: copyTime(s.ActualDeparture),
		actualArrival:   copyTime(s.ActualArrival),
	}, nil
}

// State returns a deep copy suitable for persistence.
func (t *TripInventory) State() TripState {
	return TripState{
		ID:              t.ID,
		RouteID:         t.RouteID,
		BusID:           t.BusID,
		Date:            t.Date,
		DepartureAt:     t.DepartureAt,
		ArrivalAt:       t.ArrivalAt,
		TotalCapacity:   t.capacity,
		AvailableSeats:  t.available,
		Occupied:        t.occupied.Clone(),
		Reserved:        t.reserved.Clone(),
		Status:          t.status,
		ActualDeparture: copyTime(t.actualDeparture),
		ActualArrival:   copyTime(t.actualArrival),
		Version:         t.Version,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

func (t *TripInventory) Clone() *TripInventory {
	c := *t
	c.occupied = t.occupied.Clone()
	c.reserved = t.reserved.Clone()
	c.actualDeparture = copyTime(t.actualDeparture)
	c.actualArrival = copyTime(t.actualArrival)
	return &c
}

func (t *TripInventory) TotalCapacity() int          { return t.capacity }
func (t *TripInventory) AvailableSeats() int         { return t.available }
func (t *TripInventory) Status() TripStatus          { return t.status }
func (t *TripInventory) OccupiedSeats() []int        { return t.occupied.Members() }
func (t *TripInventory) ReservedSeats() []int        { return t.reserved.Members() }
func (t *TripInventory) ActualDeparture() *time.Time { return copyTime(t.actualDeparture) }
func (t *TripInventory) ActualArrival() *time.Time   { return copyTime(t.actualArrival) }
func (t *TripInventory) IsFull() bool                { return t.available == 0 }
func (t *TripInventory) IsOccupied(seat int) bool    { return t.occupied.Has(seat) }
func (t *TripInventory) IsReserved(seat int) bool    { return t.reserved.Has(seat) }
func (t *TripInventory) CanAcceptReservations() bool {
	return t.status == TripScheduled && t.available > 0
}

// IsSeatAvailable reports whether seat is in bounds and held by nobody.
func (t *TripInventory) IsSeatAvailable(seat int) bool {
	return seat >= MinSeatNumber && seat <= t.capacity &&
		!t.occupied.Has(seat) && !t.reserved.Has(seat)
}

// AvailableSeatNumbers returns {1..capacity} \ (occupied ∪ reserved), ascending.
func (t *TripInventory) AvailableSeatNumbers() []int {
	out := make([]int, 0, t.available)
	for n := 1; n <= t.capacity; n++ {
		if !t.occupied.Has(n) && !t.reserved.Has(n) {
			out = append(out, n)
		}
	}
	return out
}

// OccupancyRate is the held share of capacity in percent.
func (t *TripInventory) OccupancyRate() float64 {
	if t.capacity == 0 {
		return 0
	}
	return float64(t.occupied.Len()+t.reserved.Len()) / float64(t.capacity) * 100
}

// Reserve places a booking hold on a free seat of a SCHEDULED trip.
func (t *TripInventory) Reserve(seat int) ([]Event, error) {
	if t.status != TripScheduled {
		return nil, t.stateError(TripScheduled)
	}
	if t.available <= 0 || !t.IsSeatAvailable(seat) {
		return nil, SeatNotAvailableError{Seat: seat}
	}
	t.reserved.Add(seat)
	t.available--
	return []Event{t.seatEvent(EventTripSeatReserved, seat)}, nil
}

// Occupy checks a passenger in. A reserved seat is promoted without
// touching the counts; a free seat is taken directly after the same
// availability check as Reserve; an occupied seat is left as is.
func (t *TripInventory) Occupy(seat int) ([]Event, error) {
	if t.status.IsTerminal() {
		return nil, t.stateError("SCHEDULED or IN_PROGRESS")
	}
	switch {
	case t.occupied.Has(seat):
		return nil, nil
	case t.reserved.Has(seat):
		t.reserved.Remove(seat)
	default:
		if t.available <= 0 || !t.IsSeatAvailable(seat) {
			return nil, SeatNotAvailableError{Seat: seat}
		}
		t.available--
	}
	t.occupied.Add(seat)
	return []Event{t.seatEvent(EventTripSeatOccupied, seat)}, nil
}

// Release frees a seat from whichever set holds it. Releasing a free
// seat changes nothing and emits nothing.
func (t *TripInventory) Release(seat int) []Event {
	released := t.reserved.Remove(seat)
	if t.occupied.Remove(seat) {
		released = true
	}
	if !released {
		return nil
	}
	t.available++
	return []Event{t.seatEvent(EventTripSeatReleased, seat)}
}

// Reschedule moves a SCHEDULED trip to new times. Conflict detection is
// the caller's job since it needs the other trips of the bus.
func (t *TripInventory) Reschedule(departure, arrival time.Time) ([]Event, error) {
	if t.status != TripScheduled {
		return nil, t.stateError(TripScheduled)
	}
	if err := validateTripTimes(departure, arrival); err != nil {
		return nil, err
	}
	if departure.Equal(t.DepartureAt) && arrival.Equal(t.ArrivalAt) {
		return nil, nil
	}
	oldDep, oldArr := t.DepartureAt, t.ArrivalAt
	t.DepartureAt, t.ArrivalAt = departure, arrival
	t.Date = departure.Format(time.DateOnly)
	return []Event{t.event(EventTripRescheduled, map[string]any{
		"old_departure": oldDep,
		"old_arrival":   oldArr,
		"new_departure": departure,
		"new_arrival":   arrival,
	})}, nil
}

// Start moves SCHEDULED to IN_PROGRESS and records the actual departure.
func (t *TripInventory) Start(actualDeparture time.Time) ([]Event, error) {
	if err := t.transition(TripInProgress); err != nil {
		return nil, err
	}
	t.actualDeparture = &actualDeparture
	return []Event{t.event(EventTripStarted, map[string]any{
		"scheduled_departure": t.DepartureAt,
		"actual_departure":    actualDeparture,
	})}, nil
}

// Complete moves IN_PROGRESS to COMPLETED and records the actual arrival.
func (t *TripInventory) Complete(actualArrival time.Time) ([]Event, error) {
	if err := t.transition(TripCompleted); err != nil {
		return nil, err
	}
	t.actualArrival = &actualArrival
	return []Event{t.event(EventTripCompleted, map[string]any{
		"scheduled_arrival": t.ArrivalAt,
		"actual_arrival":    actualArrival,
		"passengers_count":  t.occupied.Len(),
	})}, nil
}

// CancellationSummary counts the holds dropped by Cancel.
type CancellationSummary struct {
	ReservedReleased int
	OccupiedReleased int
}

// Cancel is terminal and the only mass release: both seat sets are
// cleared and every seat becomes available again. The record itself is
// kept for audit.
func (t *TripInventory) Cancel(reason string) (CancellationSummary, []Event, error) {
	old := t.status
	if err := t.transition(TripCancelled); err != nil {
		return CancellationSummary{}, nil, err
	}
	sum := CancellationSummary{
		ReservedReleased: t.reserved.Len(),
		OccupiedReleased: t.occupied.Len(),
	}
	t.reserved.Clear()
	t.occupied.Clear()
	t.available = t.capacity
	return sum, []Event{t.event(EventTripCancelled, map[string]any{
		"old_status":            string(old),
		"reason":                reason,
		"affected_reservations": sum.ReservedReleased,
		"affected_passengers":   sum.OccupiedReleased,
	})}, nil
}

func (t *TripInventory) transition(next TripStatus) error {
	if !t.status.CanTransitionTo(next) {
		var from []string
		for _, st := range []TripStatus{TripScheduled, TripInProgress} {
			if st.CanTransitionTo(next) {
				from = append(from, string(st))
			}
		}
		return t.stateError(TripStatus(strings.Join(from, " or ")))
	}
	t.status = next
	return nil
}

func (t *TripInventory) stateError(required TripStatus) error {
	return InvalidStateError{Entity: "trip", Current: string(t.status), Required: string(required)}
}

func (t *TripInventory) seatEvent(eventType string, seat int) Event {
	return t.event(eventType, map[string]any{
		"seat_number":     seat,
		"available_seats": t.available,
	})
}

func (t *TripInventory) event(eventType string, data map[string]any) Event {
	return newEvent(eventType, t.ID, data)
}

// Overlaps reports whether the slot [dep, arr) collides with an existing
// slot [exDep, exArr): the new start falls inside it, the new end falls
// inside it, or the new slot encloses it. Back-to-back slots do not overlap.
func Overlaps(exDep, exArr, dep, arr time.Time) bool {
	startsInside := !exDep.After(dep) && dep.Before(exArr)
	endsInside := exDep.Before(arr) && !arr.After(exArr)
	encloses := !dep.After(exDep) && !arr.Before(exArr)
	return startsInside || endsInside || encloses
}

func validateTripTimes(departure, arrival time.Time) error {
	if departure.IsZero() || arrival.IsZero() {
		return ValidationError{Field: "departure_at", Msg: "departure and arrival are required"}
	}
	if !arrival.After(departure) {
		return ValidationError{Field: "arrival_at", Value: arrival, Msg: "arrival must be after departure"}
	}
	return nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
