package model

import "fmt"

// Seat rules shared by the inventory and the allocation service.
const (
	MinSeatNumber      = 1
	MaxSeatNumber      = 60
	DefaultBusCapacity = 40
	DefaultSeatsPerRow = 4
	DefaultFrontRows   = 3
	DefaultBackRows    = 3
)

// SeatNumber is a validated seat index on a bus. Capacity is the bound it
// was validated against; zero means the bus capacity was unknown and the
// system maximum applied. Geometry is derived from the number and the
// seats-per-row layout and never stored.
type SeatNumber struct {
	number   int
	capacity int
}

// NewSeatNumber validates 1 <= number <= capacity (MaxSeatNumber when
// capacity is zero).
func NewSeatNumber(number, capacity int) (SeatNumber, error) {
	if number < MinSeatNumber {
		return SeatNumber{}, ValidationError{
			Field: "seat_number",
			Value: number,
			Msg:   fmt.Sprintf("seat number must be at least %d", MinSeatNumber),
		}
	}
	bound := capacity
	if bound <= 0 {
		bound = MaxSeatNumber
	}
	if number > bound {
		return SeatNumber{}, ValidationError{
			Field: "seat_number",
			Value: number,
			Msg:   fmt.Sprintf("seat number cannot exceed %d", bound),
		}
	}
	return SeatNumber{number: number, capacity: capacity}, nil
}

func (s SeatNumber) Number() int   { return s.number }
func (s SeatNumber) Capacity() int { return s.capacity }
func (s SeatNumber) String() string {
	return fmt.Sprintf("%d", s.number)
}

// Row is 1-based.
func (s SeatNumber) Row(seatsPerRow int) int {
	return (s.number-1)/rowWidth(seatsPerRow) + 1
}

// PositionInRow is 1-based.
func (s SeatNumber) PositionInRow(seatsPerRow int) int {
	return (s.number-1)%rowWidth(seatsPerRow) + 1
}

// IsWindow reports whether the seat sits at either end of its row.
func (s SeatNumber) IsWindow(seatsPerRow int) bool {
	w := rowWidth(seatsPerRow)
	pos := (s.number - 1) % w
	return pos == 0 || pos == w-1
}

func (s SeatNumber) IsAisle(seatsPerRow int) bool { return !s.IsWindow(seatsPerRow) }

// DistanceFromFront is the 0-based row index.
func (s SeatNumber) DistanceFromFront(seatsPerRow int) int {
	return (s.number - 1) / rowWidth(seatsPerRow)
}

func (s SeatNumber) IsFrontSection(seatsPerRow, frontRows int) bool {
	if frontRows <= 0 {
		frontRows = DefaultFrontRows
	}
	return s.Row(seatsPerRow) <= frontRows
}

// IsBackSection needs a known capacity; it is false otherwise.
func (s SeatNumber) IsBackSection(seatsPerRow, backRows int) bool {
	if s.capacity <= 0 {
		return false
	}
	if backRows <= 0 {
		backRows = DefaultBackRows
	}
	w := rowWidth(seatsPerRow)
	totalRows := (s.capacity + w - 1) / w
	return s.Row(seatsPerRow) > totalRows-backRows
}

// Adjacent returns the neighbouring seats in the same row.
func (s SeatNumber) Adjacent(seatsPerRow int) []SeatNumber {
	w := rowWidth(seatsPerRow)
	rowStart := (s.number-1)/w*w + 1
	rowEnd := rowStart + w - 1
	var out []SeatNumber
	if s.number > rowStart {
		out = append(out, SeatNumber{number: s.number - 1, capacity: s.capacity})
	}
	if s.number < rowEnd && (s.capacity <= 0 || s.number < s.capacity) {
		out = append(out, SeatNumber{number: s.number + 1, capacity: s.capacity})
	}
	return out
}

// Kind is "window" or "aisle".
func (s SeatNumber) Kind(seatsPerRow int) string {
	if s.IsWindow(seatsPerRow) {
		return "window"
	}
	return "aisle"
}

// Label formats the seat for tickets, e.g. "Row 1, Seat A (Window)".
func (s SeatNumber) Label(seatsPerRow int) string {
	kind := "Aisle"
	if s.IsWindow(seatsPerRow) {
		kind = "Window"
	}
	letter := rune('A' + s.PositionInRow(seatsPerRow) - 1)
	return fmt.Sprintf("Row %d, Seat %c (%s)", s.Row(seatsPerRow), letter, kind)
}

func rowWidth(seatsPerRow int) int {
	if seatsPerRow <= 0 {
		return DefaultSeatsPerRow
	}
	return seatsPerRow
}
