package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/iliyamo/bus-seat-reservation/internal/model"
	"github.com/iliyamo/bus-seat-reservation/internal/repository"
)

// SeatLayout is the physical arrangement used for seat geometry.
type SeatLayout struct {
	SeatsPerRow int
	FrontRows   int
}

// DefaultSeatLayout is four seats per row with the first three rows
// counted as the front section.
var DefaultSeatLayout = SeatLayout{SeatsPerRow: model.DefaultSeatsPerRow, FrontRows: model.DefaultFrontRows}

// SeatInfo describes one seat for display.
type SeatInfo struct {
	Number   int    `json:"number"`
	Label    string `json:"display"`
	Window   bool   `json:"is_window"`
	Aisle    bool   `json:"is_aisle"`
	Row      int    `json:"row"`
	Position int    `json:"position"`
}

// Seat statuses on a seat map.
const (
	SeatAvailable = "available"
	SeatReserved  = "reserved"
	SeatOccupied  = "occupied"
)

type SeatMapSeat struct {
	SeatInfo
	Status string `json:"status"`
}

type SeatMapRow struct {
	Row   int           `json:"row"`
	Seats []SeatMapSeat `json:"seats"`
}

// SeatMap is the full layout of a trip with per-seat status and totals.
type SeatMap struct {
	TripID        uint64       `json:"trip_id"`
	SeatsPerRow   int          `json:"seats_per_row"`
	TotalSeats    int          `json:"total_seats"`
	Available     int          `json:"available_seats"`
	Reserved      int          `json:"reserved_seats"`
	Occupied      int          `json:"occupied_seats"`
	OccupancyRate float64      `json:"occupancy_rate"`
	Rows          []SeatMapRow `json:"rows"`
}

// SeatAllocationService reads and mutates trip inventories through the
// trip repository. It keeps no state of its own; callers that need the
// change to be atomic with other writes run it inside a unit of work.
type SeatAllocationService struct {
	trips  TripRepository
	layout SeatLayout
}

func NewSeatAllocationService(trips TripRepository, layout SeatLayout) *SeatAllocationService {
	if layout.SeatsPerRow <= 0 {
		layout.SeatsPerRow = model.DefaultSeatsPerRow
	}
	if layout.FrontRows <= 0 {
		layout.FrontRows = model.DefaultFrontRows
	}
	return &SeatAllocationService{trips: trips, layout: layout}
}

func (s *SeatAllocationService) Layout() SeatLayout { return s.layout }

// CheckAvailability fails closed: a missing trip or a storage error
// reads as "not available".
func (s *SeatAllocationService) CheckAvailability(ctx context.Context, tripID uint64, seat int) bool {
	trip, err := s.trips.FindByID(ctx, tripID)
	if err != nil {
		return false
	}
	return trip.IsSeatAvailable(seat)
}

// ListAvailableSeats returns the free seats of a trip in ascending order.
func (s *SeatAllocationService) ListAvailableSeats(ctx context.Context, tripID uint64) ([]SeatInfo, error) {
	trip, err := s.loadTrip(ctx, tripID, false)
	if err != nil {
		return nil, err
	}
	nums := trip.AvailableSeatNumbers()
	out := make([]SeatInfo, 0, len(nums))
	for _, n := range nums {
		out = append(out, s.seatInfo(n, trip.TotalCapacity()))
	}
	return out, nil
}

// Reserve places a hold on seat and persists the trip. The trip row is
// loaded for update so the check and the write see the same state.
func (s *SeatAllocationService) Reserve(ctx context.Context, tripID uint64, seat int, holderID uint64) ([]model.Event, error) {
	trip, err := s.loadTrip(ctx, tripID, true)
	if err != nil {
		return nil, err
	}
	events, err := trip.Reserve(seat)
	if err != nil {
		return nil, err
	}
	if err := s.trips.Update(ctx, trip); err != nil {
		return nil, err
	}
	for i := range events {
		events[i].Data["holder_id"] = holderID
	}
	return events, nil
}

// Occupy checks a passenger into seat.
func (s *SeatAllocationService) Occupy(ctx context.Context, tripID uint64, seat int) ([]model.Event, error) {
	trip, err := s.loadTrip(ctx, tripID, true)
	if err != nil {
		return nil, err
	}
	events, err := trip.Occupy(seat)
	if err != nil || len(events) == 0 {
		return nil, err
	}
	if err := s.trips.Update(ctx, trip); err != nil {
		return nil, err
	}
	return events, nil
}

// Release frees seat. It reports false without error when the trip does
// not exist, and skips the write when the seat was already free.
func (s *SeatAllocationService) Release(ctx context.Context, tripID uint64, seat int) (bool, []model.Event, error) {
	trip, err := s.loadTrip(ctx, tripID, true)
	if errors.Is(err, model.ErrEntityNotFound) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	events := trip.Release(seat)
	if len(events) == 0 {
		return true, nil, nil
	}
	if err := s.trips.Update(ctx, trip); err != nil {
		return false, nil, err
	}
	return true, events, nil
}

type scoredSeat struct {
	number int
	score  float64
}

// FindBestSeats suggests count free seats. Each seat scores
// (capacity-n)*0.1, plus 10 for a window when preferWindow and plus 5
// for the front section when preferFront. For more than one seat a run
// of adjacent seats in one row wins over the top scores.
func (s *SeatAllocationService) FindBestSeats(ctx context.Context, tripID uint64, count int, preferWindow, preferFront bool) ([]int, error) {
	if count < 1 {
		return nil, model.ValidationError{Field: "count", Value: count, Msg: "count must be at least 1"}
	}
	trip, err := s.loadTrip(ctx, tripID, false)
	if err != nil {
		return nil, err
	}
	available := trip.AvailableSeatNumbers()
	if len(available) < count {
		return nil, model.InsufficientSeatsError{Requested: count, Available: len(available)}
	}

	capacity := trip.TotalCapacity()
	scored := make([]scoredSeat, 0, len(available))
	for _, n := range available {
		seat, _ := model.NewSeatNumber(n, capacity)
		score := float64(capacity-n) * 0.1
		if preferWindow && seat.IsWindow(s.layout.SeatsPerRow) {
			score += 10
		}
		if preferFront && seat.IsFrontSection(s.layout.SeatsPerRow, s.layout.FrontRows) {
			score += 5
		}
		scored = append(scored, scoredSeat{number: n, score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	if count > 1 {
		if run := s.contiguousRun(available, count, capacity); run != nil {
			return run, nil
		}
	}
	out := make([]int, count)
	for i := range out {
		out[i] = scored[i].number
	}
	return out, nil
}

// contiguousRun scans the ascending free seats for count consecutive
// numbers that start and end in the same row.
func (s *SeatAllocationService) contiguousRun(available []int, count, capacity int) []int {
	for i := 0; i+count <= len(available); i++ {
		first, _ := model.NewSeatNumber(available[i], capacity)
		last, _ := model.NewSeatNumber(available[i+count-1], capacity)
		if first.Row(s.layout.SeatsPerRow) != last.Row(s.layout.SeatsPerRow) {
			continue
		}
		if last.Number()-first.Number() == count-1 {
			return append([]int(nil), available[i:i+count]...)
		}
	}
	return nil
}

// SeatMap lays out every seat of the trip by row with its status.
func (s *SeatAllocationService) SeatMap(ctx context.Context, tripID uint64) (*SeatMap, error) {
	trip, err := s.loadTrip(ctx, tripID, false)
	if err != nil {
		return nil, err
	}
	capacity := trip.TotalCapacity()
	m := &SeatMap{
		TripID:        trip.ID,
		SeatsPerRow:   s.layout.SeatsPerRow,
		TotalSeats:    capacity,
		Available:     trip.AvailableSeats(),
		Reserved:      len(trip.ReservedSeats()),
		Occupied:      len(trip.OccupiedSeats()),
		OccupancyRate: trip.OccupancyRate(),
	}
	for n := 1; n <= capacity; n++ {
		info := s.seatInfo(n, capacity)
		status := SeatAvailable
		switch {
		case trip.IsOccupied(n):
			status = SeatOccupied
		case trip.IsReserved(n):
			status = SeatReserved
		}
		if len(m.Rows) == 0 || m.Rows[len(m.Rows)-1].Row != info.Row {
			m.Rows = append(m.Rows, SeatMapRow{Row: info.Row})
		}
		last := &m.Rows[len(m.Rows)-1]
		last.Seats = append(last.Seats, SeatMapSeat{SeatInfo: info, Status: status})
	}
	return m, nil
}

func (s *SeatAllocationService) seatInfo(n, capacity int) SeatInfo {
	seat, _ := model.NewSeatNumber(n, capacity)
	spr := s.layout.SeatsPerRow
	return SeatInfo{
		Number:   n,
		Label:    seat.Label(spr),
		Window:   seat.IsWindow(spr),
		Aisle:    seat.IsAisle(spr),
		Row:      seat.Row(spr),
		Position: seat.PositionInRow(spr),
	}
}

func (s *SeatAllocationService) loadTrip(ctx context.Context, tripID uint64, forUpdate bool) (*model.TripInventory, error) {
	var (
		trip *model.TripInventory
		err  error
	)
	if forUpdate {
		trip, err = s.trips.FindByIDForUpdate(ctx, tripID)
	} else {
		trip, err = s.trips.FindByID(ctx, tripID)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NotFoundError{Entity: "trip", ID: tripID}
	}
	if err != nil {
		return nil, fmt.Errorf("load trip %d: %w", tripID, err)
	}
	return trip, nil
}
