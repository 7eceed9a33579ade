package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/bus-seat-reservation/internal/model"
)

// TripRepo persists trip inventories in the trips table. The two seat
// sets are stored as hex bitmaps next to the counters so one row holds
// the whole seat state and a single versioned UPDATE replaces it.
type TripRepo struct {
	db *sql.DB
}

func NewTripRepo(db *sql.DB) *TripRepo { return &TripRepo{db: db} }

const tripColumns = `id, route_id, bus_id, trip_date, departure_at, arrival_at,
       total_capacity, available_seats, occupied_seats, reserved_seats, status,
       actual_departure, actual_arrival, version, created_at, updated_at`

// FindByID loads a trip without locking it.
func (r *TripRepo) FindByID(ctx context.Context, id uint64) (*model.TripInventory, error) {
	return r.findOne(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = ?`, id)
}

// FindByIDForUpdate loads a trip and, inside a transaction, keeps an
// exclusive row lock on it until commit. Outside a transaction it
// behaves like FindByID.
func (r *TripRepo) FindByIDForUpdate(ctx context.Context, id uint64) (*model.TripInventory, error) {
	if _, ok := TxFromContext(ctx); !ok {
		return r.FindByID(ctx, id)
	}
	return r.findOne(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = ? FOR UPDATE`, id)
}

// Create inserts a new trip and fills in its id, version and timestamps.
func (r *TripRepo) Create(ctx context.Context, t *model.TripInventory) error {
	st := t.State()
	now := time.Now().UTC()
	const q = `INSERT INTO trips (route_id, bus_id, trip_date, departure_at, arrival_at,
                   total_capacity, available_seats, occupied_seats, reserved_seats, status,
                   actual_departure, actual_arrival, version, created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`
	res, err := conn(ctx, r.db).ExecContext(ctx, q,
		st.RouteID, st.BusID, st.Date, st.DepartureAt.UTC(), st.ArrivalAt.UTC(),
		st.TotalCapacity, st.AvailableSeats, st.Occupied.Encode(), st.Reserved.Encode(), string(st.Status),
		nullTime(st.ActualDeparture), nullTime(st.ActualArrival), now, now,
	)
	if err != nil {
		return fmt.Errorf("insert trip: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	t.Version = 1
	t.CreatedAt, t.UpdatedAt = now, now
	return nil
}

// Update writes the trip back if nobody changed it since it was loaded.
// A stale version yields ErrConflict and leaves the row untouched; on
// success the in-memory version is advanced to match the row.
func (r *TripRepo) Update(ctx context.Context, t *model.TripInventory) error {
	st := t.State()
	now := time.Now().UTC()
	const q = `UPDATE trips
               SET trip_date = ?, departure_at = ?, arrival_at = ?, available_seats = ?,
                   occupied_seats = ?, reserved_seats = ?, status = ?,
                   actual_departure = ?, actual_arrival = ?,
                   version = version + 1, updated_at = ?
               WHERE id = ? AND version = ?`
	res, err := conn(ctx, r.db).ExecContext(ctx, q,
		st.Date, st.DepartureAt.UTC(), st.ArrivalAt.UTC(), st.AvailableSeats,
		st.Occupied.Encode(), st.Reserved.Encode(), string(st.Status),
		nullTime(st.ActualDeparture), nullTime(st.ActualArrival),
		now, st.ID, st.Version,
	)
	if err != nil {
		return fmt.Errorf("update trip %d: %w", st.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update trip %d at version %d: %w", st.ID, st.Version, ErrConflict)
	}
	t.Version++
	t.UpdatedAt = now
	return nil
}

// FindConflicting returns the non-terminal trips of busID that overlap
// [departure, arrival), ordered by departure. The match is on instants
// alone so overnight runs clash in both directions regardless of the day
// they are dated. excludeID skips the trip being rescheduled; zero
// excludes nothing.
func (r *TripRepo) FindConflicting(ctx context.Context, busID uint64, departure, arrival time.Time, excludeID uint64) ([]*model.TripInventory, error) {
	dep, arr := departure.UTC(), arrival.UTC()
	q := `SELECT ` + tripColumns + ` FROM trips
          WHERE bus_id = ? AND id <> ?
            AND status IN ('SCHEDULED', 'IN_PROGRESS')
            AND departure_at < ? AND arrival_at > ?
            AND ((departure_at <= ? AND ? < arrival_at)
              OR (departure_at < ? AND ? <= arrival_at)
              OR (? <= departure_at AND ? >= arrival_at))
          ORDER BY departure_at, id`
	return r.findMany(ctx, q, busID, excludeID, arr, dep, dep, dep, arr, arr, dep, arr)
}

// FindByStatus lists trips in one status ordered by departure.
func (r *TripRepo) FindByStatus(ctx context.Context, status model.TripStatus) ([]*model.TripInventory, error) {
	return r.findMany(ctx, `SELECT `+tripColumns+` FROM trips WHERE status = ? ORDER BY departure_at, id`, string(status))
}

// FindByRouteAndDate powers the public trip search.
func (r *TripRepo) FindByRouteAndDate(ctx context.Context, routeID uint64, date string) ([]*model.TripInventory, error) {
	return r.findMany(ctx, `SELECT `+tripColumns+` FROM trips WHERE route_id = ? AND trip_date = ? ORDER BY departure_at, id`, routeID, date)
}

func (r *TripRepo) findOne(ctx context.Context, q string, args ...any) (*model.TripInventory, error) {
	t, err := scanTrip(conn(ctx, r.db).QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (r *TripRepo) findMany(ctx context.Context, q string, args ...any) ([]*model.TripInventory, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.TripInventory
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrip(row rowScanner) (*model.TripInventory, error) {
	var (
		st                 model.TripState
		date               time.Time
		status             string
		occupied, reserved string
		actDep, actArr     sql.NullTime
	)
	err := row.Scan(
		&st.ID, &st.RouteID, &st.BusID, &date, &st.DepartureAt, &st.ArrivalAt,
		&st.TotalCapacity, &st.AvailableSeats, &occupied, &reserved, &status,
		&actDep, &actArr, &st.Version, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	st.Date = date.Format(time.DateOnly)
	st.Status = model.TripStatus(strings.ToUpper(status))
	if st.Occupied, err = model.DecodeSeatSet(st.TotalCapacity, occupied); err != nil {
		return nil, fmt.Errorf("trip %d occupied seats: %w", st.ID, err)
	}
	if st.Reserved, err = model.DecodeSeatSet(st.TotalCapacity, reserved); err != nil {
		return nil, fmt.Errorf("trip %d reserved seats: %w", st.ID, err)
	}
	st.ActualDeparture = timePtr(actDep)
	st.ActualArrival = timePtr(actArr)
	return model.RestoreTrip(st)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
