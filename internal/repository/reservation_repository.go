package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/bus-seat-reservation/internal/model"
)

// ReservationRepo provides persistence for single-seat reservations. The
// reservations table carries a generated active_seat column that equals
// seat_number only while the row is ACTIVE, and a unique index on
// (trip_id, active_seat) so the database itself refuses a second active
// reservation for the same seat. All timestamps are stored in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, holder_id, trip_id, seat_number, price_cents, currency, status, code,
       cancellation_reason, cancelled_at, completed_at, version, created_at, updated_at`

// Create inserts a new reservation and populates its id and version. A
// unique violation on the active seat index surfaces as
// SeatNotAvailableError so a race lost at commit time reads the same as
// one lost in memory. A clash on the code index is ErrConflict, so the
// retried unit of work draws a fresh code.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
	const q = `INSERT INTO reservations (holder_id, trip_id, seat_number, price_cents, currency, status, code,
                   cancellation_reason, cancelled_at, completed_at, version, created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`
	st := res.State()
	created := res.CreatedAt.UTC()
	result, err := conn(ctx, r.db).ExecContext(ctx, q,
		res.HolderID, res.TripID, res.Seat.Number(), res.Price.Cents(), res.Price.Currency(),
		string(st.Status), res.Code, nullString(res.CancellationReason),
		nullTime(st.CancelledAt), nullTime(st.CompletedAt), created, created,
	)
	if err != nil {
		switch {
		case duplicateKeyOn(err, "uq_reservations_code"):
			return fmt.Errorf("reservation code %s already issued: %w", res.Code, ErrConflict)
		case duplicateKeyOn(err, "uq_reservations_active_seat"):
			return model.SeatNotAvailableError{Seat: res.Seat.Number()}
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	res.Version = 1
	return nil
}

// Update persists a lifecycle change guarded by the stored version.
func (r *ReservationRepo) Update(ctx context.Context, res *model.Reservation) error {
	const q = `UPDATE reservations
               SET status = ?, cancellation_reason = ?, cancelled_at = ?, completed_at = ?,
                   version = version + 1, updated_at = ?
               WHERE id = ? AND version = ?`
	st := res.State()
	now := time.Now().UTC()
	result, err := conn(ctx, r.db).ExecContext(ctx, q,
		string(st.Status), nullString(res.CancellationReason),
		nullTime(st.CancelledAt), nullTime(st.CompletedAt),
		now, res.ID, res.Version,
	)
	if err != nil {
		return fmt.Errorf("update reservation %d: %w", res.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update reservation %d at version %d: %w", res.ID, res.Version, ErrConflict)
	}
	res.Version++
	res.UpdatedAt = now
	return nil
}

func (r *ReservationRepo) FindByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	return r.findOne(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
}

func (r *ReservationRepo) FindByCode(ctx context.Context, code string) (*model.Reservation, error) {
	return r.findOne(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE code = ?`, code)
}

// ExistsActive reports whether an ACTIVE reservation already claims the seat.
func (r *ReservationRepo) ExistsActive(ctx context.Context, tripID uint64, seat int) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM reservations WHERE trip_id = ? AND seat_number = ? AND status = 'ACTIVE')`
	var exists bool
	if err := conn(ctx, r.db).QueryRowContext(ctx, q, tripID, seat).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *ReservationRepo) FindActiveByTrip(ctx context.Context, tripID uint64) ([]*model.Reservation, error) {
	return r.findMany(ctx, `SELECT `+reservationColumns+` FROM reservations
          WHERE trip_id = ? AND status = 'ACTIVE' ORDER BY seat_number`, tripID)
}

func (r *ReservationRepo) FindByStatus(ctx context.Context, status model.ReservationStatus) ([]*model.Reservation, error) {
	return r.findMany(ctx, `SELECT `+reservationColumns+` FROM reservations
          WHERE status = ? ORDER BY id`, string(status))
}

// FindByHolder lists a holder's reservations, newest first.
func (r *ReservationRepo) FindByHolder(ctx context.Context, holderID uint64) ([]*model.Reservation, error) {
	return r.findMany(ctx, `SELECT `+reservationColumns+` FROM reservations
          WHERE holder_id = ? ORDER BY created_at DESC, id DESC`, holderID)
}

// FindActiveDepartedBefore returns ACTIVE reservations whose trip was
// scheduled to leave before cutoff.
func (r *ReservationRepo) FindActiveDepartedBefore(ctx context.Context, cutoff time.Time) ([]*model.Reservation, error) {
	const q = `SELECT r.id, r.holder_id, r.trip_id, r.seat_number, r.price_cents, r.currency, r.status, r.code,
                      r.cancellation_reason, r.cancelled_at, r.completed_at, r.version, r.created_at, r.updated_at
               FROM reservations r
               JOIN trips t ON t.id = r.trip_id
               WHERE r.status = 'ACTIVE' AND t.departure_at < ?
               ORDER BY t.departure_at, r.id`
	return r.findMany(ctx, q, cutoff.UTC())
}

func (r *ReservationRepo) findOne(ctx context.Context, q string, args ...any) (*model.Reservation, error) {
	res, err := scanReservation(conn(ctx, r.db).QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}

func (r *ReservationRepo) findMany(ctx context.Context, q string, args ...any) ([]*model.Reservation, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanReservation(row rowScanner) (*model.Reservation, error) {
	var (
		res       model.Reservation
		seat      int
		cents     int64
		currency  string
		status    string
		reason    sql.NullString
		cancelled sql.NullTime
		completed sql.NullTime
	)
	err := row.Scan(
		&res.ID, &res.HolderID, &res.TripID, &seat, &cents, &currency, &status, &res.Code,
		&reason, &cancelled, &completed, &res.Version, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if res.Seat, err = model.NewSeatNumber(seat, 0); err != nil {
		return nil, fmt.Errorf("reservation %d: %w", res.ID, err)
	}
	if res.Price, err = model.MoneyFromCents(cents, currency); err != nil {
		return nil, fmt.Errorf("reservation %d: %w", res.ID, err)
	}
	res.CancellationReason = reason.String
	return model.RestoreReservation(res, model.ReservationState{
		Status:      model.ReservationStatus(status),
		CancelledAt: timePtr(cancelled),
		CompletedAt: timePtr(completed),
	})
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
