package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/bus-seat-reservation/internal/model"
)

// ErrPlateExists is returned when a bus with the same plate is registered twice.
var ErrPlateExists = errors.New("plate number already exists")

// BusRepo provides access to the buses table.
type BusRepo struct {
	db *sql.DB
}

func NewBusRepo(db *sql.DB) *BusRepo { return &BusRepo{db: db} }

const busColumns = `id, company_id, plate_number, capacity, status, created_at, updated_at`

// Create inserts a bus and returns ErrPlateExists on a duplicate plate.
func (r *BusRepo) Create(ctx context.Context, b *model.Bus) error {
	const q = `INSERT INTO buses (company_id, plate_number, capacity, status, created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	res, err := conn(ctx, r.db).ExecContext(ctx, q, b.CompanyID, b.PlateNumber, b.Capacity, string(b.Status), now, now)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrPlateExists
		}
		return fmt.Errorf("insert bus: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	b.CreatedAt, b.UpdatedAt = now, now
	return nil
}

func (r *BusRepo) FindByID(ctx context.Context, id uint64) (*model.Bus, error) {
	b, err := scanBus(conn(ctx, r.db).QueryRowContext(ctx, `SELECT `+busColumns+` FROM buses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

// FindByIDForUpdate locks the bus row inside a transaction so two
// schedulers cannot both pass the conflict check for the same bus.
func (r *BusRepo) FindByIDForUpdate(ctx context.Context, id uint64) (*model.Bus, error) {
	q := `SELECT ` + busColumns + ` FROM buses WHERE id = ?`
	if _, ok := TxFromContext(ctx); ok {
		q += ` FOR UPDATE`
	}
	b, err := scanBus(conn(ctx, r.db).QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

// UpdateStatus moves a bus in or out of service.
func (r *BusRepo) UpdateStatus(ctx context.Context, id uint64, status model.BusStatus) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE buses SET status = ?, updated_at = ? WHERE id = ?`, string(status), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *BusRepo) List(ctx context.Context) ([]*model.Bus, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `SELECT `+busColumns+` FROM buses ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Bus
	for rows.Next() {
		b, err := scanBus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanBus(row rowScanner) (*model.Bus, error) {
	var (
		b      model.Bus
		status string
	)
	if err := row.Scan(&b.ID, &b.CompanyID, &b.PlateNumber, &b.Capacity, &status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Status = model.BusStatus(status)
	return &b, nil
}
