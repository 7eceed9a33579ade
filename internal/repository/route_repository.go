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

// RouteRepo persists routes. Only the booking statistics change after
// creation, through a version-checked Update.
type RouteRepo struct {
	db *sql.DB
}

func NewRouteRepo(db *sql.DB) *RouteRepo { return &RouteRepo{db: db} }

const routeColumns = `id, company_id, origin, destination, price_cents, currency, status,
       total_bookings, popularity_score, version, created_at, updated_at`

// Create inserts a route and fills in its id and version.
func (r *RouteRepo) Create(ctx context.Context, rt *model.Route) error {
	const q = `INSERT INTO routes (company_id, origin, destination, price_cents, currency, status,
                   total_bookings, popularity_score, version, created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`
	now := time.Now().UTC()
	res, err := conn(ctx, r.db).ExecContext(ctx, q,
		rt.CompanyID, rt.Origin, rt.Destination, rt.Price.Cents(), rt.Price.Currency(), string(rt.Status),
		rt.TotalBookings, rt.PopularityScore, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert route: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rt.ID = uint64(id)
	rt.Version = 1
	rt.CreatedAt, rt.UpdatedAt = now, now
	return nil
}

func (r *RouteRepo) FindByID(ctx context.Context, id uint64) (*model.Route, error) {
	return r.findOne(ctx, `SELECT `+routeColumns+` FROM routes WHERE id = ?`, id)
}

// FindByIDForUpdate locks the route row inside a transaction so the
// booking counter is bumped by one writer at a time.
func (r *RouteRepo) FindByIDForUpdate(ctx context.Context, id uint64) (*model.Route, error) {
	if _, ok := TxFromContext(ctx); !ok {
		return r.FindByID(ctx, id)
	}
	return r.findOne(ctx, `SELECT `+routeColumns+` FROM routes WHERE id = ? FOR UPDATE`, id)
}

// Update writes the mutable route fields guarded by the stored version.
func (r *RouteRepo) Update(ctx context.Context, rt *model.Route) error {
	const q = `UPDATE routes
               SET price_cents = ?, currency = ?, status = ?, total_bookings = ?, popularity_score = ?,
                   version = version + 1, updated_at = ?
               WHERE id = ? AND version = ?`
	now := time.Now().UTC()
	res, err := conn(ctx, r.db).ExecContext(ctx, q,
		rt.Price.Cents(), rt.Price.Currency(), string(rt.Status), rt.TotalBookings, rt.PopularityScore,
		now, rt.ID, rt.Version,
	)
	if err != nil {
		return fmt.Errorf("update route %d: %w", rt.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update route %d at version %d: %w", rt.ID, rt.Version, ErrConflict)
	}
	rt.Version++
	rt.UpdatedAt = now
	return nil
}

// List returns every route ordered by id.
func (r *RouteRepo) List(ctx context.Context) ([]*model.Route, error) {
	return r.findMany(ctx, `SELECT `+routeColumns+` FROM routes ORDER BY id`)
}

// SearchLimit caps how many routes one search returns.
const SearchLimit = 100

// Search returns ACTIVE routes whose origin and destination contain the
// given fragments, ignoring case, most popular first. Empty fragments
// match everything.
func (r *RouteRepo) Search(ctx context.Context, origin, destination string) ([]*model.Route, error) {
	where := []string{"status = 'ACTIVE'"}
	args := []any{}
	if origin != "" {
		where = append(where, "LOWER(origin) LIKE ?")
		args = append(args, likeContains(origin))
	}
	if destination != "" {
		where = append(where, "LOWER(destination) LIKE ?")
		args = append(args, likeContains(destination))
	}
	q := `SELECT ` + routeColumns + ` FROM routes
          WHERE ` + strings.Join(where, " AND ") + `
          ORDER BY popularity_score DESC, id
          LIMIT ?`
	return r.findMany(ctx, q, append(args, SearchLimit)...)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likeContains lower-cases s and escapes LIKE wildcards so user input
// only ever matches literally.
func likeContains(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(s))) + "%"
}

func (r *RouteRepo) findMany(ctx context.Context, q string, args ...any) ([]*model.Route, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Route
	for rows.Next() {
		rt, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RouteRepo) findOne(ctx context.Context, q string, args ...any) (*model.Route, error) {
	rt, err := scanRoute(conn(ctx, r.db).QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rt, err
}

func scanRoute(row rowScanner) (*model.Route, error) {
	var (
		rt       model.Route
		cents    int64
		currency string
		status   string
	)
	err := row.Scan(
		&rt.ID, &rt.CompanyID, &rt.Origin, &rt.Destination, &cents, &currency, &status,
		&rt.TotalBookings, &rt.PopularityScore, &rt.Version, &rt.CreatedAt, &rt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if rt.Price, err = model.MoneyFromCents(cents, currency); err != nil {
		return nil, fmt.Errorf("route %d: %w", rt.ID, err)
	}
	rt.Status = model.RouteStatus(status)
	return &rt, nil
}
