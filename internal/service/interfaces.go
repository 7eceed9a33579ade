// Package service holds the seat inventory core: seat allocation on a
// trip, the reservation coordinator and the trip scheduler. It talks to
// storage only through the interfaces below and runs every multi-record
// change inside one Transactor unit of work.
package service

import (
	"context"
	"time"

	"github.com/iliyamo/bus-seat-reservation/internal/model"
)

// TripRepository persists trip inventories. Update must fail with
// repository.ErrConflict when the stored version moved since the load.
type TripRepository interface {
	FindByID(ctx context.Context, id uint64) (*model.TripInventory, error)
	FindByIDForUpdate(ctx context.Context, id uint64) (*model.TripInventory, error)
	Create(ctx context.Context, t *model.TripInventory) error
	Update(ctx context.Context, t *model.TripInventory) error
	FindConflicting(ctx context.Context, busID uint64, departure, arrival time.Time, excludeID uint64) ([]*model.TripInventory, error)
	FindByStatus(ctx context.Context, status model.TripStatus) ([]*model.TripInventory, error)
	FindByRouteAndDate(ctx context.Context, routeID uint64, date string) ([]*model.TripInventory, error)
}

// ReservationRepository persists reservations with the same lost-update
// contract on Update.
type ReservationRepository interface {
	Create(ctx context.Context, r *model.Reservation) error
	Update(ctx context.Context, r *model.Reservation) error
	FindByID(ctx context.Context, id uint64) (*model.Reservation, error)
	FindByCode(ctx context.Context, code string) (*model.Reservation, error)
	ExistsActive(ctx context.Context, tripID uint64, seat int) (bool, error)
	FindActiveByTrip(ctx context.Context, tripID uint64) ([]*model.Reservation, error)
	FindByStatus(ctx context.Context, status model.ReservationStatus) ([]*model.Reservation, error)
	FindByHolder(ctx context.Context, holderID uint64) ([]*model.Reservation, error)
	FindActiveDepartedBefore(ctx context.Context, cutoff time.Time) ([]*model.Reservation, error)
}

type RouteRepository interface {
	FindByID(ctx context.Context, id uint64) (*model.Route, error)
	FindByIDForUpdate(ctx context.Context, id uint64) (*model.Route, error)
	Update(ctx context.Context, r *model.Route) error
	Search(ctx context.Context, origin, destination string) ([]*model.Route, error)
}

type BusRepository interface {
	FindByID(ctx context.Context, id uint64) (*model.Bus, error)
	FindByIDForUpdate(ctx context.Context, id uint64) (*model.Bus, error)
}

// Transactor runs fn as one unit of work; the transaction travels in ctx.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
