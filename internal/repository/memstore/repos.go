package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/bus-seat-reservation/internal/model"
	"github.com/iliyamo/bus-seat-reservation/internal/repository"
)

// TripRepo is the in-memory trip repository.
type TripRepo struct{ s *Store }

func (r *TripRepo) ws(ctx context.Context) writes[*model.TripInventory] {
	if tx := txnFrom(ctx); tx != nil {
		return tx.trips
	}
	return nil
}

func (r *TripRepo) FindByID(ctx context.Context, id uint64) (*model.TripInventory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.trips.get(r.ws(ctx), id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t, nil
}

// FindByIDForUpdate is FindByID; the commit-time version check stands
// in for the row lock.
func (r *TripRepo) FindByIDForUpdate(ctx context.Context, id uint64) (*model.TripInventory, error) {
	return r.FindByID(ctx, id)
}

func (r *TripRepo) Create(ctx context.Context, t *model.TripInventory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	r.s.trips.insert(r.ws(ctx), t)
	return nil
}

func (r *TripRepo) Update(ctx context.Context, t *model.TripInventory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t.UpdatedAt = time.Now().UTC()
	return r.s.trips.update(r.ws(ctx), t.ID, t)
}

// FindConflicting mirrors the SQL query: same bus, not terminal,
// overlapping the slot.
func (r *TripRepo) FindConflicting(ctx context.Context, busID uint64, departure, arrival time.Time, excludeID uint64) ([]*model.TripInventory, error) {
	out := r.filter(ctx, func(t *model.TripInventory) bool {
		return t.BusID == busID && t.ID != excludeID &&
			!t.Status().IsTerminal() &&
			model.Overlaps(t.DepartureAt, t.ArrivalAt, departure, arrival)
	})
	sortByDeparture(out)
	return out, nil
}

func (r *TripRepo) FindByStatus(ctx context.Context, status model.TripStatus) ([]*model.TripInventory, error) {
	out := r.filter(ctx, func(t *model.TripInventory) bool { return t.Status() == status })
	sortByDeparture(out)
	return out, nil
}

func (r *TripRepo) FindByRouteAndDate(ctx context.Context, routeID uint64, date string) ([]*model.TripInventory, error) {
	out := r.filter(ctx, func(t *model.TripInventory) bool { return t.RouteID == routeID && t.Date == date })
	sortByDeparture(out)
	return out, nil
}

func (r *TripRepo) filter(ctx context.Context, keep func(*model.TripInventory) bool) []*model.TripInventory {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.TripInventory
	r.s.trips.each(r.ws(ctx), func(t *model.TripInventory) {
		if keep(t) {
			out = append(out, t)
		}
	})
	return out
}

func sortByDeparture(trips []*model.TripInventory) {
	sort.SliceStable(trips, func(i, j int) bool { return trips[i].DepartureAt.Before(trips[j].DepartureAt) })
}

// ReservationRepo is the in-memory reservation repository.
type ReservationRepo struct{ s *Store }

func (r *ReservationRepo) ws(ctx context.Context) writes[*model.Reservation] {
	if tx := txnFrom(ctx); tx != nil {
		return tx.reservations
	}
	return nil
}

// Create refuses a second ACTIVE reservation for the same trip seat in
// the caller's view; commit repeats the check against the latest state.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ws := r.ws(ctx)
	if res.IsActive() && r.s.activeSeatTaken(ws, res) {
		return model.SeatNotAvailableError{Seat: res.Seat.Number()}
	}
	taken := false
	r.s.reservations.each(ws, func(o *model.Reservation) {
		if o.Code == res.Code {
			taken = true
		}
	})
	if taken {
		return repository.ErrConflict
	}
	r.s.reservations.insert(ws, res)
	return nil
}

func (r *ReservationRepo) Update(ctx context.Context, res *model.Reservation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res.UpdatedAt = time.Now().UTC()
	return r.s.reservations.update(r.ws(ctx), res.ID, res)
}

func (r *ReservationRepo) FindByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res, ok := r.s.reservations.get(r.ws(ctx), id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return res, nil
}

func (r *ReservationRepo) FindByCode(ctx context.Context, code string) (*model.Reservation, error) {
	out := r.filter(ctx, func(res *model.Reservation) bool { return res.Code == code })
	if len(out) == 0 {
		return nil, repository.ErrNotFound
	}
	return out[0], nil
}

func (r *ReservationRepo) ExistsActive(ctx context.Context, tripID uint64, seat int) (bool, error) {
	out := r.filter(ctx, func(res *model.Reservation) bool {
		return res.TripID == tripID && res.Seat.Number() == seat && res.IsActive()
	})
	return len(out) > 0, nil
}

func (r *ReservationRepo) FindActiveByTrip(ctx context.Context, tripID uint64) ([]*model.Reservation, error) {
	out := r.filter(ctx, func(res *model.Reservation) bool { return res.TripID == tripID && res.IsActive() })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seat.Number() < out[j].Seat.Number() })
	return out, nil
}

func (r *ReservationRepo) FindByStatus(ctx context.Context, status model.ReservationStatus) ([]*model.Reservation, error) {
	return r.filter(ctx, func(res *model.Reservation) bool { return res.Status() == status }), nil
}

func (r *ReservationRepo) FindByHolder(ctx context.Context, holderID uint64) ([]*model.Reservation, error) {
	out := r.filter(ctx, func(res *model.Reservation) bool { return res.HolderID == holderID })
	// newest first, like the SQL ordering
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *ReservationRepo) FindActiveDepartedBefore(ctx context.Context, cutoff time.Time) ([]*model.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var trips writes[*model.TripInventory]
	if tx := txnFrom(ctx); tx != nil {
		trips = tx.trips
	}
	departures := map[uint64]time.Time{}
	var out []*model.Reservation
	r.s.reservations.each(r.ws(ctx), func(res *model.Reservation) {
		if !res.IsActive() {
			return
		}
		dep, ok := departures[res.TripID]
		if !ok {
			t, found := r.s.trips.get(trips, res.TripID)
			if !found {
				return
			}
			dep = t.DepartureAt
			departures[res.TripID] = dep
		}
		if dep.Before(cutoff) {
			out = append(out, res)
		}
	})
	sort.SliceStable(out, func(i, j int) bool { return departures[out[i].TripID].Before(departures[out[j].TripID]) })
	return out, nil
}

func (r *ReservationRepo) filter(ctx context.Context, keep func(*model.Reservation) bool) []*model.Reservation {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Reservation
	r.s.reservations.each(r.ws(ctx), func(res *model.Reservation) {
		if keep(res) {
			out = append(out, res)
		}
	})
	return out
}

// RouteRepo is the in-memory route repository.
type RouteRepo struct{ s *Store }

func (r *RouteRepo) ws(ctx context.Context) writes[*model.Route] {
	if tx := txnFrom(ctx); tx != nil {
		return tx.routes
	}
	return nil
}

func (r *RouteRepo) Create(ctx context.Context, rt *model.Route) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	rt.CreatedAt, rt.UpdatedAt = now, now
	r.s.routes.insert(r.ws(ctx), rt)
	return nil
}

func (r *RouteRepo) FindByID(ctx context.Context, id uint64) (*model.Route, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rt, ok := r.s.routes.get(r.ws(ctx), id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return rt, nil
}

func (r *RouteRepo) FindByIDForUpdate(ctx context.Context, id uint64) (*model.Route, error) {
	return r.FindByID(ctx, id)
}

func (r *RouteRepo) Update(ctx context.Context, rt *model.Route) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rt.UpdatedAt = time.Now().UTC()
	return r.s.routes.update(r.ws(ctx), rt.ID, rt)
}

func (r *RouteRepo) List(ctx context.Context) ([]*model.Route, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Route
	r.s.routes.each(r.ws(ctx), func(rt *model.Route) { out = append(out, rt) })
	return out, nil
}

// Search mirrors the SQL search: ACTIVE routes whose origin and
// destination contain the fragments ignoring case, most popular first.
func (r *RouteRepo) Search(ctx context.Context, origin, destination string) ([]*model.Route, error) {
	origin = strings.ToLower(strings.TrimSpace(origin))
	destination = strings.ToLower(strings.TrimSpace(destination))
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Route
	r.s.routes.each(r.ws(ctx), func(rt *model.Route) {
		if rt.Status == model.RouteActive &&
			strings.Contains(strings.ToLower(rt.Origin), origin) &&
			strings.Contains(strings.ToLower(rt.Destination), destination) {
			out = append(out, rt)
		}
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].PopularityScore > out[j].PopularityScore })
	if len(out) > repository.SearchLimit {
		out = out[:repository.SearchLimit]
	}
	return out, nil
}

// BusRepo is the in-memory bus repository.
type BusRepo struct{ s *Store }

func (r *BusRepo) ws(ctx context.Context) writes[*model.Bus] {
	if tx := txnFrom(ctx); tx != nil {
		return tx.buses
	}
	return nil
}

func (r *BusRepo) Create(ctx context.Context, b *model.Bus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ws := r.ws(ctx)
	dup := false
	r.s.buses.each(ws, func(o *model.Bus) {
		if o.PlateNumber == b.PlateNumber {
			dup = true
		}
	})
	if dup {
		return repository.ErrPlateExists
	}
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	r.s.buses.insert(ws, b)
	return nil
}

func (r *BusRepo) FindByID(ctx context.Context, id uint64) (*model.Bus, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.buses.get(r.ws(ctx), id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return b, nil
}

// FindByIDForUpdate records the bus in the caller's transaction; commit
// fails with ErrConflict if another transaction locked it and committed
// in between.
func (r *BusRepo) FindByIDForUpdate(ctx context.Context, id uint64) (*model.Bus, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.buses.get(r.ws(ctx), id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	if tx := txnFrom(ctx); tx != nil {
		if _, seen := tx.busLocks[id]; !seen {
			tx.busLocks[id] = r.s.busLocks[id]
		}
	}
	return b, nil
}

func (r *BusRepo) UpdateStatus(ctx context.Context, id uint64, status model.BusStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ws := r.ws(ctx)
	b, ok := r.s.buses.get(ws, id)
	if !ok {
		return repository.ErrNotFound
	}
	b.Status = status
	b.UpdatedAt = time.Now().UTC()
	return r.s.buses.update(ws, id, b)
}

func (r *BusRepo) List(ctx context.Context) ([]*model.Bus, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Bus
	r.s.buses.each(r.ws(ctx), func(b *model.Bus) { out = append(out, b) })
	return out, nil
}
