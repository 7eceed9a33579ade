// Package memstore is an in-process implementation of the repositories
// and the transaction manager. Reads hand out copies, a transaction
// buffers its writes, and commit applies them atomically after checking
// that every touched record still has the version the transaction saw.
// It backs STORAGE=memory and the service tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/iliyamo/bus-seat-reservation/internal/model"
	"github.com/iliyamo/bus-seat-reservation/internal/repository"
)

// Store holds every table behind one mutex.
type Store struct {
	mu           sync.Mutex
	trips        *table[*model.TripInventory]
	reservations *table[*model.Reservation]
	routes       *table[*model.Route]
	buses        *table[*model.Bus]
	// busLocks counts the committed transactions that locked each bus.
	busLocks map[uint64]uint32
}

func New() *Store {
	return &Store{
		busLocks: map[uint64]uint32{},
		trips: newTable("trip",
			(*model.TripInventory).Clone,
			func(t *model.TripInventory) *uint32 { return &t.Version },
			func(t *model.TripInventory, id uint64) { t.ID = id }),
		reservations: newTable("reservation",
			(*model.Reservation).Clone,
			func(r *model.Reservation) *uint32 { return &r.Version },
			func(r *model.Reservation, id uint64) { r.ID = id }),
		routes: newTable("route",
			(*model.Route).Clone,
			func(r *model.Route) *uint32 { return &r.Version },
			func(r *model.Route, id uint64) { r.ID = id }),
		buses: newTable("bus",
			(*model.Bus).Clone,
			nil,
			func(b *model.Bus, id uint64) { b.ID = id }),
	}
}

func (s *Store) Trips() *TripRepo               { return &TripRepo{s: s} }
func (s *Store) Reservations() *ReservationRepo { return &ReservationRepo{s: s} }
func (s *Store) Routes() *RouteRepo             { return &RouteRepo{s: s} }
func (s *Store) Buses() *BusRepo                { return &BusRepo{s: s} }

type txKey struct{}

// txn is the write set of one unit of work.
type txn struct {
	trips        writes[*model.TripInventory]
	reservations writes[*model.Reservation]
	routes       writes[*model.Route]
	buses        writes[*model.Bus]
	// busLocks holds the lock count seen for every bus read for update.
	busLocks map[uint64]uint32
}

func newTxn() *txn {
	return &txn{
		trips:        writes[*model.TripInventory]{},
		reservations: writes[*model.Reservation]{},
		routes:       writes[*model.Route]{},
		buses:        writes[*model.Bus]{},
		busLocks:     map[uint64]uint32{},
	}
}

func txnFrom(ctx context.Context) *txn {
	tx, _ := ctx.Value(txKey{}).(*txn)
	return tx
}

// WithinTransaction runs fn against a private write set and commits it
// when fn succeeds. Nested calls share the outer write set. Nothing is
// visible to other callers until commit, so an error, a panic or a
// cancelled context simply drops the buffered writes.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if txnFrom(ctx) != nil {
		return fn(ctx)
	}
	tx := newTxn()
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit aborted: %w", err)
	}
	return s.commit(tx)
}

func (s *Store) commit(tx *txn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, err := range []error{
		s.trips.validate(tx.trips),
		s.reservations.validate(tx.reservations),
		s.routes.validate(tx.routes),
		s.buses.validate(tx.buses),
		s.validateBusLocks(tx.busLocks),
		s.checkActiveSeats(tx.reservations),
	} {
		if err != nil {
			return err
		}
	}
	s.trips.apply(tx.trips)
	s.reservations.apply(tx.reservations)
	s.routes.apply(tx.routes)
	s.buses.apply(tx.buses)
	for id := range tx.busLocks {
		s.busLocks[id]++
	}
	return nil
}

// validateBusLocks fails the commit when another transaction that locked
// the same bus committed first. It stands in for the row lock MySQL
// takes, so two schedulers of one bus cannot both pass their conflict
// checks.
func (s *Store) validateBusLocks(seen map[uint64]uint32) error {
	for id, n := range seen {
		if s.busLocks[id] != n {
			return fmt.Errorf("commit bus %d: locked by a concurrent transaction: %w", id, repository.ErrConflict)
		}
	}
	return nil
}

// checkActiveSeats refuses a commit that would leave two ACTIVE
// reservations on the same trip seat.
func (s *Store) checkActiveSeats(ws writes[*model.Reservation]) error {
	for _, p := range ws {
		if !p.rec.IsActive() {
			continue
		}
		if s.activeSeatTaken(ws, p.rec) {
			return model.SeatNotAvailableError{Seat: p.rec.Seat.Number()}
		}
	}
	return nil
}

func (s *Store) activeSeatTaken(ws writes[*model.Reservation], r *model.Reservation) bool {
	taken := false
	s.reservations.each(ws, func(o *model.Reservation) {
		if o.ID != r.ID && o.TripID == r.TripID && o.Seat.Number() == r.Seat.Number() && o.IsActive() {
			taken = true
		}
	})
	return taken
}

// pending is a buffered write. base is the stored version the
// transaction first saw; inserts have none.
type pending[T any] struct {
	rec    T
	base   uint32
	insert bool
}

type writes[T any] map[uint64]*pending[T]

// table is one collection of records keyed by id.
type table[T any] struct {
	name    string
	rows    map[uint64]T
	nextID  uint64
	clone   func(T) T
	version func(T) *uint32
	setID   func(T, uint64)
}

func newTable[T any](name string, clone func(T) T, version func(T) *uint32, setID func(T, uint64)) *table[T] {
	return &table[T]{name: name, rows: map[uint64]T{}, clone: clone, version: version, setID: setID}
}

func (t *table[T]) versionOf(rec T) uint32 {
	if t.version == nil {
		return 0
	}
	return *t.version(rec)
}

func (t *table[T]) bump(rec T) {
	if t.version != nil {
		*t.version(rec)++
	}
}

// get returns a copy of the record as the caller sees it: its own
// buffered write when there is one, the committed row otherwise.
func (t *table[T]) get(ws writes[T], id uint64) (T, bool) {
	if p, ok := ws[id]; ok {
		return t.clone(p.rec), true
	}
	rec, ok := t.rows[id]
	if !ok {
		var zero T
		return zero, false
	}
	return t.clone(rec), true
}

// each visits copies of the merged view in id order.
func (t *table[T]) each(ws writes[T], fn func(T)) {
	ids := make([]uint64, 0, len(t.rows)+len(ws))
	for id := range t.rows {
		ids = append(ids, id)
	}
	for id, p := range ws {
		if p.insert {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		rec, _ := t.get(ws, id)
		fn(rec)
	}
}

// insert assigns the next id and version 1. Ids are never reused, even
// when the transaction that took one is dropped.
func (t *table[T]) insert(ws writes[T], rec T) {
	t.nextID++
	t.setID(rec, t.nextID)
	if t.version != nil {
		*t.version(rec) = 1
	}
	if ws == nil {
		t.rows[t.nextID] = t.clone(rec)
		return
	}
	ws[t.nextID] = &pending[T]{rec: t.clone(rec), insert: true}
}

// update stores rec if its version matches the latest one the caller
// can see, then advances the caller's version.
func (t *table[T]) update(ws writes[T], id uint64, rec T) error {
	if p, ok := ws[id]; ok {
		if t.versionOf(p.rec) != t.versionOf(rec) {
			return t.conflict(id, rec)
		}
		t.bump(rec)
		p.rec = t.clone(rec)
		return nil
	}
	stored, ok := t.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	if t.versionOf(stored) != t.versionOf(rec) {
		return t.conflict(id, rec)
	}
	base := t.versionOf(rec)
	t.bump(rec)
	if ws == nil {
		t.rows[id] = t.clone(rec)
		return nil
	}
	ws[id] = &pending[T]{rec: t.clone(rec), base: base}
	return nil
}

func (t *table[T]) conflict(id uint64, rec T) error {
	return fmt.Errorf("update %s %d at version %d: %w", t.name, id, t.versionOf(rec), repository.ErrConflict)
}

func (t *table[T]) validate(ws writes[T]) error {
	for id, p := range ws {
		if p.insert {
			continue
		}
		stored, ok := t.rows[id]
		if !ok {
			return repository.ErrNotFound
		}
		if t.versionOf(stored) != p.base {
			return fmt.Errorf("commit %s %d: stored version %d, read %d: %w",
				t.name, id, t.versionOf(stored), p.base, repository.ErrConflict)
		}
	}
	return nil
}

func (t *table[T]) apply(ws writes[T]) {
	for id, p := range ws {
		t.rows[id] = p.rec
	}
}
