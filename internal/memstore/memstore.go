// Package memstore provides in-memory store implementations with the same
// conditional-write semantics as the SQL stores. Used by tests and by local
// runs without a database.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"tow-dispatch/internal/domain/geo"
	"tow-dispatch/internal/domain/order"
	"tow-dispatch/internal/domain/tariff"
	"tow-dispatch/internal/domain/truck"
	"tow-dispatch/internal/domain/user"
	"tow-dispatch/internal/ports"
)

// HistoryEntry mirrors one order_status_history row.
type HistoryEntry struct {
	OrderID    string
	FromStatus order.Status
	ToStatus   order.Status
	Actor      user.Role
	Reason     string
	At         time.Time
}

// Store holds all tables behind one mutex so compare-and-set operations are
// atomic exactly like a database transaction. The Orders/Trucks/Tariffs
// accessors expose typed views over the shared state.
type Store struct {
	mu      sync.Mutex
	orders  map[string]*order.Order
	trucks  map[string]*truck.TowTruck
	tariffs map[int64]*tariff.VehicleType
	history []HistoryEntry
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		orders:  make(map[string]*order.Order),
		trucks:  make(map[string]*truck.TowTruck),
		tariffs: make(map[int64]*tariff.VehicleType),
	}
}

// Orders returns the OrderStore view.
func (s *Store) Orders() ports.OrderStore { return (*orderStore)(s) }

// Trucks returns the TruckStore view.
func (s *Store) Trucks() ports.TruckStore { return (*truckStore)(s) }

// Tariffs returns the TariffStore view.
func (s *Store) Tariffs() ports.TariffStore { return (*tariffStore)(s) }

// WithinTx just runs fn: every store method here is already atomic.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var _ ports.UnitOfWork = (*Store)(nil)

// ----- seeding helpers -----

// PutTruck inserts or replaces a truck.
func (s *Store) PutTruck(t *truck.TowTruck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trucks[t.ID] = cloneTruck(t)
}

// PutVehicleType inserts or replaces a tariff row.
func (s *Store) PutVehicleType(vt *tariff.VehicleType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *vt
	s.tariffs[vt.ID] = &cp
}

// History returns a copy of the status audit trail for an order.
func (s *Store) History(orderID string) []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []HistoryEntry
	for _, h := range s.history {
		if h.OrderID == orderID {
			out = append(out, h)
		}
	}
	return out
}

// ----- OrderStore view -----

type orderStore Store

var _ ports.OrderStore = (*orderStore)(nil)

func (s *orderStore) Create(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = cloneOrder(o)
	s.appendHistory(o.ID, "", o.Status, user.RoleSystem, "")
	return nil
}

func (s *orderStore) GetByID(_ context.Context, id string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *orderStore) ListSearching(_ context.Context, limit int) ([]*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*order.Order
	for _, o := range s.orders {
		if o.Status == order.StatusSearching {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority.Rank() != out[j].Priority.Rank() {
			return out[i].Priority.Rank() > out[j].Priority.Rank()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *orderStore) ActiveOrderForTruck(_ context.Context, truckID string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.TowTruckID != nil && *o.TowTruckID == truckID &&
			(o.Status == order.StatusAssigned || o.Status == order.StatusInProgress) {
			return cloneOrder(o), nil
		}
	}
	return nil, ports.ErrNotFound
}

func (s *orderStore) UpdateStatus(_ context.Context, orderID string, from, to order.Status, actor user.Role, reason string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	if o.Status != from {
		return nil, ports.ErrStatusConflict
	}

	now := time.Now().UTC()
	o.Status = to
	o.UpdatedAt = now
	switch to {
	case order.StatusSearching:
		o.SearchStartedAt = &now
	case order.StatusAssigned:
		o.AssignedAt = &now
	case order.StatusCompleted:
		o.CompletedAt = &now
		if o.FinalPrice == nil && o.EstimatedPrice != nil {
			price := *o.EstimatedPrice
			o.FinalPrice = &price
		}
	case order.StatusCancelled:
		o.CancelledAt = &now
		if reason != "" {
			r := reason
			o.CancellationReason = &r
		}
	}

	// release the truck together with the terminal edge, same as the SQL
	// store does inside its transaction
	if to.Terminal() && o.TowTruckID != nil {
		if t, ok := s.trucks[*o.TowTruckID]; ok && t.Status == truck.StatusBusy {
			_ = t.Release()
		}
	}

	s.appendHistory(orderID, from, to, actor, reason)
	return cloneOrder(o), nil
}

func (s *orderStore) AssignTruck(_ context.Context, orderID, truckID string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trucks[truckID]
	if !ok || t.Status != truck.StatusAvailable {
		return nil, ports.ErrTruckUnavailable
	}

	o, ok := s.orders[orderID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	if o.Status != order.StatusSearching {
		return nil, ports.ErrStatusConflict
	}

	if err := t.MarkBusy(); err != nil {
		return nil, ports.ErrTruckUnavailable
	}

	now := time.Now().UTC()
	id := truckID
	o.TowTruckID = &id
	o.Status = order.StatusAssigned
	o.AssignedAt = &now
	o.UpdatedAt = now

	s.appendHistory(orderID, order.StatusSearching, order.StatusAssigned, user.RoleSystem, "")
	return cloneOrder(o), nil
}

func (s *orderStore) appendHistory(orderID string, from, to order.Status, actor user.Role, reason string) {
	s.history = append(s.history, HistoryEntry{
		OrderID:    orderID,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
		Reason:     reason,
		At:         time.Now().UTC(),
	})
}

// ----- TruckStore view -----

type truckStore Store

var _ ports.TruckStore = (*truckStore)(nil)

func (s *truckStore) GetByID(_ context.Context, id string) (*truck.TowTruck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trucks[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return cloneTruck(t), nil
}

func (s *truckStore) GetByDriver(_ context.Context, driverID string) (*truck.TowTruck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.trucks {
		if t.DriverID == driverID {
			return cloneTruck(t), nil
		}
	}
	return nil, ports.ErrNotFound
}

func (s *truckStore) ListAvailable(_ context.Context, vehicleTypeID int64) ([]*truck.TowTruck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*truck.TowTruck
	for _, t := range s.trucks {
		if t.Status == truck.StatusAvailable && t.CanCarry(vehicleTypeID) && t.Location != nil {
			out = append(out, cloneTruck(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *truckStore) UpdateLocation(_ context.Context, truckID string, point geo.Point, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trucks[truckID]
	if !ok {
		return ports.ErrNotFound
	}
	if t.Location != nil && !at.After(t.Location.UpdatedAt) {
		return nil // stale report
	}
	return t.ReportLocation(point, at)
}

// ----- TariffStore view -----

type tariffStore Store

var _ ports.TariffStore = (*tariffStore)(nil)

func (s *tariffStore) GetVehicleType(_ context.Context, id int64) (*tariff.VehicleType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vt, ok := s.tariffs[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	cp := *vt
	return &cp, nil
}

// ----- internal helpers -----

func cloneOrder(o *order.Order) *order.Order {
	cp := *o
	cp.TowTruckID = clonePtr(o.TowTruckID)
	cp.EstimatedPrice = clonePtr(o.EstimatedPrice)
	cp.FinalPrice = clonePtr(o.FinalPrice)
	cp.SearchStartedAt = clonePtr(o.SearchStartedAt)
	cp.AssignedAt = clonePtr(o.AssignedAt)
	cp.CompletedAt = clonePtr(o.CompletedAt)
	cp.CancelledAt = clonePtr(o.CancelledAt)
	cp.CancellationReason = clonePtr(o.CancellationReason)
	return &cp
}

func cloneTruck(t *truck.TowTruck) *truck.TowTruck {
	cp := *t
	cp.VehicleTypeIDs = append([]int64(nil), t.VehicleTypeIDs...)
	if t.Location != nil {
		loc := *t.Location
		cp.Location = &loc
	}
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
