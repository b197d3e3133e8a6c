package orders

import (
	"context"
	"errors"
	"time"

	"tow-dispatch/internal/dispatch"
	"tow-dispatch/internal/domain/geo"
	"tow-dispatch/internal/domain/order"
	"tow-dispatch/internal/domain/user"
	"tow-dispatch/internal/general/logger"
	"tow-dispatch/internal/hub"
	"tow-dispatch/internal/pkg/errs"
	"tow-dispatch/internal/ports"
	"tow-dispatch/internal/pricing"
)

// ReasonNoCapacity is recorded on orders cancelled because no truck could be
// found within the configured wait ceiling.
const ReasonNoCapacity = "NO_CAPACITY_AVAILABLE"

// Config bounds the search loop. The wait-before-giving-up duration is a
// deliberate knob rather than a constant.
type Config struct {
	MaxSearchWait time.Duration // ceiling before a SEARCHING order is cancelled
	SweepInterval time.Duration // how often the scheduler re-runs matching
	SweepBatch    int           // max searching orders examined per sweep
}

func (c Config) withDefaults() Config {
	if c.MaxSearchWait <= 0 {
		c.MaxSearchWait = 2 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 2 * time.Second
	}
	if c.SweepBatch <= 0 {
		c.SweepBatch = 100
	}
	return c
}

// Service owns the order lifecycle: it is the only writer of order status
// and of the truck availability flag (through the store's conditional
// writes).
type Service struct {
	logger  *logger.Logger
	orders  ports.OrderStore
	trucks  ports.TruckStore
	pricing *pricing.Engine
	matcher *dispatch.Matcher
	hub     *hub.Hub
	pub     ports.StatusPublisher
	cfg     Config
}

// NewService wires the order state machine. pub may be nil when no broker is
// attached (tests).
func NewService(log *logger.Logger, orderStore ports.OrderStore, truckStore ports.TruckStore, engine *pricing.Engine, matcher *dispatch.Matcher, locationHub *hub.Hub, pub ports.StatusPublisher, cfg Config) *Service {
	return &Service{
		logger:  log,
		orders:  orderStore,
		trucks:  truckStore,
		pricing: engine,
		matcher: matcher,
		hub:     locationHub,
		pub:     pub,
		cfg:     cfg.withDefaults(),
	}
}

// Create validates the draft, prices it, persists the order in CREATED state
// and immediately begins the truck search.
func (s *Service) Create(ctx context.Context, in ports.CreateOrderInput) (*order.Order, error) {
	priority, err := order.ParsePriority(in.Priority)
	if err != nil {
		return nil, errs.NewValidationErrorWithCause("priority", err)
	}

	pickup, err := geo.NewPoint(in.PickupLatitude, in.PickupLongitude)
	if err != nil {
		return nil, errs.NewValidationErrorWithCause("pickup", err)
	}
	delivery, err := geo.NewPoint(in.DeliveryLatitude, in.DeliveryLongitude)
	if err != nil {
		return nil, errs.NewValidationErrorWithCause("delivery", err)
	}

	quote, err := s.pricing.QuoteAt(ctx, in.VehicleTypeID, in.DistanceKM, &pickup)
	if err != nil {
		return nil, err
	}

	o, err := order.NewOrder(in.ClientID, in.VehicleTypeID, pickup, in.PickupAddress, delivery, in.DeliveryAddress, in.Description, priority, in.DistanceKM)
	if err != nil {
		return nil, errs.NewValidationErrorWithCause("order", err)
	}
	o.EstimatedPrice = &quote.Price

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, err
	}

	ctx = s.logger.WithOrderID(ctx, o.ID)
	s.logger.Info(ctx, "order_created", "Order created", map[string]any{
		"client_id":       o.ClientID,
		"vehicle_type_id": o.VehicleTypeID,
		"priority":        o.Priority.String(),
		"estimated_price": quote.Price,
	})
	s.publishStatus(ctx, o, "", order.StatusCreated, user.RoleSystem, "")

	return s.BeginSearch(ctx, o.ID)
}

// BeginSearch moves CREATED -> SEARCHING and runs one immediate match cycle.
// Failure to find a candidate leaves the order SEARCHING; the sweep
// scheduler keeps retrying until the wait ceiling cancels it.
func (s *Service) BeginSearch(ctx context.Context, orderID string) (*order.Order, error) {
	o, err := s.orders.UpdateStatus(ctx, orderID, order.StatusCreated, order.StatusSearching, user.RoleSystem, "")
	if err != nil {
		if errors.Is(err, ports.ErrStatusConflict) {
			return nil, errs.NewInvalidTransitionError(order.StatusCreated.String(), order.StatusSearching.String(), user.RoleSystem.String())
		}
		return nil, err
	}
	s.publishStatus(ctx, o, order.StatusCreated, order.StatusSearching, user.RoleSystem, "")

	if _, err := s.matcher.MatchAndAssign(ctx, o, s); err != nil {
		if !errors.Is(err, dispatch.ErrNoCandidate) {
			s.logger.Error(ctx, "match_failed", "Initial match cycle failed", err, map[string]any{"order_id": o.ID})
		}
		return o, nil
	}
	return s.orders.GetByID(ctx, orderID)
}

// Assign is the dispatch.Assigner hook: an atomic compare-and-set that
// couples the order's SEARCHING->ASSIGNED edge with the truck's
// AVAILABLE->BUSY flip. Exactly one of two concurrent calls can succeed.
func (s *Service) Assign(ctx context.Context, orderID, truckID string) error {
	o, err := s.orders.AssignTruck(ctx, orderID, truckID)
	if err != nil {
		switch {
		case errors.Is(err, ports.ErrTruckUnavailable):
			return errs.NewAssignmentConflictError(orderID, truckID)
		case errors.Is(err, ports.ErrStatusConflict):
			// the order left SEARCHING concurrently; stop matching it
			return errs.NewInvalidTransitionError(order.StatusSearching.String(), order.StatusAssigned.String(), user.RoleSystem.String())
		default:
			return err
		}
	}

	s.publishStatus(ctx, o, order.StatusSearching, order.StatusAssigned, user.RoleSystem, "")
	return nil
}

// Advance is the generic externally-driven transition, guarded by the
// (from, to, actor-role) legality table. Losers of concurrent updates get
// InvalidTransition.
func (s *Service) Advance(ctx context.Context, in ports.AdvanceInput) (*order.Order, error) {
	to, err := order.ParseStatus(in.RequestedStatus)
	if err != nil {
		return nil, errs.NewValidationErrorWithCause("status", err)
	}
	if !in.ActorRole.Valid() || !in.ActorRole.External() {
		return nil, errs.NewValidationError("actor_role")
	}

	o, err := s.orders.GetByID(ctx, in.OrderID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, errs.NewNotFoundError("order_id", in.OrderID)
		}
		return nil, err
	}
	from := o.Status

	if !transitionAllowed(from, to, in.ActorRole) {
		return nil, errs.NewInvalidTransitionError(from.String(), to.String(), in.ActorRole.String())
	}
	if in.ActorRole == user.RoleDriver {
		if err := s.requireAssignedDriver(ctx, o, in.ActorID); err != nil {
			return nil, err
		}
	}

	updated, err := s.orders.UpdateStatus(ctx, o.ID, from, to, in.ActorRole, in.Reason)
	if err != nil {
		if errors.Is(err, ports.ErrStatusConflict) {
			return nil, errs.NewInvalidTransitionError(from.String(), to.String(), in.ActorRole.String())
		}
		return nil, err
	}

	ctx = s.logger.WithOrderID(ctx, updated.ID)
	s.logger.Info(ctx, "order_advanced", "Order status advanced", map[string]any{
		"from":  from.String(),
		"to":    to.String(),
		"actor": in.ActorRole.String(),
	})
	s.publishStatus(ctx, updated, from, to, in.ActorRole, in.Reason)
	s.finishIfTerminal(ctx, updated)

	return updated, nil
}

// GetByID loads one order.
func (s *Service) GetByID(ctx context.Context, orderID string) (*order.Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, errs.NewNotFoundError("order_id", orderID)
		}
		return nil, err
	}
	return o, nil
}

// Sweep runs one scheduler pass over SEARCHING orders: expired ones are
// cancelled with NO_CAPACITY_AVAILABLE, the rest get another match cycle.
// One order's failure never blocks the others.
func (s *Service) Sweep(ctx context.Context) {
	searching, err := s.orders.ListSearching(ctx, s.cfg.SweepBatch)
	if err != nil {
		s.logger.Error(ctx, "sweep_list_failed", "Failed to list searching orders", err, nil)
		return
	}

	now := time.Now().UTC()
	for _, o := range searching {
		octx := s.logger.WithOrderID(ctx, o.ID)

		if o.SearchDeadlineExceeded(now, s.cfg.MaxSearchWait) {
			s.cancelNoCapacity(octx, o)
			continue
		}

		if _, err := s.matcher.MatchAndAssign(octx, o, s); err != nil && !errors.Is(err, dispatch.ErrNoCandidate) {
			if errors.Is(err, errs.ErrInvalidTransition) {
				continue // order moved on while we were matching
			}
			s.logger.Error(octx, "sweep_match_failed", "Match cycle failed", err, map[string]any{"order_id": o.ID})
		}
	}
}

// ----- internal helpers -----

// requireAssignedDriver checks that the acting driver is the one behind the
// wheel of the order's truck.
func (s *Service) requireAssignedDriver(ctx context.Context, o *order.Order, driverID string) error {
	if o.TowTruckID == nil {
		return errs.NewInvalidTransitionError(o.Status.String(), "", user.RoleDriver.String())
	}
	t, err := s.trucks.GetByID(ctx, *o.TowTruckID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return errs.NewNotFoundError("truck_id", *o.TowTruckID)
		}
		return err
	}
	if t.DriverID != driverID {
		return errs.NewAuthenticationError("driver is not assigned to this order")
	}
	return nil
}

// cancelNoCapacity cancels a SEARCHING order that exhausted its wait
// ceiling. A concurrent assignment winning the race is fine: the CAS just
// fails and we leave the order alone.
func (s *Service) cancelNoCapacity(ctx context.Context, o *order.Order) {
	updated, err := s.orders.UpdateStatus(ctx, o.ID, order.StatusSearching, order.StatusCancelled, user.RoleSystem, ReasonNoCapacity)
	if err != nil {
		if !errors.Is(err, ports.ErrStatusConflict) {
			s.logger.Error(ctx, "no_capacity_cancel_failed", "Failed to cancel unmatched order", err, map[string]any{"order_id": o.ID})
		}
		return
	}

	noCapacity := errs.NewNoCapacityError(o.ID)
	s.logger.Info(ctx, "order_cancelled_no_capacity", noCapacity.Error(), map[string]any{
		"order_id":   o.ID,
		"waited_for": s.cfg.MaxSearchWait.String(),
	})
	s.publishStatus(ctx, updated, order.StatusSearching, order.StatusCancelled, user.RoleSystem, ReasonNoCapacity)
	s.finishIfTerminal(ctx, updated)
}

// finishIfTerminal closes the order's location topic once no further
// transitions are possible. Truck release already happened inside the
// store transaction.
func (s *Service) finishIfTerminal(ctx context.Context, o *order.Order) {
	if !o.Status.Terminal() {
		return
	}
	s.hub.CloseTopic(hub.OrderTopic(o.ID))
}

// publishStatus emits a status event; publishing is best-effort and never
// fails the transition itself.
func (s *Service) publishStatus(ctx context.Context, o *order.Order, from, to order.Status, actor user.Role, reason string) {
	if s.pub == nil {
		return
	}
	evt := ports.OrderStatusEvent{
		OrderID:   o.ID,
		OldStatus: from.String(),
		NewStatus: to.String(),
		Actor:     actor.String(),
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
	if o.TowTruckID != nil {
		evt.TruckID = *o.TowTruckID
	}
	if err := s.pub.PublishOrderStatus(ctx, evt); err != nil {
		s.logger.Error(ctx, "status_publish_failed", "Failed to publish order status event", err, map[string]any{
			"order_id": o.ID,
			"status":   to.String(),
		})
	}
}
