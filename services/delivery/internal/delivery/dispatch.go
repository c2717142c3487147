package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/appetiteclub/delivery/pkg/event"
	"github.com/aquamarinepk/aqm"
	"github.com/google/uuid"
)

// RejectionCache remembers, per courier, the orders it turned down in this
// process. It only hides offers sooner; the order's rejected_by set is the
// record of truth.
type RejectionCache struct {
	mu       sync.RWMutex
	rejected map[string]map[uuid.UUID]struct{}
}

func NewRejectionCache() *RejectionCache {
	return &RejectionCache{rejected: make(map[string]map[uuid.UUID]struct{})}
}

func (c *RejectionCache) Add(courierID string, orderID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.rejected[courierID]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		c.rejected[courierID] = set
	}
	set[orderID] = struct{}{}
}

// For returns a copy of the set rejected by courierID.
func (c *RejectionCache) For(courierID string) map[uuid.UUID]struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[uuid.UUID]struct{}, len(c.rejected[courierID]))
	for id := range c.rejected[courierID] {
		out[id] = struct{}{}
	}
	return out
}

type DispatcherDeps struct {
	Lifecycle *Lifecycle
	Orders    OrderRepo
	Couriers  CourierRepo
	Feed      *OrderFeed
	Cache     *RejectionCache
	Metrics   *Metrics
	Clock     func() time.Time
}

// Dispatcher offers pending orders to available couriers and records their
// answers.
type Dispatcher struct {
	lifecycle *Lifecycle
	orders    OrderRepo
	couriers  CourierRepo
	feed      *OrderFeed
	cache     *RejectionCache
	metrics   *Metrics
	now       func() time.Time
	logger    aqm.Logger

	// availability holds the last flag seen per courier; offer projections
	// read it on every snapshot.
	availMu      sync.RWMutex
	availability map[string]bool
}

func NewDispatcher(deps DispatcherDeps, logger aqm.Logger) *Dispatcher {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	cache := deps.Cache
	if cache == nil {
		cache = NewRejectionCache()
	}
	now := deps.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Dispatcher{
		lifecycle: deps.Lifecycle,
		orders:    deps.Orders,
		couriers:  deps.Couriers,
		feed:      deps.Feed,
		cache:     cache,
		metrics:   deps.Metrics,
		now:       now,
		logger:    logger,

		availability: make(map[string]bool),
	}
}

// SetAvailability overwrites the courier's flag. Last write wins.
func (d *Dispatcher) SetAvailability(ctx context.Context, s Session, available bool) (*Courier, error) {
	if err := d.requireCourier(s); err != nil {
		return nil, err
	}

	c := &Courier{
		ID:        s.ActorID,
		Name:      s.Name,
		Phone:     s.Phone,
		Available: available,
		UpdatedAt: d.now(),
	}
	if err := d.couriers.SetAvailability(ctx, c); err != nil {
		return nil, storeError("set availability", err)
	}

	d.setAvailable(s.ActorID, available)
	if d.feed != nil {
		d.feed.Refresh()
	}

	d.logger.Info("courier availability changed", "courier_id", s.ActorID, "available", available)
	return d.Courier(ctx, s)
}

func (d *Dispatcher) setAvailable(courierID string, available bool) {
	d.availMu.Lock()
	defer d.availMu.Unlock()
	d.availability[courierID] = available
}

func (d *Dispatcher) isAvailable(courierID string) bool {
	d.availMu.RLock()
	defer d.availMu.RUnlock()
	return d.availability[courierID]
}

// Courier returns the courier's record; a courier never seen is unavailable.
func (d *Dispatcher) Courier(ctx context.Context, s Session) (*Courier, error) {
	if err := d.requireCourier(s); err != nil {
		return nil, err
	}
	c, err := d.couriers.Get(ctx, s.ActorID)
	if err != nil {
		return nil, storeError("get courier", err)
	}
	if c == nil {
		return &Courier{ID: s.ActorID, Name: s.Name, Phone: s.Phone}, nil
	}
	return c, nil
}

// Accept assigns the order to the courier. Availability is not required
// here; it only gates which orders are offered.
func (d *Dispatcher) Accept(ctx context.Context, s Session, orderID uuid.UUID) (*Order, error) {
	o, err := d.lifecycle.Accept(ctx, s, orderID)
	if err != nil {
		return nil, err
	}
	d.bump(ctx, s.ActorID, CounterAccepted)
	return o, nil
}

// Reject hides the order from this courier. The order's status is untouched.
func (d *Dispatcher) Reject(ctx context.Context, s Session, orderID uuid.UUID) (*Order, error) {
	if err := d.requireCourier(s); err != nil {
		return nil, err
	}

	current, err := d.lifecycle.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current.IsTerminal() {
		return nil, fmt.Errorf("%w: cannot reject an order that is %s", ErrInvalidTransition, current.Status)
	}
	if current.IsAssigned() {
		return nil, ErrAlreadyAssigned
	}

	d.cache.Add(s.ActorID, orderID)

	updated, err := d.orders.AddRejection(ctx, orderID, s.ActorID)
	if err != nil {
		return nil, storeError("add rejection", err)
	}
	if updated == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}

	d.metrics.rejection()
	d.bump(ctx, s.ActorID, CounterRejected)
	d.lifecycle.committed(ctx, updated, event.EventOrderRejected, updated.Status, s)

	d.logger.Info("order rejected by courier", "order_id", orderID.String(), "courier_id", s.ActorID)
	return updated, nil
}

// Deliver marks the order delivered. The courier's counter moves only on
// the write that first delivered it; a repeated delivery is accepted but
// not counted.
func (d *Dispatcher) Deliver(ctx context.Context, s Session, orderID uuid.UUID) (*Order, error) {
	o, err := d.lifecycle.MarkDelivered(ctx, s, orderID)
	if err != nil {
		return nil, err
	}
	if o.EntriesFor(statuses.Delivered.Code()) == 1 {
		d.bump(ctx, s.ActorID, CounterDelivered)
	}
	return o, nil
}

// AvailableProjection builds the courier's offer projection. The stored flag
// is read here; every later snapshot checks the flag again, so an open
// stream empties as soon as the courier goes unavailable.
func (d *Dispatcher) AvailableProjection(ctx context.Context, s Session) (Projection, error) {
	c, err := d.Courier(ctx, s)
	if err != nil {
		return nil, err
	}
	courierID := s.ActorID
	d.setAvailable(courierID, c.Available)
	return func(orders []*Order) []*Order {
		if !d.isAvailable(courierID) {
			return []*Order{}
		}
		return AvailableView(orders, courierID, d.cache.For(courierID))
	}, nil
}

// AvailableOrders is what the courier may accept right now.
func (d *Dispatcher) AvailableOrders(ctx context.Context, s Session) ([]*Order, error) {
	project, err := d.AvailableProjection(ctx, s)
	if err != nil {
		return nil, err
	}
	return project(d.feed.Snapshot()), nil
}

// WatchAvailable streams the courier's offers until ctx ends or cancel is called.
func (d *Dispatcher) WatchAvailable(ctx context.Context, s Session) (<-chan []*Order, CancelFunc, error) {
	project, err := d.AvailableProjection(ctx, s)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := d.feed.Subscribe(ctx, project)
	return ch, cancel, nil
}

// Totals summarizes the courier's dashboard.
func (d *Dispatcher) Totals(ctx context.Context, s Session) (CourierTotals, error) {
	c, err := d.Courier(ctx, s)
	if err != nil {
		return CourierTotals{}, err
	}
	snapshot := d.feed.Snapshot()
	offers := AvailableView(snapshot, s.ActorID, d.cache.For(s.ActorID))
	return ComputeCourierTotals(snapshot, c, offers), nil
}

func (d *Dispatcher) requireCourier(s Session) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if !s.Is(RoleCourier) {
		return fmt.Errorf("%w: only couriers can do this", ErrForbidden)
	}
	return nil
}

func (d *Dispatcher) bump(ctx context.Context, courierID string, counter CourierCounter) {
	if err := d.couriers.Increment(ctx, courierID, counter); err != nil {
		d.logger.Error("cannot update courier counter", "courier_id", courierID, "counter", string(counter), "error", err)
	}
}
