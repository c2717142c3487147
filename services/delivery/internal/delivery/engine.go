package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/appetiteclub/delivery/pkg/event"
	"github.com/aquamarinepk/aqm"
	"github.com/aquamarinepk/aqm/events"
	"github.com/google/uuid"
)

// Observer receives every order as stored after a committed write.
type Observer interface {
	Apply(order *Order)
}

type LifecycleDeps struct {
	Orders    OrderRepo
	Publisher events.Publisher
	Observer  Observer
	Metrics   *Metrics
	Clock     func() time.Time
}

// Lifecycle owns every write to an order record. Each transition reads the
// order fresh, checks the rule, then commits through one conditional update
// that repeats the precondition, so two actors racing on a stale read cannot
// both win.
type Lifecycle struct {
	orders    OrderRepo
	publisher events.Publisher
	observer  Observer
	metrics   *Metrics
	now       func() time.Time
	logger    aqm.Logger
}

func NewLifecycle(deps LifecycleDeps, logger aqm.Logger) *Lifecycle {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	now := deps.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Lifecycle{
		orders:    deps.Orders,
		publisher: deps.Publisher,
		observer:  deps.Observer,
		metrics:   deps.Metrics,
		now:       now,
		logger:    logger,
	}
}

// Get reads an order straight from the store.
func (l *Lifecycle) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := l.orders.Get(ctx, id)
	if err != nil {
		return nil, storeError("get order", err)
	}
	if o == nil {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return o, nil
}

// Create stores a new pending order. Totals are recomputed here.
func (l *Lifecycle) Create(ctx context.Context, o *Order) error {
	at := l.now()
	o.EnsureID()
	o.Status = statuses.Pending.Code()
	o.CourierID = nil
	o.CourierName = ""
	o.CourierPhone = ""
	o.CancellationReason = nil
	o.RejectedBy = nil
	o.Recompute()
	o.CreatedAt = at
	o.UpdatedAt = at
	o.History = []HistoryEntry{{
		Status:      o.Status,
		Timestamp:   at,
		Description: "order created, looking for a courier",
	}}

	if err := l.orders.Create(ctx, o); err != nil {
		return storeError("create order", err)
	}

	l.committed(ctx, o, event.EventOrderCreated, "", Session{ActorID: o.CustomerID, Role: RoleCustomer})
	return nil
}

func (l *Lifecycle) Confirm(ctx context.Context, s Session, id uuid.UUID) (*Order, error) {
	return l.applyTransition(ctx, s, id, rules[OpConfirm], "order confirmed by the restaurant", nil)
}

func (l *Lifecycle) StartPreparing(ctx context.Context, s Session, id uuid.UUID) (*Order, error) {
	return l.applyTransition(ctx, s, id, rules[OpStartPreparing], "order is being prepared", nil)
}

func (l *Lifecycle) MarkReady(ctx context.Context, s Session, id uuid.UUID) (*Order, error) {
	return l.applyTransition(ctx, s, id, rules[OpMarkReady], "order ready for pickup", nil)
}

// Accept assigns the courier in s to an unassigned order that is not yet on
// the road. A pending order becomes confirmed; a confirmed, preparing or
// ready order keeps its status.
func (l *Lifecycle) Accept(ctx context.Context, s Session, id uuid.UUID) (*Order, error) {
	name := s.Name
	if name == "" {
		name = s.ActorID
	}
	return l.applyTransition(ctx, s, id, rules[OpAccept], "order accepted by "+name, func(t *Transition, current *Order) {
		t.Courier = &CourierRef{ID: s.ActorID, Name: name, Phone: s.Phone}
		acceptPatch(t, current)
	})
}

// acceptPatch pins the write to the status that was read, so a concurrent
// kitchen transition makes the accept lose the race instead of rewinding it.
func acceptPatch(t *Transition, current *Order) {
	t.From = []string{current.Status}
	if current.Status == statuses.Pending.Code() {
		return
	}
	t.To = current.Status
	t.Entry.Status = current.Status
	t.KeepStatus = true
}

func (l *Lifecycle) MarkEnRoute(ctx context.Context, s Session, id uuid.UUID) (*Order, error) {
	return l.applyTransition(ctx, s, id, rules[OpMarkEnRoute], "courier on the way to the customer", nil)
}

func (l *Lifecycle) MarkDelivered(ctx context.Context, s Session, id uuid.UUID) (*Order, error) {
	return l.applyTransition(ctx, s, id, rules[OpMarkDelivered], "order delivered to the customer", nil)
}

// Cancel is the admin and courier cancellation; an empty reason gets a default.
func (l *Lifecycle) Cancel(ctx context.Context, s Session, id uuid.UUID, reason string) (*Order, error) {
	if reason == "" {
		reason = reasonCancelledByAdmin
		if s.Is(RoleCourier) {
			reason = reasonCancelledByCourier
		}
	}
	return l.applyTransition(ctx, s, id, rules[OpCancel], "order cancelled: "+reason, func(t *Transition, _ *Order) {
		t.CancellationReason = reason
		t.CancelledBy = s.Role
	})
}

func (l *Lifecycle) CancelByCustomer(ctx context.Context, s Session, id uuid.UUID) (*Order, error) {
	return l.applyTransition(ctx, s, id, rules[OpCancelByCustomer], reasonCancelledByCustomer, func(t *Transition, _ *Order) {
		t.CancellationReason = reasonCancelledByCustomer
		t.CancelledBy = RoleCustomer
	})
}

// applyTransition is the only path that changes an order's status.
func (l *Lifecycle) applyTransition(ctx context.Context, s Session, id uuid.UUID, r rule, description string, patch func(*Transition, *Order)) (order *Order, err error) {
	defer func() { l.metrics.transition(r.op, err) }()

	if err := s.Validate(); err != nil {
		return nil, err
	}

	current, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.check(current, s); err != nil {
		return nil, err
	}

	t := Transition{
		OrderID:           id,
		From:              r.from,
		To:                r.to,
		RequireUnassigned: r.unassigned,
		Entry: HistoryEntry{
			Status:      r.to,
			Timestamp:   l.now(),
			Description: description,
		},
	}
	if patch != nil {
		patch(&t, current)
	}

	updated, err := l.orders.ApplyTransition(ctx, t)
	if err != nil {
		return nil, storeError("apply transition", err)
	}
	if updated == nil {
		return nil, l.classifyLostRace(ctx, s, id, r)
	}

	l.logger.Info("order transition applied",
		"order_id", id.String(),
		"operation", string(r.op),
		"from", current.Status,
		"to", updated.Status,
		"actor_id", s.ActorID,
		"actor_role", string(s.Role),
	)
	l.committed(ctx, updated, event.EventOrderStatusChanged, current.Status, s)
	return updated, nil
}

// classifyLostRace explains why a guarded write matched nothing: the order
// changed between our read and our write.
func (l *Lifecycle) classifyLostRace(ctx context.Context, s Session, id uuid.UUID, r rule) error {
	latest, err := l.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := r.check(latest, s); err != nil {
		l.logger.Info("order transition lost a concurrent write",
			"order_id", id.String(),
			"operation", string(r.op),
			"status", latest.Status,
			"error", err,
		)
		return err
	}
	return fmt.Errorf("%w: order %s changed concurrently", ErrInvalidTransition, id)
}

func (l *Lifecycle) committed(ctx context.Context, o *Order, eventType, previous string, s Session) {
	if l.observer != nil {
		l.observer.Apply(o)
	}
	l.publish(ctx, o, eventType, previous, s)
}

func (l *Lifecycle) publish(ctx context.Context, o *Order, eventType, previous string, s Session) {
	if l.publisher == nil {
		return
	}

	snapshot, err := json.Marshal(o)
	if err != nil {
		l.logger.Error("cannot marshal order snapshot", "error", err, "order_id", o.ID.String())
		return
	}

	evt := event.OrderLifecycleEvent{
		EventType:      eventType,
		OccurredAt:     l.now(),
		OrderID:        o.ID.String(),
		Status:         o.Status,
		PreviousStatus: previous,
		ActorID:        s.ActorID,
		ActorRole:      string(s.Role),
		Order:          snapshot,
	}
	if last, ok := o.LastEntry(); ok {
		evt.Description = last.Description
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		l.logger.Error("cannot marshal order lifecycle event", "error", err, "order_id", o.ID.String())
		return
	}
	if err := l.publisher.Publish(ctx, event.OrderLifecycleTopic, payload); err != nil {
		l.logger.Error("cannot publish order lifecycle event", "error", err, "order_id", o.ID.String())
	}
}
