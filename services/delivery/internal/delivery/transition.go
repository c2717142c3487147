package delivery

import (
	"fmt"
	"time"

	"github.com/appetiteclub/delivery/pkg/enums/orderstatus"
	"github.com/google/uuid"
)

// Operation names a lifecycle transition an actor can request.
type Operation string

const (
	OpConfirm          Operation = "confirm"
	OpStartPreparing   Operation = "prepare"
	OpMarkReady        Operation = "ready"
	OpAccept           Operation = "accept"
	OpMarkEnRoute      Operation = "en-route"
	OpMarkDelivered    Operation = "deliver"
	OpCancel           Operation = "cancel"
	OpCancelByCustomer Operation = "cancel-by-customer"
)

const (
	reasonCancelledByCustomer = "cancelled by customer"
	reasonCancelledByAdmin    = "cancelled by admin"
	reasonCancelledByCourier  = "cancelled by courier"
)

type rule struct {
	op     Operation
	to     string
	from   []string
	actors []Role
	// unassigned requires a null courier id, checked again at write time.
	unassigned bool
	// assignee restricts couriers to orders assigned to them.
	assignee bool
	// owner restricts customers to their own orders.
	owner bool
}

var rules = map[Operation]rule{
	OpCancelByCustomer: {
		op:     OpCancelByCustomer,
		to:     statuses.Cancelled.Code(),
		from:   []string{statuses.Pending.Code(), statuses.Confirmed.Code()},
		actors: []Role{RoleCustomer},
		owner:  true,
	},
	OpConfirm: {
		op:     OpConfirm,
		to:     statuses.Confirmed.Code(),
		from:   []string{statuses.Pending.Code()},
		actors: []Role{RoleAdmin},
	},
	OpStartPreparing: {
		op:       OpStartPreparing,
		to:       statuses.Preparing.Code(),
		from:     []string{statuses.Confirmed.Code()},
		actors:   []Role{RoleAdmin, RoleCourier},
		assignee: true,
	},
	OpMarkReady: {
		op:     OpMarkReady,
		to:     statuses.Ready.Code(),
		from:   []string{statuses.Preparing.Code()},
		actors: []Role{RoleAdmin},
	},
	// Accepting past confirmed keeps the kitchen's status; see acceptPatch.
	OpAccept: {
		op: OpAccept,
		to: statuses.Confirmed.Code(),
		from: []string{
			statuses.Pending.Code(),
			statuses.Confirmed.Code(),
			statuses.Preparing.Code(),
			statuses.Ready.Code(),
		},
		actors:     []Role{RoleCourier},
		unassigned: true,
	},
	OpMarkEnRoute: {
		op:       OpMarkEnRoute,
		to:       statuses.EnRoute.Code(),
		from:     []string{statuses.Confirmed.Code(), statuses.Ready.Code()},
		actors:   []Role{RoleCourier},
		assignee: true,
	},
	OpMarkDelivered: {
		op:       OpMarkDelivered,
		to:       statuses.Delivered.Code(),
		from:     []string{statuses.EnRoute.Code(), statuses.Delivered.Code()},
		actors:   []Role{RoleCourier},
		assignee: true,
	},
	OpCancel: {
		op: OpCancel,
		to: statuses.Cancelled.Code(),
		from: []string{
			statuses.Pending.Code(),
			statuses.Confirmed.Code(),
			statuses.Preparing.Code(),
			statuses.Ready.Code(),
		},
		actors:   []Role{RoleAdmin, RoleCourier},
		assignee: true,
	},
}

func (r rule) allowsFrom(status string) bool {
	for _, s := range r.from {
		if s == status {
			return true
		}
	}
	return false
}

func (r rule) allowsActor(role Role) bool {
	for _, a := range r.actors {
		if a == role {
			return true
		}
	}
	return false
}

// check validates a transition against a freshly read order. It never mutates.
func (r rule) check(o *Order, s Session) error {
	if !r.allowsActor(s.Role) {
		return fmt.Errorf("%w: %s cannot %s orders", ErrForbidden, s.Role, r.op)
	}
	if r.owner && s.Is(RoleCustomer) && o.CustomerID != s.ActorID {
		return fmt.Errorf("%w: order belongs to another customer", ErrForbidden)
	}
	if r.unassigned {
		if o.IsTerminal() {
			return r.invalidFrom(o.Status)
		}
		if o.IsAssigned() {
			return ErrAlreadyAssigned
		}
	}
	if r.assignee && s.Is(RoleCourier) && !o.AssignedTo(s.ActorID) {
		return fmt.Errorf("%w: order is not assigned to this courier", ErrForbidden)
	}
	if !r.allowsFrom(o.Status) {
		return r.invalidFrom(o.Status)
	}
	return nil
}

func (r rule) invalidFrom(status string) error {
	return fmt.Errorf("%w: cannot %s an order in state %s", ErrInvalidTransition, r.op, orderstatus.LabelFor(status))
}

// Actions lists the operations s may currently request on o.
func Actions(o *Order, s Session) []Operation {
	var ops []Operation
	for _, op := range []Operation{
		OpAccept, OpConfirm, OpStartPreparing, OpMarkReady,
		OpMarkEnRoute, OpMarkDelivered, OpCancel, OpCancelByCustomer,
	} {
		r := rules[op]
		if op == OpMarkDelivered && o.Status == statuses.Delivered.Code() {
			continue
		}
		if r.check(o, s) == nil {
			ops = append(ops, op)
		}
	}
	return ops
}

type CourierRef struct {
	ID    string
	Name  string
	Phone string
}

// Transition is one conditional write to an order: it applies only while the
// stored record still satisfies From (and, when set, has no courier).
// KeepStatus leaves the stored status and its timestamp untouched.
type Transition struct {
	OrderID            uuid.UUID
	From               []string
	To                 string
	RequireUnassigned  bool
	KeepStatus         bool
	Courier            *CourierRef
	CancellationReason string
	CancelledBy        Role
	Entry              HistoryEntry
}

func (t Transition) At() time.Time {
	return t.Entry.Timestamp
}
