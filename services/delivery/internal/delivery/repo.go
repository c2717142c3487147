package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OrderRepo is the order collection of the document store. Lookups return
// (nil, nil) when the record does not exist.
type OrderRepo interface {
	Create(ctx context.Context, order *Order) error
	Get(ctx context.Context, id uuid.UUID) (*Order, error)
	List(ctx context.Context) ([]*Order, error)
	// ApplyTransition performs t as one atomic conditional update and returns
	// the stored order afterwards, or (nil, nil) when the guard did not match.
	ApplyTransition(ctx context.Context, t Transition) (*Order, error)
	// AddRejection adds courierID to the order's rejected_by set.
	AddRejection(ctx context.Context, id uuid.UUID, courierID string) (*Order, error)
}

type CartRepo interface {
	Get(ctx context.Context, customerID string) (*Cart, error)
	Save(ctx context.Context, cart *Cart) error
	// SaveIf replaces the stored cart only while its updated_at still equals
	// readAt. It reports whether the write happened.
	SaveIf(ctx context.Context, cart *Cart, readAt time.Time) (bool, error)
}

type CourierRepo interface {
	Get(ctx context.Context, courierID string) (*Courier, error)
	SetAvailability(ctx context.Context, courier *Courier) error
	Increment(ctx context.Context, courierID string, counter CourierCounter) error
}

type MenuRepo interface {
	Get(ctx context.Context, date string) (*Menu, error)
	Save(ctx context.Context, menu *Menu) error
}
