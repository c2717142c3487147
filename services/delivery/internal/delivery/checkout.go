package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aquamarinepk/aqm"
)

// DefaultDeliveryFee is the flat fee charged when none is configured.
const DefaultDeliveryFee = "3.00"

type CheckoutRequest struct {
	Address       Address       `json:"address"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Notes         string        `json:"notes,omitempty"`
	CustomerPhone string        `json:"customer_phone,omitempty"`
}

func (r CheckoutRequest) Validate() error {
	if r.Address.IsBlank() {
		return ErrInvalidAddress
	}
	if !r.PaymentMethod.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPayment, r.PaymentMethod)
	}
	return nil
}

type CartServiceDeps struct {
	Carts       CartRepo
	Menus       MenuRepo
	Lifecycle   *Lifecycle
	DeliveryFee Money
	Metrics     *Metrics
	Clock       func() time.Time
}

// CartService holds each customer's cart and turns it into an order.
type CartService struct {
	carts     CartRepo
	menus     MenuRepo
	lifecycle *Lifecycle
	fee       Money
	metrics   *Metrics
	now       func() time.Time
	logger    aqm.Logger
}

func NewCartService(deps CartServiceDeps, logger aqm.Logger) *CartService {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	now := deps.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &CartService{
		carts:     deps.Carts,
		menus:     deps.Menus,
		lifecycle: deps.Lifecycle,
		fee:       deps.DeliveryFee,
		metrics:   deps.Metrics,
		now:       now,
		logger:    logger,
	}
}

// Get returns the customer's cart, empty when none was stored yet.
func (cs *CartService) Get(ctx context.Context, s Session) (*Cart, error) {
	if err := requireCustomer(s); err != nil {
		return nil, err
	}
	return cs.load(ctx, s.ActorID)
}

func (cs *CartService) AddItem(ctx context.Context, s Session, item CartLine) (*Cart, error) {
	if err := requireCustomer(s); err != nil {
		return nil, err
	}
	cart, err := cs.load(ctx, s.ActorID)
	if err != nil {
		return nil, err
	}
	if err := cart.AddItem(item); err != nil {
		return nil, err
	}
	return cart, cs.save(ctx, cart)
}

// AddDish adds a dish from the menu of date. Dishes switched off for the
// day are refused.
func (cs *CartService) AddDish(ctx context.Context, s Session, date, dishID string) (*Cart, error) {
	if err := requireCustomer(s); err != nil {
		return nil, err
	}
	if date == "" {
		date = MenuKey(cs.now())
	}

	menu, err := cs.menus.Get(ctx, date)
	if err != nil {
		return nil, storeError("get menu", err)
	}
	if menu == nil {
		return nil, fmt.Errorf("menu %s: %w", date, ErrNotFound)
	}
	dish, ok := menu.Dish(dishID)
	if !ok {
		return nil, fmt.Errorf("dish %s: %w", dishID, ErrNotFound)
	}
	if !dish.Available {
		return nil, fmt.Errorf("%w: %s", ErrDishUnavailable, dish.Name)
	}

	return cs.AddItem(ctx, s, CartLine{ItemID: dish.ID, Name: dish.Name, Price: dish.Price})
}

// SetQuantity fails with ErrNotFound when the customer has no cart yet.
func (cs *CartService) SetQuantity(ctx context.Context, s Session, itemID string, qty int) (*Cart, error) {
	if err := requireCustomer(s); err != nil {
		return nil, err
	}
	cart, err := cs.carts.Get(ctx, s.ActorID)
	if err != nil {
		return nil, storeError("get cart", err)
	}
	if cart == nil {
		return nil, fmt.Errorf("cart: %w", ErrNotFound)
	}
	if err := cart.SetQuantity(itemID, qty); err != nil {
		return nil, err
	}
	return cart, cs.save(ctx, cart)
}

func (cs *CartService) Clear(ctx context.Context, s Session) (*Cart, error) {
	if err := requireCustomer(s); err != nil {
		return nil, err
	}
	cart, err := cs.load(ctx, s.ActorID)
	if err != nil {
		return nil, err
	}
	cart.Clear()
	return cart, cs.save(ctx, cart)
}

// Checkout creates a pending order from the cart, then empties the cart.
// When any step before the order is stored fails, the cart is left as it was.
// If clearing fails after the order exists, the order stands and the error
// is only logged.
func (cs *CartService) Checkout(ctx context.Context, s Session, req CheckoutRequest) (order *Order, err error) {
	defer func() { cs.metrics.checkout(err) }()

	if err := requireCustomer(s); err != nil {
		return nil, err
	}
	cart, err := cs.load(ctx, s.ActorID)
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}
	req.Address.Text = strings.TrimSpace(req.Address.Text)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	phone := req.CustomerPhone
	if phone == "" {
		phone = s.Phone
	}
	o := NewOrder()
	o.CustomerID = s.ActorID
	o.CustomerName = s.Name
	o.CustomerPhone = phone
	o.Items = cart.LineItems()
	o.Address = req.Address
	o.PaymentMethod = req.PaymentMethod
	o.Notes = strings.TrimSpace(req.Notes)
	o.DeliveryFee = cs.fee

	if err := cs.lifecycle.Create(ctx, o); err != nil {
		return nil, err
	}

	if err := cs.releaseCheckedOut(ctx, cart); err != nil {
		cs.logger.Error("order placed but cart not cleared", "order_id", o.ID.String(), "customer_id", s.ActorID, "error", err)
	}

	cs.logger.Info("order placed", "order_id", o.ID.String(), "customer_id", s.ActorID, "total", o.Total.String())
	return o, nil
}

const cartReleaseAttempts = 3

// releaseCheckedOut takes the ordered lines out of the stored cart with a
// conditional write, so items added while the order was being placed stay.
func (cs *CartService) releaseCheckedOut(ctx context.Context, ordered *Cart) error {
	current := ordered
	for attempt := 0; attempt < cartReleaseAttempts; attempt++ {
		remaining := current.Without(ordered.Lines)
		remaining.UpdatedAt = cs.now()
		saved, err := cs.carts.SaveIf(ctx, remaining, current.UpdatedAt)
		if err != nil {
			return storeError("clear cart", err)
		}
		if saved {
			return nil
		}
		if current, err = cs.load(ctx, ordered.CustomerID); err != nil {
			return err
		}
	}
	return fmt.Errorf("cart for %s kept changing during checkout", ordered.CustomerID)
}

func (cs *CartService) load(ctx context.Context, customerID string) (*Cart, error) {
	cart, err := cs.carts.Get(ctx, customerID)
	if err != nil {
		return nil, storeError("get cart", err)
	}
	if cart == nil {
		return NewCart(customerID), nil
	}
	return cart, nil
}

func (cs *CartService) save(ctx context.Context, cart *Cart) error {
	cart.UpdatedAt = cs.now()
	if err := cs.carts.Save(ctx, cart); err != nil {
		return storeError("save cart", err)
	}
	return nil
}

func requireCustomer(s Session) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if !s.Is(RoleCustomer) {
		return fmt.Errorf("%w: only customers have a cart", ErrForbidden)
	}
	return nil
}
