package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/aquamarinepk/aqm"
	"github.com/google/uuid"
)

// MockOrderRepo is an in-memory OrderRepo with the same conditional update
// semantics as the MongoDB one.
type MockOrderRepo struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*Order

	// BeforeApply runs before the conditional update takes the lock.
	BeforeApply func(t Transition)

	CreateFunc          func(ctx context.Context, o *Order) error
	GetFunc             func(ctx context.Context, id uuid.UUID) (*Order, error)
	ListFunc            func(ctx context.Context) ([]*Order, error)
	ApplyTransitionFunc func(ctx context.Context, t Transition) (*Order, error)
}

func NewMockOrderRepo() *MockOrderRepo {
	return &MockOrderRepo{orders: make(map[uuid.UUID]*Order)}
}

func (m *MockOrderRepo) Create(ctx context.Context, o *Order) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o.Clone()
	return nil
}

func (m *MockOrderRepo) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id].Clone(), nil
}

func (m *MockOrderRepo) List(ctx context.Context) ([]*Order, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o.Clone())
	}
	return out, nil
}

func (m *MockOrderRepo) ApplyTransition(ctx context.Context, t Transition) (*Order, error) {
	if m.ApplyTransitionFunc != nil {
		return m.ApplyTransitionFunc(ctx, t)
	}
	if m.BeforeApply != nil {
		m.BeforeApply(t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.orders[t.OrderID]
	if !transitionMatches(t, stored) {
		return nil, nil
	}
	applyTransitionTo(t, stored)
	return stored.Clone(), nil
}

func (m *MockOrderRepo) AddRejection(ctx context.Context, id uuid.UUID, courierID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	if !stored.RejectedByCourier(courierID) {
		stored.RejectedBy = append(stored.RejectedBy, courierID)
	}
	return stored.Clone(), nil
}

// Put stores o as is, bypassing the engine.
func (m *MockOrderRepo) Put(o *Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o.Clone()
}

func (m *MockOrderRepo) Stored(id uuid.UUID) *Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id].Clone()
}

type MockCartRepo struct {
	mu    sync.Mutex
	carts map[string]*Cart

	GetFunc  func(ctx context.Context, customerID string) (*Cart, error)
	SaveFunc func(ctx context.Context, cart *Cart) error

	// BeforeSaveIf runs before the conditional write takes the lock.
	BeforeSaveIf func(cart *Cart)
}

func NewMockCartRepo() *MockCartRepo {
	return &MockCartRepo{carts: make(map[string]*Cart)}
}

func (m *MockCartRepo) Get(ctx context.Context, customerID string) (*Cart, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, customerID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyCart(m.carts[customerID]), nil
}

func (m *MockCartRepo) Save(ctx context.Context, cart *Cart) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, cart)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[cart.CustomerID] = copyCart(cart)
	return nil
}

func (m *MockCartRepo) SaveIf(ctx context.Context, cart *Cart, readAt time.Time) (bool, error) {
	if m.BeforeSaveIf != nil {
		m.BeforeSaveIf(cart)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.carts[cart.CustomerID]
	if !ok || !stored.UpdatedAt.Equal(readAt) {
		return false, nil
	}
	m.carts[cart.CustomerID] = copyCart(cart)
	return true, nil
}

func copyCart(c *Cart) *Cart {
	if c == nil {
		return nil
	}
	out := *c
	out.Lines = append([]CartLine(nil), c.Lines...)
	return &out
}

type MockCourierRepo struct {
	mu       sync.Mutex
	couriers map[string]*Courier

	IncrementFunc func(ctx context.Context, courierID string, counter CourierCounter) error
}

func NewMockCourierRepo() *MockCourierRepo {
	return &MockCourierRepo{couriers: make(map[string]*Courier)}
}

func (m *MockCourierRepo) Get(ctx context.Context, courierID string) (*Courier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.couriers[courierID]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

func (m *MockCourierRepo) SetAvailability(ctx context.Context, c *Courier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.couriers[c.ID]
	if !ok {
		stored = &Courier{ID: c.ID}
		m.couriers[c.ID] = stored
	}
	stored.Name = c.Name
	stored.Phone = c.Phone
	stored.Available = c.Available
	stored.UpdatedAt = c.UpdatedAt
	return nil
}

func (m *MockCourierRepo) Increment(ctx context.Context, courierID string, counter CourierCounter) error {
	if m.IncrementFunc != nil {
		return m.IncrementFunc(ctx, courierID, counter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.couriers[courierID]
	if !ok {
		c = &Courier{ID: courierID}
		m.couriers[courierID] = c
	}
	switch counter {
	case CounterAccepted:
		c.Accepted++
	case CounterDelivered:
		c.Delivered++
	case CounterRejected:
		c.Rejected++
	}
	return nil
}

type MockMenuRepo struct {
	mu    sync.Mutex
	menus map[string]*Menu

	GetFunc func(ctx context.Context, date string) (*Menu, error)
}

func NewMockMenuRepo() *MockMenuRepo {
	return &MockMenuRepo{menus: make(map[string]*Menu)}
}

func (m *MockMenuRepo) Get(ctx context.Context, date string) (*Menu, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, date)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	menu, ok := m.menus[date]
	if !ok {
		return nil, nil
	}
	out := *menu
	out.Dishes = append([]Dish(nil), menu.Dishes...)
	return &out, nil
}

func (m *MockMenuRepo) Save(ctx context.Context, menu *Menu) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := *menu
	out.Dishes = append([]Dish(nil), menu.Dishes...)
	m.menus[menu.Date] = &out
	return nil
}

// MockPublisher implements events.Publisher for testing
type MockPublisher struct {
	mu     sync.Mutex
	Events []PublishedEvent

	PublishFunc func(ctx context.Context, topic string, data []byte) error
}

type PublishedEvent struct {
	Topic string
	Data  []byte
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, data []byte) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, topic, data)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, PublishedEvent{Topic: topic, Data: data})
	return nil
}

func (m *MockPublisher) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Events)
}

// testClock hands out strictly increasing instants.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	orders     *MockOrderRepo
	carts      *MockCartRepo
	couriers   *MockCourierRepo
	menus      *MockMenuRepo
	publisher  *MockPublisher
	feed       *OrderFeed
	lifecycle  *Lifecycle
	dispatcher *Dispatcher
	cartSvc    *CartService
	menuSvc    *MenuService
	clock      *testClock
}

func newFixture() *fixture {
	f := &fixture{
		orders:    NewMockOrderRepo(),
		carts:     NewMockCartRepo(),
		couriers:  NewMockCourierRepo(),
		menus:     NewMockMenuRepo(),
		publisher: &MockPublisher{},
		clock:     newTestClock(),
	}
	logger := aqm.NewNoopLogger()
	f.feed = NewOrderFeed(nil, f.orders, nil, logger)
	f.lifecycle = NewLifecycle(LifecycleDeps{
		Orders:    f.orders,
		Publisher: f.publisher,
		Observer:  f.feed,
		Clock:     f.clock.Now,
	}, logger)
	f.dispatcher = NewDispatcher(DispatcherDeps{
		Lifecycle: f.lifecycle,
		Orders:    f.orders,
		Couriers:  f.couriers,
		Feed:      f.feed,
		Clock:     f.clock.Now,
	}, logger)
	f.cartSvc = NewCartService(CartServiceDeps{
		Carts:       f.carts,
		Menus:       f.menus,
		Lifecycle:   f.lifecycle,
		DeliveryFee: MustMoney("3.00"),
		Clock:       f.clock.Now,
	}, logger)
	f.menuSvc = NewMenuService(f.menus, f.clock.Now, logger)
	return f
}

var (
	customerAna = Session{ActorID: "customer-ana", Name: "Ana", Phone: "900100200", Role: RoleCustomer}
	customerBob = Session{ActorID: "customer-bob", Name: "Bob", Role: RoleCustomer}
	courierCarl = Session{ActorID: "courier-carl", Name: "Carl", Phone: "900300400", Role: RoleCourier}
	courierDina = Session{ActorID: "courier-dina", Name: "Dina", Role: RoleCourier}
	adminEve    = Session{ActorID: "admin-eve", Name: "Eve", Role: RoleAdmin}
)

// placeOrder creates a pending order for s through the engine.
func (f *fixture) placeOrder(s Session) *Order {
	o := NewOrder()
	o.CustomerID = s.ActorID
	o.CustomerName = s.Name
	o.Items = []LineItem{{ItemID: "lomo", Name: "Lomo saltado", UnitPrice: MustMoney("18.00"), Quantity: 1}}
	o.Address = Address{Text: "Av. Larco 123"}
	o.PaymentMethod = PaymentCash
	o.DeliveryFee = MustMoney("3.00")
	if err := f.lifecycle.Create(context.Background(), o); err != nil {
		panic(err)
	}
	return o
}

// transitionMatches mirrors the MongoDB write guard.
func transitionMatches(t Transition, o *Order) bool {
	if o == nil || o.ID != t.OrderID {
		return false
	}
	if t.RequireUnassigned && o.IsAssigned() {
		return false
	}
	for _, s := range t.From {
		if s == o.Status {
			return true
		}
	}
	return false
}

// applyTransitionTo mirrors the MongoDB $set and $push update.
func applyTransitionTo(t Transition, o *Order) {
	at := t.At()
	o.UpdatedAt = at
	if !t.KeepStatus {
		o.Status = t.To
		stampStatus(o, t.To, at)
	}
	if t.Courier != nil {
		id := t.Courier.ID
		o.CourierID = &id
		o.CourierName = t.Courier.Name
		o.CourierPhone = t.Courier.Phone
		accepted := at
		o.AcceptedAt = &accepted
	}
	if t.CancellationReason != "" {
		reason := t.CancellationReason
		o.CancellationReason = &reason
		o.CancelledBy = t.CancelledBy
	}
	o.History = append(o.History, t.Entry)
}

func stampStatus(o *Order, status string, at time.Time) {
	switch status {
	case statuses.Confirmed.Code():
		o.ConfirmedAt = &at
	case statuses.Preparing.Code():
		o.PreparingAt = &at
	case statuses.Ready.Code():
		o.ReadyAt = &at
	case statuses.EnRoute.Code():
		o.EnRouteAt = &at
	case statuses.Delivered.Code():
		o.DeliveredAt = &at
	case statuses.Cancelled.Code():
		o.CancelledAt = &at
	}
}
