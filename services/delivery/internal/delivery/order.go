package delivery

import (
	"strings"
	"time"

	"github.com/appetiteclub/delivery/pkg/enums/orderstatus"
	"github.com/aquamarinepk/aqm"
	"github.com/google/uuid"
)

var statuses = orderstatus.Statuses

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentYape     PaymentMethod = "yape"
	PaymentPlin     PaymentMethod = "plin"
	PaymentTransfer PaymentMethod = "transfer"
)

func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentCash, PaymentYape, PaymentPlin, PaymentTransfer:
		return true
	}
	return false
}

type LineItem struct {
	ItemID    string `json:"item_id" bson:"item_id"`
	Name      string `json:"name" bson:"name"`
	UnitPrice Money  `json:"unit_price" bson:"unit_price"`
	Quantity  int    `json:"quantity" bson:"quantity"`
}

func (li LineItem) Amount() Money {
	return li.UnitPrice.Times(li.Quantity)
}

type GeoPoint struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lon float64 `json:"lon" bson:"lon"`
}

// Address is the single delivery address shape; free text is mandatory.
type Address struct {
	Text        string    `json:"text" bson:"text"`
	Reference   string    `json:"reference,omitempty" bson:"reference,omitempty"`
	Coordinates *GeoPoint `json:"coordinates,omitempty" bson:"coordinates,omitempty"`
}

func (a Address) IsBlank() bool {
	return strings.TrimSpace(a.Text) == ""
}

type HistoryEntry struct {
	Status      string    `json:"status" bson:"status"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
	Description string    `json:"description" bson:"description"`
}

type Order struct {
	ID            uuid.UUID     `json:"id" bson:"_id"`
	CustomerID    string        `json:"customer_id" bson:"customer_id"`
	CustomerName  string        `json:"customer_name" bson:"customer_name"`
	CustomerPhone string        `json:"customer_phone" bson:"customer_phone"`
	Items         []LineItem    `json:"items" bson:"items"`
	Address       Address       `json:"address" bson:"address"`
	PaymentMethod PaymentMethod `json:"payment_method" bson:"payment_method"`
	Notes         string        `json:"notes,omitempty" bson:"notes,omitempty"`
	Subtotal      Money         `json:"subtotal" bson:"subtotal"`
	DeliveryFee   Money         `json:"delivery_fee" bson:"delivery_fee"`
	Total         Money         `json:"total" bson:"total"`
	Status        string        `json:"status" bson:"status"`

	CourierID    *string `json:"courier_id" bson:"courier_id"`
	CourierName  string  `json:"courier_name,omitempty" bson:"courier_name,omitempty"`
	CourierPhone string  `json:"courier_phone,omitempty" bson:"courier_phone,omitempty"`

	CancellationReason *string  `json:"cancellation_reason,omitempty" bson:"cancellation_reason,omitempty"`
	CancelledBy        Role     `json:"cancelled_by,omitempty" bson:"cancelled_by,omitempty"`
	RejectedBy         []string `json:"rejected_by,omitempty" bson:"rejected_by,omitempty"`

	History []HistoryEntry `json:"history" bson:"history"`

	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" bson:"updated_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty" bson:"accepted_at,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty" bson:"confirmed_at,omitempty"`
	PreparingAt *time.Time `json:"preparing_at,omitempty" bson:"preparing_at,omitempty"`
	ReadyAt     *time.Time `json:"ready_at,omitempty" bson:"ready_at,omitempty"`
	EnRouteAt   *time.Time `json:"en_route_at,omitempty" bson:"en_route_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" bson:"delivered_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
}

func (o *Order) GetID() uuid.UUID {
	return o.ID
}

func (o *Order) ResourceType() string {
	return "order"
}

func (o *Order) SetID(id uuid.UUID) {
	o.ID = id
}

func NewOrder() *Order {
	return &Order{
		ID:     aqm.GenerateNewID(),
		Status: statuses.Pending.Code(),
	}
}

func (o *Order) EnsureID() {
	if o.ID == uuid.Nil {
		o.ID = aqm.GenerateNewID()
	}
}

// Recompute derives subtotal and total from the line items and the fee.
// Totals are never set any other way.
func (o *Order) Recompute() {
	subtotal := Money{}
	for _, item := range o.Items {
		subtotal = subtotal.Add(item.Amount())
	}
	o.Subtotal = subtotal
	o.Total = subtotal.Add(o.DeliveryFee)
}

func (o *Order) IsTerminal() bool {
	return orderstatus.IsTerminalName(o.Status)
}

func (o *Order) IsAssigned() bool {
	return o.CourierID != nil && *o.CourierID != ""
}

func (o *Order) AssignedTo(courierID string) bool {
	return o.IsAssigned() && *o.CourierID == courierID
}

func (o *Order) RejectedByCourier(courierID string) bool {
	for _, id := range o.RejectedBy {
		if id == courierID {
			return true
		}
	}
	return false
}

// LastEntry returns the newest history entry.
func (o *Order) LastEntry() (HistoryEntry, bool) {
	if len(o.History) == 0 {
		return HistoryEntry{}, false
	}
	return o.History[len(o.History)-1], true
}

// EntriesFor counts history entries recording status.
func (o *Order) EntriesFor(status string) int {
	n := 0
	for _, e := range o.History {
		if e.Status == status {
			n++
		}
	}
	return n
}

// Clone returns a deep copy safe to hand to another goroutine.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]LineItem(nil), o.Items...)
	c.History = append([]HistoryEntry(nil), o.History...)
	c.RejectedBy = append([]string(nil), o.RejectedBy...)
	c.CourierID = cloneString(o.CourierID)
	c.CancellationReason = cloneString(o.CancellationReason)
	if o.Address.Coordinates != nil {
		p := *o.Address.Coordinates
		c.Address.Coordinates = &p
	}
	c.AcceptedAt = cloneTime(o.AcceptedAt)
	c.ConfirmedAt = cloneTime(o.ConfirmedAt)
	c.PreparingAt = cloneTime(o.PreparingAt)
	c.ReadyAt = cloneTime(o.ReadyAt)
	c.EnRouteAt = cloneTime(o.EnRouteAt)
	c.DeliveredAt = cloneTime(o.DeliveredAt)
	c.CancelledAt = cloneTime(o.CancelledAt)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
