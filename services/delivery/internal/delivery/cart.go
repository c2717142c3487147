package delivery

import (
	"fmt"
	"strings"
	"time"
)

type CartLine struct {
	ItemID   string `json:"item_id" bson:"item_id"`
	Name     string `json:"name" bson:"name"`
	Price    Money  `json:"price" bson:"price"`
	Quantity int    `json:"quantity" bson:"quantity"`
}

func (l CartLine) Amount() Money {
	return l.Price.Times(l.Quantity)
}

// Cart is a customer's pending selection. Each item appears at most once,
// always with a positive quantity.
type Cart struct {
	CustomerID string     `json:"customer_id" bson:"_id"`
	Lines      []CartLine `json:"lines" bson:"lines"`
	UpdatedAt  time.Time  `json:"updated_at" bson:"updated_at"`
}

func NewCart(customerID string) *Cart {
	return &Cart{CustomerID: customerID, Lines: []CartLine{}}
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

func (c *Cart) indexOf(itemID string) int {
	for i, l := range c.Lines {
		if l.ItemID == itemID {
			return i
		}
	}
	return -1
}

// AddItem bumps the quantity of an item already in the cart, or appends it
// with quantity one.
func (c *Cart) AddItem(item CartLine) error {
	item.ItemID = strings.TrimSpace(item.ItemID)
	if item.ItemID == "" {
		return fmt.Errorf("%w: item id is required", ErrInvalidItem)
	}
	if item.Price.IsNegative() {
		return fmt.Errorf("%w: negative price", ErrInvalidItem)
	}
	if i := c.indexOf(item.ItemID); i >= 0 {
		c.Lines[i].Quantity++
		return nil
	}
	item.Quantity = 1
	c.Lines = append(c.Lines, item)
	return nil
}

// SetQuantity sets an item's quantity; zero or less removes it.
func (c *Cart) SetQuantity(itemID string, qty int) error {
	i := c.indexOf(itemID)
	if i < 0 {
		return fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	if qty <= 0 {
		c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
		return nil
	}
	c.Lines[i].Quantity = qty
	return nil
}

// Without returns a copy of c with the quantities in ordered taken out.
// Lines that reach zero are dropped.
func (c *Cart) Without(ordered []CartLine) *Cart {
	taken := make(map[string]int, len(ordered))
	for _, l := range ordered {
		taken[l.ItemID] += l.Quantity
	}
	out := &Cart{CustomerID: c.CustomerID, Lines: []CartLine{}, UpdatedAt: c.UpdatedAt}
	for _, l := range c.Lines {
		l.Quantity -= taken[l.ItemID]
		if l.Quantity > 0 {
			out.Lines = append(out.Lines, l)
		}
	}
	return out
}

func (c *Cart) Clear() {
	c.Lines = []CartLine{}
}

func (c *Cart) Subtotal() Money {
	total := Money{}
	for _, l := range c.Lines {
		total = total.Add(l.Amount())
	}
	return total
}

// LineItems copies the cart lines into order line items.
func (c *Cart) LineItems() []LineItem {
	items := make([]LineItem, 0, len(c.Lines))
	for _, l := range c.Lines {
		items = append(items, LineItem{
			ItemID:    l.ItemID,
			Name:      l.Name,
			UnitPrice: l.Price,
			Quantity:  l.Quantity,
		})
	}
	return items
}
