package delivery

import (
	"fmt"
	"sort"
	"strings"

	"github.com/appetiteclub/delivery/pkg/enums/orderstatus"
	"github.com/google/uuid"
)

// Projection derives one view from a full order snapshot. Projections are
// recomputed from scratch on every change and must not mutate their input.
type Projection func(orders []*Order) []*Order

// CustomerView is every order placed by customerID.
func CustomerView(orders []*Order, customerID string) []*Order {
	return selectOrders(orders, func(o *Order) bool {
		return o.CustomerID == customerID
	})
}

// CourierView is the courier's work in progress.
func CourierView(orders []*Order, courierID string) []*Order {
	return selectOrders(orders, func(o *Order) bool {
		return o.AssignedTo(courierID) && !o.IsTerminal()
	})
}

// AvailableView is what courierID may still accept: unassigned, not yet
// finished and not rejected by this courier.
func AvailableView(orders []*Order, courierID string, rejected map[uuid.UUID]struct{}) []*Order {
	return selectOrders(orders, func(o *Order) bool {
		if o.IsAssigned() || o.IsTerminal() {
			return false
		}
		if o.RejectedByCourier(courierID) {
			return false
		}
		_, hidden := rejected[o.ID]
		return !hidden
	})
}

const (
	CategoryAll    = "all"
	CategoryActive = "active"
	CategoryState  = "state"
)

type AdminFilter struct {
	Category string
	Status   string
}

// ParseAdminFilter reads the category and status query values. A status
// without a category implies the state category.
func ParseAdminFilter(category, status string) (AdminFilter, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	status = strings.ToLower(strings.TrimSpace(status))
	if category == "" {
		category = CategoryAll
		if status != "" {
			category = CategoryState
		}
	}
	switch category {
	case CategoryAll, CategoryActive:
		return AdminFilter{Category: category}, nil
	case CategoryState:
		if !orderstatus.IsValid(status) {
			return AdminFilter{}, fmt.Errorf("unknown status %q", status)
		}
		return AdminFilter{Category: category, Status: status}, nil
	}
	return AdminFilter{}, fmt.Errorf("unknown category %q", category)
}

func AdminView(orders []*Order, f AdminFilter) []*Order {
	return selectOrders(orders, func(o *Order) bool {
		switch f.Category {
		case CategoryActive:
			return !o.IsTerminal()
		case CategoryState:
			return o.Status == f.Status
		}
		return true
	})
}

// selectOrders keeps matching orders, newest first, ties by id.
func selectOrders(orders []*Order, keep func(*Order) bool) []*Order {
	out := make([]*Order, 0, len(orders))
	for _, o := range orders {
		if o != nil && keep(o) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
