package delivery

import "time"

// DailyStats summarizes the orders placed on one day.
type DailyStats struct {
	Date   string `json:"date"`
	Orders int    `json:"orders"`
	// Sales excludes cancelled orders.
	Sales  Money `json:"sales"`
	Active int   `json:"active"`
}

// ComputeDailyStats counts orders created on day in loc.
func ComputeDailyStats(orders []*Order, day time.Time, loc *time.Location) DailyStats {
	if loc == nil {
		loc = time.UTC
	}
	key := day.In(loc).Format(MenuDateLayout)
	stats := DailyStats{Date: key}
	for _, o := range orders {
		if o.CreatedAt.In(loc).Format(MenuDateLayout) != key {
			continue
		}
		stats.Orders++
		if o.Status != statuses.Cancelled.Code() {
			stats.Sales = stats.Sales.Add(o.Total)
		}
		if !o.IsTerminal() {
			stats.Active++
		}
	}
	return stats
}

// CourierTotals is the courier dashboard summary.
type CourierTotals struct {
	Available bool `json:"available"`
	// Offers is the number of orders the courier could accept now.
	Offers  int `json:"offers"`
	EnRoute int `json:"en_route"`
	// ToPickUp counts assigned orders not yet on the way.
	ToPickUp int   `json:"to_pick_up"`
	Amount   Money `json:"amount"`
}

func ComputeCourierTotals(orders []*Order, c *Courier, offers []*Order) CourierTotals {
	totals := CourierTotals{Available: c.Available}
	if c.Available {
		totals.Offers = len(offers)
	}
	for _, o := range CourierView(orders, c.ID) {
		switch o.Status {
		case statuses.EnRoute.Code():
			totals.EnRoute++
		default:
			totals.ToPickUp++
		}
		totals.Amount = totals.Amount.Add(o.Subtotal.Add(o.DeliveryFee))
	}
	return totals
}
