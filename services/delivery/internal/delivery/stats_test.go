package delivery

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestComputeDailyStats(t *testing.T) {
	day := time.Date(2026, 10, 17, 15, 0, 0, 0, time.UTC)
	order := func(status, total string, created time.Time) *Order {
		return &Order{ID: uuid.New(), Status: status, Total: MustMoney(total), CreatedAt: created}
	}
	orders := []*Order{
		order("pending", "21.00", day.Add(-time.Hour)),
		order("delivered", "30.50", day.Add(-2*time.Hour)),
		order("cancelled", "100.00", day.Add(-3*time.Hour)),
		order("en_route", "12.00", day.Add(-4*time.Hour)),
		order("delivered", "99.00", day.Add(-24*time.Hour)),
	}

	got := ComputeDailyStats(orders, day, time.UTC)

	if got.Date != "2026-10-17" {
		t.Errorf("date = %s", got.Date)
	}
	if got.Orders != 4 {
		t.Errorf("orders = %d, want 4", got.Orders)
	}
	if !got.Sales.Equal(MustMoney("63.50")) {
		t.Errorf("sales = %s, want 63.50", got.Sales)
	}
	if got.Active != 2 {
		t.Errorf("active = %d, want 2", got.Active)
	}
}

func TestComputeCourierTotalsUnavailable(t *testing.T) {
	c := &Courier{ID: courierCarl.ActorID, Available: false}
	offers := []*Order{{ID: uuid.New(), Status: "pending"}}

	got := ComputeCourierTotals(nil, c, offers)

	if got.Available || got.Offers != 0 {
		t.Errorf("totals = %+v, want no offers while unavailable", got)
	}
}
