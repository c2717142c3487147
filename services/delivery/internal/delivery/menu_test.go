package delivery

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMenuValidate(t *testing.T) {
	tests := []struct {
		name    string
		menu    Menu
		wantErr bool
	}{
		{name: "demoMenu", menu: *DemoMenu("2026-10-17")},
		{name: "emptyMenu", menu: Menu{Date: "2026-10-17"}},
		{name: "badDate", menu: Menu{Date: "17/10/2026"}, wantErr: true},
		{name: "dishWithoutName", menu: Menu{Date: "2026-10-17", Dishes: []Dish{{ID: "a"}}}, wantErr: true},
		{name: "negativePrice", menu: Menu{Date: "2026-10-17", Dishes: []Dish{{ID: "a", Name: "A", Price: MustMoney("-2")}}}, wantErr: true},
		{name: "duplicateDish", menu: Menu{Date: "2026-10-17", Dishes: []Dish{{ID: "a", Name: "A"}, {ID: "a", Name: "B"}}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.menu.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidMenu) {
				t.Errorf("error %v is not ErrInvalidMenu", err)
			}
		})
	}
}

func TestMenuKey(t *testing.T) {
	lima := time.FixedZone("PET", -5*60*60)
	at := time.Date(2026, 10, 18, 2, 0, 0, 0, time.UTC)

	if got := MenuKey(at); got != "2026-10-18" {
		t.Errorf("MenuKey(UTC) = %s, want 2026-10-18", got)
	}
	if got := MenuKey(at.In(lima)); got != "2026-10-17" {
		t.Errorf("MenuKey(Lima) = %s, want 2026-10-17", got)
	}
}

func TestMenuServiceSave(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	first, err := f.menuSvc.Save(ctx, adminEve, DemoMenu("2026-10-17"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	created := first.CreatedAt

	second, err := f.menuSvc.Save(ctx, adminEve, &Menu{Date: "2026-10-17"})
	if err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	if !second.CreatedAt.Equal(created) {
		t.Errorf("created_at changed on update: %v -> %v", created, second.CreatedAt)
	}
	if !second.UpdatedAt.After(created) {
		t.Error("updated_at not advanced")
	}

	got, err := f.menuSvc.Get(ctx, "2026-10-17")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.Dishes) != 0 {
		t.Errorf("menu not replaced: %d dishes", len(got.Dishes))
	}

	if _, err := f.menuSvc.Save(ctx, customerAna, DemoMenu("2026-10-18")); !errors.Is(err, ErrForbidden) {
		t.Errorf("customer Save() error = %v, want forbidden", err)
	}
	if _, err := f.menuSvc.Get(ctx, "2026-10-18"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() missing menu error = %v, want not found", err)
	}
	if _, err := f.menuSvc.Get(ctx, "yesterday"); !errors.Is(err, ErrInvalidMenu) {
		t.Errorf("Get() bad date error = %v, want invalid menu", err)
	}
}
