package delivery

import (
	"context"
	"testing"
)

func TestApplyDemoSeedsRequiresDatabase(t *testing.T) {
	f := newFixture()

	err := ApplyDemoSeeds(context.Background(), f.menuSvc, nil, "2026-10-17", nil)
	if err == nil {
		t.Fatal("expected error for nil database")
	}
	if err.Error() != "database is required for demo seeding" {
		t.Errorf("error = %q", err.Error())
	}
}

func TestDemoMenu(t *testing.T) {
	m := DemoMenu("2026-10-17")

	if err := m.Validate(); err != nil {
		t.Fatalf("demo menu is invalid: %v", err)
	}
	d, ok := m.Dish("ceviche")
	if !ok || d.Available {
		t.Error("ceviche should be listed and switched off")
	}
}

func TestBuildDemoSeeds(t *testing.T) {
	f := newFixture()
	seeds := buildDemoSeeds(f.menuSvc, "2026-10-17")

	if len(seeds) != 1 {
		t.Fatalf("seeds = %d, want 1", len(seeds))
	}
	if seeds[0].ID != "demo_menu_2026-10-17" {
		t.Errorf("seed id = %q", seeds[0].ID)
	}
	if err := seeds[0].Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	m, err := f.menuSvc.Get(context.Background(), "2026-10-17")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(m.Dishes) != 5 {
		t.Errorf("dishes = %d, want 5", len(m.Dishes))
	}
}
