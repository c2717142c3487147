package delivery

import (
	"context"
	"errors"

	"github.com/aquamarinepk/aqm"
	"github.com/aquamarinepk/aqm/seed"
	"go.mongodb.org/mongo-driver/mongo"
)

const deliveryDemoSeedApplication = "delivery_demo"

// demoAdmin publishes the demo menu.
var demoAdmin = Session{ActorID: "demo-seed", Name: "Demo seed", Role: RoleAdmin}

// ApplyDemoSeeds publishes a demo menu for date, once per date.
func ApplyDemoSeeds(ctx context.Context, menus *MenuService, db *mongo.Database, date string, logger aqm.Logger) error {
	if db == nil {
		return errors.New("database is required for demo seeding")
	}
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}

	tracker := seed.NewMongoTracker(db)

	logger.Info("applying demo delivery seeds", "date", date)
	if err := seed.Apply(ctx, tracker, buildDemoSeeds(menus, date), deliveryDemoSeedApplication); err != nil {
		return err
	}
	logger.Info("demo delivery seeds applied")
	return nil
}

func buildDemoSeeds(menus *MenuService, date string) []seed.Seed {
	return []seed.Seed{
		{
			ID:          "demo_menu_" + date,
			Description: "Publish the demo menu for " + date,
			Run: func(ctx context.Context) error {
				_, err := menus.Save(ctx, demoAdmin, DemoMenu(date))
				return err
			},
		},
	}
}

// DemoMenu is a small menu with one dish switched off.
func DemoMenu(date string) *Menu {
	return &Menu{
		Date: date,
		Dishes: []Dish{
			{ID: "lomo-saltado", Name: "Lomo saltado", Description: "Beef, onion, tomato, fries and rice", Price: MustMoney("18.00"), Available: true, Category: "mains"},
			{ID: "aji-de-gallina", Name: "Aji de gallina", Description: "Creamy chicken with yellow pepper", Price: MustMoney("15.50"), Available: true, Category: "mains"},
			{ID: "ceviche", Name: "Ceviche", Description: "Fish of the day cured in lime", Price: MustMoney("22.00"), Available: false, Category: "mains"},
			{ID: "chicha-morada", Name: "Chicha morada", Description: "Purple corn drink", Price: MustMoney("4.00"), Available: true, Category: "drinks"},
			{ID: "mazamorra", Name: "Mazamorra morada", Price: MustMoney("5.00"), Available: true, Category: "desserts"},
		},
	}
}
