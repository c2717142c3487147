package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/appetiteclub/delivery/cmd/utils/internal/seeding"
	"github.com/aquamarinepk/aqm"
	"github.com/aquamarinepk/aqm/seed"
)

// SeedDemo publishes today's demo menu and the demo orders. Both seeds are
// tracked, so running it twice is harmless.
func SeedDemo(ctx context.Context, config *aqm.Config, logger aqm.Logger) error {
	logger.Info("Starting demo seeding process...")

	client, db, err := connect(ctx, config, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(ctx)

	now := time.Now().UTC()
	date := now.Format(seeding.DateLayout)

	seeds := []seed.Seed{
		{
			ID:          seeding.MenuSeedID(date),
			Description: "Publish the demo menu for " + date,
			Run: func(ctx context.Context) error {
				return seeding.SeedMenu(ctx, db, date, now)
			},
		},
		{
			ID:          seeding.OrdersSeedID,
			Description: "Create demo delivery orders in pending, confirmed, delivered and cancelled states",
			Run: func(ctx context.Context) error {
				return seeding.SeedOrders(ctx, db, now)
			},
		},
	}

	if err := seed.Apply(ctx, seed.NewMongoTracker(db), seeds, seeding.Application); err != nil {
		return fmt.Errorf("apply demo seeds: %w", err)
	}
	return nil
}
