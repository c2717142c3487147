package commands

import (
	"context"
	"fmt"

	"github.com/appetiteclub/delivery/cmd/utils/internal/seeding"
	"github.com/aquamarinepk/aqm"
	"go.mongodb.org/mongo-driver/bson"
)

// ClearDemo removes everything seed-demo created, including its seed markers.
func ClearDemo(ctx context.Context, config *aqm.Config, logger aqm.Logger) error {
	logger.Info("Starting demo data cleanup...")

	client, db, err := connect(ctx, config, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(ctx)

	demo := bson.M{"created_by": seeding.CreatedBy}

	orders, err := db.Collection("orders").DeleteMany(ctx, demo)
	if err != nil {
		return fmt.Errorf("delete demo orders: %w", err)
	}
	logger.Info("Deleted demo orders", "count", orders.DeletedCount)

	menus, err := db.Collection("menus").DeleteMany(ctx, demo)
	if err != nil {
		return fmt.Errorf("delete demo menus: %w", err)
	}
	logger.Info("Deleted demo menus", "count", menus.DeletedCount)

	markers, err := db.Collection("_seeds").DeleteMany(ctx, bson.M{"_id": bson.M{"$regex": "^demo_"}})
	if err != nil {
		return fmt.Errorf("delete demo seed markers: %w", err)
	}
	logger.Info("Cleared demo seed markers", "deleted", markers.DeletedCount)

	return nil
}
