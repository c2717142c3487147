package seeding

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type dish struct {
	id        string
	name      string
	price     string
	available bool
	category  string
}

var demoDishes = []dish{
	{"lomo-saltado", "Lomo saltado", "18.00", true, "mains"},
	{"aji-de-gallina", "Aji de gallina", "15.50", true, "mains"},
	{"ceviche", "Ceviche", "22.00", false, "mains"},
	{"chicha-morada", "Chicha morada", "4.00", true, "drinks"},
	{"mazamorra", "Mazamorra morada", "5.00", true, "desserts"},
}

// MenuDocument builds the demo menu for date. Prices are decimal strings.
func MenuDocument(date string, now time.Time) bson.M {
	dishes := make(bson.A, 0, len(demoDishes))
	for _, d := range demoDishes {
		dishes = append(dishes, bson.M{
			"id":        d.id,
			"name":      d.name,
			"price":     d.price,
			"available": d.available,
			"category":  d.category,
		})
	}
	return bson.M{
		"_id":        date,
		"dishes":     dishes,
		"created_at": now,
		"updated_at": now,
		"created_by": CreatedBy,
	}
}

// SeedMenu publishes the demo menu for date unless a menu already exists.
func SeedMenu(ctx context.Context, db *mongo.Database, date string, now time.Time) error {
	_, err := db.Collection("menus").UpdateOne(ctx,
		bson.M{"_id": date},
		bson.M{"$setOnInsert": MenuDocument(date, now)},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("cannot create demo menu %s: %w", date, err)
	}
	return nil
}
