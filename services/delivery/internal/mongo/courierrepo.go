package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/appetiteclub/delivery/services/delivery/internal/delivery"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type CourierRepo struct {
	collection *mongo.Collection
}

func NewCourierRepo(db *mongo.Database) *CourierRepo {
	return &CourierRepo{
		collection: db.Collection(couriersCollection),
	}
}

func (r *CourierRepo) Get(ctx context.Context, courierID string) (*delivery.Courier, error) {
	var c delivery.Courier
	err := r.collection.FindOne(ctx, bson.M{"_id": courierID}).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot get courier: %w", err)
	}
	return &c, nil
}

// SetAvailability upserts the flag and contact details, leaving counters alone.
func (r *CourierRepo) SetAvailability(ctx context.Context, c *delivery.Courier) error {
	update := bson.M{"$set": bson.M{
		"name":       c.Name,
		"phone":      c.Phone,
		"available":  c.Available,
		"updated_at": c.UpdatedAt,
	}}
	opts := options.Update().SetUpsert(true)
	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": c.ID}, update, opts); err != nil {
		return fmt.Errorf("cannot set courier availability: %w", err)
	}
	return nil
}

func (r *CourierRepo) Increment(ctx context.Context, courierID string, counter delivery.CourierCounter) error {
	if !counter.Valid() {
		return fmt.Errorf("unknown courier counter %q", counter)
	}
	update := bson.M{"$inc": bson.M{string(counter): 1}}
	opts := options.Update().SetUpsert(true)
	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": courierID}, update, opts); err != nil {
		return fmt.Errorf("cannot increment courier %s counter: %w", counter, err)
	}
	return nil
}
