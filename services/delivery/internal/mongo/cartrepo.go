package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/appetiteclub/delivery/services/delivery/internal/delivery"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type CartRepo struct {
	collection *mongo.Collection
}

func NewCartRepo(db *mongo.Database) *CartRepo {
	return &CartRepo{
		collection: db.Collection(cartsCollection),
	}
}

func (r *CartRepo) Get(ctx context.Context, customerID string) (*delivery.Cart, error) {
	var c delivery.Cart
	err := r.collection.FindOne(ctx, bson.M{"_id": customerID}).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot get cart: %w", err)
	}
	return &c, nil
}

func (r *CartRepo) Save(ctx context.Context, c *delivery.Cart) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": c.CustomerID}, c, opts); err != nil {
		return fmt.Errorf("cannot save cart: %w", err)
	}
	return nil
}

func (r *CartRepo) SaveIf(ctx context.Context, c *delivery.Cart, readAt time.Time) (bool, error) {
	res, err := r.collection.ReplaceOne(ctx, cartVersionFilter(c.CustomerID, readAt), c)
	if err != nil {
		return false, fmt.Errorf("cannot save cart: %w", err)
	}
	return res.MatchedCount == 1, nil
}

// cartVersionFilter matches the cart as it was read. Stored times are
// millisecond precision.
func cartVersionFilter(customerID string, readAt time.Time) bson.M {
	return bson.M{
		"_id":        customerID,
		"updated_at": readAt.Truncate(time.Millisecond),
	}
}
