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

// MenuRepo stores one document per day, keyed by its ISO date.
type MenuRepo struct {
	collection *mongo.Collection
}

func NewMenuRepo(db *mongo.Database) *MenuRepo {
	return &MenuRepo{
		collection: db.Collection(menusCollection),
	}
}

func (r *MenuRepo) Get(ctx context.Context, date string) (*delivery.Menu, error) {
	var m delivery.Menu
	err := r.collection.FindOne(ctx, bson.M{"_id": date}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot get menu: %w", err)
	}
	return &m, nil
}

func (r *MenuRepo) Save(ctx context.Context, m *delivery.Menu) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": m.Date}, m, opts); err != nil {
		return fmt.Errorf("cannot save menu: %w", err)
	}
	return nil
}
