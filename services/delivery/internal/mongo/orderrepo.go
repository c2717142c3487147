package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/appetiteclub/delivery/pkg/enums/orderstatus"
	"github.com/appetiteclub/delivery/services/delivery/internal/delivery"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type OrderRepo struct {
	collection *mongo.Collection
}

func NewOrderRepo(db *mongo.Database) *OrderRepo {
	return &OrderRepo{
		collection: db.Collection(ordersCollection),
	}
}

func (r *OrderRepo) Create(ctx context.Context, o *delivery.Order) error {
	if o == nil {
		return fmt.Errorf("order is nil")
	}

	if _, err := r.collection.InsertOne(ctx, o); err != nil {
		return fmt.Errorf("cannot create order: %w", err)
	}

	return nil
}

func (r *OrderRepo) Get(ctx context.Context, id uuid.UUID) (*delivery.Order, error) {
	var o delivery.Order
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&o)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot get order: %w", err)
	}
	return &o, nil
}

func (r *OrderRepo) List(ctx context.Context) ([]*delivery.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot list orders: %w", err)
	}
	defer cursor.Close(ctx)

	var result []*delivery.Order
	if err := cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("cannot decode orders: %w", err)
	}

	return result, nil
}

// ApplyTransition runs the transition as a single findAndModify whose filter
// repeats the precondition. The history entry is pushed, never rewritten.
func (r *OrderRepo) ApplyTransition(ctx context.Context, t delivery.Transition) (*delivery.Order, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var o delivery.Order
	err := r.collection.FindOneAndUpdate(ctx, transitionFilter(t), transitionUpdate(t), opts).Decode(&o)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot apply order transition: %w", err)
	}
	return &o, nil
}

func (r *OrderRepo) AddRejection(ctx context.Context, id uuid.UUID, courierID string) (*delivery.Order, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	update := bson.M{"$addToSet": bson.M{"rejected_by": courierID}}

	var o delivery.Order
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&o)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot add order rejection: %w", err)
	}
	return &o, nil
}

func transitionFilter(t delivery.Transition) bson.M {
	filter := bson.M{
		"_id":    t.OrderID,
		"status": bson.M{"$in": t.From},
	}
	if t.RequireUnassigned {
		// Matches both an explicit null and a missing field.
		filter["courier_id"] = nil
	}
	return filter
}

func transitionUpdate(t delivery.Transition) bson.M {
	at := t.At()
	set := bson.M{"updated_at": at}
	if !t.KeepStatus {
		set["status"] = t.To
		if field, ok := timestampFields[t.To]; ok {
			set[field] = at
		}
	}
	if t.Courier != nil {
		set["courier_id"] = t.Courier.ID
		set["courier_name"] = t.Courier.Name
		set["courier_phone"] = t.Courier.Phone
		set["accepted_at"] = at
	}
	if t.CancellationReason != "" {
		set["cancellation_reason"] = t.CancellationReason
		set["cancelled_by"] = t.CancelledBy
	}
	return bson.M{
		"$set":  set,
		"$push": bson.M{"history": t.Entry},
	}
}

var timestampFields = map[string]string{
	orderstatus.Statuses.Confirmed.Code(): "confirmed_at",
	orderstatus.Statuses.Preparing.Code(): "preparing_at",
	orderstatus.Statuses.Ready.Code():     "ready_at",
	orderstatus.Statuses.EnRoute.Code():   "en_route_at",
	orderstatus.Statuses.Delivered.Code(): "delivered_at",
	orderstatus.Statuses.Cancelled.Code(): "cancelled_at",
}
