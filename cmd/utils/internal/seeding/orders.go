package seeding

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	demoCourierID    = "courier-demo"
	demoCourierName  = "Demo courier"
	demoCourierPhone = "900000001"
	deliveryFee      = "3.00"
)

type demoOrder struct {
	key      string
	customer string
	item     dish
	quantity int
	subtotal string
	total    string
	age      time.Duration
	// path lists the statuses the order went through, oldest first.
	path   []string
	reason string
}

var demoOrders = []demoOrder{
	{
		key: "pending", customer: "customer-demo-1", item: demoDishes[0], quantity: 2,
		subtotal: "36.00", total: "39.00", age: 5 * time.Minute,
		path: []string{"pending"},
	},
	{
		key: "confirmed", customer: "customer-demo-2", item: demoDishes[1], quantity: 1,
		subtotal: "15.50", total: "18.50", age: 20 * time.Minute,
		path: []string{"pending", "confirmed"},
	},
	{
		key: "delivered", customer: "customer-demo-1", item: demoDishes[3], quantity: 3,
		subtotal: "12.00", total: "15.00", age: 90 * time.Minute,
		path: []string{"pending", "confirmed", "en_route", "delivered"},
	},
	{
		key: "cancelled", customer: "customer-demo-3", item: demoDishes[4], quantity: 1,
		subtotal: "5.00", total: "8.00", age: 45 * time.Minute,
		path: []string{"pending", "cancelled"}, reason: "cancelled by customer",
	},
}

var historyText = map[string]string{
	"pending":   "order created, looking for a courier",
	"confirmed": "order accepted by " + demoCourierName,
	"en_route":  "courier on the way to the customer",
	"delivered": "order delivered to the customer",
	"cancelled": "cancelled by customer",
}

var timestampField = map[string]string{
	"confirmed": "confirmed_at",
	"en_route":  "en_route_at",
	"delivered": "delivered_at",
	"cancelled": "cancelled_at",
}

// OrderID is stable per demo key so reseeding does not duplicate orders.
func OrderID(key string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("delivery-demo-order-"+key))
}

// OrderDocuments builds the demo orders as of now. Each status step is one
// minute after the previous one.
func OrderDocuments(now time.Time) []bson.M {
	docs := make([]bson.M, 0, len(demoOrders))
	for _, d := range demoOrders {
		created := now.Add(-d.age)
		status := d.path[len(d.path)-1]

		history := make(bson.A, 0, len(d.path))
		doc := bson.M{
			"_id":            OrderID(d.key),
			"customer_id":    d.customer,
			"customer_name":  "Demo customer",
			"customer_phone": "900000000",
			"items": bson.A{bson.M{
				"item_id":    d.item.id,
				"name":       d.item.name,
				"unit_price": d.item.price,
				"quantity":   d.quantity,
			}},
			"address":        bson.M{"text": "Av. Larco 123, Miraflores"},
			"payment_method": "cash",
			"subtotal":       d.subtotal,
			"delivery_fee":   deliveryFee,
			"total":          d.total,
			"status":         status,
			"courier_id":     nil,
			"created_at":     created,
			"created_by":     CreatedBy,
		}

		at := created
		for i, s := range d.path {
			at = created.Add(time.Duration(i) * time.Minute)
			history = append(history, bson.M{"status": s, "timestamp": at, "description": historyText[s]})
			if field, ok := timestampField[s]; ok {
				doc[field] = at
			}
			if s == "confirmed" {
				doc["courier_id"] = demoCourierID
				doc["courier_name"] = demoCourierName
				doc["courier_phone"] = demoCourierPhone
				doc["accepted_at"] = at
			}
		}
		if status == "cancelled" {
			doc["cancellation_reason"] = d.reason
			doc["cancelled_by"] = "customer"
		}
		doc["history"] = history
		doc["updated_at"] = at
		docs = append(docs, doc)
	}
	return docs
}

// SeedOrders inserts the demo orders that are not there yet.
func SeedOrders(ctx context.Context, db *mongo.Database, now time.Time) error {
	orders := db.Collection("orders")
	for _, doc := range OrderDocuments(now) {
		_, err := orders.UpdateOne(ctx,
			bson.M{"_id": doc["_id"]},
			bson.M{"$setOnInsert": doc},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("cannot create demo order %v: %w", doc["_id"], err)
		}
	}
	return nil
}
