package seeding

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

func TestOrderDocuments(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	docs := OrderDocuments(now)

	if len(docs) != len(demoOrders) {
		t.Fatalf("documents = %d, want %d", len(docs), len(demoOrders))
	}

	for _, doc := range docs {
		status := doc["status"].(string)
		history := doc["history"].(bson.A)
		last := history[len(history)-1].(bson.M)

		if last["status"] != status {
			t.Errorf("order %v: last history status = %v, want %s", doc["_id"], last["status"], status)
		}
		if doc["created_by"] != CreatedBy {
			t.Errorf("order %v: created_by = %v", doc["_id"], doc["created_by"])
		}

		switch status {
		case "pending":
			if doc["courier_id"] != nil {
				t.Errorf("pending order has courier %v", doc["courier_id"])
			}
		case "confirmed", "delivered":
			if doc["courier_id"] != demoCourierID {
				t.Errorf("%s order courier = %v, want %s", status, doc["courier_id"], demoCourierID)
			}
		case "cancelled":
			if doc["cancellation_reason"] == nil {
				t.Error("cancelled order has no reason")
			}
		}
	}
}

func TestOrderIDIsStable(t *testing.T) {
	if OrderID("pending") != OrderID("pending") {
		t.Error("OrderID() should be deterministic")
	}
	if OrderID("pending") == OrderID("confirmed") {
		t.Error("OrderID() should differ per key")
	}
}

func TestMenuDocument(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	doc := MenuDocument("2026-10-17", now)

	if doc["_id"] != "2026-10-17" {
		t.Errorf("_id = %v", doc["_id"])
	}
	dishes := doc["dishes"].(bson.A)
	if len(dishes) != len(demoDishes) {
		t.Errorf("dishes = %d, want %d", len(dishes), len(demoDishes))
	}
	if MenuSeedID("2026-10-17") != "demo_menu_2026-10-17" {
		t.Errorf("MenuSeedID() = %q", MenuSeedID("2026-10-17"))
	}
}
