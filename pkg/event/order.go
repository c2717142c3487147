package event

import (
	"encoding/json"
	"time"
)

const (
	// OrderLifecycleTopic carries every committed write to an order record.
	OrderLifecycleTopic = "orders.lifecycle"

	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status.changed"
	EventOrderRejected      = "order.courier.rejected"
)

// OrderLifecycleEvent is published after a write to an order is committed.
// Order holds the full record as stored after the write, so subscribers can
// rebuild their snapshot without reading the store.
type OrderLifecycleEvent struct {
	EventType      string          `json:"event_type"`
	OccurredAt     time.Time       `json:"occurred_at"`
	OrderID        string          `json:"order_id"`
	Status         string          `json:"status"`
	PreviousStatus string          `json:"previous_status,omitempty"`
	ActorID        string          `json:"actor_id,omitempty"`
	ActorRole      string          `json:"actor_role,omitempty"`
	Description    string          `json:"description,omitempty"`
	Order          json.RawMessage `json:"order"`
}
