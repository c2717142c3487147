package delivery

import "time"

// CourierCounter names one of the best-effort dashboard counters.
type CourierCounter string

const (
	CounterAccepted  CourierCounter = "accepted"
	CounterDelivered CourierCounter = "delivered"
	CounterRejected  CourierCounter = "rejected"
)

func (c CourierCounter) Valid() bool {
	switch c {
	case CounterAccepted, CounterDelivered, CounterRejected:
		return true
	}
	return false
}

// Courier is the availability record of one courier. Counters are
// informational and may drift; nothing reads them for correctness.
type Courier struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Phone     string    `json:"phone,omitempty" bson:"phone,omitempty"`
	Available bool      `json:"available" bson:"available"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
	Accepted  int       `json:"accepted" bson:"accepted"`
	Delivered int       `json:"delivered" bson:"delivered"`
	Rejected  int       `json:"rejected" bson:"rejected"`
}
