package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/appetiteclub/delivery/pkg/event"
	"github.com/aquamarinepk/aqm"
	"github.com/aquamarinepk/aqm/events"
	"github.com/google/uuid"
)

// MockStreamConsumer is a test mock for events.StreamConsumer
type MockStreamConsumer struct {
	messages  []events.StreamMessage
	FetchFunc func(ctx context.Context, maxMessages int) ([]events.StreamMessage, error)
}

func (m *MockStreamConsumer) Fetch(ctx context.Context, maxMessages int) ([]events.StreamMessage, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, maxMessages)
	}
	return m.messages, nil
}

func (m *MockStreamConsumer) SubscribeStream(ctx context.Context, handler events.HandlerFunc) error {
	return nil
}

func (m *MockStreamConsumer) AddMessage(data []byte) {
	m.messages = append(m.messages, events.StreamMessage{
		Data:      data,
		Sequence:  uint64(len(m.messages) + 1),
		Timestamp: time.Now(),
	})
}

func encodeEvent(t *testing.T, eventType string, o *Order) []byte {
	t.Helper()
	snapshot, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("marshal order: %v", err)
	}
	data, err := json.Marshal(event.OrderLifecycleEvent{
		EventType: eventType,
		OrderID:   o.ID.String(),
		Status:    o.Status,
		Order:     snapshot,
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return data
}

func feedOrder(status string, history int) *Order {
	o := &Order{ID: uuid.New(), CustomerID: "customer-ana", Status: status, CreatedAt: time.Now()}
	for i := 0; i < history; i++ {
		o.History = append(o.History, HistoryEntry{Status: status})
	}
	return o
}

func receive(t *testing.T, ch <-chan []*Order) []*Order {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return v
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
	return nil
}

func TestOrderFeedWarm(t *testing.T) {
	pending := feedOrder("pending", 1)
	confirmed := pending.Clone()
	confirmed.Status = "confirmed"
	confirmed.History = append(confirmed.History, HistoryEntry{Status: "confirmed"})

	tests := []struct {
		name       string
		stream     func(t *testing.T) events.StreamConsumer
		repoOrders []*Order
		wantLen    int
		wantStatus string
	}{
		{
			name: "replaysStreamInOrder",
			stream: func(t *testing.T) events.StreamConsumer {
				s := &MockStreamConsumer{}
				s.AddMessage(encodeEvent(t, event.EventOrderCreated, pending))
				s.AddMessage(encodeEvent(t, event.EventOrderStatusChanged, confirmed))
				s.AddMessage([]byte("garbage"))
				return s
			},
			wantLen:    1,
			wantStatus: "confirmed",
		},
		{
			name: "streamReplayAppliesOnTopOfStore",
			stream: func(t *testing.T) events.StreamConsumer {
				s := &MockStreamConsumer{}
				s.AddMessage(encodeEvent(t, event.EventOrderStatusChanged, confirmed))
				return s
			},
			repoOrders: []*Order{pending},
			wantLen:    1,
			wantStatus: "confirmed",
		},
		{
			name:       "emptyStreamStillLoadsStore",
			stream:     func(t *testing.T) events.StreamConsumer { return &MockStreamConsumer{} },
			repoOrders: []*Order{pending, feedOrder("ready", 4), feedOrder("delivered", 6)},
			wantLen:    3,
			wantStatus: "pending",
		},
		{
			name: "storeOrdersSurviveStreamError",
			stream: func(t *testing.T) events.StreamConsumer {
				return &MockStreamConsumer{FetchFunc: func(ctx context.Context, n int) ([]events.StreamMessage, error) {
					return nil, errors.New("stream gone")
				}}
			},
			repoOrders: []*Order{pending},
			wantLen:    1,
			wantStatus: "pending",
		},
		{
			name: "staleStreamEventDoesNotRewindStore",
			stream: func(t *testing.T) events.StreamConsumer {
				s := &MockStreamConsumer{}
				s.AddMessage(encodeEvent(t, event.EventOrderCreated, pending))
				return s
			},
			repoOrders: []*Order{confirmed},
			wantLen:    1,
			wantStatus: "confirmed",
		},
		{
			name:       "repoOnlyWithoutStream",
			stream:     func(t *testing.T) events.StreamConsumer { return nil },
			repoOrders: []*Order{pending, feedOrder("delivered", 6)},
			wantLen:    2,
			wantStatus: "pending",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMockOrderRepo()
			for _, o := range tt.repoOrders {
				repo.Put(o)
			}
			feed := NewOrderFeed(tt.stream(t), repo, nil, aqm.NewNoopLogger())

			if err := feed.Warm(context.Background()); err != nil {
				t.Fatalf("Warm() error = %v", err)
			}
			if feed.Len() != tt.wantLen {
				t.Fatalf("Len() = %d, want %d", feed.Len(), tt.wantLen)
			}
			for _, o := range feed.Snapshot() {
				if o.ID == pending.ID && o.Status != tt.wantStatus {
					t.Errorf("status = %s, want %s", o.Status, tt.wantStatus)
				}
			}
		})
	}
}

func TestOrderFeedIgnoresStaleSnapshots(t *testing.T) {
	feed := NewOrderFeed(nil, nil, nil, aqm.NewNoopLogger())
	o := feedOrder("pending", 1)
	newer := o.Clone()
	newer.Status = "confirmed"
	newer.History = append(newer.History, HistoryEntry{Status: "confirmed"})

	feed.Apply(newer)
	feed.Apply(o)

	got := feed.Snapshot()
	if len(got) != 1 || got[0].Status != "confirmed" {
		t.Fatalf("snapshot = %+v, want the confirmed copy", got)
	}

	rejected := newer.Clone()
	rejected.RejectedBy = []string{"courier-x"}
	feed.Apply(rejected)
	if len(feed.Snapshot()[0].RejectedBy) != 1 {
		t.Error("rejection update not applied")
	}
}

func TestOrderFeedSubscribe(t *testing.T) {
	feed := NewOrderFeed(nil, nil, nil, aqm.NewNoopLogger())
	feed.Apply(feedOrder("pending", 1))

	ch, cancel := feed.Subscribe(context.Background(), func(orders []*Order) []*Order {
		return AdminView(orders, AdminFilter{Category: CategoryActive})
	})
	defer cancel()

	if got := receive(t, ch); len(got) != 1 {
		t.Fatalf("initial snapshot has %d orders, want 1", len(got))
	}

	feed.Apply(feedOrder("ready", 4))
	if got := receive(t, ch); len(got) != 2 {
		t.Fatalf("second snapshot has %d orders, want 2", len(got))
	}
}

func TestOrderFeedSlowSubscriberGetsLatest(t *testing.T) {
	feed := NewOrderFeed(nil, nil, nil, aqm.NewNoopLogger())
	ch, cancel := feed.Subscribe(context.Background(), func(orders []*Order) []*Order { return orders })
	defer cancel()

	for i := 0; i < 5; i++ {
		feed.Apply(feedOrder("pending", 1))
	}

	if got := receive(t, ch); len(got) != 5 {
		t.Fatalf("pending snapshot has %d orders, want the latest with 5", len(got))
	}
	select {
	case v := <-ch:
		t.Fatalf("unexpected extra snapshot with %d orders", len(v))
	default:
	}
}

func TestOrderFeedCancel(t *testing.T) {
	t.Run("cancelClosesChannel", func(t *testing.T) {
		feed := NewOrderFeed(nil, nil, nil, aqm.NewNoopLogger())
		ch, cancel := feed.Subscribe(context.Background(), func(orders []*Order) []*Order { return orders })
		receive(t, ch)

		cancel()
		cancel()

		if _, ok := <-ch; ok {
			t.Error("channel still open after cancel")
		}
		feed.Apply(feedOrder("pending", 1))
	})

	t.Run("contextEndClosesChannel", func(t *testing.T) {
		feed := NewOrderFeed(nil, nil, nil, aqm.NewNoopLogger())
		ctx, stop := context.WithCancel(context.Background())
		ch, _ := feed.Subscribe(ctx, func(orders []*Order) []*Order { return orders })
		receive(t, ch)

		stop()

		select {
		case _, ok := <-ch:
			if ok {
				t.Error("received a snapshot instead of close")
			}
		case <-time.After(time.Second):
			t.Fatal("channel not closed after context end")
		}
	})
}

func TestWatchAvailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	if _, err := f.dispatcher.SetAvailability(ctx, courierCarl, true); err != nil {
		t.Fatalf("SetAvailability() error = %v", err)
	}

	ch, cancel, err := f.dispatcher.WatchAvailable(ctx, courierCarl)
	if err != nil {
		t.Fatalf("WatchAvailable() error = %v", err)
	}
	defer cancel()
	if got := receive(t, ch); len(got) != 0 {
		t.Fatalf("initial offers = %d, want 0", len(got))
	}

	o := f.placeOrder(customerAna)
	if got := receive(t, ch); len(got) != 1 || got[0].ID != o.ID {
		t.Fatalf("offers = %v, want the new order", ids(got))
	}

	mustDo(f.dispatcher.Accept(ctx, courierDina, o.ID))
	if got := receive(t, ch); len(got) != 0 {
		t.Fatalf("offers after another courier accepted = %d, want 0", len(got))
	}
}

func TestWatchAvailableFollowsAvailabilityToggle(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	mustCourier(f.dispatcher.SetAvailability(ctx, courierCarl, true))
	o := f.placeOrder(customerAna)

	ch, cancel, err := f.dispatcher.WatchAvailable(ctx, courierCarl)
	if err != nil {
		t.Fatalf("WatchAvailable() error = %v", err)
	}
	defer cancel()
	if got := receive(t, ch); len(got) != 1 || got[0].ID != o.ID {
		t.Fatalf("initial offers = %v, want the placed order", ids(got))
	}

	mustCourier(f.dispatcher.SetAvailability(ctx, courierCarl, false))
	if got := receive(t, ch); len(got) != 0 {
		t.Fatalf("offers while unavailable = %v, want none", ids(got))
	}

	f.placeOrder(customerBob)
	if got := receive(t, ch); len(got) != 0 {
		t.Fatalf("new order offered while unavailable: %v", ids(got))
	}

	mustCourier(f.dispatcher.SetAvailability(ctx, courierCarl, true))
	if got := receive(t, ch); len(got) != 2 {
		t.Fatalf("offers after going available again = %v, want 2", ids(got))
	}
}
