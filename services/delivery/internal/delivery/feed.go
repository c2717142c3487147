package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/appetiteclub/delivery/pkg/event"
	"github.com/aquamarinepk/aqm"
	"github.com/aquamarinepk/aqm/events"
	"github.com/google/uuid"
)

// CancelFunc ends a subscription. It is safe to call more than once.
type CancelFunc func()

// OrderFeed keeps the latest copy of every order in memory and pushes
// projected snapshots to subscribers whenever an order changes.
type OrderFeed struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*Order
	subs   map[uint64]*subscription
	nextID uint64

	stream  events.StreamConsumer
	repo    OrderRepo
	metrics *Metrics
	logger  aqm.Logger
}

type subscription struct {
	project Projection
	ch      chan []*Order
}

func NewOrderFeed(stream events.StreamConsumer, repo OrderRepo, metrics *Metrics, logger aqm.Logger) *OrderFeed {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &OrderFeed{
		orders:  make(map[uuid.UUID]*Order),
		subs:    make(map[uint64]*subscription),
		stream:  stream,
		repo:    repo,
		metrics: metrics,
		logger:  logger,
	}
}

// Warm loads every stored order and then replays what the event stream still
// holds on top of it. The store is always read: the stream's retention and
// acknowledgements make it an incomplete history.
func (f *OrderFeed) Warm(ctx context.Context) error {
	if err := f.WarmFromRepo(ctx); err != nil {
		return err
	}
	if f.stream == nil {
		return nil
	}
	if err := f.replayStream(ctx); err != nil {
		f.logger.Info("stream replay failed, feed keeps the stored orders", "error", err)
	}
	return nil
}

func (f *OrderFeed) replayStream(ctx context.Context) error {
	messages, err := f.stream.Fetch(ctx, 10000)
	if err != nil {
		return err
	}

	f.logger.Info("fetched order events from stream", "count", len(messages))
	for _, msg := range messages {
		if err := f.ApplyEvent(msg.Data); err != nil {
			f.logger.Error("skipping unreadable order event", "sequence", msg.Sequence, "error", err)
		}
	}
	f.logger.Info("order feed caught up with stream", "orders", f.Len())
	return nil
}

// WarmFromRepo loads every stored order, bypassing the event stream.
func (f *OrderFeed) WarmFromRepo(ctx context.Context) error {
	if f.repo == nil {
		f.logger.Info("no order store configured, feed remains empty")
		return nil
	}

	orders, err := f.repo.List(ctx)
	if err != nil {
		return storeError("warm order feed", err)
	}
	for _, o := range orders {
		f.Apply(o)
	}
	f.logger.Info("order feed warmed from store", "orders", len(orders))
	return nil
}

// ApplyEvent decodes an order lifecycle event and applies its snapshot.
func (f *OrderFeed) ApplyEvent(data []byte) error {
	var evt event.OrderLifecycleEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return fmt.Errorf("decode order event: %w", err)
	}

	switch evt.EventType {
	case event.EventOrderCreated, event.EventOrderStatusChanged, event.EventOrderRejected:
	default:
		return nil
	}

	if len(evt.Order) == 0 {
		return fmt.Errorf("order event %s for %s has no snapshot", evt.EventType, evt.OrderID)
	}
	var o Order
	if err := json.Unmarshal(evt.Order, &o); err != nil {
		return fmt.Errorf("decode order snapshot: %w", err)
	}
	f.Apply(&o)
	return nil
}

// Apply stores o when it is newer than the copy already held and notifies
// subscribers. Stale and repeated snapshots are ignored, so the same change
// may arrive both from the engine and from the event bus.
func (f *OrderFeed) Apply(o *Order) {
	if o == nil || o.ID == uuid.Nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if current, ok := f.orders[o.ID]; ok && !newer(o, current) {
		return
	}
	f.orders[o.ID] = o.Clone()
	f.broadcastLocked()
}

// newer compares the append-only parts of two copies of one order.
func newer(candidate, current *Order) bool {
	if len(candidate.History) != len(current.History) {
		return len(candidate.History) > len(current.History)
	}
	return len(candidate.RejectedBy) > len(current.RejectedBy)
}

// Snapshot returns a copy of every order held.
func (f *OrderFeed) Snapshot() []*Order {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshotLocked()
}

func (f *OrderFeed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.orders)
}

func (f *OrderFeed) snapshotLocked() []*Order {
	out := make([]*Order, 0, len(f.orders))
	for _, o := range f.orders {
		out = append(out, o.Clone())
	}
	return out
}

// Subscribe delivers project(snapshot) now and after every change until
// cancel is called or ctx ends, then closes the channel. A subscriber that
// falls behind only sees the latest snapshot. Delivered orders are shared
// between subscribers and must be treated as read-only.
func (f *OrderFeed) Subscribe(ctx context.Context, project Projection) (<-chan []*Order, CancelFunc) {
	sub := &subscription{project: project, ch: make(chan []*Order, 1)}

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = sub
	sub.deliver(f.snapshotLocked())
	f.mu.Unlock()

	f.metrics.subscriberDelta(1)

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			f.mu.Lock()
			delete(f.subs, id)
			close(sub.ch)
			f.mu.Unlock()
			f.metrics.subscriberDelta(-1)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	return sub.ch, cancel
}

// Refresh re-projects the current orders for every subscriber. It is for
// projections whose inputs change outside the feed.
func (f *OrderFeed) Refresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcastLocked()
}

func (f *OrderFeed) broadcastLocked() {
	if len(f.subs) == 0 {
		return
	}
	snapshot := f.snapshotLocked()
	for _, sub := range f.subs {
		sub.deliver(snapshot)
	}
}

// deliver replaces any undelivered snapshot with the new one. Callers hold
// the feed lock, which also keeps the channel open.
func (s *subscription) deliver(snapshot []*Order) {
	view := s.project(snapshot)
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- view:
	default:
	}
}
