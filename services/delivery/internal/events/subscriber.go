package events

import (
	"context"
	"fmt"

	"github.com/appetiteclub/delivery/pkg/event"
	"github.com/appetiteclub/delivery/services/delivery/internal/delivery"
	"github.com/aquamarinepk/aqm"
	"github.com/aquamarinepk/aqm/events"
)

// OrderLifecycleSubscriber feeds order events published by any replica
// into the local order feed.
type OrderLifecycleSubscriber struct {
	subscriber events.Subscriber
	feed       *delivery.OrderFeed
	logger     aqm.Logger
}

func NewOrderLifecycleSubscriber(subscriber events.Subscriber, feed *delivery.OrderFeed, logger aqm.Logger) *OrderLifecycleSubscriber {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &OrderLifecycleSubscriber{
		subscriber: subscriber,
		feed:       feed,
		logger:     logger,
	}
}

func (s *OrderLifecycleSubscriber) Start(ctx context.Context) error {
	s.logger.Info("starting order lifecycle subscriber", "topic", event.OrderLifecycleTopic)

	if err := s.subscriber.Subscribe(ctx, event.OrderLifecycleTopic, s.handleEvent); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", event.OrderLifecycleTopic, err)
	}

	s.logger.Info("order lifecycle subscriber started")
	return nil
}

func (s *OrderLifecycleSubscriber) handleEvent(ctx context.Context, msg []byte) error {
	if err := s.feed.ApplyEvent(msg); err != nil {
		s.logger.Errorf("cannot apply order event: %v", err)
	}
	return nil
}
