package pkg

import (
	"context"
	"fmt"
	"time"

	"github.com/aquamarinepk/aqm/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const defaultFetchBatch = 1000

// NATSStream keeps order lifecycle events in a JetStream stream so a fresh
// service instance can rebuild its order snapshot by replaying them.
type NATSStream struct {
	conn     *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	cc       jetstream.ConsumeContext
}

// NATSStreamConfig configures a NATSStream instance.
type NATSStreamConfig struct {
	URL          string        // NATS server URL
	StreamName   string        // e.g. "ORDER_EVENTS"
	Topic        string        // e.g. "orders.lifecycle"
	ConsumerName string        // durable consumer of this instance
	MaxAge       time.Duration // retention window
	MaxMsgs      int64         // 0 keeps every message inside MaxAge
}

func (c NATSStreamConfig) streamConfig() jetstream.StreamConfig {
	sc := jetstream.StreamConfig{
		Name:     c.StreamName,
		Subjects: []string{c.Topic},
		MaxAge:   c.MaxAge,
	}
	if c.MaxMsgs > 0 {
		sc.MaxMsgs = c.MaxMsgs
	}
	return sc
}

func (c NATSStreamConfig) consumerConfig() jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Name:          c.ConsumerName,
		Durable:       c.ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		FilterSubject: c.Topic,
	}
}

// NewNATSStream connects and makes sure the stream and its durable consumer exist.
func NewNATSStream(ctx context.Context, cfg NATSStreamConfig) (*NATSStream, error) {
	conn, err := nats.Connect(cfg.URL, nats.Name(cfg.ConsumerName))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, cfg.streamConfig())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create/update stream %s: %w", cfg.StreamName, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, cfg.consumerConfig())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create/update consumer %s: %w", cfg.ConsumerName, err)
	}

	return &NATSStream{conn: conn, js: js, consumer: consumer}, nil
}

func (s *NATSStream) Publish(ctx context.Context, topic string, msg []byte) error {
	if _, err := s.js.Publish(ctx, topic, msg); err != nil {
		return fmt.Errorf("failed to publish to stream: %w", err)
	}
	return nil
}

// Fetch returns up to limit retained messages, acknowledging each one.
func (s *NATSStream) Fetch(ctx context.Context, limit int) ([]events.StreamMessage, error) {
	if limit <= 0 {
		limit = defaultFetchBatch
	}

	batch, err := s.consumer.Fetch(limit, jetstream.FetchMaxWait(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	var messages []events.StreamMessage
	for msg := range batch.Messages() {
		meta, err := msg.Metadata()
		if err != nil {
			_ = msg.Ack()
			continue
		}
		messages = append(messages, events.StreamMessage{
			Data:      msg.Data(),
			Sequence:  meta.Sequence.Stream,
			Timestamp: meta.Timestamp.UnixNano(),
		})
		_ = msg.Ack()
	}
	if err := batch.Error(); err != nil && ctx.Err() == nil {
		return messages, fmt.Errorf("fetch ended early: %w", err)
	}
	return messages, nil
}

// SubscribeStream pushes new stream messages to handler; failures are nacked for redelivery.
func (s *NATSStream) SubscribeStream(ctx context.Context, handler events.HandlerFunc) error {
	cc, err := s.consumer.Consume(func(msg jetstream.Msg) {
		if err := handler(ctx, msg.Data()); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return err
	}
	s.cc = cc
	return nil
}

// Subscribe implements events.Subscriber; topic is fixed by the consumer filter.
func (s *NATSStream) Subscribe(ctx context.Context, topic string, handler events.HandlerFunc) error {
	return s.SubscribeStream(ctx, handler)
}

func (s *NATSStream) Close() error {
	if s.cc != nil {
		s.cc.Stop()
	}
	s.conn.Close()
	return nil
}
