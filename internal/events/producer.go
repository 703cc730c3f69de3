package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaProducer struct {
	writer  messageWriter
	brokers []string
	logger  *zap.Logger
}

func NewKafkaProducer(brokers, topic string, logger *zap.Logger) (*KafkaProducer, error) {
	addrs := splitBrokers(brokers)
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(addrs...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		// Publishes are synchronous and one message at a time.
		BatchSize:    1,
		BatchTimeout: 5 * time.Millisecond,
	}

	return &KafkaProducer{
		writer:  writer,
		brokers: addrs,
		logger:  logger,
	}, nil
}

func splitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func (p *KafkaProducer) PublishOrderCreated(ctx context.Context, event OrderCreatedEvent) error {
	event.Type = TypeOrderCreated
	return p.publish(ctx, event.EventID, event.OrderID, event)
}

func (p *KafkaProducer) PublishOrderStatusChanged(ctx context.Context, event OrderStatusChangedEvent) error {
	event.Type = TypeOrderStatusChanged
	return p.publish(ctx, event.EventID, event.OrderID, event)
}

func (p *KafkaProducer) PublishOrderDeleted(ctx context.Context, event OrderDeletedEvent) error {
	event.Type = TypeOrderDeleted
	return p.publish(ctx, event.EventID, event.OrderID, event)
}

// publish keys every message by order so one order's events stay in one
// partition.
func (p *KafkaProducer) publish(ctx context.Context, eventID, orderID string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte("ORDER#" + orderID),
		Value: data,
	})
	if err != nil {
		p.logger.Error("Failed to publish event",
			zap.String("event_id", eventID),
			zap.String("order_id", orderID),
			zap.Error(err))
		return err
	}

	p.logger.Info("Event published",
		zap.String("event_id", eventID),
		zap.String("order_id", orderID))
	return nil
}

// HealthCheck dials the first reachable broker.
func (p *KafkaProducer) HealthCheck(ctx context.Context) error {
	var lastErr error
	for _, addr := range p.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

func (p *KafkaProducer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// NopProducer discards events. It is used when no brokers are configured.
type NopProducer struct{}

func (NopProducer) PublishOrderCreated(context.Context, OrderCreatedEvent) error { return nil }

func (NopProducer) PublishOrderStatusChanged(context.Context, OrderStatusChangedEvent) error {
	return nil
}

func (NopProducer) PublishOrderDeleted(context.Context, OrderDeletedEvent) error { return nil }

func (NopProducer) HealthCheck(context.Context) error { return nil }

func (NopProducer) Close() error { return nil }
