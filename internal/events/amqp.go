// internal/events/amqp.go
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"mentor-points/internal/metrics"
)

// AMQPConfig locates the broker and the topic exchange events go to.
type AMQPConfig struct {
	URL      string
	Exchange string
}

// amqpChannel is the subset of *amqp.Channel the publisher needs.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes ledger events as persistent JSON messages, routed by event type.
type AMQPPublisher struct {
	exchange string
	conn     *amqp.Connection
	channel  amqpChannel
	mu       sync.Mutex
}

// NewAMQPPublisher dials the broker and declares a durable topic exchange.
func NewAMQPPublisher(cfg AMQPConfig) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		cfg.Exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %q: %w", cfg.Exchange, err)
	}

	return &AMQPPublisher{exchange: cfg.Exchange, conn: conn, channel: ch}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, event LedgerEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.Type, err)
	}

	p.mu.Lock()
	err = p.channel.PublishWithContext(ctx, p.exchange, event.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.TransactionID.String(),
		Timestamp:    event.OccurredAt,
		Type:         event.Type,
		Body:         body,
	})
	p.mu.Unlock()

	if err != nil {
		metrics.EventsPublished.WithLabelValues(event.Type, "error").Inc()
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	metrics.EventsPublished.WithLabelValues(event.Type, "ok").Inc()
	return nil
}

func (p *AMQPPublisher) Close() error {
	var firstErr error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			firstErr = err
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
