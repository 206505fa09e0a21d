// Package broker connects the executor to RabbitMQ: trade requests in, trade results out.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"solana-trade-executor/internal/domain"
)

// PublishChannel is the subset of *amqp.Channel used by Publisher.
type PublishChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher publishes TradeResult JSON to a fanout exchange.
type Publisher struct {
	channel  PublishChannel
	exchange string
	now      func() time.Time
	mu       sync.Mutex
}

// NewPublisher declares the exchange and returns a publisher.
func NewPublisher(ch PublishChannel, exchange string) (*Publisher, error) {
	if exchange == "" {
		return nil, errors.New("exchange name cannot be empty")
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Publisher{channel: ch, exchange: exchange, now: time.Now}, nil
}

// Emit publishes r. Publisher satisfies sink.Sink.
func (p *Publisher) Emit(ctx context.Context, r *domain.TradeResult) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal trade result: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    r.TradeID,
		Timestamp:    p.now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish trade result %s: %w", r.TradeID, err)
	}
	return nil
}
