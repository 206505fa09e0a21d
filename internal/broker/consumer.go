package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"solana-trade-executor/internal/domain"
)

// ConsumeChannel is the subset of *amqp.Channel used by Consumer.
type ConsumeChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// Handler executes one decoded trade request. A returned error requeues the delivery.
type Handler func(ctx context.Context, req domain.TradeRequest) error

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	Queue       string
	Prefetch    int
	Concurrency int
	Logger      zerolog.Logger
}

// DefaultConcurrency bounds in-flight trade requests.
const DefaultConcurrency = 4

// Consumer reads TradeRequest JSON from a durable queue.
type Consumer struct {
	channel ConsumeChannel
	cfg     ConsumerConfig
	handle  Handler
	log     zerolog.Logger
}

// NewConsumer creates a consumer.
func NewConsumer(ch ConsumeChannel, cfg ConsumerConfig, handle Handler) (*Consumer, error) {
	if cfg.Queue == "" {
		return nil, errors.New("queue name cannot be empty")
	}
	if handle == nil {
		return nil, errors.New("handler is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = cfg.Concurrency
	}
	return &Consumer{
		channel: ch,
		cfg:     cfg,
		handle:  handle,
		log:     cfg.Logger.With().Str("component", "broker").Str("queue", cfg.Queue).Logger(),
	}, nil
}

// Run declares the queue and consumes until ctx is done or the channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	if _, err := c.channel.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", c.cfg.Queue, err)
	}
	if err := c.channel.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos for %s: %w", c.cfg.Queue, err)
	}
	deliveries, err := c.channel.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consume for %s: %w", c.cfg.Queue, err)
	}
	c.log.Info().Int("concurrency", c.cfg.Concurrency).Msg("consumer started")
	return c.Serve(ctx, deliveries)
}

// Serve dispatches deliveries to the handler with bounded concurrency.
// It waits for in-flight handlers before returning.
func (c *Consumer) Serve(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	sem := make(chan struct{}, c.cfg.Concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				_ = d.Nack(false, true)
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				c.process(ctx, d)
			}()
		}
	}
}

func (c *Consumer) process(ctx context.Context, d amqp.Delivery) {
	var req domain.TradeRequest
	if err := json.Unmarshal(d.Body, &req); err != nil {
		c.log.Warn().Err(err).Str("message_id", d.MessageId).Msg("dropping undecodable trade request")
		_ = d.Nack(false, false)
		return
	}
	if req.ID == "" {
		req.ID = d.MessageId
	}

	if err := c.handle(ctx, req); err != nil {
		c.log.Warn().Err(err).Str("trade_id", req.ID).Msg("trade request not handled, requeueing")
		_ = d.Nack(false, true)
		return
	}
	if err := d.Ack(false); err != nil {
		c.log.Warn().Err(err).Str("trade_id", req.ID).Msg("failed to ack delivery")
	}
}
