// Package events consumes CMS post lifecycle events from RabbitMQ. One
// logical publish arrives on two routing keys (the REST insert path and the
// classic status-transition path); the dispatcher's sent marker absorbs the
// duplicate.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"post_notifier/internal/domain"
)

// Handler processes one lifecycle event.
type Handler interface {
	HandlePublish(ctx context.Context, event domain.PublishEvent) (*domain.DispatchStats, error)
}

type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	handler Handler
	logger  *slog.Logger
}

type Config struct {
	URL        string
	Exchange   string
	QueueName  string
	CreatedKey string
	StatusKey  string
}

func NewConsumer(cfg Config, handler Handler, logger *slog.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		cfg.QueueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	for _, key := range []string{cfg.CreatedKey, cfg.StatusKey} {
		if err := ch.QueueBind(q.Name, key, cfg.Exchange, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("bind queue to %q: %w", key, err)
		}
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"created_key", cfg.CreatedKey,
		"status_key", cfg.StatusKey,
	)

	return &Consumer{
		conn:    conn,
		channel: ch,
		queue:   cfg.QueueName,
		handler: handler,
		logger:  logger,
	}, nil
}

// Start consumes until the context is cancelled or the channel closes.
// Deliveries are acked even when handling fails: the sent marker and the
// precondition gates make redelivery pointless, and outbound retry queues
// are out of scope.
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.Consume(
		c.queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("start consume: %w", err)
	}

	c.logger.Info("consuming lifecycle events", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopped")
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.dispatch(ctx, d.RoutingKey, d.Body)
			if err := d.Ack(false); err != nil {
				c.logger.Warn("ack failed", "error", err)
			}
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, routingKey string, body []byte) {
	var event domain.PublishEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.logger.Warn("discarding undecodable event", "routing_key", routingKey, "error", err)
		return
	}
	if event.Origin == "" {
		event.Origin = routingKey
	}

	if _, err := c.handler.HandlePublish(ctx, event); err != nil {
		c.logger.Error("event handling failed",
			"post_id", event.PostID,
			"routing_key", routingKey,
			"error", err,
		)
	}
}

func (c *Consumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
