package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/chatplatform/relay/internal/config"
	"github.com/chatplatform/relay/internal/errs"
	"github.com/chatplatform/relay/pkg/protocol"
)

// RabbitBus implements Publisher and Consumer on one AMQP connection.
// A single publisher channel is reused across emissions, guarded by a mutex;
// the consumer gets its own channel.
type RabbitBus struct {
	cfg  config.BusConfig
	conn *amqp.Connection

	mu  sync.Mutex
	pub *amqp.Channel
}

// Dial connects to the broker and declares the durable topic exchange.
func Dial(cfg config.BusConfig) (*RabbitBus, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // kind
		true,         // durable
		false,        // auto-delete
		false,        // internal
		false,        // no-wait
		nil,
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}

	return &RabbitBus{cfg: cfg, conn: conn, pub: ch}, nil
}

func (b *RabbitBus) Publish(ctx context.Context, routingKey string, ev protocol.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	err = b.pub.PublishWithContext(ctx,
		b.cfg.Exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    ev.Timestamp,
			Body:         body,
		})
	if err != nil {
		return errs.E(errs.BusUnavailable, fmt.Sprintf("publish %s", routingKey), err)
	}
	return nil
}

// Consume declares this node's durable queue, binds the fan-out patterns and
// drains deliveries until ctx is cancelled. Handled deliveries are acked;
// retryable handler failures are requeued once by the broker, poison payloads
// are nacked without requeue so the dead-letter policy can take them.
func (b *RabbitBus) Consume(ctx context.Context, handler Handler) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	queue := b.cfg.QueueName()
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	for _, pattern := range []string{"message.*", "user.*", protocol.KeyTypingIndicator} {
		if err := ch.QueueBind(queue, pattern, b.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", queue, pattern, err)
		}
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	slog.Info("bus: consumer started", "queue", queue, "exchange", b.cfg.Exchange)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("consumer channel closed")
			}

			var ev protocol.Event
			if err := json.Unmarshal(d.Body, &ev); err != nil {
				slog.Warn("bus: dropping malformed delivery", "key", d.RoutingKey, "error", err)
				d.Nack(false, false)
				continue
			}

			if err := handler(ctx, d.RoutingKey, ev); err != nil {
				slog.Error("bus: handler failed", "key", d.RoutingKey, "error", err)
				d.Nack(false, !d.Redelivered)
				continue
			}
			d.Ack(false)
		}
	}
}

func (b *RabbitBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pub != nil {
		b.pub.Close()
	}
	return b.conn.Close()
}
