// Package bus bridges the dispatcher to the durable chat_events topic
// exchange. Publishers mark deliveries persistent; consumers declare their
// own durable queue, bind routing-key patterns and acknowledge manually.
package bus

import (
	"context"

	"github.com/chatplatform/relay/pkg/protocol"
)

// Publisher emits events onto the exchange keyed by routing key.
// Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, ev protocol.Event) error
	Close() error
}

// Handler processes one delivery. Returning nil acknowledges it; a non-nil
// error has the broker redeliver once, after which the delivery is
// dead-lettered.
type Handler func(ctx context.Context, routingKey string, ev protocol.Event) error

// Consumer drains one durable queue bound to the exchange.
type Consumer interface {
	// Consume blocks until ctx is cancelled or the connection fails.
	Consume(ctx context.Context, handler Handler) error
	Close() error
}
