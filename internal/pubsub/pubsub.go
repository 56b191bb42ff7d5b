// Package pubsub is the ephemeral cross-node fan-out layer. Publishes are
// fire-and-forget: a channel with no subscriber drops the message. Durability
// comes from the bus, not from here.
package pubsub

import (
	"context"

	"github.com/chatplatform/relay/pkg/protocol"
)

// UserChannel names the per-user fan-out channel.
func UserChannel(userID string) string { return "ws:user:" + userID }

// ChatChannel names the per-chat broadcast channel (reserved).
func ChatChannel(chatID string) string { return "ws:chat:" + chatID }

// Envelope is the wire event plus the originating node, so a hub can ignore
// envelopes it published itself.
type Envelope struct {
	protocol.Event
	InstanceID string `json:"instanceID"`
}

// PubSub publishes envelopes and maintains at most one subscription per
// channel. Implementations must be safe for concurrent use.
type PubSub interface {
	Publish(ctx context.Context, channel string, env Envelope) error
	// Subscribe registers fn for the channel. fn runs on the receive
	// goroutine and must not block.
	Subscribe(ctx context.Context, channel string, fn func(Envelope)) error
	Unsubscribe(ctx context.Context, channel string) error
	Close() error
}
