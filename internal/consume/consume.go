// Package consume drains this node's bus queue and pushes events to the
// sessions of chat members. Delivery overlaps with the dispatcher's direct
// push; clients deduplicate by message id.
package consume

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/chatplatform/relay/internal/bus"
	"github.com/chatplatform/relay/internal/dispatch"
	"github.com/chatplatform/relay/internal/model"
	"github.com/chatplatform/relay/internal/store"
	"github.com/chatplatform/relay/pkg/protocol"
)

// Consumer fans bus deliveries out to chat members.
type Consumer struct {
	src       bus.Consumer
	chats     store.ChatStore
	deliverer dispatch.Deliverer
}

func New(src bus.Consumer, chats store.ChatStore, deliverer dispatch.Deliverer) *Consumer {
	return &Consumer{src: src, chats: chats, deliverer: deliverer}
}

// Run blocks draining the queue until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.src.Consume(ctx, c.Handle)
}

// Handle routes one delivery. A nil return acknowledges it; store errors
// propagate so the broker redelivers.
func (c *Consumer) Handle(ctx context.Context, routingKey string, ev protocol.Event) error {
	switch routingKey {
	case protocol.KeyMessageSent:
		return c.handleMessage(ctx, ev)
	case protocol.KeyMessageRead:
		return c.handleRead(ctx, ev)
	case protocol.KeyTypingIndicator:
		return c.handleTyping(ctx, ev)
	case protocol.KeyUserConnected, protocol.KeyUserDisconnected:
		return c.handlePresence(ctx, ev)
	default:
		slog.Debug("consume: ignoring delivery", "key", routingKey)
		return nil
	}
}

func (c *Consumer) handleMessage(ctx context.Context, ev protocol.Event) error {
	var msg model.Message
	if err := json.Unmarshal(ev.Payload, &msg); err != nil {
		slog.Warn("consume: dropping malformed message payload", "error", err)
		return nil
	}
	return c.deliverToMembers(ctx, ev, msg.ChatID, msg.SenderID)
}

func (c *Consumer) handleRead(ctx context.Context, ev protocol.Event) error {
	var p protocol.ReadPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		slog.Warn("consume: dropping malformed read payload", "error", err)
		return nil
	}
	// Everyone sees the receipt, the reader's other sessions included.
	return c.deliverToMembers(ctx, ev, p.ChatID, "")
}

func (c *Consumer) handleTyping(ctx context.Context, ev protocol.Event) error {
	var p protocol.TypingPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		slog.Warn("consume: dropping malformed typing payload", "error", err)
		return nil
	}
	return c.deliverToMembers(ctx, ev, p.ChatID, p.UserID)
}

// handlePresence pushes a connect/disconnect event to everyone who shares a
// chat with the user. Peers in several shared chats get it once.
func (c *Consumer) handlePresence(ctx context.Context, ev protocol.Event) error {
	var p protocol.PresencePayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		slog.Warn("consume: dropping malformed presence payload", "error", err)
		return nil
	}

	chats, err := c.chats.ForUser(ctx, p.UserID)
	if err != nil {
		return err
	}

	seen := map[string]struct{}{p.UserID: {}}
	for _, chat := range chats {
		members, err := c.chats.Members(ctx, chat.ID)
		if err != nil {
			return err
		}
		for _, m := range members {
			if _, done := seen[m.UserID]; done {
				continue
			}
			seen[m.UserID] = struct{}{}
			c.deliverer.DeliverToUser(ctx, m.UserID, ev)
		}
	}
	return nil
}

// deliverToMembers pushes ev to every member of the chat except skipUserID.
func (c *Consumer) deliverToMembers(ctx context.Context, ev protocol.Event, chatID, skipUserID string) error {
	members, err := c.chats.Members(ctx, chatID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.UserID == skipUserID {
			continue
		}
		c.deliverer.DeliverToUser(ctx, m.UserID, ev)
	}
	return nil
}
