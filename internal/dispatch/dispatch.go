// Package dispatch implements the send-side operations: message admission,
// personal-chat resolution, blocking, read receipts, typing and stories.
// Persistence commits first; bus and session fan-out happen after the commit
// and never roll it back.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/chatplatform/relay/internal/bus"
	"github.com/chatplatform/relay/internal/errs"
	"github.com/chatplatform/relay/internal/model"
	"github.com/chatplatform/relay/internal/store"
	"github.com/chatplatform/relay/pkg/protocol"
)

// Deliverer pushes an event to every live session of a user, on this node
// and through the pub/sub layer on every other node.
type Deliverer interface {
	DeliverToUser(ctx context.Context, userID string, ev protocol.Event)
}

// Dispatcher coordinates the stores, the bus and the session layer.
type Dispatcher struct {
	stores    *store.Stores
	pub       bus.Publisher
	deliverer Deliverer
	tracer    trace.Tracer
}

func New(stores *store.Stores, pub bus.Publisher, deliverer Deliverer) *Dispatcher {
	return &Dispatcher{
		stores:    stores,
		pub:       pub,
		deliverer: deliverer,
		tracer:    otel.Tracer("relay/dispatch"),
	}
}

// SendToChat validates, persists and fans out one message. The admission
// rule (membership, block flag) is enforced inside the store transaction;
// a committed message is delivered even if the bus is down.
func (d *Dispatcher) SendToChat(ctx context.Context, senderID, chatID, kind, content, mediaURL string) (*model.Message, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch.SendToChat",
		trace.WithAttributes(attribute.String("chat.id", chatID), attribute.String("message.kind", kind)))
	defer span.End()

	if err := validateMessage(kind, content, mediaURL); err != nil {
		return nil, err
	}

	msg, err := d.stores.Messages.Append(ctx, chatID, senderID, kind, content, mediaURL)
	if err != nil {
		return nil, err
	}

	d.fanOutMessage(ctx, msg)
	return msg, nil
}

// SendToUser sends a direct message, resolving (and creating if needed) the
// personal chat between sender and recipient first. A recipient who blocked
// the sender fails the send before anything is persisted.
func (d *Dispatcher) SendToUser(ctx context.Context, senderID, recipientID, kind, content, mediaURL string) (*model.Message, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch.SendToUser",
		trace.WithAttributes(attribute.String("message.kind", kind)))
	defer span.End()

	if senderID == recipientID {
		return nil, errs.E(errs.SelfSend, "cannot message yourself")
	}
	if err := validateMessage(kind, content, mediaURL); err != nil {
		return nil, err
	}
	if _, err := d.stores.Users.ByID(ctx, recipientID); err != nil {
		return nil, err
	}

	chatID, err := d.stores.Chats.EnsurePersonalChat(ctx, senderID, recipientID)
	if err != nil {
		return nil, err
	}

	blocked, err := d.stores.Chats.MemberBlocked(ctx, chatID, recipientID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, errs.E(errs.BlockedByRecipient, "recipient has blocked you")
	}

	msg, err := d.stores.Messages.Append(ctx, chatID, senderID, kind, content, mediaURL)
	if err != nil {
		return nil, err
	}

	d.fanOutMessage(ctx, msg)
	return msg, nil
}

// CreatePersonalChat resolves the personal chat between the caller and peer,
// creating it when absent.
func (d *Dispatcher) CreatePersonalChat(ctx context.Context, userID, peerID string) (*model.Chat, error) {
	if userID == peerID {
		return nil, errs.E(errs.SelfSend, "cannot open a chat with yourself")
	}
	if _, err := d.stores.Users.ByID(ctx, peerID); err != nil {
		return nil, err
	}

	chatID, err := d.stores.Chats.EnsurePersonalChat(ctx, userID, peerID)
	if err != nil {
		return nil, err
	}
	return d.stores.Chats.ByID(ctx, chatID)
}

// CreateChannel creates a channel chat with the caller as admin.
func (d *Dispatcher) CreateChannel(ctx context.Context, creatorID, name string) (*model.Chat, error) {
	if name == "" {
		return nil, errs.E(errs.Validation, "channel name is required")
	}
	return d.stores.Chats.CreateChannel(ctx, creatorID, name)
}

// Block sets the caller's block flag in the chat. Idempotent.
func (d *Dispatcher) Block(ctx context.Context, userID, chatID string) error {
	return d.stores.Chats.SetBlocked(ctx, chatID, userID, true)
}

// Unblock clears the caller's block flag in the chat. Idempotent.
func (d *Dispatcher) Unblock(ctx context.Context, userID, chatID string) error {
	return d.stores.Chats.SetBlocked(ctx, chatID, userID, false)
}

// MarkRead publishes a read receipt for the chat's members. Receipts are
// ephemeral: the bus carries them, nothing is persisted.
func (d *Dispatcher) MarkRead(ctx context.Context, userID, chatID, messageID string) error {
	ctx, span := d.tracer.Start(ctx, "dispatch.MarkRead",
		trace.WithAttributes(attribute.String("chat.id", chatID)))
	defer span.End()

	ok, err := d.stores.Chats.IsMember(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.E(errs.NotAMember, "not a member of this chat")
	}

	ev, err := protocol.NewEvent(protocol.EventMessageRead, protocol.ReadPayload{
		ChatID:    chatID,
		MessageID: messageID,
		UserID:    userID,
	})
	if err != nil {
		return err
	}
	return d.pub.Publish(ctx, protocol.KeyMessageRead, ev)
}

// Typing forwards a typing frame to the chat's members over the bus.
// Implements the session layer's typing sink.
func (d *Dispatcher) Typing(ctx context.Context, userID string, p protocol.TypingPayload) error {
	if p.ChatID == "" {
		return errs.E(errs.Validation, "chatId is required")
	}

	ok, err := d.stores.Chats.IsMember(ctx, p.ChatID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.E(errs.NotAMember, "not a member of this chat")
	}

	p.UserID = userID
	ev, err := protocol.NewEvent(protocol.EventTypingIndicator, p)
	if err != nil {
		return err
	}
	return d.pub.Publish(ctx, protocol.KeyTypingIndicator, ev)
}

// CreateStory persists a story and announces it on the bus.
func (d *Dispatcher) CreateStory(ctx context.Context, userID, mediaURL string) (*model.Story, error) {
	if mediaURL == "" {
		return nil, errs.E(errs.Validation, "mediaUrl is required")
	}

	st := &model.Story{UserID: userID, MediaURL: mediaURL}
	if err := d.stores.Stories.Create(ctx, st); err != nil {
		return nil, err
	}

	if ev, err := protocol.NewEvent(protocol.EventStoryCreated, st); err == nil {
		if err := d.pub.Publish(ctx, protocol.KeyStoryCreated, ev); err != nil {
			slog.Warn("dispatch: story publish failed", "story", st.ID, "error", err)
		}
	}
	return st, nil
}

// ListStories returns every unexpired story.
func (d *Dispatcher) ListStories(ctx context.Context) ([]model.Story, error) {
	return d.stores.Stories.Active(ctx)
}

// fanOutMessage runs after the message committed: one durable bus emission
// for consumers, plus an immediate push to every member's sessions except
// the sender's. Clients deduplicate by message id, so the overlap between
// the direct push and bus-driven delivery is harmless.
func (d *Dispatcher) fanOutMessage(ctx context.Context, msg *model.Message) {
	ev, err := protocol.NewEvent(protocol.EventMessageSent, msg)
	if err != nil {
		slog.Error("dispatch: marshal message event", "message", msg.ID, "error", err)
		return
	}

	if err := d.pub.Publish(ctx, protocol.KeyMessageSent, ev); err != nil {
		slog.Error("dispatch: bus publish failed", "message", msg.ID, "error", err)
	}

	members, err := d.stores.Chats.Members(ctx, msg.ChatID)
	if err != nil {
		slog.Error("dispatch: member lookup failed", "chat", msg.ChatID, "error", err)
		return
	}
	for _, m := range members {
		if m.UserID == msg.SenderID {
			continue
		}
		d.deliverer.DeliverToUser(ctx, m.UserID, ev)
	}
}

func validateMessage(kind, content, mediaURL string) error {
	if !model.ValidMessageKind(kind) {
		return errs.E(errs.Validation, fmt.Sprintf("unknown message type %q", kind))
	}
	if kind == model.MessageText && content == "" {
		return errs.E(errs.Validation, "content is required for text messages")
	}
	if kind != model.MessageText && content == "" && mediaURL == "" {
		return errs.E(errs.Validation, "mediaUrl is required for media messages")
	}
	return nil
}
