// Package hub keeps the live WebSocket sessions of this node and delivers
// events to users wherever they are connected. Local sessions get a direct
// write; everything also goes through the pub/sub layer so sessions of the
// same user on other nodes receive it too.
package hub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/chatplatform/relay/internal/bus"
	"github.com/chatplatform/relay/internal/config"
	"github.com/chatplatform/relay/internal/model"
	"github.com/chatplatform/relay/internal/pubsub"
	"github.com/chatplatform/relay/internal/store"
	"github.com/chatplatform/relay/pkg/protocol"
)

// TypingSink receives typing frames read off sessions. Implemented by the
// dispatcher; set once during wiring, before any session is registered.
type TypingSink interface {
	Typing(ctx context.Context, userID string, p protocol.TypingPayload) error
}

// Hub is the per-node session registry. A user may hold any number of
// concurrent sessions; the user-level subscription and presence transitions
// happen on the first session in and the last session out.
type Hub struct {
	instanceID string
	cfg        config.HubConfig

	ps    pubsub.PubSub
	pub   bus.Publisher
	users store.UserStore

	typing TypingSink

	mu       sync.RWMutex
	sessions map[string]map[*Session]struct{}
}

func New(cfg config.HubConfig, ps pubsub.PubSub, pub bus.Publisher, users store.UserStore) *Hub {
	return &Hub{
		instanceID: uuid.Must(uuid.NewV7()).String(),
		cfg:        cfg,
		ps:         ps,
		pub:        pub,
		users:      users,
		sessions:   make(map[string]map[*Session]struct{}),
	}
}

// InstanceID identifies this node in pub/sub envelopes.
func (h *Hub) InstanceID() string { return h.instanceID }

// SetTypingSink wires the consumer of typing frames.
func (h *Hub) SetTypingSink(s TypingSink) { h.typing = s }

// Register adds a session. The first session of a user subscribes the node
// to that user's pub/sub channel, marks the user online and announces the
// connection on the bus.
func (h *Hub) Register(ctx context.Context, s *Session) error {
	h.mu.Lock()
	set := h.sessions[s.userID]
	first := set == nil
	if first {
		set = make(map[*Session]struct{})
		h.sessions[s.userID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	if !first {
		return nil
	}

	userID := s.userID
	if err := h.ps.Subscribe(ctx, pubsub.UserChannel(userID), func(env pubsub.Envelope) {
		if env.InstanceID == h.instanceID {
			return
		}
		h.deliverLocal(userID, env.Event)
	}); err != nil {
		// Without the subscription the session cannot receive cross-node
		// traffic. Take it back out so the user's next session retries the
		// subscribe instead of assuming it exists.
		h.mu.Lock()
		if set := h.sessions[userID]; set != nil {
			delete(set, s)
			if len(set) == 0 {
				delete(h.sessions, userID)
			}
		}
		h.mu.Unlock()
		return err
	}

	if err := h.users.SetStatus(ctx, userID, model.StatusOnline); err != nil {
		slog.Warn("hub: set status online failed", "user", userID, "error", err)
	}
	h.announce(ctx, protocol.EventUserConnected, userID)

	slog.Info("hub: user connected", "user", userID, "instance", h.instanceID)
	return nil
}

// Unregister removes a session. The last session of a user unsubscribes the
// channel, marks the user offline (stamping last_seen) and announces the
// disconnect.
func (h *Hub) Unregister(ctx context.Context, s *Session) {
	h.mu.Lock()
	set := h.sessions[s.userID]
	if set != nil {
		delete(set, s)
		if len(set) == 0 {
			delete(h.sessions, s.userID)
		}
	}
	last := set != nil && len(set) == 0
	h.mu.Unlock()

	if !last {
		return
	}

	if err := h.ps.Unsubscribe(ctx, pubsub.UserChannel(s.userID)); err != nil {
		slog.Warn("hub: unsubscribe failed", "user", s.userID, "error", err)
	}
	if err := h.users.SetStatus(ctx, s.userID, model.StatusOffline); err != nil {
		slog.Warn("hub: set status offline failed", "user", s.userID, "error", err)
	}
	h.announce(ctx, protocol.EventUserDisconnected, s.userID)

	slog.Info("hub: user disconnected", "user", s.userID)
}

// DeliverToUser pushes an event to every session of the user. Local sessions
// are written directly; the event is then published so other nodes deliver to
// their own sessions. Either half failing does not stop the other.
func (h *Hub) DeliverToUser(ctx context.Context, userID string, ev protocol.Event) {
	h.deliverLocal(userID, ev)

	env := pubsub.Envelope{Event: ev, InstanceID: h.instanceID}
	if err := h.ps.Publish(ctx, pubsub.UserChannel(userID), env); err != nil {
		slog.Error("hub: pubsub publish failed", "user", userID, "type", ev.Type, "error", err)
	}
}

// LocalSessions reports how many sessions the user holds on this node.
func (h *Hub) LocalSessions(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID])
}

func (h *Hub) deliverLocal(userID string, ev protocol.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.sessions[userID] {
		s.Enqueue(ev)
	}
}

// announce publishes a presence transition on the bus. Presence keys are not
// bound by relay consumer queues; they exist for external subscribers.
func (h *Hub) announce(ctx context.Context, eventType, userID string) {
	ev, err := protocol.NewEvent(eventType, protocol.PresencePayload{UserID: userID})
	if err != nil {
		return
	}
	if err := h.pub.Publish(ctx, protocol.RoutingKey(eventType), ev); err != nil {
		slog.Warn("hub: presence publish failed", "type", eventType, "user", userID, "error", err)
	}
}

// Close tears down every live session. Used on shutdown after the HTTP
// listener stopped accepting upgrades.
func (h *Hub) Close() {
	h.mu.Lock()
	all := make([]*Session, 0)
	for _, set := range h.sessions {
		for s := range set {
			all = append(all, s)
		}
	}
	h.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}
