package protocol

import (
	"encoding/json"
	"time"
)

// Wire event types pushed over WebSocket sessions. The same identifiers are
// used as the payload "type" on the bus and the pub/sub layer.
const (
	EventMessageSent      = "MESSAGE_SENT"
	EventMessageRead      = "MESSAGE_READ"
	EventTypingIndicator  = "TYPING_INDICATOR"
	EventUserConnected    = "USER_CONNECTED"
	EventUserDisconnected = "USER_DISCONNECTED"
	EventStoryCreated     = "STORY_CREATED"
)

// Bus routing keys on the chat_events topic exchange.
const (
	KeyMessageSent      = "message.sent"
	KeyMessageRead      = "message.read"
	KeyTypingIndicator  = "typing.indicator"
	KeyUserConnected    = "user.connected"
	KeyUserDisconnected = "user.disconnected"
	KeyStoryCreated     = "story.created"
)

var keyByType = map[string]string{
	EventMessageSent:      KeyMessageSent,
	EventMessageRead:      KeyMessageRead,
	EventTypingIndicator:  KeyTypingIndicator,
	EventUserConnected:    KeyUserConnected,
	EventUserDisconnected: KeyUserDisconnected,
	EventStoryCreated:     KeyStoryCreated,
}

var typeByKey = func() map[string]string {
	m := make(map[string]string, len(keyByType))
	for t, k := range keyByType {
		m[k] = t
	}
	return m
}()

// RoutingKey returns the bus routing key for a wire event type,
// or "" if the type is unknown.
func RoutingKey(eventType string) string { return keyByType[eventType] }

// EventType returns the wire event type for a bus routing key,
// or "" if the key is unknown.
func EventType(routingKey string) string { return typeByKey[routingKey] }

// Event is the JSON envelope shared by the wire protocol, the bus and the
// pub/sub fan-out layer:
//
//	{ "type": "<EVENT_TYPE>", "payload": <object>, "timestamp": "<ISO-8601>" }
type Event struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent builds an envelope with a server-assigned timestamp.
func NewEvent(eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Payload: raw, Timestamp: time.Now().UTC()}, nil
}

// TypingPayload is sent by clients and fanned out to chat members.
// Sender identity always comes from the session, never from the frame.
type TypingPayload struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId,omitempty"`
	IsTyping bool   `json:"isTyping"`
}

// ReadPayload marks a message as read. Ephemeral: fanned out, never persisted.
type ReadPayload struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
}

// PresencePayload announces a user's session count going 0→1 or 1→0 on a node.
type PresencePayload struct {
	UserID string `json:"userId"`
}
