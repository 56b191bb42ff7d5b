package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRoutingKeyMapping(t *testing.T) {
	tests := []struct {
		eventType string
		key       string
	}{
		{EventMessageSent, KeyMessageSent},
		{EventMessageRead, KeyMessageRead},
		{EventTypingIndicator, KeyTypingIndicator},
		{EventUserConnected, KeyUserConnected},
		{EventUserDisconnected, KeyUserDisconnected},
		{EventStoryCreated, KeyStoryCreated},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			if got := RoutingKey(tt.eventType); got != tt.key {
				t.Errorf("RoutingKey(%s) = %q, want %q", tt.eventType, got, tt.key)
			}
			if got := EventType(tt.key); got != tt.eventType {
				t.Errorf("EventType(%s) = %q, want %q", tt.key, got, tt.eventType)
			}
		})
	}

	if got := RoutingKey("NOPE"); got != "" {
		t.Errorf("RoutingKey(unknown) = %q, want empty", got)
	}
	if got := EventType("no.such.key"); got != "" {
		t.Errorf("EventType(unknown) = %q, want empty", got)
	}
}

func TestNewEvent(t *testing.T) {
	before := time.Now().UTC()
	ev, err := NewEvent(EventTypingIndicator, TypingPayload{ChatID: "c1", UserID: "u1", IsTyping: true})
	if err != nil {
		t.Fatal(err)
	}

	if ev.Type != EventTypingIndicator {
		t.Errorf("Type = %q, want %q", ev.Type, EventTypingIndicator)
	}
	if ev.Timestamp.Before(before) {
		t.Error("Timestamp is before construction time")
	}

	var p TypingPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.ChatID != "c1" || p.UserID != "u1" || !p.IsTyping {
		t.Errorf("payload round trip = %+v", p)
	}
}

func TestNewEventRejectsUnmarshalable(t *testing.T) {
	if _, err := NewEvent(EventMessageSent, func() {}); err == nil {
		t.Error("NewEvent with unmarshalable payload returned nil error")
	}
}

func TestEventWireShape(t *testing.T) {
	ev, err := NewEvent(EventMessageRead, ReadPayload{ChatID: "c1", MessageID: "m1", UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}

	var frame map[string]json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"type", "payload", "timestamp"} {
		if _, ok := frame[field]; !ok {
			t.Errorf("wire frame missing %q field", field)
		}
	}
}
