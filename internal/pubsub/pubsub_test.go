package pubsub

import (
	"encoding/json"
	"testing"

	"github.com/chatplatform/relay/pkg/protocol"
)

func TestChannelNames(t *testing.T) {
	if got := UserChannel("u1"); got != "ws:user:u1" {
		t.Errorf("UserChannel = %q, want ws:user:u1", got)
	}
	if got := ChatChannel("c1"); got != "ws:chat:c1" {
		t.Errorf("ChatChannel = %q, want ws:chat:c1", got)
	}
}

func TestEnvelopeCarriesInstanceID(t *testing.T) {
	ev, err := protocol.NewEvent(protocol.EventMessageSent, map[string]string{"id": "m1"})
	if err != nil {
		t.Fatal(err)
	}

	raw, err := json.Marshal(Envelope{Event: ev, InstanceID: "node-a"})
	if err != nil {
		t.Fatal(err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"type", "payload", "timestamp", "instanceID"} {
		if _, ok := fields[field]; !ok {
			t.Errorf("envelope missing %q field", field)
		}
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatal(err)
	}
	if env.InstanceID != "node-a" || env.Type != protocol.EventMessageSent {
		t.Errorf("round trip = %+v", env)
	}
}
