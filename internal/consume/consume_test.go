package consume

import (
	"context"
	"encoding/json"
	"sort"
	"testing"

	"github.com/chatplatform/relay/internal/errs"
	"github.com/chatplatform/relay/internal/model"
	"github.com/chatplatform/relay/pkg/protocol"
)

type fakeChats struct {
	members map[string][]model.Member
	byUser  map[string][]model.Chat
}

func (f *fakeChats) CreateChannel(context.Context, string, string) (*model.Chat, error) {
	return nil, nil
}
func (f *fakeChats) EnsurePersonalChat(context.Context, string, string) (string, error) {
	return "", nil
}
func (f *fakeChats) ByID(context.Context, string) (*model.Chat, error)      { return nil, nil }
func (f *fakeChats) ForUser(_ context.Context, userID string) ([]model.Chat, error) {
	return f.byUser[userID], nil
}
func (f *fakeChats) IsMember(context.Context, string, string) (bool, error) { return false, nil }
func (f *fakeChats) MemberBlocked(context.Context, string, string) (bool, error) {
	return false, nil
}
func (f *fakeChats) SetBlocked(context.Context, string, string, bool) error { return nil }
func (f *fakeChats) Members(_ context.Context, chatID string) ([]model.Member, error) {
	m, ok := f.members[chatID]
	if !ok {
		return nil, errs.E(errs.StoreUnavailable, "members lookup failed")
	}
	return m, nil
}

type recorder struct{ users []string }

func (r *recorder) DeliverToUser(_ context.Context, userID string, _ protocol.Event) {
	r.users = append(r.users, userID)
}

func members(ids ...string) []model.Member {
	out := make([]model.Member, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Member{UserID: id})
	}
	return out
}

func event(t *testing.T, eventType string, payload any) protocol.Event {
	t.Helper()
	ev, err := protocol.NewEvent(eventType, payload)
	if err != nil {
		t.Fatal(err)
	}
	return ev
}

func TestHandleMessageSkipsSender(t *testing.T) {
	chats := &fakeChats{members: map[string][]model.Member{"c1": members("u1", "u2", "u3")}}
	rec := &recorder{}
	c := New(nil, chats, rec)

	ev := event(t, protocol.EventMessageSent, model.Message{ID: "m1", ChatID: "c1", SenderID: "u2"})
	if err := c.Handle(context.Background(), protocol.KeyMessageSent, ev); err != nil {
		t.Fatal(err)
	}

	sort.Strings(rec.users)
	if len(rec.users) != 2 || rec.users[0] != "u1" || rec.users[1] != "u3" {
		t.Errorf("delivered to %v, want [u1 u3]", rec.users)
	}
}

func TestHandleReadReachesEveryMember(t *testing.T) {
	chats := &fakeChats{members: map[string][]model.Member{"c1": members("u1", "u2")}}
	rec := &recorder{}
	c := New(nil, chats, rec)

	ev := event(t, protocol.EventMessageRead, protocol.ReadPayload{ChatID: "c1", MessageID: "m1", UserID: "u1"})
	if err := c.Handle(context.Background(), protocol.KeyMessageRead, ev); err != nil {
		t.Fatal(err)
	}
	if len(rec.users) != 2 {
		t.Errorf("delivered to %v, want both members", rec.users)
	}
}

func TestHandleTypingSkipsTypist(t *testing.T) {
	chats := &fakeChats{members: map[string][]model.Member{"c1": members("u1", "u2")}}
	rec := &recorder{}
	c := New(nil, chats, rec)

	ev := event(t, protocol.EventTypingIndicator, protocol.TypingPayload{ChatID: "c1", UserID: "u1", IsTyping: true})
	if err := c.Handle(context.Background(), protocol.KeyTypingIndicator, ev); err != nil {
		t.Fatal(err)
	}
	if len(rec.users) != 1 || rec.users[0] != "u2" {
		t.Errorf("delivered to %v, want [u2]", rec.users)
	}
}

func TestHandlePresenceReachesChatPeersOnce(t *testing.T) {
	// u1 shares c1 with u2 and c2 with u2 and u3; u2 must get one delivery.
	chats := &fakeChats{
		members: map[string][]model.Member{
			"c1": members("u1", "u2"),
			"c2": members("u1", "u2", "u3"),
		},
		byUser: map[string][]model.Chat{
			"u1": {{ID: "c1"}, {ID: "c2"}},
		},
	}
	rec := &recorder{}
	c := New(nil, chats, rec)

	ev := event(t, protocol.EventUserConnected, protocol.PresencePayload{UserID: "u1"})
	if err := c.Handle(context.Background(), protocol.KeyUserConnected, ev); err != nil {
		t.Fatal(err)
	}

	sort.Strings(rec.users)
	if len(rec.users) != 2 || rec.users[0] != "u2" || rec.users[1] != "u3" {
		t.Errorf("delivered to %v, want [u2 u3] exactly once each", rec.users)
	}
}

func TestHandleIgnoresUnknownKeys(t *testing.T) {
	rec := &recorder{}
	c := New(nil, &fakeChats{}, rec)

	ev := event(t, protocol.EventStoryCreated, model.Story{ID: "st1", UserID: "u1"})
	if err := c.Handle(context.Background(), protocol.KeyStoryCreated, ev); err != nil {
		t.Fatal(err)
	}
	if len(rec.users) != 0 {
		t.Errorf("unexpected deliveries: %v", rec.users)
	}
}

func TestHandleAcksMalformedPayload(t *testing.T) {
	rec := &recorder{}
	c := New(nil, &fakeChats{}, rec)

	ev := protocol.Event{Type: protocol.EventMessageSent, Payload: json.RawMessage(`{"chatId":42}`)}
	if err := c.Handle(context.Background(), protocol.KeyMessageSent, ev); err != nil {
		t.Errorf("malformed payload should be acked, got %v", err)
	}
}

func TestHandlePropagatesStoreErrors(t *testing.T) {
	chats := &fakeChats{members: map[string][]model.Member{}}
	c := New(nil, chats, &recorder{})

	ev := event(t, protocol.EventMessageSent, model.Message{ID: "m1", ChatID: "gone", SenderID: "u1"})
	if err := c.Handle(context.Background(), protocol.KeyMessageSent, ev); err == nil {
		t.Error("store failure should propagate for redelivery")
	}
}
