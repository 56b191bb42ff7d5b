package hub

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatplatform/relay/internal/config"
	"github.com/chatplatform/relay/internal/model"
	"github.com/chatplatform/relay/internal/pubsub"
	"github.com/chatplatform/relay/internal/store"
	"github.com/chatplatform/relay/pkg/protocol"
)

type fakePubSub struct {
	mu        sync.Mutex
	published map[string][]pubsub.Envelope
	callbacks map[string]func(pubsub.Envelope)

	// Consumed by the next Subscribe call.
	subscribeErr error
}

func newFakePubSub() *fakePubSub {
	return &fakePubSub{
		published: make(map[string][]pubsub.Envelope),
		callbacks: make(map[string]func(pubsub.Envelope)),
	}
}

func (f *fakePubSub) Publish(_ context.Context, channel string, env pubsub.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[channel] = append(f.published[channel], env)
	return nil
}

func (f *fakePubSub) Subscribe(_ context.Context, channel string, fn func(pubsub.Envelope)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.subscribeErr; err != nil {
		f.subscribeErr = nil
		return err
	}
	f.callbacks[channel] = fn
	return nil
}

func (f *fakePubSub) failNextSubscribe(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeErr = err
}

func (f *fakePubSub) Unsubscribe(_ context.Context, channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.callbacks, channel)
	return nil
}

func (f *fakePubSub) Close() error { return nil }

func (f *fakePubSub) subscribed(channel string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.callbacks[channel]
	return ok
}

func (f *fakePubSub) inject(channel string, env pubsub.Envelope) {
	f.mu.Lock()
	fn := f.callbacks[channel]
	f.mu.Unlock()
	if fn != nil {
		fn(env)
	}
}

type fakePublisher struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakePublisher) Publish(_ context.Context, key string, _ protocol.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return nil
}
func (f *fakePublisher) Close() error { return nil }

type fakeUsers struct {
	mu       sync.Mutex
	statuses map[string]string
}

func (f *fakeUsers) Create(context.Context, *model.User) error { return nil }
func (f *fakeUsers) ByID(context.Context, string) (*model.User, error) {
	return nil, nil
}
func (f *fakeUsers) ByPhone(context.Context, string) (*model.User, error) { return nil, nil }
func (f *fakeUsers) UpdateProfile(context.Context, string, store.ProfileUpdate) (*model.User, error) {
	return nil, nil
}
func (f *fakeUsers) Search(context.Context, string, int) ([]model.User, error) { return nil, nil }
func (f *fakeUsers) SetStatus(_ context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	return nil
}

func newTestHub() (*Hub, *fakePubSub, *fakePublisher, *fakeUsers) {
	ps := newFakePubSub()
	pub := &fakePublisher{}
	users := &fakeUsers{statuses: make(map[string]string)}
	cfg := config.Default().Hub
	return New(cfg, ps, pub, users), ps, pub, users
}

func mustEvent(t *testing.T, eventType string) protocol.Event {
	t.Helper()
	ev, err := protocol.NewEvent(eventType, map[string]string{"x": "y"})
	if err != nil {
		t.Fatal(err)
	}
	return ev
}

func TestRegisterFirstSessionSubscribes(t *testing.T) {
	h, ps, pub, users := newTestHub()
	ctx := context.Background()

	s1 := NewSession(nil, "u1", h)
	if err := h.Register(ctx, s1); err != nil {
		t.Fatal(err)
	}

	channel := pubsub.UserChannel("u1")
	if !ps.subscribed(channel) {
		t.Fatal("first session did not subscribe the user channel")
	}
	if users.statuses["u1"] != model.StatusOnline {
		t.Errorf("status = %q, want online", users.statuses["u1"])
	}
	if len(pub.keys) != 1 || pub.keys[0] != protocol.KeyUserConnected {
		t.Errorf("bus keys = %v, want [user.connected]", pub.keys)
	}

	// A second session of the same user changes nothing.
	s2 := NewSession(nil, "u1", h)
	if err := h.Register(ctx, s2); err != nil {
		t.Fatal(err)
	}
	if len(pub.keys) != 1 {
		t.Errorf("second session republished presence: %v", pub.keys)
	}
	if h.LocalSessions("u1") != 2 {
		t.Errorf("LocalSessions = %d, want 2", h.LocalSessions("u1"))
	}
}

func TestRegisterRollsBackOnSubscribeFailure(t *testing.T) {
	h, ps, pub, users := newTestHub()
	ctx := context.Background()

	ps.failNextSubscribe(errors.New("redis down"))
	s1 := NewSession(nil, "u1", h)
	if err := h.Register(ctx, s1); err == nil {
		t.Fatal("subscribe failure was not reported")
	}
	if n := h.LocalSessions("u1"); n != 0 {
		t.Fatalf("LocalSessions = %d after failed register, want 0", n)
	}
	if len(pub.keys) != 0 {
		t.Errorf("presence announced despite failed register: %v", pub.keys)
	}
	if users.statuses["u1"] != "" {
		t.Errorf("status set to %q despite failed register", users.statuses["u1"])
	}

	// The next session must retry the subscription, not inherit the wreck.
	s2 := NewSession(nil, "u1", h)
	if err := h.Register(ctx, s2); err != nil {
		t.Fatal(err)
	}
	if !ps.subscribed(pubsub.UserChannel("u1")) {
		t.Fatal("recovered session did not subscribe the user channel")
	}
	if h.LocalSessions("u1") != 1 {
		t.Errorf("LocalSessions = %d, want 1", h.LocalSessions("u1"))
	}
}

func TestUnregisterLastSessionUnsubscribes(t *testing.T) {
	h, ps, pub, users := newTestHub()
	ctx := context.Background()

	s1 := NewSession(nil, "u1", h)
	s2 := NewSession(nil, "u1", h)
	h.Register(ctx, s1)
	h.Register(ctx, s2)

	h.Unregister(ctx, s1)
	if !ps.subscribed(pubsub.UserChannel("u1")) {
		t.Fatal("unsubscribed while a session remains")
	}

	h.Unregister(ctx, s2)
	if ps.subscribed(pubsub.UserChannel("u1")) {
		t.Fatal("last session out did not unsubscribe")
	}
	if users.statuses["u1"] != model.StatusOffline {
		t.Errorf("status = %q, want offline", users.statuses["u1"])
	}
	if len(pub.keys) != 2 || pub.keys[1] != protocol.KeyUserDisconnected {
		t.Errorf("bus keys = %v, want user.disconnected last", pub.keys)
	}
}

func TestDeliverToUserWritesLocalAndPublishes(t *testing.T) {
	h, ps, _, _ := newTestHub()
	ctx := context.Background()

	s := NewSession(nil, "u1", h)
	h.Register(ctx, s)

	ev := mustEvent(t, protocol.EventMessageSent)
	h.DeliverToUser(ctx, "u1", ev)

	select {
	case got := <-s.send:
		if got.Type != protocol.EventMessageSent {
			t.Errorf("local delivery type = %q", got.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("local session did not receive the event")
	}

	channel := pubsub.UserChannel("u1")
	envs := ps.published[channel]
	if len(envs) != 1 {
		t.Fatalf("published %d envelopes, want 1", len(envs))
	}
	if envs[0].InstanceID != h.InstanceID() {
		t.Errorf("envelope instance = %q, want %q", envs[0].InstanceID, h.InstanceID())
	}
}

func TestRemoteEnvelopeFromSelfIsDropped(t *testing.T) {
	h, ps, _, _ := newTestHub()
	ctx := context.Background()

	s := NewSession(nil, "u1", h)
	h.Register(ctx, s)

	channel := pubsub.UserChannel("u1")
	own := pubsub.Envelope{Event: mustEvent(t, protocol.EventMessageSent), InstanceID: h.InstanceID()}
	ps.inject(channel, own)

	select {
	case <-s.send:
		t.Fatal("own envelope was delivered back to the session")
	default:
	}

	remote := pubsub.Envelope{Event: mustEvent(t, protocol.EventMessageSent), InstanceID: "other-node"}
	ps.inject(channel, remote)

	select {
	case got := <-s.send:
		if got.Type != protocol.EventMessageSent {
			t.Errorf("remote delivery type = %q", got.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("remote envelope was not delivered")
	}
}

func TestCloseSendsCloseFrame(t *testing.T) {
	h, _, _, _ := newTestHub()

	upgrader := websocket.Upgrader{}
	sessions := make(chan *Session, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sessions <- NewSession(conn, "u1", h)
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	s := <-sessions
	s.Close()

	client.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err = client.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.CloseGoingAway {
		t.Fatalf("client read = %v, want going-away close frame", err)
	}
}

func TestEnqueueDropsWhenBufferFull(t *testing.T) {
	h, _, _, _ := newTestHub()
	s := NewSession(nil, "u1", h)

	ev := mustEvent(t, protocol.EventMessageSent)
	for i := 0; i < cap(s.send)+10; i++ {
		s.Enqueue(ev) // must not block
	}
	if len(s.send) != cap(s.send) {
		t.Errorf("buffer holds %d, want full at %d", len(s.send), cap(s.send))
	}
}
