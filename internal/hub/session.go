package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/chatplatform/relay/pkg/protocol"
)

const defaultMaxMessageBytes = 8 * 1024

// Session is one authenticated WebSocket connection. The read pump accepts
// only typing frames; all other inbound traffic is ignored. Outbound events
// go through a buffered send channel drained by the write pump.
type Session struct {
	userID string
	conn   *websocket.Conn
	hub    *Hub

	// Typing frames above the limiter rate are dropped, not errored.
	typingLimit *rate.Limiter

	send      chan protocol.Event
	closed    chan struct{}
	closeOnce sync.Once
}

// NewSession wraps an upgraded connection. The caller registers the session
// and then calls Run.
func NewSession(conn *websocket.Conn, userID string, hub *Hub) *Session {
	return &Session{
		userID:      userID,
		conn:        conn,
		hub:         hub,
		typingLimit: rate.NewLimiter(rate.Every(time.Second), 5),
		send:        make(chan protocol.Event, 64),
		closed:      make(chan struct{}),
	}
}

// UserID returns the authenticated user of this session.
func (s *Session) UserID() string { return s.userID }

// Run starts the write pump and blocks on the read pump until the connection
// drops or ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	go s.writePump()
	s.readPump(ctx)
}

// Enqueue hands an event to the write pump without blocking. A session whose
// buffer is full is a slow consumer; the frame is dropped and the client
// recovers missed messages through the history API.
func (s *Session) Enqueue(ev protocol.Event) {
	select {
	case <-s.closed:
	case s.send <- ev:
	default:
		slog.Warn("hub: dropping frame for slow session", "user", s.userID, "type", ev.Type)
	}
}

// Close shuts the connection down. Safe to call more than once. The close
// frame gives clients a status code on server-initiated teardown; on a dead
// connection the write is a no-op.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
		s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		s.conn.Close()
	})
}

func (s *Session) readPump(ctx context.Context) {
	defer s.Close()

	maxBytes := s.hub.cfg.MaxMessageBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxMessageBytes
	}
	s.conn.SetReadLimit(maxBytes)

	pongWait := s.hub.cfg.PingInterval() * 2
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var ev protocol.Event
		if err := s.conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("hub: session read failed", "user", s.userID, "error", err)
			}
			return
		}

		switch ev.Type {
		case protocol.EventTypingIndicator:
			s.handleTyping(ctx, ev)
		default:
			// Clients send everything else over HTTP.
		}
	}
}

func (s *Session) handleTyping(ctx context.Context, ev protocol.Event) {
	if s.hub.typing == nil || !s.typingLimit.Allow() {
		return
	}

	var p protocol.TypingPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return
	}
	// The frame's userId is untrusted; the session identity wins.
	p.UserID = s.userID

	if err := s.hub.typing.Typing(ctx, s.userID, p); err != nil {
		slog.Debug("hub: typing rejected", "user", s.userID, "chat", p.ChatID, "error", err)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.hub.cfg.PingInterval())
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	writeTimeout := s.hub.cfg.WriteTimeout()
	for {
		select {
		case <-s.closed:
			return
		case ev := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
