// Package httpapi exposes the public JSON API and the WebSocket upgrade
// endpoint. Handlers stay thin: decode, authenticate, call the dispatcher or
// a store, encode.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/chatplatform/relay/internal/auth"
	"github.com/chatplatform/relay/internal/config"
	"github.com/chatplatform/relay/internal/dispatch"
	"github.com/chatplatform/relay/internal/hub"
	"github.com/chatplatform/relay/internal/media"
	"github.com/chatplatform/relay/internal/store"
)

// Server is the HTTP front of one relay node.
type Server struct {
	cfg    *config.Config
	stores *store.Stores
	dsp    *dispatch.Dispatcher
	hub    *hub.Hub
	tokens *auth.Tokens
	signer *media.Signer // nil disables the upload-url endpoint

	validate *validator.Validate
	upgrader websocket.Upgrader

	httpServer *http.Server
}

// NewServer wires the handler dependencies. signer may be nil when no media
// bucket is configured.
func NewServer(cfg *config.Config, stores *store.Stores, dsp *dispatch.Dispatcher, h *hub.Hub, tokens *auth.Tokens, signer *media.Signer) *Server {
	s := &Server{
		cfg:      cfg,
		stores:   stores,
		dsp:      dsp,
		hub:      h,
		tokens:   tokens,
		signer:   signer,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin validates the upgrade origin against the configured whitelist.
// No configuration allows everything; an empty Origin header (non-browser
// clients) is always allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.Hub.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if origin == a || a == "*" {
			return true
		}
	}
	slog.Warn("httpapi: origin rejected", "origin", origin)
	return false
}

// BuildMux registers every route.
func (s *Server) BuildMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWS)

	mux.HandleFunc("POST /api/auth/signup", s.handleSignup)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	mux.HandleFunc("GET /api/users/me", s.auth(s.handleMe))
	mux.HandleFunc("PATCH /api/users/me", s.auth(s.handleUpdateProfile))
	mux.HandleFunc("PATCH /api/users/me/status", s.auth(s.handleSetStatus))
	mux.HandleFunc("GET /api/users/search", s.auth(s.handleSearchUsers))
	mux.HandleFunc("POST /api/users/{userID}/messages", s.auth(s.handleSendToUser))

	mux.HandleFunc("GET /api/chats", s.auth(s.handleListChats))
	mux.HandleFunc("GET /api/chats/{chatID}", s.auth(s.handleChatDetail))
	mux.HandleFunc("POST /api/chats/personal", s.auth(s.handleCreatePersonal))
	mux.HandleFunc("POST /api/chats/channel", s.auth(s.handleCreateChannel))
	mux.HandleFunc("GET /api/chats/{chatID}/messages", s.auth(s.handleListMessages))
	mux.HandleFunc("POST /api/chats/{chatID}/messages", s.auth(s.handleSendToChat))
	mux.HandleFunc("POST /api/chats/{chatID}/block", s.auth(s.handleBlock))
	mux.HandleFunc("POST /api/chats/{chatID}/unblock", s.auth(s.handleUnblock))
	mux.HandleFunc("POST /api/chats/{chatID}/messages/{msgID}/read", s.auth(s.handleMarkRead))

	mux.HandleFunc("GET /api/stories", s.auth(s.handleListStories))
	mux.HandleFunc("POST /api/stories", s.auth(s.handleCreateStory))

	if s.signer != nil {
		mux.HandleFunc("POST /api/media/upload-url", s.auth(s.handleUploadURL))
	}

	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Hub.Host, s.cfg.Hub.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.BuildMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("httpapi: listening", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
