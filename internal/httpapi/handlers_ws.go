package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/chatplatform/relay/internal/errs"
	"github.com/chatplatform/relay/internal/hub"
)

// handleWS authenticates the handshake, upgrades the connection and runs the
// session until the peer goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, errs.E(errs.Unauthenticated, "missing token"))
		return
	}
	userID, err := s.tokens.Validate(token)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("httpapi: websocket upgrade failed", "user", userID, "error", err)
		return
	}

	session := hub.NewSession(conn, userID, s.hub)
	if err := s.hub.Register(r.Context(), session); err != nil {
		slog.Error("httpapi: session register failed", "user", userID, "error", err)
		conn.Close()
		return
	}
	defer func() {
		// The request context may already be done when the peer drops; the
		// presence bookkeeping still has to run.
		s.hub.Unregister(context.Background(), session)
		session.Close()
	}()

	session.Run(r.Context())
}
