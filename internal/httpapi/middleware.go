package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/chatplatform/relay/internal/errs"
)

type ctxKey int

const userIDKey ctxKey = 0

// auth wraps a handler with bearer-token validation and stores the caller's
// user id on the request context.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, errs.E(errs.Unauthenticated, "missing bearer token"))
			return
		}

		userID, err := s.tokens.Validate(token)
		if err != nil {
			writeError(w, err)
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	}
}

// callerID returns the authenticated user id placed by the auth middleware.
func callerID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}
