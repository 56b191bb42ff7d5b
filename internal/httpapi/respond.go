package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/chatplatform/relay/internal/errs"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeError maps a categorized error onto the status table. Internal detail
// never reaches the client.
func writeError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	status := errs.HTTPStatus(kind)

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		slog.Error("httpapi: request failed", "kind", kind, "error", err)
		msg = "internal error"
		if kind != errs.Internal {
			msg = string(kind)
		}
	}

	writeJSON(w, status, map[string]string{"error": msg, "kind": string(kind)})
}

// decode unmarshals and validates a request body.
func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.E(errs.Validation, "malformed request body", err)
	}
	if err := s.validate.Struct(v); err != nil {
		return errs.E(errs.Validation, err.Error())
	}
	return nil
}
