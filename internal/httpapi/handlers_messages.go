package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/chatplatform/relay/internal/errs"
	"github.com/chatplatform/relay/internal/model"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

type sendMessageRequest struct {
	Type     string `json:"type" validate:"required"`
	Content  string `json:"content"`
	MediaURL string `json:"mediaUrl" validate:"omitempty,url"`
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("chatID")
	caller := callerID(r)

	ok, err := s.stores.Chats.IsMember(r.Context(), chatID, caller)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, errs.E(errs.NotAMember, "not a member of this chat"))
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	if limit == 0 {
		writeJSON(w, http.StatusOK, []model.Message{})
		return
	}

	before, err := parseBefore(r.URL.Query().Get("before"))
	if err != nil {
		writeError(w, err)
		return
	}

	msgs, err := s.stores.Messages.List(r.Context(), chatID, limit, before)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// parseLimit applies the pagination rules: absent means the default page
// size, an explicit zero is honored, anything above the cap is clamped.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultPageSize, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, errs.E(errs.Validation, "limit must be a non-negative integer")
	}
	if limit > maxPageSize {
		return maxPageSize, nil
	}
	return limit, nil
}

// parseBefore parses the pagination cursor; absent means "everything so far".
func parseBefore(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errs.E(errs.Validation, "before must be an ISO-8601 timestamp")
	}
	return t, nil
}

func (s *Server) handleSendToChat(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	msg, err := s.dsp.SendToChat(r.Context(), callerID(r), r.PathValue("chatID"), req.Type, req.Content, req.MediaURL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleSendToUser(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	msg, err := s.dsp.SendToUser(r.Context(), callerID(r), r.PathValue("userID"), req.Type, req.Content, req.MediaURL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	err := s.dsp.MarkRead(r.Context(), callerID(r), r.PathValue("chatID"), r.PathValue("msgID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
