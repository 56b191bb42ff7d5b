package httpapi

import (
	"net/http"

	"github.com/chatplatform/relay/internal/errs"
	"github.com/chatplatform/relay/internal/model"
)

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.stores.Chats.ForUser(r.Context(), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if chats == nil {
		chats = []model.Chat{}
	}
	writeJSON(w, http.StatusOK, chats)
}

func (s *Server) handleChatDetail(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("chatID")

	ok, err := s.stores.Chats.IsMember(r.Context(), chatID, callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, errs.E(errs.NotAMember, "not a member of this chat"))
		return
	}

	chat, err := s.stores.Chats.ByID(r.Context(), chatID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

type createPersonalRequest struct {
	UserID string `json:"userId" validate:"required"`
}

func (s *Server) handleCreatePersonal(w http.ResponseWriter, r *http.Request) {
	var req createPersonalRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	chat, err := s.dsp.CreatePersonalChat(r.Context(), callerID(r), req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": chat.ID})
}

type createChannelRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var req createChannelRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	chat, err := s.dsp.CreateChannel(r.Context(), callerID(r), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	if err := s.dsp.Block(r.Context(), callerID(r), r.PathValue("chatID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleUnblock(w http.ResponseWriter, r *http.Request) {
	if err := s.dsp.Unblock(r.Context(), callerID(r), r.PathValue("chatID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
