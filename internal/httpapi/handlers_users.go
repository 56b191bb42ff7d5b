package httpapi

import (
	"net/http"

	"github.com/chatplatform/relay/internal/errs"
	"github.com/chatplatform/relay/internal/model"
	"github.com/chatplatform/relay/internal/store"
)

const searchLimit = 20

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := s.stores.Users.ByID(r.Context(), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type updateProfileRequest struct {
	Name           *string `json:"name" validate:"omitempty,max=100"`
	Email          *string `json:"email" validate:"omitempty,email"`
	ProfilePicture *string `json:"profilePicture" validate:"omitempty,url"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	u, err := s.stores.Users.UpdateProfile(r.Context(), callerID(r), store.ProfileUpdate{
		Name:           req.Name,
		Email:          req.Email,
		ProfilePicture: req.ProfilePicture,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=online offline"`
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := s.stores.Users.SetStatus(r.Context(), callerID(r), req.Status); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, errs.E(errs.Validation, "query parameter q is required"))
		return
	}

	users, err := s.stores.Users.Search(r.Context(), q, searchLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}
