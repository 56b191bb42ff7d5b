package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/chatplatform/relay/internal/auth"
	"github.com/chatplatform/relay/internal/errs"
	"github.com/chatplatform/relay/internal/model"
)

type signupRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Phone    string `json:"phone" validate:"required,max=20"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Email    string `json:"email" validate:"omitempty,email"`
}

type loginRequest struct {
	Phone    string `json:"phone" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	u := &model.User{
		ID:       uuid.Must(uuid.NewV7()).String(),
		Name:     req.Name,
		Phone:    req.Phone,
		Email:    req.Email,
		Password: hash,
		Status:   model.StatusOffline,
	}
	if err := s.stores.Users.Create(r.Context(), u); err != nil {
		if errs.Is(err, errs.Conflict) {
			writeError(w, errs.E(errs.Conflict, "phone or email already registered"))
			return
		}
		writeError(w, err)
		return
	}

	token, err := s.tokens.Mint(u.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("httpapi: user registered", "user", u.ID)
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: u})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	u, err := s.stores.Users.ByPhone(r.Context(), req.Phone)
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			writeError(w, errs.E(errs.Unauthenticated, "invalid credentials"))
			return
		}
		writeError(w, err)
		return
	}
	if !auth.CheckPassword(u.Password, req.Password) {
		writeError(w, errs.E(errs.Unauthenticated, "invalid credentials"))
		return
	}

	token, err := s.tokens.Mint(u.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: token, User: u})
}
