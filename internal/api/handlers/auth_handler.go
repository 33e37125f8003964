package handlers

import (
	"context"
	"net/http"

	"clubdesk/internal/engine/accounts"
	"clubdesk/internal/platform/auth"
)

// AccountService is the credential flow surface. *accounts.Service satisfies it.
type AccountService interface {
	Login(ctx context.Context, email, password string) (*accounts.Session, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	Register(ctx context.Context, in accounts.RegisterInput) (*accounts.Registration, error)
}

type AuthHandler struct {
	accounts AccountService
}

func NewAuthHandler(accounts AccountService) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string                 `json:"access_token"`
	UserID      string                 `json:"user_id"`
	SchoolID    string                 `json:"school_id"`
	Status      auth.CoordinatorStatus `json:"status"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}

	session, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		AccessToken: session.Token,
		UserID:      session.Principal.UserID.String(),
		SchoolID:    session.Principal.TenantID.String(),
		Status:      session.Principal.Status,
	})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req accounts.RegisterInput
	if !decode(w, r, &req) {
		return
	}

	reg, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &req) {
		return
	}

	if err := h.accounts.RequestPasswordReset(r.Context(), req.Email); err != nil {
		fail(w, r, err)
		return
	}
	// Same answer whether or not the address exists.
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
}

func (h *AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}

	if err := h.accounts.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
