package dto

import (
	"time"

	"github.com/spec-kit/booking-service/internal/domain"
)

// RegisterRequest payload for partner and customer sign-up.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AccountResponse is the public view of an account.
type AccountResponse struct {
	ID     string             `json:"id"`
	Kind   domain.AccountKind `json:"kind"`
	Name   string             `json:"name"`
	Email  string             `json:"email"`
	Active *bool              `json:"active,omitempty"`
	Roles  []domain.AdminRole `json:"roles,omitempty"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	User      AccountResponse `json:"user"`
}

// SessionResponse describes one active session without exposing its token.
type SessionResponse struct {
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
	Current    bool       `json:"current"`
}

// NewAccountResponse maps a domain account.
func NewAccountResponse(account *domain.Account) AccountResponse {
	resp := AccountResponse{
		ID:    account.ID,
		Kind:  account.Kind,
		Name:  account.Name,
		Email: account.Email,
	}
	if account.Kind == domain.AccountKindAdmin {
		active := account.Active
		resp.Active = &active
		resp.Roles = account.Roles
	}
	return resp
}
