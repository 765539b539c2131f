package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/booking-service/internal/api/dto"
	"github.com/spec-kit/booking-service/internal/auth"
	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/service"
	apperrors "github.com/spec-kit/booking-service/pkg/util/errorutil"
)

// AuthHandler exposes register, login, logout and session endpoints for every
// account kind. The kind is taken from the route path.
type AuthHandler struct {
	auth         *service.AuthService
	sessions     *service.SessionRegistry
	cookieName   string
	cookieSecure bool
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService, sessions *service.SessionRegistry, cookieName string, cookieSecure bool) *AuthHandler {
	return &AuthHandler{auth: authService, sessions: sessions, cookieName: cookieName, cookieSecure: cookieSecure}
}

// Register handles POST /auth/:kind/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	kind, err := kindParam(c)
	if err != nil {
		return err
	}
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	account, token, err := h.auth.Register(c.UserContext(), kind, service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	h.setCookie(c, token)
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": authResponse(account, token)})
}

// Login handles POST /auth/:kind/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	kind, err := kindParam(c)
	if err != nil {
		return err
	}
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	account, token, err := h.auth.Login(c.UserContext(), kind, req.Email, req.Password)
	if err != nil {
		return err
	}
	h.setCookie(c, token)
	return c.JSON(fiber.Map{"data": authResponse(account, token)})
}

// Logout handles POST /auth/:kind/logout. Only the presented token is revoked.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	principal, err := h.principalForPath(c)
	if err != nil {
		return err
	}
	if _, err := h.auth.Logout(c.UserContext(), principal); err != nil {
		return err
	}
	h.clearCookie(c)
	return c.SendStatus(http.StatusNoContent)
}

// Me handles GET /auth/:kind/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, err := h.principalForPath(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAccountResponse(principal.Account)})
}

// Sessions handles GET /auth/:kind/sessions and lists the caller's active sessions.
func (h *AuthHandler) Sessions(c *fiber.Ctx) error {
	principal, err := h.principalForPath(c)
	if err != nil {
		return err
	}
	svc, ok := h.sessions.For(principal.Kind)
	if !ok {
		return apperrors.NewUnauthenticated(domain.ErrTokenNotFound)
	}
	tokens, err := svc.ListSessions(c.UserContext(), principal.AccountID())
	if err != nil {
		return err
	}
	out := make([]dto.SessionResponse, 0, len(tokens))
	for _, token := range tokens {
		out = append(out, dto.SessionResponse{
			CreatedAt:  token.CreatedAt,
			ExpiresAt:  token.ExpiresAt,
			LastUsedAt: token.LastUsedAt,
			Current:    token.Value == principal.Token,
		})
	}
	return c.JSON(fiber.Map{"data": out})
}

// principalForPath requires the session kind to match the :kind segment.
func (h *AuthHandler) principalForPath(c *fiber.Ctx) (*domain.Principal, error) {
	kind, err := kindParam(c)
	if err != nil {
		return nil, err
	}
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Kind != kind {
		return nil, apperrors.NewUnauthenticated(domain.ErrTokenNotFound)
	}
	return principal, nil
}

func (h *AuthHandler) setCookie(c *fiber.Ctx, token domain.Token) {
	if h.cookieName == "" {
		return
	}
	c.Cookie(&fiber.Cookie{
		Name:     h.cookieName,
		Value:    token.Value,
		Path:     "/",
		Expires:  token.ExpiresAt,
		HTTPOnly: true,
		Secure:   h.cookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (h *AuthHandler) clearCookie(c *fiber.Ctx) {
	if h.cookieName == "" {
		return
	}
	c.Cookie(&fiber.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   h.cookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func kindParam(c *fiber.Ctx) (domain.AccountKind, error) {
	kind, ok := domain.ParseAccountKind(c.Params("kind"))
	if !ok {
		return "", apperrors.NewNotFound("account kind", nil)
	}
	return kind, nil
}

func authResponse(account *domain.Account, token domain.Token) dto.AuthResponse {
	return dto.AuthResponse{
		Token:     token.Value,
		ExpiresAt: token.ExpiresAt,
		User:      dto.NewAccountResponse(account),
	}
}
