package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/booking-service/internal/domain"
	apperrors "github.com/spec-kit/booking-service/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// SessionVerifier resolves a bearer token into the owning principal.
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (*domain.Principal, error)
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	verifier   SessionVerifier
	cookieName string
	onFailure  func(c *fiber.Ctx, err error)
}

// NewAuthMiddleware constructs middleware. onFailure may be nil.
func NewAuthMiddleware(verifier SessionVerifier, cookieName string, onFailure func(c *fiber.Ctx, err error)) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, cookieName: cookieName, onFailure: onFailure}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	token := ExtractToken(c, m.cookieName)
	principal, err := m.verifier.Verify(c.UserContext(), token)
	if err != nil {
		if domain.IsAuthError(err) {
			if m.onFailure != nil {
				m.onFailure(c, err)
			}
			return apperrors.NewUnauthenticated(err)
		}
		return err
	}

	c.Locals(principalKey, principal)
	return c.Next()
}

// ExtractToken reads the bearer header, falling back to the session cookie.
// Authorization headers of other schemes are ignored.
func ExtractToken(c *fiber.Ctx, cookieName string) string {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookieName == "" {
		return ""
	}
	return c.Cookies(cookieName)
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*domain.Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*domain.Principal)
	return principal, ok
}
