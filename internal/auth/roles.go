package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/booking-service/internal/domain"
	apperrors "github.com/spec-kit/booking-service/pkg/util/errorutil"
)

// RequireKind ensures the principal belongs to one of the allowed account kinds.
func RequireKind(allowed ...domain.AccountKind) fiber.Handler {
	allowedSet := make(map[domain.AccountKind]struct{}, len(allowed))
	for _, kind := range allowed {
		allowedSet[kind] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthenticated(nil)
		}
		if _, exists := allowedSet[principal.Kind]; !exists {
			return apperrors.NewForbidden("account kind not allowed")
		}
		return c.Next()
	}
}
