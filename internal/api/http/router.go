package http

import (
	stdhttp "net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/booking-service/internal/api/http/handlers"
	"github.com/spec-kit/booking-service/internal/auth"
	"github.com/spec-kit/booking-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Bookings       *handlers.BookingsHandler
	AuthMiddleware *auth.AuthMiddleware
	LoginLimiter   *LoginLimiter
	Metrics        stdhttp.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}

	limit := func(c *fiber.Ctx) error { return c.Next() }
	if cfg.LoginLimiter != nil {
		limit = cfg.LoginLimiter.Handle
	}

	authGroup := app.Group("/auth/:kind")
	authGroup.Post("/register", limit, cfg.Auth.Register)
	authGroup.Post("/login", limit, cfg.Auth.Login)
	authGroup.Post("/logout", cfg.AuthMiddleware.Handle, cfg.Auth.Logout)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, cfg.Auth.Me)
	authGroup.Get("/sessions", cfg.AuthMiddleware.Handle, cfg.Auth.Sessions)

	bookings := app.Group("/bookings", cfg.AuthMiddleware.Handle, auth.RequireKind(domain.AccountKinds...))
	bookings.Get("", cfg.Bookings.List)
	bookings.Post("", cfg.Bookings.Create)
	bookings.Get("/:id", cfg.Bookings.Get)
	bookings.Patch("/:id", cfg.Bookings.Update)
	bookings.Get("/:id/history", cfg.Bookings.History)
}
