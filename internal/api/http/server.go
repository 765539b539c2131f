package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/booking-service/internal/observability"
)

// NewApp builds the fiber application with the shared error envelope and
// global middlewares. Routes are registered separately.
func NewApp(appName string, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) *fiber.App {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler(logger, metrics),
	})
	RegisterMiddlewares(app, logger, metrics, timeout)
	return app
}
