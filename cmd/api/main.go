package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	httptransport "github.com/spec-kit/booking-service/internal/api/http"
	"github.com/spec-kit/booking-service/internal/api/http/handlers"
	"github.com/spec-kit/booking-service/internal/auth"
	"github.com/spec-kit/booking-service/internal/bootstrap"
	"github.com/spec-kit/booking-service/internal/config"
	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.App, cfg.Tracing)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}

	container, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to wire application", zap.Error(err))
	}
	defer container.Close()

	if cfg.Postgres.RunMigrations {
		if _, err := container.Migrate(ctx); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	if n, err := container.Refunds.Requeue(ctx, cfg.Refund.BatchSize*10); err != nil {
		logger.Warn("refund requeue failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("requeued pending refunds", zap.Int("jobs", n))
	}

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		container.Refunds.Run(ctx)
	}()
	go func() {
		defer workers.Done()
		container.Sweeper.Run(ctx)
	}()

	app := httptransport.NewApp(cfg.App.Name, logger, container.Metrics, cfg.App.RequestTimeout())
	authMiddleware := auth.NewAuthMiddleware(container.Sessions, cfg.Auth.CookieName, nil)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": container.Postgres,
			"redis":    container.Redis,
		}),
		Auth:           handlers.NewAuthHandler(container.Auth, container.Sessions, cfg.Auth.CookieName, cfg.Auth.CookieSecure),
		Bookings:       handlers.NewBookingsHandler(container.Bookings),
		AuthMiddleware: authMiddleware,
		LoginLimiter:   httptransport.NewLoginLimiter(cfg.Auth.LoginRatePerMinute, cfg.Auth.LoginBurst),
		Metrics:        container.Metrics.Handler(),
	})

	go func() {
		logger.Info("http server listening",
			zap.String("addr", cfg.App.Addr()),
			zap.Strings("account_kinds", kindNames()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	workers.Wait()

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := shutdownTracer(flushCtx); err != nil {
		logger.Warn("tracer shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}

func kindNames() []string {
	names := make([]string, 0, len(domain.AccountKinds))
	for _, kind := range domain.AccountKinds {
		names = append(names, string(kind))
	}
	return names
}
