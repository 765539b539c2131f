// Package bootstrap assembles storage, services and workers from configuration.
// Both the API server and the maintenance CLI build on it.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/booking-service/internal/config"
	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/events"
	"github.com/spec-kit/booking-service/internal/observability"
	"github.com/spec-kit/booking-service/internal/persistence"
	"github.com/spec-kit/booking-service/internal/queue"
	"github.com/spec-kit/booking-service/internal/repository"
	"github.com/spec-kit/booking-service/internal/service"
	"github.com/spec-kit/booking-service/internal/settlement"
	"github.com/spec-kit/booking-service/internal/worker"
)

// Container holds the wired application graph.
type Container struct {
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Postgres   *persistence.Postgres
	Redis      *persistence.Redis
	Dispatcher events.Dispatcher
	Bridge     *events.AMQPBridge

	Accounts      map[domain.AccountKind]repository.AccountRepository
	Sessions      *service.SessionRegistry
	Auth          *service.AuthService
	Bookings      *service.BookingService
	Notifications *service.NotificationService
	RefundQueue   queue.RefundQueue
	Refunds       *worker.RefundWorker
	Sweeper       *worker.TokenSweeper
}

// New connects to the configured backends and wires every component.
// Postgres and Redis fall back to process-local stores when not configured.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	c := &Container{
		Config:   cfg,
		Logger:   logger,
		Metrics:  observability.NewMetrics(),
		Accounts: make(map[domain.AccountKind]repository.AccountRepository, len(domain.AccountKinds)),
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	c.Postgres = pg
	c.Redis = persistence.NewRedis(ctx, cfg.Redis, logger)

	var sessions []*service.SessionService
	var accountRepos []repository.AccountRepository
	for _, kind := range domain.AccountKinds {
		accounts, tokens, err := c.sessionStores(kind)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Accounts[kind] = accounts
		accountRepos = append(accountRepos, accounts)
		sessions = append(sessions, service.NewSessionService(tokens, accounts, cfg.Auth.SessionTTL(), nil))
	}
	c.Sessions = service.NewSessionRegistry(c.Metrics, logger, sessions...)
	c.Auth = service.NewAuthService(c.Sessions, cfg.Auth.BcryptCost, logger, accountRepos...)

	var bookings repository.BookingRepository
	var history repository.BookingHistoryRepository
	if pg.Enabled() {
		bookings = repository.NewBookingRepository(pg.PoolHandle())
		history = repository.NewBookingHistoryRepository(pg.PoolHandle())
	} else {
		bookings = repository.NewMemoryBookingRepository()
		history = repository.NewMemoryBookingHistoryRepository()
	}

	if c.Redis.Enabled() {
		c.RefundQueue = queue.NewRedisRefundQueue(c.Redis.Client, cfg.Refund.QueueKey, cfg.Refund.ClaimLease())
	} else {
		c.RefundQueue = queue.NewMemoryRefundQueue(cfg.Refund.ClaimLease())
	}

	c.Dispatcher = events.NewInMemoryDispatcher()
	c.Notifications = service.NewNotificationService(c.Dispatcher, logger)
	if cfg.Events.AMQPURL != "" {
		bridge, err := events.NewAMQPBridge(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			logger.Warn("rabbitmq bridge disabled", zap.Error(err))
		} else {
			c.Bridge = bridge
		}
	}

	c.Bookings = service.NewBookingService(service.BookingDependencies{
		BookingRepo: bookings,
		HistoryRepo: history,
		RefundQueue: c.RefundQueue,
		Dispatcher:  c.Dispatcher,
		Metrics:     c.Metrics,
		Logger:      logger,
		Currency:    cfg.Settlement.Currency,
	})

	provider, err := newSettlementProvider(cfg.Settlement, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Refunds = worker.NewRefundWorker(worker.RefundWorkerDeps{
		Queue:      c.RefundQueue,
		Bookings:   bookings,
		Provider:   provider,
		Dispatcher: c.Dispatcher,
		Metrics:    c.Metrics,
		Logger:     logger,
		Config:     cfg.Refund,
		Currency:   cfg.Settlement.Currency,
	})
	c.Sweeper = worker.NewTokenSweeper(c.Sessions, cfg.Sweep.Interval(), logger)

	worker.StartNotificationWorker(c.Notifications, c.Dispatcher, c.Bridge)
	return c, nil
}

// Migrate applies the SQL migrations when Postgres is configured.
func (c *Container) Migrate(ctx context.Context) (int, error) {
	if !c.Postgres.Enabled() {
		return 0, nil
	}
	return persistence.RunMigrations(ctx, c.Postgres.PoolHandle(), c.Config.Postgres.MigrationsDir, c.Logger)
}

// Close releases backend connections.
func (c *Container) Close() {
	if c.Bridge != nil {
		if err := c.Bridge.Close(); err != nil {
			c.Logger.Warn("close rabbitmq bridge", zap.Error(err))
		}
	}
	c.Redis.Close()
	c.Postgres.Close()
}

func (c *Container) sessionStores(kind domain.AccountKind) (repository.AccountRepository, repository.SessionTokenRepository, error) {
	if !c.Postgres.Enabled() {
		return repository.NewMemoryAccountRepository(kind), repository.NewMemorySessionTokenRepository(kind), nil
	}
	accounts, err := repository.NewAccountRepository(c.Postgres.PoolHandle(), kind)
	if err != nil {
		return nil, nil, err
	}
	tokens, err := repository.NewSessionTokenRepository(c.Postgres.PoolHandle(), kind)
	if err != nil {
		return nil, nil, err
	}
	return accounts, tokens, nil
}

func newSettlementProvider(cfg config.SettlementConfig, logger *zap.Logger) (settlement.Provider, error) {
	if cfg.OmisePublicKey == "" || cfg.OmiseSecretKey == "" {
		logger.Warn("omise keys not provided; refunds will be recorded for manual settlement")
		return settlement.NewManualProvider(logger), nil
	}
	provider, err := settlement.NewOmiseProvider(cfg.OmisePublicKey, cfg.OmiseSecretKey)
	if err != nil {
		return nil, err
	}
	return provider, nil
}
