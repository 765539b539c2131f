package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/booking-service/internal/service"
)

// TokenSweeper periodically removes expired session tokens of every kind.
type TokenSweeper struct {
	sessions *service.SessionRegistry
	interval time.Duration
	logger   *zap.Logger
}

// NewTokenSweeper builds a sweeper.
func NewTokenSweeper(sessions *service.SessionRegistry, interval time.Duration, logger *zap.Logger) *TokenSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenSweeper{sessions: sessions, interval: interval, logger: logger}
}

// RunOnce performs a single sweep and returns the total removed.
func (s *TokenSweeper) RunOnce(ctx context.Context) (int64, error) {
	removed, err := s.sessions.SweepAll(ctx)
	var total int64
	for kind, n := range removed {
		total += n
		if n > 0 {
			s.logger.Info("expired sessions swept", zap.String("kind", string(kind)), zap.Int64("removed", n))
		}
	}
	return total, err
}

// Run sweeps on every tick until ctx is cancelled.
func (s *TokenSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("session sweep failed", zap.Error(err))
			}
		}
	}
}
