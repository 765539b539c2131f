package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/spec-kit/booking-service/internal/auth"
	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/observability"
	"github.com/spec-kit/booking-service/internal/repository"
)

const issueAttempts = 3

// SessionService issues, verifies and revokes session tokens for one account kind.
type SessionService struct {
	kind     domain.AccountKind
	tokens   repository.SessionTokenRepository
	accounts repository.AccountRepository
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionService builds the service. now may be nil.
func NewSessionService(tokens repository.SessionTokenRepository, accounts repository.AccountRepository, ttl time.Duration, now func() time.Time) *SessionService {
	if now == nil {
		now = time.Now
	}
	return &SessionService{
		kind:     tokens.Kind(),
		tokens:   tokens,
		accounts: accounts,
		ttl:      ttl,
		now:      now,
	}
}

// Kind returns the account kind served by this instance.
func (s *SessionService) Kind() domain.AccountKind {
	return s.kind
}

// Issue creates a fresh token for the account and appends it to the store.
func (s *SessionService) Issue(ctx context.Context, accountID string) (domain.Token, error) {
	for attempt := 0; attempt < issueAttempts; attempt++ {
		value, err := auth.GenerateSessionToken()
		if err != nil {
			return domain.Token{}, err
		}
		now := s.now().UTC()
		token := domain.Token{
			Value:     value,
			AccountID: accountID,
			CreatedAt: now,
			ExpiresAt: now.Add(s.ttl),
		}
		err = s.tokens.Append(ctx, token)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, repository.ErrTokenExists) {
			return domain.Token{}, err
		}
	}
	return domain.Token{}, fmt.Errorf("issue %s token: value collision after %d attempts", s.kind, issueAttempts)
}

// Check validates a token and returns the owning account id.
func (s *SessionService) Check(ctx context.Context, value string) (string, error) {
	if len(value) < domain.MinTokenLength {
		return "", domain.ErrInvalidTokenFormat
	}

	token, err := s.tokens.FindByValue(ctx, value)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.ErrTokenNotFound
		}
		return "", err
	}

	now := s.now().UTC()
	if token.ExpiredAt(now) {
		if _, err := s.tokens.Remove(ctx, value); err != nil {
			return "", err
		}
		return "", domain.ErrTokenExpired
	}

	touched, err := s.tokens.Touch(ctx, value, now)
	if err != nil {
		return "", err
	}
	if !touched {
		return "", domain.ErrTokenEntryMissing
	}
	return token.AccountID, nil
}

// Verify validates a token and loads the owning account. Tokens of inactive
// admins are revoked on sight.
func (s *SessionService) Verify(ctx context.Context, value string) (*domain.Principal, error) {
	accountID, err := s.Check(ctx, value)
	if err != nil {
		return nil, err
	}
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrTokenEntryMissing
		}
		return nil, err
	}
	if s.kind == domain.AccountKindAdmin && !account.Active {
		// a deactivated admin loses the sessions issued before deactivation
		if _, err := s.tokens.Remove(ctx, value); err != nil {
			return nil, err
		}
		return nil, domain.ErrTokenEntryMissing
	}
	return &domain.Principal{Kind: s.kind, Account: account, Token: value}, nil
}

// RevokeOne removes a single token. Revoking an absent token reports false.
func (s *SessionService) RevokeOne(ctx context.Context, value string) (bool, error) {
	return s.tokens.Remove(ctx, value)
}

// SweepExpired removes every token whose lifetime ended before now.
func (s *SessionService) SweepExpired(ctx context.Context) (int64, error) {
	return s.tokens.RemoveExpired(ctx, s.now().UTC())
}

// ListSessions returns the account's active tokens in issue order.
func (s *SessionService) ListSessions(ctx context.Context, accountID string) ([]domain.Token, error) {
	return s.tokens.ListByAccount(ctx, accountID)
}

// SessionRegistry groups the per-kind services and verifies tokens of any kind.
type SessionRegistry struct {
	services map[domain.AccountKind]*SessionService
	order    []domain.AccountKind
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewSessionRegistry builds a registry. Services are tried in domain.AccountKinds order.
func NewSessionRegistry(metrics *observability.Metrics, logger *zap.Logger, services ...*SessionService) *SessionRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &SessionRegistry{
		services: make(map[domain.AccountKind]*SessionService, len(services)),
		metrics:  metrics,
		logger:   logger,
	}
	for _, svc := range services {
		r.services[svc.Kind()] = svc
	}
	for _, kind := range domain.AccountKinds {
		if _, ok := r.services[kind]; ok {
			r.order = append(r.order, kind)
		}
	}
	return r
}

// For returns the service for a kind.
func (r *SessionRegistry) For(kind domain.AccountKind) (*SessionService, bool) {
	svc, ok := r.services[kind]
	return svc, ok
}

// Verify resolves a token against each kind until one store knows it.
func (r *SessionRegistry) Verify(ctx context.Context, value string) (*domain.Principal, error) {
	ctx, span := observability.Tracer().Start(ctx, "session.verify")
	defer span.End()

	if len(value) < domain.MinTokenLength {
		r.record("unknown", domain.ErrInvalidTokenFormat)
		return nil, domain.ErrInvalidTokenFormat
	}
	for _, kind := range r.order {
		principal, err := r.services[kind].Verify(ctx, value)
		if errors.Is(err, domain.ErrTokenNotFound) {
			continue
		}
		r.record(string(kind), err)
		if err != nil {
			span.SetAttributes(attribute.String("session.kind", string(kind)))
			if !domain.IsAuthError(err) {
				span.SetStatus(codes.Error, err.Error())
			}
			return nil, err
		}
		span.SetAttributes(
			attribute.String("session.kind", string(kind)),
			attribute.String("session.account_id", principal.AccountID()),
		)
		return principal, nil
	}
	r.record("unknown", domain.ErrTokenNotFound)
	return nil, domain.ErrTokenNotFound
}

// SweepAll sweeps every kind, continuing past failures.
func (r *SessionRegistry) SweepAll(ctx context.Context) (map[domain.AccountKind]int64, error) {
	removed := make(map[domain.AccountKind]int64, len(r.order))
	var errs []error
	for _, kind := range r.order {
		n, err := r.services[kind].SweepExpired(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep %s: %w", kind, err))
			continue
		}
		removed[kind] = n
		r.metrics.RecordSweep(string(kind), n)
	}
	return removed, errors.Join(errs...)
}

func (r *SessionRegistry) record(kind string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case domain.IsAuthError(err):
		outcome = err.Error()
	default:
		outcome = "error"
		r.logger.Error("session verification failed", zap.String("kind", kind), zap.Error(err))
	}
	r.metrics.RecordVerification(kind, outcome)
}
