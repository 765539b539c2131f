package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/observability"
	"github.com/spec-kit/booking-service/internal/repository"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// countingTokens wraps a token repository to observe lookups and to simulate
// an entry vanishing between lookup and update.
type countingTokens struct {
	repository.SessionTokenRepository
	lookups   int
	dropTouch bool
}

func (c *countingTokens) FindByValue(ctx context.Context, value string) (*domain.Token, error) {
	c.lookups++
	return c.SessionTokenRepository.FindByValue(ctx, value)
}

func (c *countingTokens) Touch(ctx context.Context, value string, at time.Time) (bool, error) {
	if c.dropTouch {
		_, _ = c.SessionTokenRepository.Remove(ctx, value)
	}
	return c.SessionTokenRepository.Touch(ctx, value, at)
}

// switchableAccounts reports every loaded account as inactive once disabled is set.
type switchableAccounts struct {
	repository.AccountRepository
	disabled bool
}

func (a *switchableAccounts) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	account, err := a.AccountRepository.GetByID(ctx, id)
	if err == nil && a.disabled {
		account.Active = false
	}
	return account, err
}

type sessionFixture struct {
	clock    *fakeClock
	tokens   *countingTokens
	accounts repository.AccountRepository
	svc      *SessionService
	account  *domain.Account
}

func newSessionFixture(t *testing.T, kind domain.AccountKind, ttl time.Duration) *sessionFixture {
	t.Helper()
	clock := newFakeClock()
	tokens := &countingTokens{SessionTokenRepository: repository.NewMemorySessionTokenRepository(kind)}
	accounts := repository.NewMemoryAccountRepository(kind)
	account := &domain.Account{Email: string(kind) + "@example.com", Name: "Test " + string(kind), Active: true}
	if err := accounts.Create(context.Background(), account); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return &sessionFixture{
		clock:    clock,
		tokens:   tokens,
		accounts: accounts,
		svc:      NewSessionService(tokens, accounts, ttl, clock.Now),
		account:  account,
	}
}

func TestIssueProducesUniqueVerifiableTokens(t *testing.T) {
	f := newSessionFixture(t, domain.AccountKindPartner, time.Hour)
	ctx := context.Background()

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		token, err := f.svc.Issue(ctx, f.account.ID)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if len(token.Value) < domain.MinTokenLength {
			t.Fatalf("token too short: %q", token.Value)
		}
		if _, dup := seen[token.Value]; dup {
			t.Fatalf("duplicate token %q", token.Value)
		}
		seen[token.Value] = struct{}{}
		if !token.ExpiresAt.Equal(f.clock.Now().Add(time.Hour)) {
			t.Fatalf("unexpected expiry %v", token.ExpiresAt)
		}
	}
	for value := range seen {
		accountID, err := f.svc.Check(ctx, value)
		if err != nil || accountID != f.account.ID {
			t.Fatalf("check %q: %q %v", value, accountID, err)
		}
	}

	sessions, _ := f.svc.ListSessions(ctx, f.account.ID)
	if len(sessions) != 50 {
		t.Fatalf("expected 50 concurrent sessions, got %d", len(sessions))
	}
}

func TestCheckRejectsShortTokensWithoutLookup(t *testing.T) {
	f := newSessionFixture(t, domain.AccountKindCustomer, time.Hour)
	for _, value := range []string{"", "abc", "123456789"} {
		if _, err := f.svc.Check(context.Background(), value); !errors.Is(err, domain.ErrInvalidTokenFormat) {
			t.Fatalf("%q: expected ErrInvalidTokenFormat, got %v", value, err)
		}
	}
	if f.tokens.lookups != 0 {
		t.Fatalf("store consulted %d times for malformed tokens", f.tokens.lookups)
	}
	if _, err := f.svc.Check(context.Background(), "0123456789"); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Fatalf("ten characters should reach the store, got %v", err)
	}
}

func TestOneSecondLifetimeExpires(t *testing.T) {
	f := newSessionFixture(t, domain.AccountKindCustomer, time.Second)
	ctx := context.Background()

	token, err := f.svc.Issue(ctx, f.account.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := f.svc.Check(ctx, token.Value); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}

	f.clock.Advance(2 * time.Second)
	if _, err := f.svc.Check(ctx, token.Value); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if _, err := f.svc.Check(ctx, token.Value); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Fatalf("expired token should be gone, got %v", err)
	}
	removed, err := f.svc.SweepExpired(ctx)
	if err != nil || removed != 0 {
		t.Fatalf("sweep after lazy cleanup removed %d (%v)", removed, err)
	}
}

func TestSweepRemovesOnlyExpiredTokens(t *testing.T) {
	f := newSessionFixture(t, domain.AccountKindAdmin, time.Minute)
	ctx := context.Background()

	old, _ := f.svc.Issue(ctx, f.account.ID)
	f.clock.Advance(45 * time.Second)
	fresh, _ := f.svc.Issue(ctx, f.account.ID)
	f.clock.Advance(30 * time.Second)

	removed, err := f.svc.SweepExpired(ctx)
	if err != nil || removed != 1 {
		t.Fatalf("expected 1 removed, got %d (%v)", removed, err)
	}
	if _, err := f.svc.Check(ctx, old.Value); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Fatalf("swept token still verifies: %v", err)
	}
	if _, err := f.svc.Check(ctx, fresh.Value); err != nil {
		t.Fatalf("fresh token affected by sweep: %v", err)
	}
	removed, _ = f.svc.SweepExpired(ctx)
	if removed != 0 {
		t.Fatalf("second sweep removed %d", removed)
	}
}

func TestCheckUpdatesOnlyTheVerifiedEntry(t *testing.T) {
	f := newSessionFixture(t, domain.AccountKindPartner, time.Hour)
	ctx := context.Background()

	first, _ := f.svc.Issue(ctx, f.account.ID)
	second, _ := f.svc.Issue(ctx, f.account.ID)
	f.clock.Advance(time.Minute)

	if _, err := f.svc.Check(ctx, second.Value); err != nil {
		t.Fatalf("check: %v", err)
	}
	sessions, _ := f.svc.ListSessions(ctx, f.account.ID)
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d", len(sessions))
	}
	if sessions[0].Value != first.Value || sessions[0].LastUsedAt != nil {
		t.Fatalf("first session modified: %+v", sessions[0])
	}
	if sessions[1].LastUsedAt == nil || !sessions[1].LastUsedAt.Equal(f.clock.Now()) {
		t.Fatalf("second session last_used_at = %v", sessions[1].LastUsedAt)
	}
}

func TestCheckReportsVanishedEntry(t *testing.T) {
	f := newSessionFixture(t, domain.AccountKindPartner, time.Hour)
	ctx := context.Background()
	token, _ := f.svc.Issue(ctx, f.account.ID)

	f.tokens.dropTouch = true
	if _, err := f.svc.Check(ctx, token.Value); !errors.Is(err, domain.ErrTokenEntryMissing) {
		t.Fatalf("expected ErrTokenEntryMissing, got %v", err)
	}
}

func TestRevokeOneIsIdempotent(t *testing.T) {
	f := newSessionFixture(t, domain.AccountKindCustomer, time.Hour)
	ctx := context.Background()
	keep, _ := f.svc.Issue(ctx, f.account.ID)
	drop, _ := f.svc.Issue(ctx, f.account.ID)

	removed, err := f.svc.RevokeOne(ctx, drop.Value)
	if err != nil || !removed {
		t.Fatalf("revoke: %v %v", removed, err)
	}
	removed, _ = f.svc.RevokeOne(ctx, drop.Value)
	if removed {
		t.Fatal("second revoke reported a removal")
	}
	if _, err := f.svc.Check(ctx, keep.Value); err != nil {
		t.Fatalf("other session revoked too: %v", err)
	}
}

func TestRegistryResolvesTokenKind(t *testing.T) {
	admin := newSessionFixture(t, domain.AccountKindAdmin, time.Hour)
	partner := newSessionFixture(t, domain.AccountKindPartner, time.Hour)
	customer := newSessionFixture(t, domain.AccountKindCustomer, time.Hour)
	registry := NewSessionRegistry(observability.NewMetrics(), nil, customer.svc, admin.svc, partner.svc)
	ctx := context.Background()

	token, _ := customer.svc.Issue(ctx, customer.account.ID)
	principal, err := registry.Verify(ctx, token.Value)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if principal.Kind != domain.AccountKindCustomer || principal.AccountID() != customer.account.ID || principal.Token != token.Value {
		t.Fatalf("unexpected principal: %+v", principal)
	}

	if _, err := registry.Verify(ctx, "not-a-known-token"); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
	if _, err := registry.Verify(ctx, "short"); !errors.Is(err, domain.ErrInvalidTokenFormat) {
		t.Fatalf("expected ErrInvalidTokenFormat, got %v", err)
	}
	if admin.tokens.lookups+partner.tokens.lookups+customer.tokens.lookups == 0 {
		t.Fatal("expected store lookups for well-formed tokens")
	}

	partnerToken, _ := partner.svc.Issue(ctx, partner.account.ID)
	partner.clock.Advance(2 * time.Hour)
	if _, err := registry.Verify(ctx, partnerToken.Value); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	removed, err := registry.SweepAll(ctx)
	if err != nil {
		t.Fatalf("sweep all: %v", err)
	}
	if len(removed) != 3 {
		t.Fatalf("sweep covered %d kinds", len(removed))
	}
}

func TestVerifyRevokesSessionsOfDeactivatedAdmin(t *testing.T) {
	f := newSessionFixture(t, domain.AccountKindAdmin, time.Hour)
	accounts := &switchableAccounts{AccountRepository: f.accounts}
	svc := NewSessionService(f.tokens, accounts, time.Hour, f.clock.Now)
	ctx := context.Background()

	first, _ := svc.Issue(ctx, f.account.ID)
	second, _ := svc.Issue(ctx, f.account.ID)
	if _, err := svc.Verify(ctx, first.Value); err != nil {
		t.Fatalf("verify active admin: %v", err)
	}

	accounts.disabled = true
	_, err := svc.Verify(ctx, first.Value)
	if !errors.Is(err, domain.ErrTokenEntryMissing) || !domain.IsAuthError(err) {
		t.Fatalf("expected an auth error, got %v", err)
	}
	if _, err := f.tokens.FindByValue(ctx, first.Value); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("token of deactivated admin kept: %v", err)
	}
	if _, err := svc.Verify(ctx, second.Value); !domain.IsAuthError(err) {
		t.Fatalf("second session still verifies: %v", err)
	}

	// reactivation does not resurrect revoked tokens
	accounts.disabled = false
	if _, err := svc.Verify(ctx, second.Value); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestVerifyIgnoresActiveFlagOutsideAdmins(t *testing.T) {
	f := newSessionFixture(t, domain.AccountKindPartner, time.Hour)
	svc := NewSessionService(f.tokens, &switchableAccounts{AccountRepository: f.accounts, disabled: true}, time.Hour, f.clock.Now)
	ctx := context.Background()

	token, _ := svc.Issue(ctx, f.account.ID)
	if _, err := svc.Verify(ctx, token.Value); err != nil {
		t.Fatalf("partner verify: %v", err)
	}
}
