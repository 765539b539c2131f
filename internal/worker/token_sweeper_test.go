package worker

import (
	"context"
	"testing"
	"time"

	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/repository"
	"github.com/spec-kit/booking-service/internal/service"
)

func TestTokenSweeperRemovesExpiredOfEveryKind(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	var sessions []*service.SessionService
	stores := map[domain.AccountKind]repository.SessionTokenRepository{}
	for _, kind := range domain.AccountKinds {
		store := repository.NewMemorySessionTokenRepository(kind)
		stores[kind] = store
		sessions = append(sessions, service.NewSessionService(store, repository.NewMemoryAccountRepository(kind), time.Minute, c.Now))
	}
	registry := service.NewSessionRegistry(nil, nil, sessions...)
	sweeper := NewTokenSweeper(registry, time.Hour, nil)

	for _, svc := range sessions {
		if _, err := svc.Issue(ctx, "acct-old"); err != nil {
			t.Fatalf("issue: %v", err)
		}
	}
	c.Advance(2 * time.Minute)
	fresh, err := sessions[1].Issue(ctx, "acct-new")
	if err != nil {
		t.Fatalf("issue fresh: %v", err)
	}

	removed, err := sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != int64(len(domain.AccountKinds)) {
		t.Fatalf("removed %d, want %d", removed, len(domain.AccountKinds))
	}
	if again, _ := sweeper.RunOnce(ctx); again != 0 {
		t.Fatalf("second sweep removed %d", again)
	}
	if _, err := stores[sessions[1].Kind()].FindByValue(ctx, fresh.Value); err != nil {
		t.Fatalf("unexpired token swept: %v", err)
	}
}

func TestTokenSweeperStopsOnCancel(t *testing.T) {
	registry := service.NewSessionRegistry(nil, nil)
	sweeper := NewTokenSweeper(registry, time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
