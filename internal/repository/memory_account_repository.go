package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/booking-service/internal/domain"
)

type memoryAccountRepository struct {
	mu      sync.RWMutex
	kind    domain.AccountKind
	byID    map[string]*domain.Account
	byEmail map[string]string
}

// NewMemoryAccountRepository returns a process-local store for one account kind.
func NewMemoryAccountRepository(kind domain.AccountKind) AccountRepository {
	return &memoryAccountRepository{
		kind:    kind,
		byID:    make(map[string]*domain.Account),
		byEmail: make(map[string]string),
	}
}

func (r *memoryAccountRepository) Kind() domain.AccountKind {
	return r.kind
}

func (r *memoryAccountRepository) Create(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := domain.NormalizeEmail(account.Email)
	if _, taken := r.byEmail[email]; taken {
		return domain.ErrEmailTaken
	}
	now := time.Now().UTC()
	account.ID = uuid.NewString()
	account.Kind = r.kind
	account.Email = email
	account.CreatedAt = now
	account.UpdatedAt = now

	stored := *account
	stored.Roles = append([]domain.AdminRole(nil), account.Roles...)
	r.byID[stored.ID] = &stored
	r.byEmail[email] = stored.ID
	return nil
}

func (r *memoryAccountRepository) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyAccount(account), nil
}

func (r *memoryAccountRepository) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyAccount(r.byID[id]), nil
}

func copyAccount(account *domain.Account) *domain.Account {
	c := *account
	c.Roles = append([]domain.AdminRole(nil), account.Roles...)
	return &c
}
