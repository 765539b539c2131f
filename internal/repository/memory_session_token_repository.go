package repository

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/booking-service/internal/domain"
)

// memorySessionTokenRepository keeps each account's tokens in append order
// plus an index from token value to owning account.
type memorySessionTokenRepository struct {
	mu        sync.Mutex
	kind      domain.AccountKind
	byAccount map[string][]domain.Token
	index     map[string]string
}

// NewMemorySessionTokenRepository returns a process-local token store for one kind.
func NewMemorySessionTokenRepository(kind domain.AccountKind) SessionTokenRepository {
	return &memorySessionTokenRepository{
		kind:      kind,
		byAccount: make(map[string][]domain.Token),
		index:     make(map[string]string),
	}
}

func (r *memorySessionTokenRepository) Kind() domain.AccountKind {
	return r.kind
}

func (r *memorySessionTokenRepository) Append(_ context.Context, token domain.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.index[token.Value]; exists {
		return ErrTokenExists
	}
	r.byAccount[token.AccountID] = append(r.byAccount[token.AccountID], token)
	r.index[token.Value] = token.AccountID
	return nil
}

func (r *memorySessionTokenRepository) FindByValue(_ context.Context, value string) (*domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.locate(value)
	if !ok {
		return nil, domain.ErrNotFound
	}
	token := r.byAccount[r.index[value]][pos]
	return copyToken(token), nil
}

func (r *memorySessionTokenRepository) Touch(_ context.Context, value string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.locate(value)
	if !ok {
		return false, nil
	}
	used := at
	r.byAccount[r.index[value]][pos].LastUsedAt = &used
	return true, nil
}

func (r *memorySessionTokenRepository) Remove(_ context.Context, value string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.locate(value)
	if !ok {
		return false, nil
	}
	accountID := r.index[value]
	tokens := r.byAccount[accountID]
	r.byAccount[accountID] = append(tokens[:pos:pos], tokens[pos+1:]...)
	delete(r.index, value)
	return true, nil
}

func (r *memorySessionTokenRepository) RemoveExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for accountID, tokens := range r.byAccount {
		kept := tokens[:0:0]
		for _, token := range tokens {
			if token.ExpiresAt.Before(before) {
				delete(r.index, token.Value)
				removed++
				continue
			}
			kept = append(kept, token)
		}
		r.byAccount[accountID] = kept
	}
	return removed, nil
}

func (r *memorySessionTokenRepository) ListByAccount(_ context.Context, accountID string) ([]domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tokens := r.byAccount[accountID]
	result := make([]domain.Token, 0, len(tokens))
	for _, token := range tokens {
		result = append(result, *copyToken(token))
	}
	return result, nil
}

func (r *memorySessionTokenRepository) locate(value string) (int, bool) {
	accountID, ok := r.index[value]
	if !ok {
		return 0, false
	}
	for i, token := range r.byAccount[accountID] {
		if token.Value == value {
			return i, true
		}
	}
	return 0, false
}

func copyToken(token domain.Token) *domain.Token {
	c := token
	if token.LastUsedAt != nil {
		used := *token.LastUsedAt
		c.LastUsedAt = &used
	}
	return &c
}
