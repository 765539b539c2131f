package auth

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// HashPassword hashes a plaintext password with configured cost.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyPassword reports whether plain matches the stored hash.
func VerifyPassword(hashed, plain string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}

// BurnPasswordCheck spends the same work as a real comparison so login latency
// does not reveal which emails are registered.
func BurnPasswordCheck(plain string, cost int) {
	dummyOnce.Do(func() {
		if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			cost = bcrypt.DefaultCost
		}
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("burn-password-check"), cost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(plain))
}
