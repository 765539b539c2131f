package auth

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	ok, err := VerifyPassword(hash, "correct horse")
	if err != nil || !ok {
		t.Fatalf("expected match, ok=%v err=%v", ok, err)
	}

	ok, err = VerifyPassword(hash, "wrong")
	if err != nil || ok {
		t.Fatalf("expected mismatch without error, ok=%v err=%v", ok, err)
	}
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	if _, err := VerifyPassword("not-a-hash", "pw"); err == nil {
		t.Fatalf("expected error for malformed hash")
	}
}

func TestHashPassword_ClampsCost(t *testing.T) {
	hash, err := HashPassword("pw", 99)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		t.Fatalf("Cost: %v", err)
	}
	if cost != bcrypt.DefaultCost {
		t.Fatalf("expected default cost, got %d", cost)
	}
}
