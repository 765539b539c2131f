package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/repository"
)

type authFixture struct {
	svc      *AuthService
	registry *SessionRegistry
	accounts map[domain.AccountKind]repository.AccountRepository
}

func newAuthFixture() *authFixture {
	accounts := map[domain.AccountKind]repository.AccountRepository{}
	var sessions []*SessionService
	var repos []repository.AccountRepository
	for _, kind := range domain.AccountKinds {
		repo := repository.NewMemoryAccountRepository(kind)
		accounts[kind] = repo
		repos = append(repos, repo)
		sessions = append(sessions, NewSessionService(repository.NewMemorySessionTokenRepository(kind), repo, time.Hour, nil))
	}
	registry := NewSessionRegistry(nil, nil, sessions...)
	return &authFixture{
		svc:      NewAuthService(registry, bcrypt.MinCost, nil, repos...),
		registry: registry,
		accounts: accounts,
	}
}

func TestRegisterAndLogin(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	account, token, err := f.svc.Register(ctx, domain.AccountKindPartner, RegisterInput{
		Name:     "Shop Owner",
		Email:    "Owner@Shop.example",
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if account.Email != "owner@shop.example" || account.PasswordHash == "correct-horse" {
		t.Fatalf("unexpected account: %+v", account)
	}
	principal, err := f.registry.Verify(ctx, token.Value)
	if err != nil || principal.Kind != domain.AccountKindPartner {
		t.Fatalf("registration token does not verify: %+v %v", principal, err)
	}

	_, second, err := f.svc.Login(ctx, domain.AccountKindPartner, "owner@shop.example", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if second.Value == token.Value {
		t.Fatal("login reused the registration token")
	}

	if _, _, err := f.svc.Login(ctx, domain.AccountKindPartner, "owner@shop.example", "wrong-password"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := f.svc.Login(ctx, domain.AccountKindPartner, "nobody@shop.example", "correct-horse"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
	if _, _, err := f.svc.Login(ctx, domain.AccountKindCustomer, "owner@shop.example", "correct-horse"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("kinds must not share credentials, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newAuthFixture()
	_, _, err := f.svc.Register(context.Background(), domain.AccountKindCustomer, RegisterInput{Email: "Name <x@y.z>", Password: "short"})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range []string{"name", "email", "password"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Fatalf("missing %s problem in %v", field, verr.Fields)
		}
	}

	if _, _, err := f.svc.Register(context.Background(), domain.AccountKindAdmin, RegisterInput{Name: "a", Email: "a@b.c", Password: "long-enough"}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("admin self-registration should be forbidden, got %v", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	input := RegisterInput{Name: "C", Email: "c@example.com", Password: "password-1"}
	if _, _, err := f.svc.Register(ctx, domain.AccountKindCustomer, input); err != nil {
		t.Fatalf("register: %v", err)
	}
	input.Email = "C@EXAMPLE.com"
	if _, _, err := f.svc.Register(ctx, domain.AccountKindCustomer, input); !errors.Is(err, domain.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestLogoutRevokesOnlyCurrentToken(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	_, first, _ := f.svc.Register(ctx, domain.AccountKindCustomer, RegisterInput{Name: "C", Email: "c@example.com", Password: "password-1"})
	_, second, _ := f.svc.Login(ctx, domain.AccountKindCustomer, "c@example.com", "password-1")

	principal, err := f.registry.Verify(ctx, second.Value)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	removed, err := f.svc.Logout(ctx, principal)
	if err != nil || !removed {
		t.Fatalf("logout: %v %v", removed, err)
	}
	if _, err := f.registry.Verify(ctx, second.Value); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Fatalf("logged out token still valid: %v", err)
	}
	if _, err := f.registry.Verify(ctx, first.Value); err != nil {
		t.Fatalf("other session should survive logout: %v", err)
	}
}

func TestAdminLifecycle(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	admin, err := f.svc.CreateAdmin(ctx, AdminInput{Name: "Root", Email: "root@example.com", Password: "admin-password", Roles: []domain.AdminRole{domain.AdminRoleSuperuser}})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	if len(admin.Roles) != 1 || admin.Roles[0] != domain.AdminRoleSuperuser {
		t.Fatalf("roles = %v", admin.Roles)
	}
	_, token, err := f.svc.Login(ctx, domain.AccountKindAdmin, "root@example.com", "admin-password")
	if err != nil {
		t.Fatalf("admin login: %v", err)
	}
	if principal, err := f.registry.Verify(ctx, token.Value); err != nil || principal.Kind != domain.AccountKindAdmin {
		t.Fatalf("admin token: %+v %v", principal, err)
	}

	if _, err := f.svc.CreateAdmin(ctx, AdminInput{Name: "X", Email: "x@example.com", Password: "admin-password", Roles: []domain.AdminRole{"owner"}}); err == nil {
		t.Fatal("unknown role accepted")
	}

	hash, _ := bcrypt.GenerateFromPassword([]byte("admin-password"), bcrypt.MinCost)
	disabled := &domain.Account{Email: "off@example.com", Name: "Off", PasswordHash: string(hash), Active: false}
	if err := f.accounts[domain.AccountKindAdmin].Create(ctx, disabled); err != nil {
		t.Fatalf("seed disabled admin: %v", err)
	}
	if _, _, err := f.svc.Login(ctx, domain.AccountKindAdmin, "off@example.com", "admin-password"); !errors.Is(err, domain.ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}
