package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/booking-service/internal/auth"
	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/repository"
)

const minPasswordLength = 8

// RegisterInput carries self-service registration fields.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// AdminInput carries fields for provisioning an admin account.
type AdminInput struct {
	Name     string
	Email    string
	Password string
	Roles    []domain.AdminRole
}

// AuthService coordinates registration, login and logout for every account kind.
type AuthService struct {
	accounts   map[domain.AccountKind]repository.AccountRepository
	sessions   *SessionRegistry
	bcryptCost int
	logger     *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(sessions *SessionRegistry, bcryptCost int, logger *zap.Logger, accounts ...repository.AccountRepository) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	byKind := make(map[domain.AccountKind]repository.AccountRepository, len(accounts))
	for _, repo := range accounts {
		byKind[repo.Kind()] = repo
	}
	return &AuthService{
		accounts:   byKind,
		sessions:   sessions,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

// Register creates a partner or customer account and opens its first session.
func (s *AuthService) Register(ctx context.Context, kind domain.AccountKind, input RegisterInput) (*domain.Account, domain.Token, error) {
	if kind == domain.AccountKindAdmin {
		return nil, domain.Token{}, domain.ErrForbidden
	}
	repo, sessions, err := s.forKind(kind)
	if err != nil {
		return nil, domain.Token{}, err
	}
	if err := validateCredentials(input.Name, input.Email, input.Password); err != nil {
		return nil, domain.Token{}, err
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, domain.Token{}, err
	}
	account := &domain.Account{
		Name:         strings.TrimSpace(input.Name),
		Email:        input.Email,
		PasswordHash: hash,
		Active:       true,
	}
	if err := repo.Create(ctx, account); err != nil {
		return nil, domain.Token{}, err
	}

	token, err := sessions.Issue(ctx, account.ID)
	if err != nil {
		return nil, domain.Token{}, err
	}
	s.logger.Info("account registered", zap.String("kind", string(kind)), zap.String("account_id", account.ID))
	return account, token, nil
}

// Login checks credentials and issues a new session token.
func (s *AuthService) Login(ctx context.Context, kind domain.AccountKind, email, password string) (*domain.Account, domain.Token, error) {
	repo, sessions, err := s.forKind(kind)
	if err != nil {
		return nil, domain.Token{}, err
	}

	account, err := repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			auth.BurnPasswordCheck(password, s.bcryptCost)
			return nil, domain.Token{}, domain.ErrInvalidCredentials
		}
		return nil, domain.Token{}, err
	}
	ok, err := auth.VerifyPassword(account.PasswordHash, password)
	if err != nil {
		s.logger.Error("stored password hash unreadable", zap.String("kind", string(kind)), zap.String("account_id", account.ID), zap.Error(err))
		return nil, domain.Token{}, domain.ErrInvalidCredentials
	}
	if !ok {
		return nil, domain.Token{}, domain.ErrInvalidCredentials
	}
	if kind == domain.AccountKindAdmin && !account.Active {
		return nil, domain.Token{}, domain.ErrAccountDisabled
	}

	token, err := sessions.Issue(ctx, account.ID)
	if err != nil {
		return nil, domain.Token{}, err
	}
	return account, token, nil
}

// Logout revokes only the token the principal authenticated with.
func (s *AuthService) Logout(ctx context.Context, principal *domain.Principal) (bool, error) {
	if principal == nil {
		return false, domain.ErrTokenNotFound
	}
	sessions, ok := s.sessions.For(principal.Kind)
	if !ok {
		return false, fmt.Errorf("no session store for %s", principal.Kind)
	}
	return sessions.RevokeOne(ctx, principal.Token)
}

// CreateAdmin provisions an admin account. It never opens a session.
func (s *AuthService) CreateAdmin(ctx context.Context, input AdminInput) (*domain.Account, error) {
	repo, _, err := s.forKind(domain.AccountKindAdmin)
	if err != nil {
		return nil, err
	}
	if err := validateCredentials(input.Name, input.Email, input.Password); err != nil {
		return nil, err
	}
	roles := input.Roles
	if len(roles) == 0 {
		roles = []domain.AdminRole{domain.AdminRoleSupport}
	}
	for _, role := range roles {
		if role != domain.AdminRoleSuperuser && role != domain.AdminRoleSupport {
			return nil, domain.NewValidationError(map[string]string{"roles": fmt.Sprintf("unknown role %q", role)})
		}
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	account := &domain.Account{
		Name:         strings.TrimSpace(input.Name),
		Email:        input.Email,
		PasswordHash: hash,
		Active:       true,
		Roles:        roles,
	}
	if err := repo.Create(ctx, account); err != nil {
		return nil, err
	}
	s.logger.Info("admin account created", zap.String("account_id", account.ID))
	return account, nil
}

func (s *AuthService) forKind(kind domain.AccountKind) (repository.AccountRepository, *SessionService, error) {
	repo, ok := s.accounts[kind]
	if !ok {
		return nil, nil, fmt.Errorf("no account store for %q", kind)
	}
	sessions, ok := s.sessions.For(kind)
	if !ok {
		return nil, nil, fmt.Errorf("no session store for %q", kind)
	}
	return repo, sessions, nil
}

func validateCredentials(name, email, password string) error {
	fields := map[string]string{}
	if strings.TrimSpace(name) == "" {
		fields["name"] = "required"
	}
	trimmed := strings.TrimSpace(email)
	if addr, err := mail.ParseAddress(trimmed); err != nil || addr.Address != trimmed {
		fields["email"] = "must be a valid email address"
	}
	if len(password) < minPasswordLength {
		fields["password"] = fmt.Sprintf("must be at least %d characters", minPasswordLength)
	}
	if len(fields) > 0 {
		return domain.NewValidationError(fields)
	}
	return nil
}
