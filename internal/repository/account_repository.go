package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/booking-service/internal/domain"
)

const pgUniqueViolation = "23505"

// AccountRepository defines persistence access for one kind of account.
type AccountRepository interface {
	Kind() domain.AccountKind
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
}

var accountTables = map[domain.AccountKind]string{
	domain.AccountKindAdmin:    "admin_accounts",
	domain.AccountKindPartner:  "partner_accounts",
	domain.AccountKindCustomer: "customer_accounts",
}

type accountRepository struct {
	pool  *pgxpool.Pool
	kind  domain.AccountKind
	table string
}

// NewAccountRepository returns a Postgres-backed implementation for the given kind.
func NewAccountRepository(pool *pgxpool.Pool, kind domain.AccountKind) (AccountRepository, error) {
	table, ok := accountTables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown account kind %q", kind)
	}
	return &accountRepository{pool: pool, kind: kind, table: table}, nil
}

func (r *accountRepository) Kind() domain.AccountKind {
	return r.kind
}

func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	query := fmt.Sprintf(`
        INSERT INTO %s (email, password_hash, name, active, roles)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at, updated_at`, r.table)

	account.Kind = r.kind
	account.Email = domain.NormalizeEmail(account.Email)
	err := r.pool.QueryRow(ctx, query,
		account.Email,
		account.PasswordHash,
		account.Name,
		account.Active,
		rolesToStrings(account.Roles),
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("create %s account: %w", r.kind, err)
	}
	return nil
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	query := fmt.Sprintf(`
        SELECT id, email, password_hash, name, active, roles, created_at, updated_at
        FROM %s WHERE id=$1`, r.table)
	return r.fetchSingle(ctx, query, id)
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := fmt.Sprintf(`
        SELECT id, email, password_hash, name, active, roles, created_at, updated_at
        FROM %s WHERE email=$1`, r.table)
	return r.fetchSingle(ctx, query, domain.NormalizeEmail(email))
}

func (r *accountRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Account, error) {
	var (
		account domain.Account
		roles   []string
	)
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&account.Name,
		&account.Active,
		&roles,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get %s account: %w", r.kind, err)
	}
	account.Kind = r.kind
	account.Roles = stringsToRoles(roles)
	return &account, nil
}

func rolesToStrings(roles []domain.AdminRole) []string {
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		out = append(out, string(role))
	}
	return out
}

func stringsToRoles(raw []string) []domain.AdminRole {
	out := make([]domain.AdminRole, 0, len(raw))
	for _, role := range raw {
		out = append(out, domain.AdminRole(role))
	}
	return out
}
