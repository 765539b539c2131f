package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/booking-service/internal/domain"
)

// ErrTokenExists is returned when an appended token value is already stored.
var ErrTokenExists = errors.New("session token already exists")

// SessionTokenRepository manages the active tokens of one account kind.
// Every mutation is scoped to a single token entry.
type SessionTokenRepository interface {
	Kind() domain.AccountKind
	Append(ctx context.Context, token domain.Token) error
	FindByValue(ctx context.Context, value string) (*domain.Token, error)
	Touch(ctx context.Context, value string, at time.Time) (bool, error)
	Remove(ctx context.Context, value string) (bool, error)
	RemoveExpired(ctx context.Context, before time.Time) (int64, error)
	ListByAccount(ctx context.Context, accountID string) ([]domain.Token, error)
}

var sessionTokenTables = map[domain.AccountKind]string{
	domain.AccountKindAdmin:    "admin_session_tokens",
	domain.AccountKindPartner:  "partner_session_tokens",
	domain.AccountKindCustomer: "customer_session_tokens",
}

type sessionTokenRepository struct {
	pool  *pgxpool.Pool
	kind  domain.AccountKind
	table string
}

// NewSessionTokenRepository constructs a Postgres repository for the given kind.
func NewSessionTokenRepository(pool *pgxpool.Pool, kind domain.AccountKind) (SessionTokenRepository, error) {
	table, ok := sessionTokenTables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown account kind %q", kind)
	}
	return &sessionTokenRepository{pool: pool, kind: kind, table: table}, nil
}

func (r *sessionTokenRepository) Kind() domain.AccountKind {
	return r.kind
}

func (r *sessionTokenRepository) Append(ctx context.Context, token domain.Token) error {
	query := fmt.Sprintf(`
        INSERT INTO %s (token, account_id, created_at, expires_at)
        VALUES ($1,$2,$3,$4)`, r.table)
	_, err := r.pool.Exec(ctx, query,
		token.Value,
		token.AccountID,
		token.CreatedAt,
		token.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrTokenExists
		}
		return fmt.Errorf("append %s session token: %w", r.kind, err)
	}
	return nil
}

func (r *sessionTokenRepository) FindByValue(ctx context.Context, value string) (*domain.Token, error) {
	query := fmt.Sprintf(`
        SELECT token, account_id, created_at, expires_at, last_used_at
        FROM %s WHERE token=$1`, r.table)
	var token domain.Token
	if err := r.pool.QueryRow(ctx, query, value).Scan(
		&token.Value,
		&token.AccountID,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.LastUsedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find %s session token: %w", r.kind, err)
	}
	return &token, nil
}

func (r *sessionTokenRepository) Touch(ctx context.Context, value string, at time.Time) (bool, error) {
	query := fmt.Sprintf(`UPDATE %s SET last_used_at=$2 WHERE token=$1`, r.table)
	cmd, err := r.pool.Exec(ctx, query, value, at)
	if err != nil {
		return false, fmt.Errorf("touch %s session token: %w", r.kind, err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *sessionTokenRepository) Remove(ctx context.Context, value string) (bool, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE token=$1`, r.table)
	cmd, err := r.pool.Exec(ctx, query, value)
	if err != nil {
		return false, fmt.Errorf("remove %s session token: %w", r.kind, err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *sessionTokenRepository) RemoveExpired(ctx context.Context, before time.Time) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE expires_at < $1`, r.table)
	cmd, err := r.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("sweep %s session tokens: %w", r.kind, err)
	}
	return cmd.RowsAffected(), nil
}

func (r *sessionTokenRepository) ListByAccount(ctx context.Context, accountID string) ([]domain.Token, error) {
	query := fmt.Sprintf(`
        SELECT token, account_id, created_at, expires_at, last_used_at
        FROM %s WHERE account_id=$1 ORDER BY seq ASC`, r.table)
	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("list %s session tokens: %w", r.kind, err)
	}
	defer rows.Close()

	var result []domain.Token
	for rows.Next() {
		var token domain.Token
		if err := rows.Scan(
			&token.Value,
			&token.AccountID,
			&token.CreatedAt,
			&token.ExpiresAt,
			&token.LastUsedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, token)
	}
	return result, rows.Err()
}
