package domain

import (
	"strings"
	"time"
)

// AccountKind differentiates the three independently stored login identities.
type AccountKind string

const (
	AccountKindAdmin    AccountKind = "admin"
	AccountKindPartner  AccountKind = "partner"
	AccountKindCustomer AccountKind = "customer"
)

// AccountKinds lists every supported kind in verification order.
var AccountKinds = []AccountKind{AccountKindAdmin, AccountKindPartner, AccountKindCustomer}

// ParseAccountKind resolves a path or header value into a known kind.
func ParseAccountKind(raw string) (AccountKind, bool) {
	kind := AccountKind(strings.ToLower(strings.TrimSpace(raw)))
	for _, k := range AccountKinds {
		if k == kind {
			return k, true
		}
	}
	return "", false
}

// AdminRole tags admin permissions.
type AdminRole string

const (
	AdminRoleSuperuser AdminRole = "superuser"
	AdminRoleSupport   AdminRole = "support"
)

// Account is a login-capable identity of one kind. Active and Roles are only
// meaningful for admin accounts.
type Account struct {
	ID           string
	Kind         AccountKind
	Email        string
	PasswordHash string
	Name         string
	Active       bool
	Roles        []AdminRole
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NormalizeEmail lower-cases and trims an email for case-insensitive uniqueness.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MinTokenLength is the shortest token string the verifier will look up.
const MinTokenLength = 10

// Token is one authenticated session owned by an account.
type Token struct {
	Value      string
	AccountID  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt *time.Time
}

// ExpiredAt reports whether the token lifetime has elapsed at the given instant.
func (t Token) ExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Principal represents the authenticated caller resolved from a bearer token.
type Principal struct {
	Kind    AccountKind
	Account *Account
	Token   string
}

// AccountID returns the caller's account identifier.
func (p *Principal) AccountID() string {
	if p == nil || p.Account == nil {
		return ""
	}
	return p.Account.ID
}
