package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Session verification failures. All of them are reported to clients as unauthenticated.
var (
	ErrInvalidTokenFormat = errors.New("invalid_token_format")
	ErrTokenNotFound      = errors.New("token_not_found")
	ErrTokenExpired       = errors.New("token_expired")
	ErrTokenEntryMissing  = errors.New("token_entry_missing")
)

// Booking transition failures.
var (
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrConflictingUpdate = errors.New("conflicting_update")
)

var (
	ErrNotFound           = errors.New("not_found")
	ErrForbidden          = errors.New("forbidden")
	ErrEmailTaken         = errors.New("email_taken")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrAccountDisabled    = errors.New("account_disabled")
	ErrConfirmationNeeded = errors.New("confirmation_required")
	ErrValidation         = errors.New("validation")
)

// IsAuthError reports whether err is one of the session verification failures.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrInvalidTokenFormat) ||
		errors.Is(err, ErrTokenNotFound) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenEntryMissing)
}

// ValidationError carries field-level problems.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError from a field map.
func NewValidationError(fields map[string]string) error {
	return &ValidationError{Fields: fields}
}

// TransitionError describes a rejected booking status change.
type TransitionError struct {
	BookingID string
	From      BookingStatus
	Event     BookingEvent
	Err       error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("booking %s: %s from %s: %v", e.BookingID, e.Event, e.From, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }
