package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/booking-service/internal/domain"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewUnauthenticated is the single externally visible session failure.
func NewUnauthenticated(err error) error {
	return &DomainError{
		Code:       "UNAUTHENTICATED",
		Message:    "authentication required",
		HTTPStatus: http.StatusUnauthorized,
		Err:        err,
	}
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewTooManyRequests(message string) error {
	return NewDomainError("RATE_LIMITED", message, http.StatusTooManyRequests, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts domain sentinels and generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return NewDomainError(codeForStatus(fiberErr.Code), fiberErr.Message, fiberErr.Code, nil)
	}
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		details := make(map[string]any, len(validationErr.Fields))
		for field, problem := range validationErr.Fields {
			details[field] = problem
		}
		return &DomainError{
			Code:       "VALIDATION_FAILED",
			Message:    "validation failed",
			HTTPStatus: http.StatusBadRequest,
			Details:    details,
			Err:        err,
		}
	}

	switch {
	case domain.IsAuthError(err):
		return NewUnauthenticated(err).(*DomainError)
	case errors.Is(err, domain.ErrInvalidTransition):
		return &DomainError{
			Code:       "INVALID_TRANSITION",
			Message:    "this booking can no longer be changed that way",
			HTTPStatus: http.StatusConflict,
			Details:    transitionDetails(err),
			Err:        err,
		}
	case errors.Is(err, domain.ErrConflictingUpdate):
		return &DomainError{
			Code:       "CONFLICTING_UPDATE",
			Message:    "booking was modified concurrently; reload and retry",
			HTTPStatus: http.StatusConflict,
			Details:    transitionDetails(err),
			Err:        err,
		}
	case errors.Is(err, domain.ErrConfirmationNeeded):
		return &DomainError{
			Code:       "CONFIRMATION_REQUIRED",
			Message:    "this action cannot be undone; resend with confirm=true",
			HTTPStatus: http.StatusBadRequest,
			Err:        err,
		}
	case errors.Is(err, domain.ErrInvalidCredentials):
		return &DomainError{Code: "INVALID_CREDENTIALS", Message: "invalid email or password", HTTPStatus: http.StatusUnauthorized, Err: err}
	case errors.Is(err, domain.ErrAccountDisabled):
		return &DomainError{Code: "ACCOUNT_DISABLED", Message: "account disabled", HTTPStatus: http.StatusForbidden, Err: err}
	case errors.Is(err, domain.ErrEmailTaken):
		return &DomainError{Code: "EMAIL_TAKEN", Message: "email already registered", HTTPStatus: http.StatusConflict, Err: err}
	case errors.Is(err, domain.ErrForbidden):
		return &DomainError{Code: "FORBIDDEN", Message: "access denied", HTTPStatus: http.StatusForbidden, Err: err}
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, pgx.ErrNoRows):
		return &DomainError{Code: "NOT_FOUND", Message: "resource not found", HTTPStatus: http.StatusNotFound, Details: map[string]any{}, Err: err}
	}

	return NewInternalError(err).(*DomainError)
}

// transitionDetails exposes only the attempted event, never the stored state.
func transitionDetails(err error) map[string]any {
	var transitionErr *domain.TransitionError
	if errors.As(err, &transitionErr) {
		return map[string]any{"event": string(transitionErr.Event)}
	}
	return nil
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	}
	if status >= http.StatusInternalServerError {
		return "INTERNAL_ERROR"
	}
	return "REQUEST_FAILED"
}
