package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes shared by the service and transport layers.
const (
	CodeValidation         = "VALIDATION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeConflict           = "CONFLICT"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeReasonRequired     = "REASON_REQUIRED"
	CodePolicyNotFound     = "POLICY_NOT_FOUND"
	CodeLockContention     = "LOCK_CONTENTION"
	CodeScorerUnavailable  = "SCORER_UNAVAILABLE"
	CodeNotificationFailed = "NOTIFICATION_FAILED"
	CodeInternal           = "INTERNAL_ERROR"
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

// Is matches on code so callers can compare against the sentinel values below.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return other.Message == "" && other.Code == e.Code
}

// Sentinels for errors.Is checks; they carry only a code.
var (
	ErrInvalidTransition  = &DomainError{Code: CodeInvalidTransition}
	ErrReasonRequired     = &DomainError{Code: CodeReasonRequired}
	ErrPolicyNotFound     = &DomainError{Code: CodePolicyNotFound}
	ErrLockContention     = &DomainError{Code: CodeLockContention}
	ErrScorerUnavailable  = &DomainError{Code: CodeScorerUnavailable}
	ErrNotificationFailed = &DomainError{Code: CodeNotificationFailed}
	ErrNotFound           = &DomainError{Code: CodeNotFound}
	ErrValidation         = &DomainError{Code: CodeValidation}
	ErrForbidden          = &DomainError{Code: CodeForbidden}
)

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewInvalidTransition reports a status change outside the adjacency table.
func NewInvalidTransition(from, to string) error {
	return NewDomainError(CodeInvalidTransition,
		fmt.Sprintf("cannot change status from %s to %s", from, to),
		http.StatusConflict,
		map[string]any{"from": from, "to": to})
}

func NewReasonRequired(message string) error {
	return NewDomainError(CodeReasonRequired, message, http.StatusBadRequest, nil)
}

func NewPolicyNotFound(tenantID, category, priority string) error {
	return NewDomainError(CodePolicyNotFound, "no sla policy resolves", http.StatusInternalServerError,
		map[string]any{"tenant_id": tenantID, "category": category, "priority": priority})
}

func NewLockContention(key string, err error) error {
	return &DomainError{
		Code:       CodeLockContention,
		Message:    "ticket is being modified concurrently, retry later",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"resource": key},
		Err:        err,
	}
}

func NewScorerUnavailable(err error) error {
	return &DomainError{
		Code:       CodeScorerUnavailable,
		Message:    "red flag scorer unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewNotificationFailed(channel string, err error) error {
	return &DomainError{
		Code:       CodeNotificationFailed,
		Message:    "notification delivery failed",
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"channel": channel},
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// MapError converts any error into a DomainError value.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}

// IsCode reports whether err carries the given domain code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
