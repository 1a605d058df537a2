// Package errors defines the typed error taxonomy shared across the service.
// Message text is part of the observable contract for several failures
// (signature mismatch, value cap, permission denial); do not reword those
// without updating the callers and tests that match on them.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents an application-level error with HTTP status code
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common error codes
const (
	ErrCodeNotFound           = "not_found"
	ErrCodeConflict           = "conflict"
	ErrCodeValidation         = "validation_error"
	ErrCodeAuthorization      = "authorization_error"
	ErrCodeBadRequest         = "bad_request"
	ErrCodeCircularLink       = "circular_link"
	ErrCodeDelegationConflict = "delegation_conflict"
	ErrCodeInvalidSignature   = "invalid_signature"
	ErrCodeDelegationExpired  = "delegation_expired"
	ErrCodeDelegationRevoked  = "delegation_revoked"
	ErrCodePermissionDenied   = "permission_denied"
	ErrCodeValueCapExceeded   = "value_cap_exceeded"
	ErrCodeChainNotAllowed    = "chain_not_allowed"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeInternalError      = "internal_error"
)

// Predefined errors
var (
	ErrNotFound = &AppError{
		Code:       ErrCodeNotFound,
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       ErrCodeBadRequest,
		Message:    "Invalid request parameters",
		StatusCode: http.StatusBadRequest,
	}

	ErrUnauthorized = &AppError{
		Code:       ErrCodeAuthorization,
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrInternalError = &AppError{
		Code:       ErrCodeInternalError,
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}
)

// New creates a new AppError
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// NewWithDetail creates a new AppError with additional detail
func NewWithDetail(code, message, detail string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Detail:     detail,
		StatusCode: statusCode,
	}
}

// NotFound creates a not-found error for a named resource. Ownership-check
// failures use the same error so callers cannot distinguish "doesn't exist"
// from "not yours".
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Detail:     fmt.Sprintf("id: %s", id),
		StatusCode: http.StatusNotFound,
	}
}

// CircularLink creates the conflict error raised when adding an identity
// edge would close a cycle among non-isolated edges.
func CircularLink(accountA, accountB string) *AppError {
	return &AppError{
		Code:       ErrCodeCircularLink,
		Message:    "circular link detected",
		Detail:     fmt.Sprintf("accounts %s and %s are already connected", accountA, accountB),
		StatusCode: http.StatusConflict,
	}
}

// DuplicateActiveDelegation creates the conflict error for an existing live
// delegation on the same (linked account, session wallet, chain) tuple.
func DuplicateActiveDelegation(detail string) *AppError {
	return &AppError{
		Code:       ErrCodeDelegationConflict,
		Message:    "An active delegation already exists for this account and session wallet",
		Detail:     detail,
		StatusCode: http.StatusConflict,
	}
}

// InvalidDelegationSignature creates the validation error for a signature
// that does not recover to the linked EOA's address.
func InvalidDelegationSignature(detail string) *AppError {
	return &AppError{
		Code:       ErrCodeInvalidSignature,
		Message:    "Invalid delegation signature",
		Detail:     detail,
		StatusCode: http.StatusBadRequest,
	}
}

// DelegationExpired creates the validation error for a delegation whose
// expiry has passed.
func DelegationExpired(id string) *AppError {
	return &AppError{
		Code:       ErrCodeDelegationExpired,
		Message:    "Delegation has expired",
		Detail:     fmt.Sprintf("delegation_id: %s", id),
		StatusCode: http.StatusBadRequest,
	}
}

// DelegationRevoked creates the error for use of a revoked delegation.
func DelegationRevoked(id string) *AppError {
	return &AppError{
		Code:       ErrCodeDelegationRevoked,
		Message:    "Delegation has been revoked",
		Detail:     fmt.Sprintf("delegation_id: %s", id),
		StatusCode: http.StatusConflict,
	}
}

// AlreadyRevoked creates the conflict error for revoking a delegation twice.
func AlreadyRevoked(id string) *AppError {
	return &AppError{
		Code:       ErrCodeDelegationRevoked,
		Message:    "Delegation is already revoked",
		Detail:     fmt.Sprintf("delegation_id: %s", id),
		StatusCode: http.StatusConflict,
	}
}

// NotAuthorizedFor creates the permission error for an action the delegation
// does not cover (transfer, approve, swap, contract interaction).
func NotAuthorizedFor(action string) *AppError {
	return &AppError{
		Code:       ErrCodePermissionDenied,
		Message:    fmt.Sprintf("Delegation is not authorized for %s", action),
		StatusCode: http.StatusForbidden,
	}
}

// ValueCapExceeded creates the permission error for a transaction value over
// the delegation's cap. Both values are decimal wei.
func ValueCapExceeded(requested, cap string) *AppError {
	return &AppError{
		Code:       ErrCodeValueCapExceeded,
		Message:    "Transaction value exceeds maximum allowed",
		Detail:     fmt.Sprintf("requested: %s, max: %s", requested, cap),
		StatusCode: http.StatusForbidden,
	}
}

// ChainNotAllowed creates the permission error for a transaction on a chain
// outside the delegation's allowed set.
func ChainNotAllowed(chainID int64) *AppError {
	return &AppError{
		Code:       ErrCodeChainNotAllowed,
		Message:    "Chain is not allowed by this delegation",
		Detail:     fmt.Sprintf("chain_id: %d", chainID),
		StatusCode: http.StatusForbidden,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether err is an AppError with the given code.
func IsCode(err error, code string) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Code == code
}
