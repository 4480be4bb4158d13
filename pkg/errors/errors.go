package errors

import (
	"fmt"
	"net/http"
)

// Error types surfaced by the gateway
var (
	// ErrInvalidCredentials covers every login failure. The specific reason
	// (unknown user, inactive, locked out, bad password) is only logged.
	ErrInvalidCredentials = &ServiceError{
		Code:    "INVALID_CREDENTIALS",
		Message: "Invalid username or password",
		Status:  http.StatusUnauthorized,
	}

	ErrInvalidToken = &ServiceError{
		Code:    "INVALID_TOKEN",
		Message: "Invalid or expired token",
		Status:  http.StatusUnauthorized,
	}

	ErrInvalidRefreshToken = &ServiceError{
		Code:    "INVALID_REFRESH_TOKEN",
		Message: "Invalid refresh token",
		Status:  http.StatusUnauthorized,
	}

	ErrExpiredRefreshToken = &ServiceError{
		Code:    "EXPIRED_REFRESH_TOKEN",
		Message: "Refresh token expired",
		Status:  http.StatusUnauthorized,
	}

	// ErrInvalidRequest is used for syntactically invalid requests (missing or
	// malformed parameters) where a 400 response is appropriate.
	ErrInvalidRequest = &ServiceError{
		Code:    "INVALID_REQUEST",
		Message: "Invalid request",
		Status:  http.StatusBadRequest,
	}

	ErrForbiddenWhiteLabel = &ServiceError{
		Code:    "FORBIDDEN_WHITE_LABEL",
		Message: "You don't have permission to access the requested WhiteLabels.",
		Status:  http.StatusForbidden,
	}

	ErrForbiddenAffiliate = &ServiceError{
		Code:    "FORBIDDEN_AFFILIATE",
		Message: "You don't have permission to access the requested Affiliate ID.",
		Status:  http.StatusForbidden,
	}

	ErrRateLimitExceeded = &ServiceError{
		Code:    "RATE_LIMIT_EXCEEDED",
		Message: "Rate limit exceeded",
		Status:  http.StatusTooManyRequests,
	}

	ErrUpstream = &ServiceError{
		Code:    "UPSTREAM_ERROR",
		Message: "The reporting service could not complete the request",
		Status:  http.StatusBadGateway,
	}

	ErrInternalServer = &ServiceError{
		Code:    "INTERNAL_SERVER_ERROR",
		Message: "Internal server error",
		Status:  http.StatusInternalServerError,
	}
)

// ServiceError represents a service-level error
type ServiceError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is matches service errors by code, so a wrapped error still compares equal
// to the sentinel it was built from.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap wraps an error with a ServiceError
func Wrap(err error, serviceErr *ServiceError) *ServiceError {
	return &ServiceError{
		Code:    serviceErr.Code,
		Message: serviceErr.Message,
		Status:  serviceErr.Status,
		Err:     err,
	}
}

// WithMessage returns a copy of serviceErr carrying a more specific message.
func WithMessage(serviceErr *ServiceError, message string) *ServiceError {
	return &ServiceError{
		Code:    serviceErr.Code,
		Message: message,
		Status:  serviceErr.Status,
		Err:     serviceErr.Err,
	}
}
