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
	ErrCodeUnauthorized        = "unauthorized"
	ErrCodeForbidden           = "forbidden"
	ErrCodeNotFound            = "not_found"
	ErrCodeBadRequest          = "bad_request"
	ErrCodeMethodNotAllowed    = "method_not_allowed"
	ErrCodeRateLimited         = "rate_limited"
	ErrCodeInternalError       = "internal_error"
	ErrCodeConfiguration       = "configuration_error"
	ErrCodeWalletNotFound      = "wallet_not_found"
	ErrCodeInvalidSession      = "invalid_session"
	ErrCodeExternalService     = "external_service_error"
	ErrCodeGatewayTimeout      = "gateway_timeout"
	ErrCodeVariantNotSupported = "variant_not_supported"
)

// Predefined errors
var (
	ErrUnauthorized = &AppError{
		Code:       ErrCodeUnauthorized,
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       ErrCodeForbidden,
		Message:    "Access denied",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       ErrCodeNotFound,
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrMethodNotAllowed = &AppError{
		Code:       ErrCodeMethodNotAllowed,
		Message:    "Method not allowed",
		StatusCode: http.StatusMethodNotAllowed,
	}

	ErrRateLimited = &AppError{
		Code:       ErrCodeRateLimited,
		Message:    "Rate limit exceeded",
		StatusCode: http.StatusTooManyRequests,
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

// InputValidation reports missing or malformed request input (400)
func InputValidation(message, detail string) *AppError {
	return NewWithDetail(ErrCodeBadRequest, message, detail, http.StatusBadRequest)
}

// Authentication reports a missing or invalid bearer credential (401)
func Authentication(detail string) *AppError {
	return NewWithDetail(ErrCodeUnauthorized, "Authentication required", detail, http.StatusUnauthorized)
}

// Authorization reports an authenticated subject acting on someone else's identifier (403)
func Authorization(detail string) *AppError {
	return NewWithDetail(ErrCodeForbidden, "Access denied", detail, http.StatusForbidden)
}

// Configuration reports a missing service setting. The variable name is
// returned so operators can fix the deployment; no secret values are included.
func Configuration(detail string) *AppError {
	return NewWithDetail(ErrCodeConfiguration, "Service is not configured", detail, http.StatusInternalServerError)
}

// ResourceNotFound reports a caller-named resource that does not exist. It is a
// client error on signing routes, so it answers 400 rather than 404.
func ResourceNotFound(code, message string) *AppError {
	return New(code, message, http.StatusBadRequest)
}

// WalletNotFound reports that no wallet or key share exists for a user (400)
func WalletNotFound() *AppError {
	return ResourceNotFound(ErrCodeWalletNotFound, "Wallet does not exist")
}

// InvalidSession reports a session token the identity service would not import (400)
func InvalidSession(detail string) *AppError {
	return NewWithDetail(ErrCodeInvalidSession, "Invalid session", detail, http.StatusBadRequest)
}

// ExternalService reports a failed identity, network or chain call (500).
// Internal detail is never attached.
func ExternalService() *AppError {
	return New(ErrCodeExternalService, "Upstream service failure", http.StatusInternalServerError)
}

// GatewayTimeout reports an external call that exceeded its deadline (504)
func GatewayTimeout() *AppError {
	return New(ErrCodeGatewayTimeout, "Upstream call timed out", http.StatusGatewayTimeout)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
