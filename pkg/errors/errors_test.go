package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name: "error without detail",
			err: &AppError{
				Code:    ErrCodeUnauthorized,
				Message: "Authentication required",
			},
			expected: "unauthorized: Authentication required",
		},
		{
			name: "error with detail",
			err: &AppError{
				Code:    ErrCodeBadRequest,
				Message: "Invalid request",
				Detail:  "session is required",
			},
			expected: "bad_request: Invalid request (session is required)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestNew(t *testing.T) {
	err := New("test_code", "Test message", http.StatusTeapot)

	assert.Equal(t, "test_code", err.Code)
	assert.Equal(t, "Test message", err.Message)
	assert.Equal(t, http.StatusTeapot, err.StatusCode)
	assert.Empty(t, err.Detail)
}

func TestTaxonomy(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		statusCode int
	}{
		{"input validation", InputValidation("Invalid request body", "session is required"), ErrCodeBadRequest, http.StatusBadRequest},
		{"authentication", Authentication("missing bearer token"), ErrCodeUnauthorized, http.StatusUnauthorized},
		{"authorization", Authorization("subject does not match email"), ErrCodeForbidden, http.StatusForbidden},
		{"configuration", Configuration("CAPSULE_API_KEY is not set"), ErrCodeConfiguration, http.StatusInternalServerError},
		{"wallet not found", WalletNotFound(), ErrCodeWalletNotFound, http.StatusBadRequest},
		{"invalid session", InvalidSession("token rejected"), ErrCodeInvalidSession, http.StatusBadRequest},
		{"external service", ExternalService(), ErrCodeExternalService, http.StatusInternalServerError},
		{"gateway timeout", GatewayTimeout(), ErrCodeGatewayTimeout, http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.statusCode, tt.err.StatusCode)
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}

func TestExternalService_NoDetail(t *testing.T) {
	err := ExternalService()
	assert.Empty(t, err.Detail)
	assert.Equal(t, "Upstream service failure", err.Message)
}

func TestWalletNotFound(t *testing.T) {
	err := WalletNotFound()
	assert.Equal(t, "Wallet does not exist", err.Message)
}

func TestIsAppError(t *testing.T) {
	t.Run("returns AppError when error is AppError", func(t *testing.T) {
		originalErr := New("test", "test", http.StatusBadRequest)
		appErr, ok := IsAppError(originalErr)

		require.True(t, ok)
		assert.Equal(t, originalErr, appErr)
	})

	t.Run("returns false when error is not AppError", func(t *testing.T) {
		stdErr := errors.New("standard error")
		appErr, ok := IsAppError(stdErr)

		assert.False(t, ok)
		assert.Nil(t, appErr)
	})

	t.Run("works with wrapped errors", func(t *testing.T) {
		originalErr := New("test", "test", http.StatusBadRequest)
		wrappedErr := fmt.Errorf("wrapped: %w", originalErr)

		appErr, ok := IsAppError(wrappedErr)

		require.True(t, ok)
		assert.Equal(t, originalErr, appErr)
	})
}

func TestErrorCodeConstants(t *testing.T) {
	codes := []string{
		ErrCodeUnauthorized,
		ErrCodeForbidden,
		ErrCodeNotFound,
		ErrCodeBadRequest,
		ErrCodeMethodNotAllowed,
		ErrCodeRateLimited,
		ErrCodeInternalError,
		ErrCodeConfiguration,
		ErrCodeWalletNotFound,
		ErrCodeInvalidSession,
		ErrCodeExternalService,
		ErrCodeGatewayTimeout,
		ErrCodeVariantNotSupported,
	}

	uniqueCodes := make(map[string]bool)
	for _, code := range codes {
		assert.NotEmpty(t, code, "error code should not be empty")
		assert.False(t, uniqueCodes[code], "error code %s is duplicate", code)
		uniqueCodes[code] = true
	}
}
