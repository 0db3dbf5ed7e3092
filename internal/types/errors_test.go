package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

// TestAppErrorImplementsError verifies that *AppError satisfies the error interface.
func TestAppErrorImplementsError(t *testing.T) {
	var _ error = (*AppError)(nil)
}

// TestAppErrorErrorFormat verifies the Error() method produces "code: message".
func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeValidationClientState,
		Message: "clientState does not match configured secret",
	}

	expected := "validation_client_state_mismatch: clientState does not match configured secret"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

// TestAppErrorUnwrap verifies error chain support via Unwrap.
func TestAppErrorUnwrap(t *testing.T) {
	underlying := errors.New("connection reset")
	appErr := &AppError{
		Code:    ErrCodeUpstreamUnavailable,
		Message: "subscription create failed",
		Err:     underlying,
	}

	if appErr.Unwrap() != underlying {
		t.Errorf("Unwrap() = %v, want %v", appErr.Unwrap(), underlying)
	}
}

// TestAppErrorErrorsAs verifies errors.As extracts AppError from a chain.
func TestAppErrorErrorsAs(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeNotFoundSubscription,
		Message: "subscription not found",
	}
	wrapped := fmt.Errorf("delete failed: %w", appErr)

	var target *AppError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As failed to extract *AppError from wrapped error")
	}
	if target.Code != ErrCodeNotFoundSubscription {
		t.Errorf("extracted code = %q, want %q", target.Code, ErrCodeNotFoundSubscription)
	}
}

// TestErrorCodeHTTPStatus verifies the prefix-based status mapping.
func TestErrorCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		code ErrorCode
		want int
	}{
		{"invalid json", ErrCodeValidationInvalidJSON, http.StatusBadRequest},
		{"client state mismatch", ErrCodeValidationClientState, http.StatusBadRequest},
		{"expiration ceiling", ErrCodeValidationExpiration, http.StatusBadRequest},
		{"subscription not found", ErrCodeNotFoundSubscription, http.StatusNotFound},
		{"upstream forbidden", ErrCodeUpstreamForbidden, http.StatusForbidden},
		{"upstream rate limited", ErrCodeUpstreamRateLimited, http.StatusTooManyRequests},
		{"upstream rejected", ErrCodeUpstreamRejected, http.StatusBadGateway},
		{"upstream unavailable", ErrCodeUpstreamUnavailable, http.StatusBadGateway},
		{"decrypt padding", ErrCodeDecryptPadding, http.StatusInternalServerError},
		{"audit write", ErrCodeInternalAudit, http.StatusInternalServerError},
		{"unexpected", ErrCodeInternalUnexpected, http.StatusInternalServerError},
		{"unknown code", ErrorCode("totally_unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus(%q) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

// TestNewAppErrorWithDetails verifies details are carried through.
func TestNewAppErrorWithDetails(t *testing.T) {
	appErr := NewAppErrorWithDetails(
		ErrCodeValidationClientState,
		"rejected envelope",
		nil,
		map[string]any{"subscription_id": "s1"},
	)

	if appErr.Details["subscription_id"] != "s1" {
		t.Errorf("Details[subscription_id] = %v, want s1", appErr.Details["subscription_id"])
	}
	if appErr.HTTPStatus() != http.StatusBadRequest {
		t.Errorf("HTTPStatus() = %d, want 400", appErr.HTTPStatus())
	}
}
