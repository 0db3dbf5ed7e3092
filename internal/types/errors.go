package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Handlers MUST use these constants instead of
// hardcoded strings so that HTTP status mapping stays consistent.
const (
	// Validation (400). A clientState mismatch is deliberately a validation
	// code: the remote service expects a plain 400 on rejection, not a 401.
	ErrCodeValidationInvalidJSON  ErrorCode = "validation_invalid_json"
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"
	ErrCodeValidationClientState  ErrorCode = "validation_client_state_mismatch"
	ErrCodeValidationResource     ErrorCode = "validation_invalid_resource"
	ErrCodeValidationChangeType   ErrorCode = "validation_invalid_change_type"
	ErrCodeValidationExpiration   ErrorCode = "validation_expiration_exceeds_ceiling"

	// Not Found (404)
	ErrCodeNotFoundSubscription ErrorCode = "not_found_subscription"

	// Upstream (remote change-tracking service)
	ErrCodeUpstreamForbidden   ErrorCode = "upstream_forbidden"
	ErrCodeUpstreamRejected    ErrorCode = "upstream_request_rejected"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"

	// Decryption (background-unit only; never surfaced over HTTP)
	ErrCodeDecryptKeyUnwrap ErrorCode = "decrypt_key_unwrap_failed"
	ErrCodeDecryptPayload   ErrorCode = "decrypt_payload_invalid"
	ErrCodeDecryptPadding   ErrorCode = "decrypt_padding_invalid"

	// Internal (500)
	ErrCodeInternalAudit      ErrorCode = "internal_audit_write_failed"
	ErrCodeInternalConfig     ErrorCode = "internal_config_invalid"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case s == string(ErrCodeUpstreamForbidden):
		return http.StatusForbidden // 403
	case s == string(ErrCodeUpstreamRateLimited):
		return http.StatusTooManyRequests // 429
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "decrypt_"):
		// Decryption failures are isolated to background units; if one ever
		// reaches the HTTP layer it is an internal fault.
		return http.StatusInternalServerError // 500
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type. All domain and handler
// errors are expressed as AppError to enable consistent error formatting,
// HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
