package notification

import (
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"graphrelay/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandshakeToken(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/notifications?validationToken=abc%20123", nil)
	token, ok := HandshakeToken(r)
	if !ok {
		t.Fatal("handshake not detected")
	}
	if token != "abc 123" {
		t.Errorf("token = %q, want decoded %q", token, "abc 123")
	}

	r = httptest.NewRequest("POST", "/v1/notifications", nil)
	if _, ok := HandshakeToken(r); ok {
		t.Error("handshake detected without token")
	}
}

func TestValidateEnvelopeAccepts(t *testing.T) {
	v := NewValidator(types.SecretString("super-secret-client-state"), discardLogger())
	r := httptest.NewRequest("POST", "/v1/notifications", nil)

	env := &types.NotificationEnvelope{Value: []types.NotificationItem{
		{SubscriptionID: "s1", ClientState: "super-secret-client-state"},
		{SubscriptionID: "s2", ClientState: "super-secret-client-state"},
	}}
	if err := v.ValidateEnvelope(r, env); err != nil {
		t.Fatalf("ValidateEnvelope: %v", err)
	}
}

func TestValidateEnvelopeFailsClosed(t *testing.T) {
	v := NewValidator(types.SecretString("super-secret-client-state"), discardLogger())
	r := httptest.NewRequest("POST", "/v1/notifications", nil)

	// One bad item poisons the whole envelope.
	env := &types.NotificationEnvelope{Value: []types.NotificationItem{
		{SubscriptionID: "s1", ClientState: "super-secret-client-state"},
		{SubscriptionID: "s2", ClientState: "wrong"},
		{SubscriptionID: "s3", ClientState: "super-secret-client-state"},
	}}

	err := v.ValidateEnvelope(r, env)
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.Code != types.ErrCodeValidationClientState {
		t.Errorf("code = %q", appErr.Code)
	}
	if appErr.HTTPStatus() != 400 {
		t.Errorf("status = %d, want 400", appErr.HTTPStatus())
	}
}

func TestValidateEnvelopeRejectsEmptyEchoedState(t *testing.T) {
	v := NewValidator(types.SecretString("super-secret-client-state"), discardLogger())
	r := httptest.NewRequest("POST", "/v1/notifications", nil)

	env := &types.NotificationEnvelope{Value: []types.NotificationItem{
		{SubscriptionID: "s1", ClientState: ""},
	}}
	if err := v.ValidateEnvelope(r, env); err == nil {
		t.Fatal("missing clientState accepted")
	}
}

func TestValidateEnvelopeEmptyValue(t *testing.T) {
	v := NewValidator(types.SecretString("super-secret-client-state"), discardLogger())
	r := httptest.NewRequest("POST", "/v1/notifications", nil)

	// No items means nothing to authenticate; accept and dispatch nothing.
	if err := v.ValidateEnvelope(r, &types.NotificationEnvelope{}); err != nil {
		t.Fatalf("empty envelope rejected: %v", err)
	}
}
