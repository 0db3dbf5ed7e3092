// Package notification implements the inbound webhook pipeline: protocol
// validation of delivered envelopes, bounded asynchronous dispatch, and
// per-item processing (decrypt or fetch, normalize, forward).
package notification

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"graphrelay/internal/types"
)

// validationTokenParam is the query parameter carrying the endpoint
// validation handshake token.
const validationTokenParam = "validationToken"

// HandshakeToken extracts the endpoint-validation token from a webhook
// request. A non-empty token means the request is a handshake, not a
// notification delivery: the caller must echo the token back verbatim as
// text/plain 200 within the delivery timeout, before any other processing.
func HandshakeToken(r *http.Request) (string, bool) {
	token := r.URL.Query().Get(validationTokenParam)
	return token, token != ""
}

// Validator authenticates delivered envelopes against the shared clientState
// secret.
type Validator struct {
	clientState []byte
	logger      *slog.Logger
}

// NewValidator creates a Validator for the configured secret.
func NewValidator(clientState types.SecretString, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{clientState: []byte(clientState.Unmask()), logger: logger}
}

// ValidateEnvelope checks every item's echoed clientState against the
// configured secret using a constant-time comparison. Validation is
// fail-closed: a single mismatching item rejects the entire envelope and
// nothing is dispatched. The mismatching subscription ids are logged; the
// secret itself never is.
func (v *Validator) ValidateEnvelope(r *http.Request, env *types.NotificationEnvelope) error {
	var rejected []string
	for _, item := range env.Value {
		if subtle.ConstantTimeCompare([]byte(item.ClientState), v.clientState) != 1 {
			rejected = append(rejected, item.SubscriptionID)
		}
	}

	if len(rejected) > 0 {
		v.logger.WarnContext(r.Context(), "envelope rejected: clientState mismatch",
			"subscription_ids", rejected,
			"item_count", len(env.Value),
		)
		return types.NewAppError(types.ErrCodeValidationClientState,
			"clientState verification failed", nil)
	}
	return nil
}
