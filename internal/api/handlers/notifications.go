// Package handlers contains the HTTP handler implementations for the
// graphrelay API: the inbound webhook surface and subscription management.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"graphrelay/internal/audit"
	"graphrelay/internal/core"
	"graphrelay/internal/notification"
	"graphrelay/internal/types"
)

// maxNotificationBodySize caps inbound webhook bodies. Envelopes with inline
// encrypted resource data are the largest case.
const maxNotificationBodySize = 1 << 20

// EnvelopeDispatcher schedules accepted envelopes for background processing.
// Implemented by *notification.Dispatcher.
type EnvelopeDispatcher interface {
	Submit(ctx context.Context, env types.NotificationEnvelope) error
}

// NotificationHandler serves the webhook endpoints the remote service
// delivers to: change notifications and subscription lifecycle events.
type NotificationHandler struct {
	validator  *notification.Validator
	dispatcher EnvelopeDispatcher
	sink       audit.Sink
	clock      types.Clock
	logger     *slog.Logger
}

// NewNotificationHandler creates the webhook handler.
func NewNotificationHandler(
	validator *notification.Validator,
	dispatcher EnvelopeDispatcher,
	sink audit.Sink,
	clock types.Clock,
	logger *slog.Logger,
) *NotificationHandler {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationHandler{
		validator:  validator,
		dispatcher: dispatcher,
		sink:       sink,
		clock:      clock,
		logger:     logger,
	}
}

// RegisterRoutes mounts the webhook routes on the provided chi.Router.
func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Post("/", h.Receive)
		r.Post("/lifecycle", h.Lifecycle)
	})
}

// Receive handles POST /v1/notifications.
//
// Two request shapes share this endpoint:
//   - Endpoint validation handshake: ?validationToken=... with no meaningful
//     body. The token must be echoed back verbatim as text/plain 200 before
//     anything else; the remote service abandons the subscription otherwise.
//   - Notification delivery: a JSON envelope of one or more items. The
//     envelope is authenticated (fail-closed clientState check), audited,
//     then acknowledged 202 while processing continues in the background.
func (h *NotificationHandler) Receive(w http.ResponseWriter, r *http.Request) {
	if token, ok := notification.HandshakeToken(r); ok {
		h.logger.InfoContext(r.Context(), "endpoint validation handshake", "endpoint", r.URL.Path)
		core.PlainText(w, http.StatusOK, token)
		return
	}

	raw, env, err := h.readEnvelope(w, r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateEnvelope(r, env); err != nil {
		core.Error(w, r, err)
		return
	}

	// The audit record is written before the acknowledgment: an accepted
	// delivery must be recoverable even if background processing fails.
	if err := h.writeAudit(r, raw); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.dispatcher.Submit(r.Context(), *env); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "envelope accepted", "item_count", len(env.Value))
	core.JSON(w, r, http.StatusAccepted, core.APIResponse{Data: map[string]string{"status": "accepted"}})
}

// Lifecycle handles POST /v1/notifications/lifecycle.
//
// Lifecycle events (reauthorizationRequired, subscriptionRemoved, missed)
// share the handshake and authentication rules of the main endpoint but are
// not dispatched downstream: they are audited, logged, and acknowledged so
// operators can react (typically by renewing the subscription).
func (h *NotificationHandler) Lifecycle(w http.ResponseWriter, r *http.Request) {
	if token, ok := notification.HandshakeToken(r); ok {
		h.logger.InfoContext(r.Context(), "endpoint validation handshake", "endpoint", r.URL.Path)
		core.PlainText(w, http.StatusOK, token)
		return
	}

	raw, env, err := h.readEnvelope(w, r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateEnvelope(r, env); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.writeAudit(r, raw); err != nil {
		core.Error(w, r, err)
		return
	}

	for _, item := range env.Value {
		h.logger.WarnContext(r.Context(), "subscription lifecycle event",
			"subscription_id", item.SubscriptionID,
			"lifecycle_event", item.LifecycleEvent,
			"expires_at", item.ExpirationDateTime,
		)
	}

	core.JSON(w, r, http.StatusAccepted, core.APIResponse{Data: map[string]string{"status": "accepted"}})
}

// readEnvelope reads the raw body (for the audit trail) and decodes it as a
// notification envelope. Decoding is deliberately lenient about unknown
// fields: the remote service adds fields over time and deliveries must not
// start bouncing when it does.
func (h *NotificationHandler) readEnvelope(w http.ResponseWriter, r *http.Request) ([]byte, *types.NotificationEnvelope, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxNotificationBodySize)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, nil, types.NewAppError(types.ErrCodeValidationInvalidJSON, "failed to read request body", err)
	}

	var env types.NotificationEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, types.NewAppError(types.ErrCodeValidationInvalidJSON, "malformed notification envelope", err)
	}
	return raw, &env, nil
}

// writeAudit persists the verbatim request before acknowledgment.
func (h *NotificationHandler) writeAudit(r *http.Request, raw []byte) error {
	rec := types.AuditRecord{
		ID:         uuid.New().String(),
		ReceivedAt: h.clock.Now(),
		Endpoint:   r.URL.Path,
		Headers:    redactAuditHeaders(r.Header),
		Body:       json.RawMessage(raw),
	}
	if err := h.sink.Write(r.Context(), rec); err != nil {
		h.logger.ErrorContext(r.Context(), "audit write failed", "error", err)
		return err
	}
	return nil
}

// redactAuditHeaders drops credential-bearing headers from the audit trail.
func redactAuditHeaders(headers http.Header) map[string][]string {
	out := make(map[string][]string, len(headers))
	for k, v := range headers {
		switch http.CanonicalHeaderKey(k) {
		case "Authorization", "Cookie":
			out[k] = []string{"***REDACTED***"}
		default:
			out[k] = v
		}
	}
	return out
}
