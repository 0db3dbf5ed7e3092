package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"graphrelay/internal/config"
	"graphrelay/internal/graph"
	"graphrelay/internal/types"
)

// payload is the JSON body delivered to the downstream consumer: the
// notification's routing metadata plus the normalized message.
type payload struct {
	SubscriptionID string           `json:"subscription_id"`
	ChangeType     types.ChangeType `json:"change_type"`
	Resource       string           `json:"resource"`
	TenantID       string           `json:"tenant_id,omitempty"`
	Message        *types.Message   `json:"message"`
}

// HTTPForwarder POSTs normalized messages to a fixed consumer endpoint. It
// shares the resilient base client used for remote API calls: circuit
// breaking plus bounded retries on 429/5xx.
type HTTPForwarder struct {
	base   *graph.BaseClient
	url    string
	logger *slog.Logger
}

// NewHTTPForwarder builds a forwarder for the configured consumer URL.
func NewHTTPForwarder(cfg config.ForwardConfig, logger *slog.Logger, opts ...graph.BaseClientOption) (*HTTPForwarder, error) {
	if cfg.URL == "" {
		return nil, types.NewAppError(types.ErrCodeInternalConfig, "forward url is required in http mode", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPForwarder{
		base:   graph.NewBaseClient(&http.Client{Timeout: cfg.Timeout}, "forward-http", graph.DefaultRetryPolicy(), opts...),
		url:    cfg.URL,
		logger: logger,
	}, nil
}

// Forward delivers one normalized message. Non-2xx consumer responses are
// surfaced as typed errors; the caller logs and drops (at-most-once).
func (f *HTTPForwarder) Forward(ctx context.Context, item types.NotificationItem, msg *types.Message) error {
	body, err := json.Marshal(payload{
		SubscriptionID: item.SubscriptionID,
		ChangeType:     item.ChangeType,
		Resource:       item.Resource,
		TenantID:       item.TenantID,
		Message:        msg,
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "marshaling forward payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "building forward request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.NewAppError(types.ErrCodeUpstreamRejected,
			"downstream consumer rejected the message", nil)
	}

	messageID := ""
	if msg != nil {
		messageID = msg.ID
	}
	f.logger.InfoContext(ctx, "message forwarded",
		"subscription_id", item.SubscriptionID,
		"message_id", messageID,
		"status", resp.StatusCode,
	)
	return nil
}
