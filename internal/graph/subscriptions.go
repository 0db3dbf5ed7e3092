package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"graphrelay/internal/types"
)

// SubscriptionsClient talks to the remote service's /subscriptions API. It
// is the only code path that creates, enumerates, or removes registrations.
type SubscriptionsClient struct {
	base    *BaseClient
	baseURL string
	logger  *slog.Logger
}

// NewSubscriptionsClient creates a client rooted at the remote API base URL.
// The httpClient is expected to carry authentication (see NewTokenClient).
func NewSubscriptionsClient(httpClient *http.Client, baseURL string, logger *slog.Logger, opts ...BaseClientOption) *SubscriptionsClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionsClient{
		base:    NewBaseClient(httpClient, "graph-subscriptions", DefaultRetryPolicy(), opts...),
		baseURL: baseURL,
		logger:  logger,
	}
}

// Create registers a new subscription and returns the remote-assigned
// record, including the identifier and the expiration the remote service
// accepted.
func (c *SubscriptionsClient) Create(ctx context.Context, sub types.Subscription) (*types.Subscription, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "marshaling subscription request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/subscriptions", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "building subscription request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, mapStatusError(resp)
	}

	var created types.Subscription
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable, "decoding subscription response", err)
	}

	c.logger.InfoContext(ctx, "subscription created",
		"subscription_id", created.ID,
		"resource", created.Resource,
		"expires_at", created.ExpirationDateTime,
	)
	return &created, nil
}

// List returns all subscriptions registered under this deployment's
// credentials. Always a live query; nothing is cached locally.
func (c *SubscriptionsClient) List(ctx context.Context) ([]types.Subscription, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/subscriptions", nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "building list request", err)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, mapStatusError(resp)
	}

	var page struct {
		Value []types.Subscription `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable, "decoding subscription list", err)
	}

	c.logger.InfoContext(ctx, "subscriptions listed", "count", len(page.Value))
	return page.Value, nil
}

// Delete removes a subscription by id. A remote 404 surfaces as a typed
// not-found error so callers can treat double-deletes as benign.
func (c *SubscriptionsClient) Delete(ctx context.Context, id string) error {
	if id == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "subscription id is required", nil)
	}

	u := fmt.Sprintf("%s/subscriptions/%s", c.baseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "building delete request", err)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return mapStatusError(resp)
	}

	c.logger.InfoContext(ctx, "subscription deleted", "subscription_id", id)
	return nil
}
