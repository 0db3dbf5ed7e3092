// Package subscription manages the lifecycle of change-notification
// registrations against the remote API: creation with the service-enforced
// expiration ceiling, enumeration, removal, and renewal by replacement.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"graphrelay/internal/config"
	"graphrelay/internal/types"
)

// RemoteSubscriptions is the slice of the remote client the manager needs.
type RemoteSubscriptions interface {
	Create(ctx context.Context, sub types.Subscription) (*types.Subscription, error)
	List(ctx context.Context) ([]types.Subscription, error)
	Delete(ctx context.Context, id string) error
}

// Manager builds registration requests from configuration and delegates all
// persistence to the remote service. It holds no local subscription state:
// the remote service is the single source of truth.
type Manager struct {
	remote RemoteSubscriptions
	cfg    *config.Config
	clock  types.Clock
	logger *slog.Logger
}

// NewManager wires a lifecycle manager. A nil clock defaults to the real
// clock; a nil logger defaults to slog.Default().
func NewManager(remote RemoteSubscriptions, cfg *config.Config, clock types.Clock, logger *slog.Logger) (*Manager, error) {
	if remote == nil {
		return nil, types.NewAppError(types.ErrCodeInternalConfig, "remote subscriptions client is required", nil)
	}
	if cfg == nil {
		return nil, types.NewAppError(types.ErrCodeInternalConfig, "config is required", nil)
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{remote: remote, cfg: cfg, clock: clock, logger: logger}, nil
}

// Create registers a subscription for the given resource and change type.
// The expiration is always computed here as now + configured lifetime,
// clamped to the remote service's ceiling; callers cannot request a longer
// window.
func (m *Manager) Create(ctx context.Context, resource string, changeType types.ChangeType) (*types.Subscription, error) {
	if resource == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "resource is required", nil)
	}
	if changeType == "" {
		changeType = types.ChangeCreated
	}
	if !validChangeType(changeType) {
		return nil, types.NewAppError(types.ErrCodeValidationChangeType,
			fmt.Sprintf("unsupported changeType %q", changeType), nil)
	}

	lifetime := m.cfg.Webhook.SubscriptionLifetime
	if lifetime <= 0 || lifetime > types.MaxSubscriptionLifetime {
		lifetime = types.MaxSubscriptionLifetime
	}
	expiresAt := m.clock.Now().Add(lifetime).Truncate(time.Second)

	sub := types.Subscription{
		Resource:                 resource,
		ChangeType:               changeType,
		NotificationURL:          m.cfg.NotificationURL(),
		LifecycleNotificationURL: m.cfg.LifecycleURL(),
		ExpirationDateTime:       expiresAt,
		ClientState:              m.cfg.Webhook.ClientState.Unmask(),
		LatestSupportedTLS:       types.TLSv12,
	}
	if m.cfg.Webhook.IncludeResourceData {
		sub.IncludeResourceData = true
		sub.EncryptionCertificate = m.cfg.Webhook.EncryptionCertificate
		sub.EncryptionCertificateID = m.cfg.Webhook.EncryptionCertificateID
	}

	created, err := m.remote.Create(ctx, sub)
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "subscription registered",
		"subscription_id", created.ID,
		"resource", created.Resource,
		"change_type", created.ChangeType,
		"expires_at", created.ExpirationDateTime,
	)
	return created, nil
}

// List returns the subscriptions currently registered with the remote
// service.
func (m *Manager) List(ctx context.Context) ([]types.Subscription, error) {
	return m.remote.List(ctx)
}

// Delete removes a subscription by id.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.remote.Delete(ctx, id)
}

// Renew replaces a subscription nearing expiry: it registers a fresh
// subscription with the same resource and change type, then deletes the old
// one. The returned subscription carries a new identifier. Create-first
// ordering means a failed renewal never leaves the resource unwatched.
func (m *Manager) Renew(ctx context.Context, id string) (*types.Subscription, error) {
	if id == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "subscription id is required", nil)
	}

	existing, err := m.findByID(ctx, id)
	if err != nil {
		return nil, err
	}

	replacement, err := m.Create(ctx, existing.Resource, existing.ChangeType)
	if err != nil {
		return nil, err
	}

	if err := m.remote.Delete(ctx, id); err != nil {
		// The replacement is live; the stale registration will lapse at its
		// own expiration. Log and carry on.
		m.logger.WarnContext(ctx, "renewed but failed to delete previous subscription",
			"subscription_id", id,
			"replacement_id", replacement.ID,
			"error", err,
		)
	}

	m.logger.InfoContext(ctx, "subscription renewed",
		"subscription_id", id,
		"replacement_id", replacement.ID,
		"expires_at", replacement.ExpirationDateTime,
	)
	return replacement, nil
}

func (m *Manager) findByID(ctx context.Context, id string) (*types.Subscription, error) {
	subs, err := m.remote.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		if subs[i].ID == id {
			return &subs[i], nil
		}
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundSubscription,
		fmt.Sprintf("subscription %q not found", id), nil)
}

// validChangeType accepts a single change type or a comma-separated
// combination, e.g. "created,updated".
func validChangeType(changeType types.ChangeType) bool {
	for _, part := range strings.Split(string(changeType), ",") {
		switch types.ChangeType(strings.TrimSpace(part)) {
		case types.ChangeCreated, types.ChangeUpdated, types.ChangeDeleted:
		default:
			return false
		}
	}
	return true
}
