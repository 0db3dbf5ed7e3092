package subscription

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"graphrelay/internal/config"
	"graphrelay/internal/types"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type fakeRemote struct {
	subs      []types.Subscription
	created   []types.Subscription
	deleted   []string
	createErr error
	deleteErr error
	listErr   error
	nextID    string
}

func (f *fakeRemote) Create(_ context.Context, sub types.Subscription) (*types.Subscription, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, sub)
	sub.ID = f.nextID
	return &sub, nil
}

func (f *fakeRemote) List(context.Context) ([]types.Subscription, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.subs, nil
}

func (f *fakeRemote) Delete(_ context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.PublicBaseURL = "https://relay.example.com"
	cfg.Webhook.NotificationPath = "/v1/notifications"
	cfg.Webhook.LifecyclePath = "/v1/notifications/lifecycle"
	cfg.Webhook.ClientState = types.SecretString("0123456789abcdef")
	cfg.Webhook.SubscriptionLifetime = 72 * time.Hour
	return cfg
}

func newTestManager(t *testing.T, remote RemoteSubscriptions, cfg *config.Config, clock types.Clock) *Manager {
	t.Helper()
	m, err := NewManager(remote, cfg, clock, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestCreateBuildsRegistration(t *testing.T) {
	now := time.Date(2026, 2, 1, 10, 0, 0, 123456789, time.UTC)
	remote := &fakeRemote{nextID: "sub-1"}
	m := newTestManager(t, remote, testConfig(), fakeClock{now})

	created, err := m.Create(context.Background(), "/users/u1/messages", types.ChangeCreated)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID != "sub-1" {
		t.Errorf("ID = %q", created.ID)
	}

	sent := remote.created[0]
	if sent.NotificationURL != "https://relay.example.com/v1/notifications" {
		t.Errorf("NotificationURL = %q", sent.NotificationURL)
	}
	if sent.LifecycleNotificationURL != "https://relay.example.com/v1/notifications/lifecycle" {
		t.Errorf("LifecycleNotificationURL = %q", sent.LifecycleNotificationURL)
	}
	if sent.ClientState != "0123456789abcdef" {
		t.Errorf("ClientState = %q", sent.ClientState)
	}
	if sent.LatestSupportedTLS != types.TLSv12 {
		t.Errorf("LatestSupportedTLS = %q", sent.LatestSupportedTLS)
	}

	wantExpiry := now.Add(72 * time.Hour).Truncate(time.Second)
	if !sent.ExpirationDateTime.Equal(wantExpiry) {
		t.Errorf("ExpirationDateTime = %v, want %v", sent.ExpirationDateTime, wantExpiry)
	}
	if sent.IncludeResourceData {
		t.Error("IncludeResourceData set without configuration")
	}
}

func TestCreateClampsLifetimeToCeiling(t *testing.T) {
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	cfg := testConfig()
	cfg.Webhook.SubscriptionLifetime = 240 * time.Hour
	remote := &fakeRemote{nextID: "sub-1"}
	m := newTestManager(t, remote, cfg, fakeClock{now})

	if _, err := m.Create(context.Background(), "/users/u1/messages", types.ChangeCreated); err != nil {
		t.Fatalf("Create: %v", err)
	}

	want := now.Add(types.MaxSubscriptionLifetime)
	if !remote.created[0].ExpirationDateTime.Equal(want) {
		t.Errorf("ExpirationDateTime = %v, want ceiling %v", remote.created[0].ExpirationDateTime, want)
	}
}

func TestCreateDefaultsAndValidatesChangeType(t *testing.T) {
	remote := &fakeRemote{nextID: "sub-1"}
	m := newTestManager(t, remote, testConfig(), fakeClock{time.Now()})

	if _, err := m.Create(context.Background(), "/users/u1/messages", ""); err != nil {
		t.Fatalf("Create with empty changeType: %v", err)
	}
	if remote.created[0].ChangeType != types.ChangeCreated {
		t.Errorf("default ChangeType = %q", remote.created[0].ChangeType)
	}

	if _, err := m.Create(context.Background(), "/users/u1/messages", "created,updated"); err != nil {
		t.Fatalf("Create with combined changeType: %v", err)
	}

	_, err := m.Create(context.Background(), "/users/u1/messages", "mutated")
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeValidationChangeType {
		t.Errorf("expected changeType validation error, got %v", err)
	}
}

func TestCreateIncludesResourceDataWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Webhook.IncludeResourceData = true
	cfg.Webhook.EncryptionCertificate = "BASE64CERT"
	cfg.Webhook.EncryptionCertificateID = "cert-1"
	remote := &fakeRemote{nextID: "sub-1"}
	m := newTestManager(t, remote, cfg, fakeClock{time.Now()})

	if _, err := m.Create(context.Background(), "/users/u1/messages", types.ChangeCreated); err != nil {
		t.Fatalf("Create: %v", err)
	}

	sent := remote.created[0]
	if !sent.IncludeResourceData || sent.EncryptionCertificate != "BASE64CERT" || sent.EncryptionCertificateID != "cert-1" {
		t.Errorf("encryption fields = %+v", sent)
	}
}

func TestCreateSurfacesRemoteError(t *testing.T) {
	remoteErr := types.NewAppError(types.ErrCodeUpstreamRejected, "validation handshake failed", nil)
	remote := &fakeRemote{createErr: remoteErr}
	m := newTestManager(t, remote, testConfig(), fakeClock{time.Now()})

	_, err := m.Create(context.Background(), "/users/u1/messages", types.ChangeCreated)
	if !errors.Is(err, remoteErr) {
		t.Errorf("remote error not surfaced: %v", err)
	}
}

func TestRenewCreatesReplacementThenDeletes(t *testing.T) {
	remote := &fakeRemote{
		nextID: "sub-new",
		subs: []types.Subscription{
			{ID: "sub-old", Resource: "/users/u1/messages", ChangeType: types.ChangeCreated},
		},
	}
	m := newTestManager(t, remote, testConfig(), fakeClock{time.Now()})

	renewed, err := m.Renew(context.Background(), "sub-old")
	if err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if renewed.ID != "sub-new" {
		t.Errorf("replacement ID = %q", renewed.ID)
	}
	if len(remote.created) != 1 || remote.created[0].Resource != "/users/u1/messages" {
		t.Errorf("created = %+v", remote.created)
	}
	if len(remote.deleted) != 1 || remote.deleted[0] != "sub-old" {
		t.Errorf("deleted = %v", remote.deleted)
	}
}

func TestRenewUnknownID(t *testing.T) {
	remote := &fakeRemote{subs: []types.Subscription{{ID: "other"}}}
	m := newTestManager(t, remote, testConfig(), fakeClock{time.Now()})

	_, err := m.Renew(context.Background(), "missing")
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeNotFoundSubscription {
		t.Errorf("expected not-found, got %v", err)
	}
	if len(remote.created) != 0 {
		t.Error("replacement created for unknown subscription")
	}
}

func TestRenewToleratesDeleteFailure(t *testing.T) {
	remote := &fakeRemote{
		nextID:    "sub-new",
		deleteErr: types.NewAppError(types.ErrCodeUpstreamUnavailable, "remote down", nil),
		subs: []types.Subscription{
			{ID: "sub-old", Resource: "/users/u1/messages", ChangeType: types.ChangeCreated},
		},
	}
	m := newTestManager(t, remote, testConfig(), fakeClock{time.Now()})

	renewed, err := m.Renew(context.Background(), "sub-old")
	if err != nil {
		t.Fatalf("Renew should succeed when only the old delete fails: %v", err)
	}
	if renewed.ID != "sub-new" {
		t.Errorf("replacement ID = %q", renewed.ID)
	}
}
