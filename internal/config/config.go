// Package config defines the global configuration structure for the
// graphrelay service. Configuration is loaded once at process initialization
// and is immutable thereafter, following 12-Factor principles: values come
// from the OS environment, optionally seeded from a .env file.
//
// Any missing required value or invalid format fails the process immediately
// on startup (fail fast).
package config

import (
	"fmt"
	"strings"
	"time"

	"graphrelay/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used for credentials, the clientState secret, and private key material.
type SecretString = types.SecretString

// Config is the top-level configuration struct. It is populated once during
// startup and never modified. Sub-components receive only the specific
// subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server  ServerConfig
	Graph   GraphConfig
	Webhook WebhookConfig
	Forward ForwardConfig
	Audit   AuditConfig
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// PublicBaseURL is the externally reachable HTTPS base of this service,
	// used to build the notification and lifecycle callback URLs handed to
	// the remote service (no trailing slash).
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" validate:"required,url"`
	// RequestTimeout bounds inbound request handling; it must stay well under
	// the remote service's ~30s webhook delivery timeout.
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"25s"`
}

// GraphConfig holds credentials and endpoints for the remote
// change-tracking (Graph-style) API.
type GraphConfig struct {
	TenantID     string        `envconfig:"GRAPH_TENANT_ID" validate:"required"`
	ClientID     string        `envconfig:"GRAPH_CLIENT_ID" validate:"required"`
	ClientSecret SecretString  `envconfig:"GRAPH_CLIENT_SECRET" validate:"required"`
	BaseURL      string        `envconfig:"GRAPH_BASE_URL" default:"https://graph.microsoft.com/v1.0" validate:"url"`
	TokenURL     string        `envconfig:"GRAPH_TOKEN_URL"` // defaults to the tenant token endpoint when empty
	Scope        string        `envconfig:"GRAPH_SCOPE" default:"https://graph.microsoft.com/.default"`
	Timeout      time.Duration `envconfig:"GRAPH_TIMEOUT" default:"15s"`
}

// WebhookConfig holds settings for the inbound webhook surface and the
// subscriptions that feed it.
type WebhookConfig struct {
	// ClientState is the shared secret echoed back in every notification.
	ClientState SecretString `envconfig:"WEBHOOK_CLIENT_STATE" validate:"required,min=16"`
	// NotificationPath and LifecyclePath are joined to PublicBaseURL to form
	// the callback URLs registered on subscription creation.
	NotificationPath string `envconfig:"WEBHOOK_NOTIFICATION_PATH" default:"/v1/notifications"`
	LifecyclePath    string `envconfig:"WEBHOOK_LIFECYCLE_PATH" default:"/v1/notifications/lifecycle"`
	// SubscriptionLifetime is clamped to the remote service's 3-day ceiling.
	SubscriptionLifetime time.Duration `envconfig:"SUBSCRIPTION_LIFETIME" default:"72h"`
	// IncludeResourceData requests encrypted resource data inline in
	// notifications. Requires PrivateKeyPEM.
	IncludeResourceData bool `envconfig:"WEBHOOK_INCLUDE_RESOURCE_DATA" default:"false"`
	// PrivateKeyPEM is the PEM-encoded RSA private key matching the
	// encryption certificate uploaded to the remote service.
	PrivateKeyPEM           SecretString `envconfig:"WEBHOOK_PRIVATE_KEY_PEM"`
	EncryptionCertificate   string       `envconfig:"WEBHOOK_ENCRYPTION_CERT"`
	EncryptionCertificateID string       `envconfig:"WEBHOOK_ENCRYPTION_CERT_ID"`
	// MaxInFlight bounds the number of envelopes processed concurrently.
	MaxInFlight int64 `envconfig:"WEBHOOK_MAX_IN_FLIGHT" default:"64"`
	// ItemTimeout bounds downstream fetch/forward work per notification item.
	ItemTimeout time.Duration `envconfig:"WEBHOOK_ITEM_TIMEOUT" default:"30s"`
}

// ForwardMode selects the downstream forwarder implementation.
type ForwardMode string

const (
	ForwardHTTP ForwardMode = "http"
	ForwardSQS  ForwardMode = "sqs"
)

// ForwardConfig holds settings for downstream delivery of normalized
// resources.
type ForwardConfig struct {
	Mode ForwardMode `envconfig:"FORWARD_MODE" default:"http" validate:"oneof=http sqs"`
	// URL is the HTTP consumer endpoint (required in http mode).
	URL     string        `envconfig:"FORWARD_URL"`
	Timeout time.Duration `envconfig:"FORWARD_TIMEOUT" default:"10s"`
	// QueueURL is the SQS queue (required in sqs mode).
	QueueURL  string `envconfig:"FORWARD_QUEUE_URL"`
	AWSRegion string `envconfig:"AWS_REGION" default:"us-east-1"`
	// EndpointURL overrides the AWS endpoint for LocalStack (empty in prod).
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// AuditBackend selects the audit sink implementation.
type AuditBackend string

const (
	AuditFile     AuditBackend = "file"
	AuditPostgres AuditBackend = "postgres"
)

// AuditConfig holds settings for the append-only audit log of accepted
// notifications.
type AuditConfig struct {
	Backend AuditBackend `envconfig:"AUDIT_BACKEND" default:"file" validate:"oneof=file postgres"`
	// Dir is where the file sink writes JSONL records (file mode).
	Dir string `envconfig:"AUDIT_DIR" default:"audit"`
	// RotateBytes triggers rotation once the active file exceeds this size.
	RotateBytes int64 `envconfig:"AUDIT_ROTATE_BYTES" default:"16777216"`
	// Compress gzips rotated files.
	Compress bool `envconfig:"AUDIT_COMPRESS" default:"true"`
	// DatabaseURL is the Postgres DSN (postgres mode).
	DatabaseURL SecretString `envconfig:"AUDIT_DATABASE_URL"`
}

// NotificationURL returns the full callback URL registered for change
// notifications.
func (c *Config) NotificationURL() string {
	return joinURL(c.Server.PublicBaseURL, c.Webhook.NotificationPath)
}

// LifecycleURL returns the full callback URL registered for subscription
// lifecycle events.
func (c *Config) LifecycleURL() string {
	return joinURL(c.Server.PublicBaseURL, c.Webhook.LifecyclePath)
}

// ResolveTokenURL returns the OAuth2 token endpoint, defaulting to the
// tenant's standard endpoint when not explicitly configured.
func (g GraphConfig) ResolveTokenURL() string {
	if g.TokenURL != "" {
		return g.TokenURL
	}
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", g.TenantID)
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
