// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load a .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Validate the struct using go-playground/validator.
//  5. Apply cross-field invariants (forwarder mode requirements, encryption
//     key presence, subscription lifetime ceiling).
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"graphrelay/internal/types"
)

// LoadConfig loads and validates the service configuration from the
// environment. A missing .env file is not an error; every other failure is.
func LoadConfig() (*Config, error) {
	// All timestamps in the system (expiration windows, audit records) are
	// UTC; pin the process to match.
	time.Local = time.UTC

	// Best effort; the environment is authoritative.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: processing environment: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate runs struct-tag validation followed by cross-field invariants
// that tags cannot express.
func validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("config: validation failed: %w", err)
	}

	if cfg.Webhook.SubscriptionLifetime <= 0 ||
		cfg.Webhook.SubscriptionLifetime > types.MaxSubscriptionLifetime {
		return fmt.Errorf("config: SUBSCRIPTION_LIFETIME %s outside (0, %s]",
			cfg.Webhook.SubscriptionLifetime, types.MaxSubscriptionLifetime)
	}

	if cfg.Webhook.IncludeResourceData {
		if cfg.Webhook.PrivateKeyPEM.Unmask() == "" {
			return fmt.Errorf("config: WEBHOOK_INCLUDE_RESOURCE_DATA requires WEBHOOK_PRIVATE_KEY_PEM")
		}
		if cfg.Webhook.EncryptionCertificate == "" || cfg.Webhook.EncryptionCertificateID == "" {
			return fmt.Errorf("config: WEBHOOK_INCLUDE_RESOURCE_DATA requires WEBHOOK_ENCRYPTION_CERT and WEBHOOK_ENCRYPTION_CERT_ID")
		}
	}

	switch cfg.Forward.Mode {
	case ForwardHTTP:
		if cfg.Forward.URL == "" {
			return fmt.Errorf("config: FORWARD_MODE=http requires FORWARD_URL")
		}
	case ForwardSQS:
		if cfg.Forward.QueueURL == "" {
			return fmt.Errorf("config: FORWARD_MODE=sqs requires FORWARD_QUEUE_URL")
		}
	}

	if cfg.Audit.Backend == AuditPostgres && cfg.Audit.DatabaseURL.Unmask() == "" {
		return fmt.Errorf("config: AUDIT_BACKEND=postgres requires AUDIT_DATABASE_URL")
	}

	if cfg.Webhook.MaxInFlight <= 0 {
		return fmt.Errorf("config: WEBHOOK_MAX_IN_FLIGHT must be positive")
	}

	return nil
}
