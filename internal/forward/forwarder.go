// Package forward delivers normalized messages to the downstream consumer,
// either over HTTP or onto an SQS queue depending on configuration.
package forward

import (
	"context"

	"graphrelay/internal/types"
)

// Forwarder hands a normalized message to the downstream consumer. Delivery
// is at-most-once from the caller's perspective; implementations may retry
// transient failures internally but never re-deliver after returning.
type Forwarder interface {
	Forward(ctx context.Context, item types.NotificationItem, msg *types.Message) error
}
