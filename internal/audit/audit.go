// Package audit persists an append-only record of every accepted
// notification request. Records are written before the webhook is
// acknowledged so that an accepted delivery is always recoverable even if
// asynchronous processing later fails.
package audit

import (
	"context"

	"graphrelay/internal/types"
)

// Sink appends audit records. Write must return only after the record is
// durably handed off; callers treat a Write failure as a request failure.
type Sink interface {
	Write(ctx context.Context, rec types.AuditRecord) error
	Close() error
}
