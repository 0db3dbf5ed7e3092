package notification

import (
	"context"
	"log/slog"
	"time"

	"graphrelay/internal/types"
)

// Decrypter recovers the plaintext resource payload carried inline in a
// notification item. Implemented by *decrypt.Engine.
type Decrypter interface {
	Unwrap(content *types.EncryptedContent) ([]byte, error)
}

// MessageSource resolves a notification item to a normalized message, either
// by fetching the named resource or by decoding decrypted payload bytes.
// Implemented by *graph.MessagesClient.
type MessageSource interface {
	Fetch(ctx context.Context, resource string) (*types.Message, error)
	Decode(plaintext []byte) (*types.Message, error)
}

// Processor turns one accepted envelope into downstream deliveries. Items
// are handled strictly in delivery order; a failing item is logged and
// skipped so later items in the same envelope still go out.
type Processor struct {
	decrypter   Decrypter
	messages    MessageSource
	forwarder   Forwarder
	itemTimeout time.Duration
	logger      *slog.Logger
}

// Forwarder matches forward.Forwarder; redeclared at the point of use so the
// processor depends only on what it calls.
type Forwarder interface {
	Forward(ctx context.Context, item types.NotificationItem, msg *types.Message) error
}

// NewProcessor wires a processor. decrypter may be nil when resource data is
// not requested on subscriptions; encrypted items then fail item-level
// validation instead of crashing.
func NewProcessor(decrypter Decrypter, messages MessageSource, forwarder Forwarder, itemTimeout time.Duration, logger *slog.Logger) (*Processor, error) {
	if messages == nil {
		return nil, types.NewAppError(types.ErrCodeInternalConfig, "message source is required", nil)
	}
	if forwarder == nil {
		return nil, types.NewAppError(types.ErrCodeInternalConfig, "forwarder is required", nil)
	}
	if itemTimeout <= 0 {
		itemTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		decrypter:   decrypter,
		messages:    messages,
		forwarder:   forwarder,
		itemTimeout: itemTimeout,
		logger:      logger,
	}, nil
}

// ProcessEnvelope handles every item of the envelope sequentially. Errors
// are contained per item: log, drop, continue. At-most-once; nothing is
// retried here.
func (p *Processor) ProcessEnvelope(ctx context.Context, env types.NotificationEnvelope) {
	for i, item := range env.Value {
		if err := p.processItem(ctx, item); err != nil {
			p.logger.ErrorContext(ctx, "notification item dropped",
				"subscription_id", item.SubscriptionID,
				"resource", item.Resource,
				"change_type", item.ChangeType,
				"item_index", i,
				"error", err,
			)
		}
	}
}

func (p *Processor) processItem(ctx context.Context, item types.NotificationItem) error {
	ctx, cancel := context.WithTimeout(ctx, p.itemTimeout)
	defer cancel()

	msg, err := p.resolveMessage(ctx, item)
	if err != nil {
		return err
	}

	if err := p.forwarder.Forward(ctx, item, msg); err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "notification item delivered",
		"subscription_id", item.SubscriptionID,
		"change_type", item.ChangeType,
	)
	return nil
}

// resolveMessage produces the normalized message for an item. Deletions
// carry no fetchable resource; they are forwarded as metadata only.
func (p *Processor) resolveMessage(ctx context.Context, item types.NotificationItem) (*types.Message, error) {
	if item.ChangeType == types.ChangeDeleted {
		return nil, nil
	}

	if item.EncryptedContent != nil {
		if p.decrypter == nil {
			return nil, types.NewAppError(types.ErrCodeInternalConfig,
				"encrypted content received but no decryption key is configured", nil)
		}
		plaintext, err := p.decrypter.Unwrap(item.EncryptedContent)
		if err != nil {
			return nil, err
		}
		return p.messages.Decode(plaintext)
	}

	return p.messages.Fetch(ctx, item.Resource)
}
