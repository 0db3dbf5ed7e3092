package notification

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/semaphore"

	"graphrelay/internal/types"
)

// EnvelopeProcessor handles one accepted envelope end to end. Implemented by
// *Processor; abstracted so dispatcher tests can observe scheduling without
// real downstream work.
type EnvelopeProcessor interface {
	ProcessEnvelope(ctx context.Context, env types.NotificationEnvelope)
}

// Dispatcher runs one goroutine per accepted envelope, bounded by a weighted
// semaphore. Items inside an envelope are processed sequentially in delivery
// order by the processor; independent envelopes run concurrently with no
// ordering between them.
//
// Delivery is at-most-once: a unit that fails is logged and dropped, never
// requeued.
type Dispatcher struct {
	processor EnvelopeProcessor
	sem       *semaphore.Weighted
	logger    *slog.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// NewDispatcher creates a dispatcher allowing at most maxInFlight concurrent
// envelopes.
func NewDispatcher(processor EnvelopeProcessor, maxInFlight int64, logger *slog.Logger) (*Dispatcher, error) {
	if processor == nil {
		return nil, types.NewAppError(types.ErrCodeInternalConfig, "envelope processor is required", nil)
	}
	if maxInFlight <= 0 {
		return nil, types.NewAppError(types.ErrCodeInternalConfig, "max in-flight must be positive", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		processor: processor,
		sem:       semaphore.NewWeighted(maxInFlight),
		logger:    logger,
	}, nil
}

// Submit schedules an envelope for background processing. It blocks only
// while the in-flight bound is saturated, providing natural backpressure on
// the webhook handler; the bound request context caps that wait.
//
// Processing continues after the originating request completes: the worker
// context inherits request-scoped values (trace id) but not cancellation.
func (d *Dispatcher) Submit(ctx context.Context, env types.NotificationEnvelope) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return types.NewAppError(types.ErrCodeInternalUnexpected, "dispatcher is shut down", nil)
	}
	d.wg.Add(1)
	d.mu.Unlock()

	if err := d.sem.Acquire(ctx, 1); err != nil {
		d.wg.Done()
		return types.NewAppError(types.ErrCodeInternalUnexpected, "dispatch capacity wait aborted", err)
	}

	workCtx := context.WithoutCancel(ctx)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		defer func() {
			if rec := recover(); rec != nil {
				d.logger.ErrorContext(workCtx, "panic while processing envelope",
					"panic", rec,
					"stack", string(debug.Stack()),
				)
			}
		}()

		d.processor.ProcessEnvelope(workCtx, env)
	}()

	return nil
}

// Shutdown stops accepting new envelopes and waits for in-flight units to
// drain, up to the context deadline. Units still running at the deadline are
// abandoned (logged, not cancelled mid-item).
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.logger.Warn("dispatcher shutdown deadline reached with units in flight")
		return ctx.Err()
	}
}
