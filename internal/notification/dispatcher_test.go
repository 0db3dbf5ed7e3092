package notification

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"graphrelay/internal/types"
)

// blockingProcessor counts envelopes and holds each until released.
type blockingProcessor struct {
	started atomic.Int64
	done    atomic.Int64
	release chan struct{}
}

func (p *blockingProcessor) ProcessEnvelope(context.Context, types.NotificationEnvelope) {
	p.started.Add(1)
	if p.release != nil {
		<-p.release
	}
	p.done.Add(1)
}

type panicProcessor struct{}

func (panicProcessor) ProcessEnvelope(context.Context, types.NotificationEnvelope) {
	panic("boom")
}

// orderProcessor records item order inside each envelope it sees.
type orderProcessor struct {
	mu     sync.Mutex
	orders [][]string
}

func (p *orderProcessor) ProcessEnvelope(_ context.Context, env types.NotificationEnvelope) {
	var ids []string
	for _, item := range env.Value {
		ids = append(ids, item.SubscriptionID)
	}
	p.mu.Lock()
	p.orders = append(p.orders, ids)
	p.mu.Unlock()
}

func TestDispatcherProcessesConcurrently(t *testing.T) {
	proc := &blockingProcessor{release: make(chan struct{})}
	d, err := NewDispatcher(proc, 4, discardLogger())
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := d.Submit(context.Background(), types.NotificationEnvelope{}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	deadline := time.After(2 * time.Second)
	for proc.started.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d envelopes started", proc.started.Load())
		default:
			time.Sleep(time.Millisecond)
		}
	}

	close(proc.release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if proc.done.Load() != 3 {
		t.Errorf("done = %d", proc.done.Load())
	}
}

func TestDispatcherBoundsInFlight(t *testing.T) {
	proc := &blockingProcessor{release: make(chan struct{})}
	d, err := NewDispatcher(proc, 1, discardLogger())
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	if err := d.Submit(context.Background(), types.NotificationEnvelope{}); err != nil {
		t.Fatalf("first Submit: %v", err)
	}

	// Second submit must block on the saturated semaphore until the caller
	// context expires.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := d.Submit(ctx, types.NotificationEnvelope{}); err == nil {
		t.Fatal("expected Submit to fail while saturated")
	}

	close(proc.release)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	if err := d.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if got := proc.started.Load(); got != 1 {
		t.Errorf("started = %d, want 1", got)
	}
}

func TestDispatcherRecoversPanics(t *testing.T) {
	d, err := NewDispatcher(panicProcessor{}, 2, discardLogger())
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	if err := d.Submit(context.Background(), types.NotificationEnvelope{}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// A panicked unit must not wedge shutdown.
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown after panic: %v", err)
	}

	// And the dispatcher still rejects new work cleanly.
	if err := d.Submit(context.Background(), types.NotificationEnvelope{}); err == nil {
		t.Fatal("Submit accepted after shutdown")
	}
}

func TestDispatcherPreservesItemOrderWithinEnvelope(t *testing.T) {
	proc := &orderProcessor{}
	d, err := NewDispatcher(proc, 8, discardLogger())
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	env := types.NotificationEnvelope{Value: []types.NotificationItem{
		{SubscriptionID: "a"}, {SubscriptionID: "b"}, {SubscriptionID: "c"},
	}}
	if err := d.Submit(context.Background(), env); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if len(proc.orders) != 1 || len(proc.orders[0]) != 3 {
		t.Fatalf("orders = %v", proc.orders)
	}
	for i, want := range []string{"a", "b", "c"} {
		if proc.orders[0][i] != want {
			t.Errorf("order[%d] = %q, want %q", i, proc.orders[0][i], want)
		}
	}
}

func TestDispatcherShutdownDeadline(t *testing.T) {
	proc := &blockingProcessor{release: make(chan struct{})}
	d, err := NewDispatcher(proc, 2, discardLogger())
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	if err := d.Submit(context.Background(), types.NotificationEnvelope{}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := d.Shutdown(ctx); err == nil {
		t.Fatal("Shutdown returned nil with a unit still in flight")
	}
	close(proc.release)
}
