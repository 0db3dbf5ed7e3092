// Package main is the entry point for the graphrelay service.
//
// It loads configuration, wires the remote API clients, the webhook pipeline
// (validator, audit sink, dispatcher, processor, forwarder), and the
// subscription lifecycle manager, then serves HTTP until a shutdown signal
// arrives. Shutdown drains in-flight notification units before exiting.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"graphrelay/internal/api/handlers"
	"graphrelay/internal/audit"
	"graphrelay/internal/config"
	"graphrelay/internal/core"
	"graphrelay/internal/decrypt"
	"graphrelay/internal/forward"
	"graphrelay/internal/graph"
	"graphrelay/internal/notification"
	"graphrelay/internal/subscription"
	"graphrelay/internal/types"
)

// dispatcherDrainTimeout bounds how long shutdown waits for in-flight
// notification units after the HTTP listener stops.
const dispatcherDrainTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("graphrelay starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
		"notification_url", cfg.NotificationURL(),
		"forward_mode", cfg.Forward.Mode,
		"audit_backend", cfg.Audit.Backend,
	)

	ctx := context.Background()
	clock := types.RealClock{}

	// Remote API clients share one token-refreshing HTTP client.
	tokenClient := graph.NewTokenClient(ctx, cfg.Graph)
	subsClient := graph.NewSubscriptionsClient(tokenClient, cfg.Graph.BaseURL, logger)
	msgsClient := graph.NewMessagesClient(tokenClient, cfg.Graph.BaseURL, logger)

	manager, err := subscription.NewManager(subsClient, cfg, clock, logger)
	if err != nil {
		return fmt.Errorf("creating subscription manager: %w", err)
	}

	sink, err := newAuditSink(ctx, cfg, clock, logger)
	if err != nil {
		return fmt.Errorf("creating audit sink: %w", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Error("closing audit sink", "error", err)
		}
	}()

	forwarder, err := newForwarder(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating forwarder: %w", err)
	}

	var engine *decrypt.Engine
	if pemKey := cfg.Webhook.PrivateKeyPEM.Unmask(); pemKey != "" {
		engine, err = decrypt.NewEngine([]byte(pemKey))
		if err != nil {
			return fmt.Errorf("parsing webhook private key: %w", err)
		}
	}

	processor, err := newProcessor(engine, msgsClient, forwarder, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating processor: %w", err)
	}

	dispatcher, err := notification.NewDispatcher(processor, cfg.Webhook.MaxInFlight, logger)
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	validator := notification.NewValidator(cfg.Webhook.ClientState, logger)
	notifHandler := handlers.NewNotificationHandler(validator, dispatcher, sink, clock, logger)
	subsHandler := handlers.NewSubscriptionHandler(manager, logger)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		func(r chi.Router) { notifHandler.RegisterRoutes(r) },
		func(r chi.Router) { subsHandler.RegisterRoutes(r) },
	)
	if pgSink, ok := sink.(*audit.PostgresSink); ok {
		srv.RegisterHealthProbe(auditDBProbe{sink: pgSink})
	}
	srv.MountRoutes()

	return runHTTPServer(srv, dispatcher, cfg, logger)
}

// auditDBProbe reports audit database connectivity on /health.
type auditDBProbe struct {
	sink *audit.PostgresSink
}

func (p auditDBProbe) Name() string                    { return "audit_db" }
func (p auditDBProbe) Check(ctx context.Context) error { return p.sink.Ping(ctx) }

// newProcessor builds the per-item pipeline. The decrypt engine may be nil
// when inline resource data is not requested.
func newProcessor(engine *decrypt.Engine, msgs *graph.MessagesClient, fwd forward.Forwarder, cfg *config.Config, logger *slog.Logger) (*notification.Processor, error) {
	var dec notification.Decrypter
	if engine != nil {
		dec = engine
	}
	return notification.NewProcessor(dec, msgs, fwd, cfg.Webhook.ItemTimeout, logger)
}

// newAuditSink selects the configured audit backend.
func newAuditSink(ctx context.Context, cfg *config.Config, clock types.Clock, logger *slog.Logger) (audit.Sink, error) {
	switch cfg.Audit.Backend {
	case config.AuditPostgres:
		return audit.NewPostgresPoolSink(ctx, cfg.Audit.DatabaseURL.Unmask(), logger)
	default:
		return audit.NewFileSink(cfg.Audit.Dir, cfg.Audit.RotateBytes, cfg.Audit.Compress, clock, logger)
	}
}

// newForwarder selects the configured downstream delivery mode.
func newForwarder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (forward.Forwarder, error) {
	switch cfg.Forward.Mode {
	case config.ForwardSQS:
		client, err := forward.NewSQSClient(ctx, cfg.Forward)
		if err != nil {
			return nil, err
		}
		return forward.NewSQSForwarder(client, cfg.Forward, logger)
	default:
		return forward.NewHTTPForwarder(cfg.Forward, logger)
	}
}

// runHTTPServer starts the listener and handles graceful shutdown: stop
// accepting requests, then drain the dispatcher.
func runHTTPServer(srv *core.Server, dispatcher *notification.Dispatcher, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// Accepted envelopes were acknowledged 202; give their units time to
	// finish before the process exits.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), dispatcherDrainTimeout)
	defer drainCancel()
	if err := dispatcher.Shutdown(drainCtx); err != nil {
		logger.Error("dispatcher drain incomplete", "error", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})
	return slog.New(handler)
}
