package audit

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"graphrelay/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx, so the
// sink works inside or outside a transaction and mocks cleanly in tests.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSink appends audit records to the audit_records table. Headers and
// body are stored as JSONB so records remain queryable.
type PostgresSink struct {
	db     DBTX
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresSink creates a sink over an existing connection or pool.
func NewPostgresSink(db DBTX, logger *slog.Logger) *PostgresSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSink{db: db, logger: logger}
}

// NewPostgresPoolSink connects a pool from a DSN and returns a sink that owns
// and closes it.
func NewPostgresPoolSink(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalConfig, "connecting audit database", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, types.NewAppError(types.ErrCodeInternalConfig, "pinging audit database", err)
	}

	sink := NewPostgresSink(pool, logger)
	sink.pool = pool
	return sink, nil
}

// Write inserts one audit record.
func (s *PostgresSink) Write(ctx context.Context, rec types.AuditRecord) error {
	const q = `
		INSERT INTO audit_records (id, received_at, endpoint, headers, body)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := s.db.Exec(ctx, q, rec.ID, rec.ReceivedAt, rec.Endpoint, rec.Headers, rec.Body); err != nil {
		return types.NewAppError(types.ErrCodeInternalAudit, "inserting audit record", err)
	}
	return nil
}

// Ping verifies database connectivity; used by the health endpoint.
func (s *PostgresSink) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Close releases the owned pool, if any.
func (s *PostgresSink) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
