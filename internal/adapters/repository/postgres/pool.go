// Package postgres implements repository.Store on PostgreSQL with pgx.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PoolConfigOption adjusts the pool configuration before connecting.
type PoolConfigOption func(cfg *pgxpool.Config)

// WithTracer logs every query through log at debug level.
func WithTracer(log *zap.Logger) PoolConfigOption {
	return func(cfg *pgxpool.Config) {
		if log != nil {
			cfg.ConnConfig.Tracer = &queryTracer{log: log}
		}
	}
}

// WithMaxConns caps the pool size.
func WithMaxConns(n int32) PoolConfigOption {
	return func(cfg *pgxpool.Config) {
		if n > 0 {
			cfg.MaxConns = n
		}
	}
}

// Connect opens a pool for url and verifies it with a ping.
func Connect(ctx context.Context, url string, opts ...PoolConfigOption) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		// Sample timestamps are always exchanged in UTC.
		_, err := conn.Exec(ctx, "SET TIME ZONE 'UTC'")
		return err
	}
	for _, opt := range opts {
		opt(cfg)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

type traceStartKey struct{}

type queryTracer struct {
	log *zap.Logger
}

func (t *queryTracer) TraceQueryStart(
	ctx context.Context,
	_ *pgx.Conn,
	data pgx.TraceQueryStartData,
) context.Context {
	t.log.Debug("executing", zap.String("sql", data.SQL), zap.Int("args", len(data.Args)))
	return context.WithValue(ctx, traceStartKey{}, time.Now())
}

func (t *queryTracer) TraceQueryEnd(
	ctx context.Context,
	_ *pgx.Conn,
	data pgx.TraceQueryEndData,
) {
	fields := []zap.Field{zap.String("tag", data.CommandTag.String())}
	if start, ok := ctx.Value(traceStartKey{}).(time.Time); ok {
		fields = append(fields, zap.Duration("took", time.Since(start)))
	}
	if data.Err != nil {
		t.log.Debug("query failed", append(fields, zap.Error(data.Err))...)
		return
	}
	t.log.Debug("query done", fields...)
}
