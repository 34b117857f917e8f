package db

import (
	"context"
	"database/sql"

	"github.com/taskforge/handoff/internal/infrastructure/transaction"
)

// executor is the subset of database operations shared by *sql.DB and
// *sql.Tx that repositories need.
type executor interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Handle is the uniform statement-execution surface over the configured
// engine. It rewrites placeholder syntax through the dialect and routes
// statements to an in-flight transaction when the context carries one.
// Everything above this package is written against Handle only and must
// not special-case the backend.
type Handle struct {
	db      *sql.DB
	dialect Dialect
}

// DB exposes the underlying pool for transaction management and shutdown.
func (h *Handle) DB() *sql.DB { return h.db }

// Dialect reports which engine the handle was opened against.
func (h *Handle) Dialect() Dialect { return h.dialect }

// executor returns the transaction from context if present, otherwise
// the connection pool.
func (h *Handle) executor(ctx context.Context) executor {
	if tx, ok := transaction.GetTxFromContext(ctx); ok {
		return tx
	}
	return h.db
}

// ExecContext executes a statement written with neutral placeholders.
func (h *Handle) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return h.executor(ctx).ExecContext(ctx, h.dialect.Rewrite(query), args...)
}

// QueryContext runs a query written with neutral placeholders.
func (h *Handle) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return h.executor(ctx).QueryContext(ctx, h.dialect.Rewrite(query), args...)
}

// QueryRowContext runs a single-row query written with neutral placeholders.
func (h *Handle) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return h.executor(ctx).QueryRowContext(ctx, h.dialect.Rewrite(query), args...)
}

// Close releases the underlying pool.
func (h *Handle) Close() error { return h.db.Close() }
