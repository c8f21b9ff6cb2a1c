// Package tx carries an open *sql.Tx through context so a store can join the
// transaction its caller started.
package tx

import (
	"context"
	"database/sql"
)

type txKey struct{}

// Executor is the subset of *sql.DB and *sql.Tx that writers need.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx returns ctx unchanged for a nil tx.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey{}, tx)
}

func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}

// ExecutorFrom prefers the transaction on ctx and falls back to db.
func ExecutorFrom(ctx context.Context, db *sql.DB) Executor {
	if tx, ok := From(ctx); ok {
		return tx
	}
	return db
}
