// Package tx carries a SQL transaction through context so that stores can
// join an enclosing transaction without changing their signatures. An audit
// write issued inside Run lands in the same transaction as the business
// mutation it describes: both become durable together or neither does.
// Callers outside any transaction get standalone atomic statements instead.
package tx

import (
	"context"
	"database/sql"
	"time"

	dErrors "cradle/pkg/domain-errors"
)

type ctxKey struct{}

var txKey = ctxKey{}

const defaultRunTimeout = 5 * time.Second

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Runner runs functions inside a transaction boundary. Services depend on
// this rather than *sql.DB so memory-backed wiring can substitute NoopRunner.
type Runner interface {
	Run(ctx context.Context, fn func(txCtx context.Context) error) error
}

// DBRunner begins a transaction per Run call and hands fn a context carrying
// it. Stores built on execer-style helpers pick the transaction up from that
// context automatically.
type DBRunner struct {
	db      *sql.DB
	timeout time.Duration
}

func NewDBRunner(db *sql.DB) *DBRunner {
	return &DBRunner{db: db}
}

func (r *DBRunner) Run(ctx context.Context, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := r.timeout
	if timeout == 0 {
		timeout = defaultRunTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "begin transaction")
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(WithTx(ctx, sqlTx)); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "commit transaction")
	}
	return nil
}

// NoopRunner satisfies Runner for memory-backed wiring: fn runs with the
// caller's context unchanged and the stores' own locking provides atomicity.
type NoopRunner struct{}

func (NoopRunner) Run(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}
