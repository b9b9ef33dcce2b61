package clover

import (
	"context"
	"database/sql"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

type IsolationLevel string

const (
	ReadUncommitted IsolationLevel = "ReadUncommitted"
	ReadCommitted   IsolationLevel = "ReadCommitted"
	RepeatableRead  IsolationLevel = "RepeatableRead"
	Serializable    IsolationLevel = "Serializable"
)

func (l IsolationLevel) sqlLevel() (sql.IsolationLevel, error) {
	switch l {
	case "":
		return sql.LevelDefault, nil
	case ReadUncommitted:
		return sql.LevelReadUncommitted, nil
	case ReadCommitted:
		return sql.LevelReadCommitted, nil
	case RepeatableRead:
		return sql.LevelRepeatableRead, nil
	case Serializable:
		return sql.LevelSerializable, nil
	}
	return sql.LevelDefault, validationError("Invalid isolation level %q. Expected one of ReadUncommitted, ReadCommitted, RepeatableRead, Serializable.", l)
}

// TransactionOptions bound a transaction. MaxWait limits how long beginning it may take;
// Timeout limits the whole transaction.
type TransactionOptions struct {
	MaxWait        time.Duration
	Timeout        time.Duration
	IsolationLevel IsolationLevel
}

type TxOption func(*TransactionOptions)

func WithMaxWait(d time.Duration) TxOption {
	return func(o *TransactionOptions) { o.MaxWait = d }
}

func WithTimeout(d time.Duration) TxOption {
	return func(o *TransactionOptions) { o.Timeout = d }
}

func WithIsolationLevel(l IsolationLevel) TxOption {
	return func(o *TransactionOptions) { o.IsolationLevel = l }
}

func normalizeTxOptions(o TransactionOptions) (TransactionOptions, error) {
	if o.MaxWait < 0 || o.Timeout < 0 {
		return o, validationError("Transaction maxWait and timeout must not be negative.")
	}
	if o.MaxWait == 0 {
		o.MaxWait = defaultMaxWait
	}
	if o.Timeout == 0 {
		o.Timeout = defaultTimeout
	}
	if _, err := o.IsolationLevel.sqlLevel(); err != nil {
		return o, err
	}
	return o, nil
}

// Transaction runs fn in a transaction carried by the context passed to it. The transaction
// commits when fn returns nil and rolls back otherwise. Called inside another transaction,
// fn joins the outer one and the outer caller decides the outcome.
func (db *DB) Transaction(ctx context.Context, fn func(ctx context.Context) error, opts ...TxOption) (err error) {
	if _, ok := database.TxFromContext(ctx); ok {
		return fn(ctx)
	}

	o := db.opts.TransactionOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o, err = normalizeTxOptions(o); err != nil {
		return err
	}
	isolation, _ := o.IsolationLevel.sqlLevel()

	conn, err := db.connection(ctx)
	if err != nil {
		return err
	}

	ctx, span := tracing.StartSpan(ctx, "clover.DB.Transaction")
	defer span.End()

	txCtx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	txCtx, tx, err := db.begin(txCtx, conn, isolation, o.MaxWait)
	if err != nil {
		metrics.TransactionsTotal.WithLabelValues("interactive", "begin_failed").Inc()
		return err
	}
	logger := db.logger.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			logger.WithFields(map[string]any{"panic": fmt.Sprint(r), "stack": string(debug.Stack())}).
				Error("panic inside transaction, rolled back")
			metrics.TransactionsTotal.WithLabelValues("interactive", "panic").Inc()
			err = &PanicError{Message: fmt.Sprintf("panic inside transaction: %v", r), Value: r, ClientVersion: Version}
		}
	}()

	if err = fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		if ctx.Err() != nil {
			metrics.TransactionsTotal.WithLabelValues("interactive", "canceled").Inc()
			return err
		}
		if expired(txCtx) {
			metrics.TransactionsTotal.WithLabelValues("interactive", "expired").Inc()
			return expiredError(o.Timeout, err)
		}
		metrics.TransactionsTotal.WithLabelValues("interactive", "rolled_back").Inc()
		return err
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		_ = tx.Rollback(ctx)
		metrics.TransactionsTotal.WithLabelValues("interactive", "canceled").Inc()
		return ctxErr
	}
	if expired(txCtx) {
		_ = tx.Rollback(ctx)
		metrics.TransactionsTotal.WithLabelValues("interactive", "expired").Inc()
		return expiredError(o.Timeout, nil)
	}

	if err = tx.Commit(ctx); err != nil {
		metrics.TransactionsTotal.WithLabelValues("interactive", "commit_failed").Inc()
		return mapError("", err)
	}
	metrics.TransactionsTotal.WithLabelValues("interactive", "committed").Inc()
	return nil
}

// begin starts a transaction, giving up after maxWait. A transaction that starts after the
// deadline is rolled back.
func (db *DB) begin(ctx context.Context, conn database.DB, isolation sql.IsolationLevel, maxWait time.Duration) (context.Context, database.Tx, error) {
	type result struct {
		ctx context.Context
		tx  database.Tx
		err error
	}
	ch := make(chan result, 1)
	go func() {
		txCtx, tx, err := conn.GetTx(ctx, &sql.TxOptions{Isolation: isolation})
		ch <- result{ctx: txCtx, tx: tx, err: err}
	}()

	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, nil, mapError("", r.err)
		}
		return r.ctx, r.tx, nil
	case <-timer.C:
		go func() {
			if r := <-ch; r.tx != nil {
				_ = r.tx.Rollback(context.Background())
			}
		}()
		return nil, nil, knownError(CodePoolTimeout,
			fmt.Sprintf("Transaction API error: Unable to start a transaction in the given time (%d ms).", maxWait.Milliseconds()),
			map[string]any{"max_wait_ms": maxWait.Milliseconds()}, nil)
	}
}

func expired(ctx context.Context) bool {
	return ctx.Err() != nil
}

func expiredError(timeout time.Duration, cause error) *KnownRequestError {
	return knownError(CodeTransactionExpired,
		fmt.Sprintf("Transaction API error: Transaction already closed: A query cannot be executed on an expired transaction. The timeout for this transaction was %d ms.", timeout.Milliseconds()),
		map[string]any{"timeout_ms": timeout.Milliseconds()}, cause)
}

// BatchOp is one operation of a Batch.
type BatchOp func(ctx context.Context) (any, error)

// Op adapts a typed operation for Batch.
func Op[R any](fn func(ctx context.Context) (R, error)) BatchOp {
	return func(ctx context.Context) (any, error) {
		return fn(ctx)
	}
}

// Batch runs ops in order in one transaction and returns their results in the same order.
// The first failure rolls back every op.
func (db *DB) Batch(ctx context.Context, ops []BatchOp, opts ...TxOption) ([]any, error) {
	results := make([]any, len(ops))
	err := db.Transaction(ctx, func(ctx context.Context) error {
		for i, op := range ops {
			res, err := op(ctx)
			if err != nil {
				return err
			}
			results[i] = res
		}
		return nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return results, nil
}
