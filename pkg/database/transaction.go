package database

import (
	"context"
	"database/sql"
	"sync"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type TxContextKey string

const txKey = TxContextKey("tx-context-key")

type Tx interface {
	Runner
	IsOpen() bool
	// IsOwner reports whether this handle began the transaction. Only the owner commits or rolls back.
	IsOwner() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transaction wraps sqlx.Tx and tracks whether it is still usable.
type Transaction struct {
	*sqlx.Tx
	logger   ectologger.Logger
	isClosed bool
	owner    bool

	mu          sync.Mutex
	afterCommit []func(ctx context.Context)
}

func NewTx(tx *sqlx.Tx, logger ectologger.Logger) Tx {
	return &Transaction{
		Tx:     tx,
		logger: logger,
		owner:  true,
	}
}

// joined is the handle returned to callers that reuse a transaction already carried by the context.
type joined struct {
	*Transaction
}

func (j joined) IsOwner() bool { return false }

func (j joined) Commit(ctx context.Context) error { return nil }

func (j joined) Rollback(ctx context.Context) error { return nil }

// TxFromContext returns the open transaction carried by ctx.
func TxFromContext(ctx context.Context) (Tx, bool) {
	tx, ok := ctx.Value(txKey).(Tx)
	if !ok || tx == nil || !tx.IsOpen() {
		return nil, false
	}
	return tx, true
}

// WithTx returns a copy of ctx carrying tx.
func WithTx(ctx context.Context, tx Tx) context.Context {
	return context.WithValue(ctx, txKey, tx)
}

// GetTx joins the transaction carried by ctx or begins a new one.
// A joined handle never commits or rolls back; the outermost caller owns the outcome.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if ctxTx, ok := TxFromContext(ctx); ok {
		if t, ok := ctxTx.(*Transaction); ok {
			return ctx, joined{t}, nil
		}
		return ctx, ctxTx, nil
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Errorf("error while beginning transaction")
		return ctx, nil, errors.Wrap(err, "error while beginning transaction")
	}

	newTx := NewTx(tx, logger)
	return WithTx(ctx, newTx), newTx, nil
}

// AfterCommit runs fn once the transaction carried by ctx commits, or right away when
// ctx carries none. Hooks of a rolled back transaction are dropped.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	tx, ok := TxFromContext(ctx)
	if !ok {
		fn(ctx)
		return
	}
	switch t := tx.(type) {
	case *Transaction:
		t.onCommit(fn)
	case joined:
		t.onCommit(fn)
	default:
		fn(ctx)
	}
}

func (t *Transaction) onCommit(fn func(ctx context.Context)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.afterCommit = append(t.afterCommit, fn)
}

func (t *Transaction) IsOpen() bool {
	return !t.isClosed
}

func (t *Transaction) IsOwner() bool {
	return t.owner
}

func (t *Transaction) Rollback(ctx context.Context) error {
	if t.isClosed {
		return nil
	}

	err := t.Tx.Rollback()
	t.isClosed = true
	t.mu.Lock()
	t.afterCommit = nil
	t.mu.Unlock()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while rolling back transaction")
		return errors.Wrap(err, "error while rolling back transaction")
	}

	return nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	if t.isClosed {
		return nil
	}

	err := t.Tx.Commit()
	t.isClosed = true
	if err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while committing transaction")
		return errors.Wrap(err, "error while committing transaction")
	}

	t.mu.Lock()
	hooks := t.afterCommit
	t.afterCommit = nil
	t.mu.Unlock()
	for _, fn := range hooks {
		fn(ctx)
	}

	return nil
}
