package sqlstore

import (
	"context"
	"log/slog"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-sqlsession/executor"
)

// Option customises a TransactionFactory.
type Option func(*TransactionFactory)

// WithLogger sets the logger handed to every transaction.
func WithLogger(logger *slog.Logger) Option {
	return func(f *TransactionFactory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// TransactionFactory opens Transactions over one bun database.
type TransactionFactory struct {
	db     *bun.DB
	logger *slog.Logger
}

// NewTransactionFactory returns a factory for db.
func NewTransactionFactory(db *bun.DB, opts ...Option) *TransactionFactory {
	f := &TransactionFactory{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewTransaction returns a transaction that begins lazily on first use. Auto-committing
// transactions run every statement directly against the database.
func (f *TransactionFactory) NewTransaction(ctx context.Context, autoCommit bool) (executor.Transaction, error) {
	if f.db == nil {
		return nil, goerrors.New("transaction factory has no database", goerrors.CategoryInternal)
	}
	return &Transaction{
		db:         f.db,
		autoCommit: autoCommit,
		logger:     f.logger,
	}, nil
}

// Transaction is the bun-backed executor.Transaction. It never closes the database.
type Transaction struct {
	db         *bun.DB
	autoCommit bool
	tx         *bun.Tx
	logger     *slog.Logger
}

// Connection returns the open transaction, beginning one if needed, or the database
// itself when auto-committing.
func (t *Transaction) Connection(ctx context.Context) (bun.IDB, error) {
	if t.autoCommit {
		return t.db, nil
	}
	if t.tx != nil {
		return t.tx, nil
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "begin transaction")
	}
	t.tx = &tx
	t.logger.Debug("transaction started")
	return t.tx, nil
}

// Active reports whether a transaction is open.
func (t *Transaction) Active() bool {
	return t.tx != nil
}

// Commit commits the open transaction, if any.
func (t *Transaction) Commit(ctx context.Context) error {
	if t.tx == nil {
		return nil
	}
	tx := t.tx
	t.tx = nil
	if err := tx.Commit(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "commit transaction")
	}
	return nil
}

// Rollback rolls back the open transaction, if any.
func (t *Transaction) Rollback(ctx context.Context) error {
	if t.tx == nil {
		return nil
	}
	tx := t.tx
	t.tx = nil
	if err := tx.Rollback(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "rollback transaction")
	}
	return nil
}

// Close rolls back a transaction left open.
func (t *Transaction) Close(ctx context.Context) error {
	if t.tx == nil {
		return nil
	}
	t.logger.Debug("rolling back transaction left open on close")
	return t.Rollback(ctx)
}
