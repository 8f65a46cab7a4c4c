package executor

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-sqlsession/cache"
	"github.com/goliatone/go-sqlsession/mapping"
)

// Row is one raw result row keyed by column name.
type Row = map[string]any

// Executor runs mapped statements for a single session. Implementations are not safe
// for concurrent use.
type Executor interface {
	// Query runs a select. With a non-nil handler results are streamed to it and the
	// returned slice is nil.
	Query(ctx context.Context, ms *mapping.Statement, params any, bounds mapping.Bounds, handler ResultHandler) ([]any, error)
	// Update runs an insert, update or delete and returns the affected row count.
	Update(ctx context.Context, ms *mapping.Statement, params any) (int64, error)
	FlushStatements(ctx context.Context) error
	Commit(ctx context.Context, required bool) error
	Rollback(ctx context.Context, required bool) error
	Close(ctx context.Context, forceRollback bool) error
	IsClosed() bool
	CreateCacheKey(ms *mapping.Statement, params any, bounds mapping.Bounds) (*cache.Key, error)
	IsCached(ms *mapping.Statement, key *cache.Key) bool
	// DeferLoad assigns the result stored under key to target.property once it is
	// realized in the local cache.
	DeferLoad(ms *mapping.Statement, target any, property string, key *cache.Key, many bool) error
	ClearLocalCache()
	Transaction() Transaction
}

// Transaction is the connection and transaction boundary owned by one session.
type Transaction interface {
	Connection(ctx context.Context) (bun.IDB, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close(ctx context.Context) error
}

// StatementHandler prepares native statements on a connection.
type StatementHandler interface {
	Prepare(ctx context.Context, conn bun.IDB, ms *mapping.Statement, bound mapping.BoundStatement) (PreparedStatement, error)
}

// PreparedStatement is a native statement handle. Close must be called on every path.
type PreparedStatement interface {
	Query(ctx context.Context, args []any) ([]Row, error)
	Exec(ctx context.Context, args []any) (int64, error)
	Close() error
}

// ResultMapper turns raw rows into results. Nested loads must go through loader, which
// is the outermost executor of the chain.
type ResultMapper interface {
	MapRows(ctx context.Context, loader Executor, ms *mapping.Statement, rows []Row) ([]any, error)
}

// ResultMapperFunc adapts a function to ResultMapper.
type ResultMapperFunc func(ctx context.Context, loader Executor, ms *mapping.Statement, rows []Row) ([]any, error)

func (f ResultMapperFunc) MapRows(ctx context.Context, loader Executor, ms *mapping.Statement, rows []Row) ([]any, error) {
	return f(ctx, loader, ms, rows)
}

// IdentityMapper returns every row unchanged.
type IdentityMapper struct{}

func (IdentityMapper) MapRows(_ context.Context, _ Executor, _ *mapping.Statement, rows []Row) ([]any, error) {
	if rows == nil {
		return nil, nil
	}
	out := make([]any, len(rows))
	for i, row := range rows {
		out[i] = row
	}
	return out, nil
}

// StatementMappers dispatches to a mapper registered by statement id and falls back to
// IdentityMapper.
type StatementMappers map[string]ResultMapper

func (m StatementMappers) MapRows(ctx context.Context, loader Executor, ms *mapping.Statement, rows []Row) ([]any, error) {
	if mapper, ok := m[ms.ID]; ok {
		return mapper.MapRows(ctx, loader, ms, rows)
	}
	return IdentityMapper{}.MapRows(ctx, loader, ms, rows)
}

// ResultContext carries one streamed result to a ResultHandler.
type ResultContext struct {
	Value   any
	Count   int
	stopped bool
}

// Stop ends the stream after the current result.
func (c *ResultContext) Stop() { c.stopped = true }

// IsStopped reports whether Stop was called.
func (c *ResultContext) IsStopped() bool { return c.stopped }

// ResultHandler consumes streamed results.
type ResultHandler interface {
	HandleResult(rc *ResultContext) error
}

// ResultHandlerFunc adapts a function to ResultHandler.
type ResultHandlerFunc func(rc *ResultContext) error

func (f ResultHandlerFunc) HandleResult(rc *ResultContext) error { return f(rc) }

// wrappable is implemented by executors that accept the outermost executor of a chain
// as the loader handed to result mappers.
type wrappable interface {
	setWrapper(Executor)
}
