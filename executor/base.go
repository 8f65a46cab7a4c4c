package executor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-sqlsession/cache"
	"github.com/goliatone/go-sqlsession/mapping"
)

// Option configures a BaseExecutor.
type Option func(*BaseExecutor)

// WithResultMapper replaces the IdentityMapper.
func WithResultMapper(m ResultMapper) Option {
	return func(e *BaseExecutor) {
		if m != nil {
			e.mapper = m
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(e *BaseExecutor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// BaseExecutor owns the local cache, the query stack and the transaction of a session.
// The strategy decides how native statements are prepared and released.
type BaseExecutor struct {
	config     *mapping.Configuration
	tx         Transaction
	strategy   statementStrategy
	mapper     ResultMapper
	local      *LocalCache
	queryStack int
	closed     bool
	wrapper    Executor
	logger     *slog.Logger
}

// New builds the base executor for the given strategy. Unknown types fall back to simple.
func New(cfg *mapping.Configuration, typ mapping.ExecutorType, tx Transaction, handler StatementHandler, opts ...Option) *BaseExecutor {
	switch typ {
	case mapping.ExecutorReuse:
		return NewReuseExecutor(cfg, tx, handler, opts...)
	default:
		return NewSimpleExecutor(cfg, tx, handler, opts...)
	}
}

// NewSimpleExecutor prepares and closes a native statement for every call.
func NewSimpleExecutor(cfg *mapping.Configuration, tx Transaction, handler StatementHandler, opts ...Option) *BaseExecutor {
	return newBaseExecutor(cfg, tx, &simpleStrategy{handler: handler}, opts...)
}

// NewReuseExecutor keeps prepared statements keyed by SQL until the next flush,
// commit, rollback or close.
func NewReuseExecutor(cfg *mapping.Configuration, tx Transaction, handler StatementHandler, opts ...Option) *BaseExecutor {
	return newBaseExecutor(cfg, tx, &reuseStrategy{
		handler:    handler,
		statements: make(map[string]PreparedStatement),
	}, opts...)
}

func newBaseExecutor(cfg *mapping.Configuration, tx Transaction, strategy statementStrategy, opts ...Option) *BaseExecutor {
	if cfg == nil {
		cfg = mapping.NewConfiguration()
	}
	e := &BaseExecutor{
		config:   cfg,
		tx:       tx,
		strategy: strategy,
		mapper:   IdentityMapper{},
		local:    NewLocalCache(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.wrapper = e
	return e
}

func (e *BaseExecutor) setWrapper(w Executor) {
	e.wrapper = w
}

// LocalCache exposes the first-level cache.
func (e *BaseExecutor) LocalCache() *LocalCache {
	return e.local
}

// Transaction returns the session transaction.
func (e *BaseExecutor) Transaction() Transaction {
	return e.tx
}

// IsClosed reports whether Close ran.
func (e *BaseExecutor) IsClosed() bool {
	return e.closed
}

// Query serves the local cache or runs the statement.
func (e *BaseExecutor) Query(ctx context.Context, ms *mapping.Statement, params any, bounds mapping.Bounds, handler ResultHandler) ([]any, error) {
	if e.closed {
		return nil, ErrExecutorClosed("query")
	}
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	bounds = bounds.Normalize()

	bound, err := ms.Bind(params)
	if err != nil {
		return nil, err
	}

	if e.queryStack == 0 && ms.FlushCacheRequired {
		e.ClearLocalCache()
	}

	if handler != nil {
		return nil, e.stream(ctx, ms, bound, bounds, handler)
	}

	key := e.buildKey(ms, bound, bounds)

	if e.local.IsLoading(key) {
		return nil, ErrRecursiveLoad(ms.ID)
	}

	list, err := e.queryStacked(ctx, ms, bound, bounds, key)
	if err != nil {
		return nil, err
	}

	if e.queryStack == 0 && e.config.LocalCacheScope == mapping.ScopeStatement {
		e.ClearLocalCache()
	}
	return list, nil
}

func (e *BaseExecutor) queryStacked(ctx context.Context, ms *mapping.Statement, bound mapping.BoundStatement, bounds mapping.Bounds, key *cache.Key) ([]any, error) {
	e.queryStack++
	defer func() { e.queryStack-- }()

	if list, hit := e.local.Get(key); hit {
		e.logger.Debug("local cache hit", slog.String("statement_id", ms.ID))
		return list, nil
	}
	return e.queryFromDatabase(ctx, ms, bound, bounds, key)
}

// queryFromDatabase marks key loading, runs the statement and realizes the entry. The
// sentinel and its queued loads are removed on any exit that did not realize it.
// Every drained deferred load is applied; their failures are joined.
func (e *BaseExecutor) queryFromDatabase(ctx context.Context, ms *mapping.Statement, bound mapping.BoundStatement, bounds mapping.Bounds, key *cache.Key) ([]any, error) {
	e.local.markLoading(key)
	realized := false
	defer func() {
		if !realized {
			e.local.remove(key)
		}
	}()

	list, err := e.load(ctx, ms, bound, bounds)
	if err != nil {
		return nil, err
	}

	loads := e.local.realize(key, list)
	realized = true

	var errs []error
	for _, load := range loads {
		if err := load.apply(list); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return list, nil
}

// load runs the statement and maps the rows. Mapping runs after the native statement
// is released and before the local entry is realized, so nested loads see it loading.
func (e *BaseExecutor) load(ctx context.Context, ms *mapping.Statement, bound mapping.BoundStatement, bounds mapping.Bounds) ([]any, error) {
	rows, err := e.queryRows(ctx, ms, bound)
	if err != nil {
		return nil, err
	}
	return e.mapper.MapRows(ctx, e.wrapper, ms, applyBounds(rows, bounds))
}

func (e *BaseExecutor) queryRows(ctx context.Context, ms *mapping.Statement, bound mapping.BoundStatement) ([]Row, error) {
	stmt, err := e.prepare(ctx, ms, bound)
	if err != nil {
		return nil, err
	}
	defer e.release(stmt)

	return stmt.Query(ctx, bound.Args)
}

func (e *BaseExecutor) stream(ctx context.Context, ms *mapping.Statement, bound mapping.BoundStatement, bounds mapping.Bounds, handler ResultHandler) error {
	list, err := e.load(ctx, ms, bound, bounds)
	if err != nil {
		return err
	}

	rc := &ResultContext{}
	for _, value := range list {
		rc.Value = value
		rc.Count++
		if err := handler.HandleResult(rc); err != nil {
			return err
		}
		if rc.IsStopped() {
			break
		}
	}
	return nil
}

// Update clears the local cache and runs the write.
func (e *BaseExecutor) Update(ctx context.Context, ms *mapping.Statement, params any) (int64, error) {
	if e.closed {
		return 0, ErrExecutorClosed("update")
	}
	e.ClearLocalCache()

	bound, err := ms.Bind(params)
	if err != nil {
		return 0, err
	}

	stmt, err := e.prepare(ctx, ms, bound)
	if err != nil {
		return 0, err
	}
	defer e.release(stmt)

	return stmt.Exec(ctx, bound.Args)
}

func (e *BaseExecutor) prepare(ctx context.Context, ms *mapping.Statement, bound mapping.BoundStatement) (PreparedStatement, error) {
	var conn bun.IDB
	if e.tx != nil {
		c, err := e.tx.Connection(ctx)
		if err != nil {
			return nil, err
		}
		conn = c
	}
	return e.strategy.prepare(ctx, conn, ms, bound)
}

func (e *BaseExecutor) release(stmt PreparedStatement) {
	if err := e.strategy.release(stmt); err != nil {
		e.logger.Debug("close statement failed", slog.Any("error", err))
	}
}

// FlushStatements releases statements kept by the strategy.
func (e *BaseExecutor) FlushStatements(ctx context.Context) error {
	if e.closed {
		return ErrExecutorClosed("flush")
	}
	return e.strategy.flush()
}

// Commit clears the local cache, flushes statements and commits when required.
func (e *BaseExecutor) Commit(ctx context.Context, required bool) error {
	if e.closed {
		return ErrExecutorClosed("commit")
	}
	e.ClearLocalCache()
	if err := e.strategy.flush(); err != nil {
		return err
	}
	if required && e.tx != nil {
		return e.tx.Commit(ctx)
	}
	return nil
}

// Rollback clears the local cache, flushes statements and rolls back when required.
// Rolling back a closed executor is a no-op.
func (e *BaseExecutor) Rollback(ctx context.Context, required bool) error {
	if e.closed {
		return nil
	}
	e.ClearLocalCache()
	flushErr := e.strategy.flush()
	if required && e.tx != nil {
		if err := e.tx.Rollback(ctx); err != nil {
			return err
		}
	}
	return flushErr
}

// Close rolls back when forced and always releases the transaction. Closing twice is a no-op.
func (e *BaseExecutor) Close(ctx context.Context, forceRollback bool) error {
	if e.closed {
		return nil
	}

	rollbackErr := e.Rollback(ctx, forceRollback)

	var closeErr error
	if e.tx != nil {
		closeErr = e.tx.Close(ctx)
	}

	e.closed = true
	e.local.Clear()

	if rollbackErr != nil {
		if closeErr != nil {
			e.logger.Warn("close transaction failed after rollback error", slog.Any("error", closeErr))
		}
		return rollbackErr
	}
	return closeErr
}

// CreateCacheKey binds params and builds the key of the invocation.
func (e *BaseExecutor) CreateCacheKey(ms *mapping.Statement, params any, bounds mapping.Bounds) (*cache.Key, error) {
	if e.closed {
		return nil, ErrExecutorClosed("create cache key")
	}
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	bound, err := ms.Bind(params)
	if err != nil {
		return nil, err
	}
	return e.buildKey(ms, bound, bounds.Normalize()), nil
}

// buildKey appends the statement id, the bounds, the SQL, every input argument in
// declaration order and the environment id.
func (e *BaseExecutor) buildKey(ms *mapping.Statement, bound mapping.BoundStatement, bounds mapping.Bounds) *cache.Key {
	key := cache.NewKey().
		Update(ms.ID).
		Update(bounds.Offset).
		Update(bounds.Limit).
		Update(bound.SQL)

	for i, arg := range bound.Args {
		if i < len(ms.Params) && ms.Params[i].Mode == mapping.ModeOut {
			continue
		}
		key.Update(arg)
	}

	if e.config.EnvironmentID != "" {
		key.Update(e.config.EnvironmentID)
	}
	return key
}

// IsCached reports whether key is loading or realized in the local cache.
func (e *BaseExecutor) IsCached(_ *mapping.Statement, key *cache.Key) bool {
	return e.local.Contains(key)
}

// DeferLoad applies the load right away when key is realized and queues it otherwise.
// Queued loads run when the key is realized; a failing load does not stop the others
// and the query that realized the key returns every failure joined.
func (e *BaseExecutor) DeferLoad(_ *mapping.Statement, target any, property string, key *cache.Key, many bool) error {
	if e.closed {
		return ErrExecutorClosed("defer load")
	}
	load := &DeferredLoad{Target: target, Property: property, Key: key, Many: many}
	if list, ok := e.local.Get(key); ok {
		return load.apply(list)
	}
	e.local.enqueue(load)
	return nil
}

// ClearLocalCache drops every first-level entry.
func (e *BaseExecutor) ClearLocalCache() {
	if !e.closed {
		e.local.Clear()
	}
}

// applyBounds expects validated, normalized bounds.
func applyBounds(rows []Row, bounds mapping.Bounds) []Row {
	if bounds.IsDefault() || rows == nil {
		return rows
	}
	if bounds.Offset >= len(rows) {
		return []Row{}
	}
	rows = rows[bounds.Offset:]
	if bounds.Limit >= 0 && bounds.Limit < len(rows) {
		rows = rows[:bounds.Limit]
	}
	return rows
}

type statementStrategy interface {
	prepare(ctx context.Context, conn bun.IDB, ms *mapping.Statement, bound mapping.BoundStatement) (PreparedStatement, error)
	release(stmt PreparedStatement) error
	flush() error
}

type simpleStrategy struct {
	handler StatementHandler
}

func (s *simpleStrategy) prepare(ctx context.Context, conn bun.IDB, ms *mapping.Statement, bound mapping.BoundStatement) (PreparedStatement, error) {
	return s.handler.Prepare(ctx, conn, ms, bound)
}

func (s *simpleStrategy) release(stmt PreparedStatement) error {
	return stmt.Close()
}

func (s *simpleStrategy) flush() error {
	return nil
}

type reuseStrategy struct {
	handler    StatementHandler
	statements map[string]PreparedStatement
}

func (s *reuseStrategy) prepare(ctx context.Context, conn bun.IDB, ms *mapping.Statement, bound mapping.BoundStatement) (PreparedStatement, error) {
	if stmt, ok := s.statements[bound.SQL]; ok {
		return stmt, nil
	}
	stmt, err := s.handler.Prepare(ctx, conn, ms, bound)
	if err != nil {
		return nil, err
	}
	s.statements[bound.SQL] = stmt
	return stmt, nil
}

func (s *reuseStrategy) release(PreparedStatement) error {
	return nil
}

func (s *reuseStrategy) flush() error {
	var first error
	for sql, stmt := range s.statements {
		if err := stmt.Close(); err != nil && first == nil {
			first = err
		}
		delete(s.statements, sql)
	}
	return first
}
