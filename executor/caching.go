package executor

import (
	"context"
	"log/slog"

	"github.com/goliatone/go-sqlsession/cache"
	"github.com/goliatone/go-sqlsession/mapping"
)

// CachingExecutor decorates an Executor with the second-level cache. Results of
// cacheable statements are staged per session and published on commit.
type CachingExecutor struct {
	delegate Executor
	tcm      *cache.TransactionalCacheManager
	logger   *slog.Logger
}

// NewCachingExecutor wraps delegate and registers itself as the loader of the chain.
func NewCachingExecutor(delegate Executor, logger *slog.Logger) *CachingExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	c := &CachingExecutor{
		delegate: delegate,
		tcm:      cache.NewTransactionalCacheManager(logger),
		logger:   logger,
	}
	c.setWrapper(c)
	return c
}

func (c *CachingExecutor) setWrapper(w Executor) {
	if inner, ok := c.delegate.(wrappable); ok {
		inner.setWrapper(w)
	}
}

// Delegate returns the wrapped executor.
func (c *CachingExecutor) Delegate() Executor {
	return c.delegate
}

// TransactionalCaches returns the staging manager of this session.
func (c *CachingExecutor) TransactionalCaches() *cache.TransactionalCacheManager {
	return c.tcm
}

// Query serves cacheable statements from the staged or shared cache.
func (c *CachingExecutor) Query(ctx context.Context, ms *mapping.Statement, params any, bounds mapping.Bounds, handler ResultHandler) ([]any, error) {
	shared := ms.Cache
	if shared == nil || !ms.UseCache || handler != nil {
		return c.delegate.Query(ctx, ms, params, bounds, handler)
	}

	c.flushCacheIfRequired(ms)

	if ms.UnsafeToCache() {
		return nil, ErrUnsafeCachedCallable(ms.ID)
	}

	key, err := c.delegate.CreateCacheKey(ms, params, bounds)
	if err != nil {
		return nil, err
	}

	if value, ok := c.tcm.Get(shared, key); ok {
		if list, ok := asList(value); ok {
			c.logger.Debug("second level cache hit",
				slog.String("statement_id", ms.ID),
				slog.String("cache_id", shared.ID()),
			)
			return list, nil
		}
	}

	list, err := c.delegate.Query(ctx, ms, params, bounds, nil)
	if err != nil {
		return nil, err
	}
	c.tcm.Put(shared, key, list)
	return list, nil
}

// Update schedules the statement cache flush before the write runs.
func (c *CachingExecutor) Update(ctx context.Context, ms *mapping.Statement, params any) (int64, error) {
	c.flushCacheIfRequired(ms)
	return c.delegate.Update(ctx, ms, params)
}

func (c *CachingExecutor) flushCacheIfRequired(ms *mapping.Statement) {
	if ms.Cache != nil && ms.FlushCacheRequired {
		c.tcm.Clear(ms.Cache)
	}
}

func (c *CachingExecutor) FlushStatements(ctx context.Context) error {
	return c.delegate.FlushStatements(ctx)
}

// Commit publishes staged entries only when the delegate committed.
func (c *CachingExecutor) Commit(ctx context.Context, required bool) error {
	if err := c.delegate.Commit(ctx, required); err != nil {
		return err
	}
	c.tcm.Commit()
	return nil
}

// Rollback always discards staged entries, whatever the delegate returns.
func (c *CachingExecutor) Rollback(ctx context.Context, required bool) error {
	err := c.delegate.Rollback(ctx, required)
	c.tcm.Rollback()
	return err
}

// Close finalizes the staged entries, then closes the delegate.
func (c *CachingExecutor) Close(ctx context.Context, forceRollback bool) error {
	if forceRollback {
		c.tcm.Rollback()
	} else {
		c.tcm.Commit()
	}
	return c.delegate.Close(ctx, forceRollback)
}

func (c *CachingExecutor) IsClosed() bool {
	return c.delegate.IsClosed()
}

func (c *CachingExecutor) CreateCacheKey(ms *mapping.Statement, params any, bounds mapping.Bounds) (*cache.Key, error) {
	return c.delegate.CreateCacheKey(ms, params, bounds)
}

func (c *CachingExecutor) IsCached(ms *mapping.Statement, key *cache.Key) bool {
	return c.delegate.IsCached(ms, key)
}

func (c *CachingExecutor) DeferLoad(ms *mapping.Statement, target any, property string, key *cache.Key, many bool) error {
	return c.delegate.DeferLoad(ms, target, property, key, many)
}

func (c *CachingExecutor) ClearLocalCache() {
	c.delegate.ClearLocalCache()
}

func (c *CachingExecutor) Transaction() Transaction {
	return c.delegate.Transaction()
}

// asList accepts the list shapes a shared cache can hand back. Serialized caches
// decode lists as []interface{}.
func asList(value any) ([]any, bool) {
	switch v := value.(type) {
	case nil:
		return nil, true
	case []any:
		return v, true
	}
	return nil, false
}
