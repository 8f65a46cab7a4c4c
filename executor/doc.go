// Package executor runs mapped statements for a session.
//
// A chain is built from a BaseExecutor (simple or reuse strategy) optionally wrapped by
// a CachingExecutor for the second-level cache and a TracingExecutor for spans:
//
//	base := executor.New(cfg, mapping.ExecutorSimple, tx, handler)
//	exec := executor.NewTracingExecutor(executor.NewCachingExecutor(base, logger), nil)
//
// The BaseExecutor keeps the first-level LocalCache. Result mappers receive the
// outermost executor as their loader, so nested queries go through every decorator.
// A nested query for a key that is still loading must be deferred with DeferLoad;
// queuing it against the key breaks reference cycles between result graphs.
package executor
