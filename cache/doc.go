// Package cache provides the cache keys and second-level cache building blocks used by
// the executor chain.
//
// # Overview
//
//   - Key: an ordered, append-only fingerprint of a statement invocation
//   - Cache: the shared, cross-session store contract (string keys, goroutine-safe)
//   - TransactionalCache / TransactionalCacheManager: per-session staging over shared caches
//   - PerpetualCache, SerializedCache and SharedStore: ready-made Cache implementations
//
// # Keys
//
// A Key is built by appending components in order:
//
//	key := cache.NewKey().
//		Update("users.selectByID").
//		Update(0).
//		Update(math.MaxInt).
//		Update("SELECT * FROM users WHERE id = ?").
//		Update(int64(42))
//
// Appending the same components in the same order always yields equal keys with equal
// hashes. Swapping two components yields a different key. Components are canonicalised
// by a KeySerializer; the default one tags basic values with their kind, sorts map
// entries and walks slices, arrays and exported struct fields.
//
// Function values are rendered with %p and are therefore stable only within a single
// process. Do not pass closures as statement parameters if keys must be stable across
// restarts.
//
// # Transactional staging
//
// A session never writes into a shared Cache directly. Reads go through a
// TransactionalCache which returns entries staged by the same session first, then the
// shared value. Put only stages. Clear makes every later read of that session miss and
// defers the shared eviction to Commit. Rollback drops everything staged:
//
//	tcm := cache.NewTransactionalCacheManager(logger)
//	tcm.Put(users, key, rows)   // invisible to other sessions
//	tcm.Commit()                // now visible
//
// # Shared stores
//
// SharedStore hosts many namespaced caches in one sturdyc client; clearing one namespace
// leaves the others intact. Enable Config.Serialized to store msgpack copies so that
// callers mutating a returned result never corrupt the shared entry.
package cache
