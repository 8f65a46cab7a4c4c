package cache

import (
	"log/slog"
)

// TransactionalCache is a per-session staging buffer in front of one shared Cache.
//
// Writes are held in pending until Commit. Clear discards pending writes and marks the
// wrapper so every later Get misses until Commit or Rollback; the shared cache itself is
// only evicted on Commit. Keys that missed are tracked for Missed but never written back:
// only Commit changes the shared cache, and only through Clear and the staged Puts.
//
// A TransactionalCache belongs to a single session and is not safe for concurrent use.
type TransactionalCache struct {
	delegate      Cache
	clearOnCommit bool
	pending       map[string]any
	order         []string
	missed        map[string]struct{}
	logger        *slog.Logger
}

// NewTransactionalCache wraps delegate. A nil logger falls back to slog.Default.
func NewTransactionalCache(delegate Cache, logger *slog.Logger) *TransactionalCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransactionalCache{
		delegate: delegate,
		pending:  make(map[string]any),
		missed:   make(map[string]struct{}),
		logger:   logger,
	}
}

// ID returns the wrapped cache id.
func (t *TransactionalCache) ID() string {
	return t.delegate.ID()
}

// Get returns the value staged by this session, or the shared value.
// While a clear is pending every lookup misses.
func (t *TransactionalCache) Get(key *Key) (any, bool) {
	if t.clearOnCommit {
		return nil, false
	}

	fp := key.String()
	if value, ok := t.pending[fp]; ok {
		return value, true
	}

	value, ok := t.delegate.Get(fp)
	if !ok {
		t.missed[fp] = struct{}{}
		return nil, false
	}
	return value, true
}

// Put stages value for commit. The shared cache is not touched.
func (t *TransactionalCache) Put(key *Key, value any) {
	fp := key.String()
	if _, exists := t.pending[fp]; !exists {
		t.order = append(t.order, fp)
	}
	t.pending[fp] = value
}

// Clear discards staged writes and makes every later Get miss until the next
// Commit or Rollback. The shared cache is cleared on Commit.
func (t *TransactionalCache) Clear() {
	t.clearOnCommit = true
	t.pending = make(map[string]any)
	t.order = nil
}

// Pending reports the number of staged entries.
func (t *TransactionalCache) Pending() int {
	return len(t.pending)
}

// Missed reports the number of lookups that missed since the last Commit or Rollback.
func (t *TransactionalCache) Missed() int {
	return len(t.missed)
}

// ClearPending reports whether a clear will be applied on commit.
func (t *TransactionalCache) ClearPending() bool {
	return t.clearOnCommit
}

// Commit publishes the staged state to the shared cache and resets the wrapper.
// Individual entry failures are logged and counted, never returned.
func (t *TransactionalCache) Commit() {
	failed := 0

	if t.clearOnCommit {
		if err := t.delegate.Clear(); err != nil {
			t.logger.Warn("transactional cache clear failed",
				slog.String("cache_id", t.delegate.ID()),
				slog.Any("error", err),
			)
		}
	}

	for _, fp := range t.order {
		if err := t.delegate.Put(fp, t.pending[fp]); err != nil {
			failed++
			t.logger.Debug("transactional cache put failed",
				slog.String("cache_id", t.delegate.ID()),
				slog.Any("error", err),
			)
		}
	}

	if failed > 0 {
		t.logger.Warn("transactional cache commit: items failed",
			slog.String("cache_id", t.delegate.ID()),
			slog.Int("failed", failed),
			slog.Int("staged", len(t.order)),
		)
	}

	t.reset()
}

// Rollback drops everything staged by this session. The shared cache is not touched.
func (t *TransactionalCache) Rollback() {
	t.reset()
}

func (t *TransactionalCache) reset() {
	t.clearOnCommit = false
	t.pending = make(map[string]any)
	t.order = nil
	t.missed = make(map[string]struct{})
}

// TransactionalCacheManager tracks the TransactionalCache of every shared Cache a
// session has touched. Caches are keyed by identity, so Cache implementations used with
// the manager must be comparable (pointer receivers are).
type TransactionalCacheManager struct {
	caches map[Cache]*TransactionalCache
	order  []Cache
	logger *slog.Logger
}

// NewTransactionalCacheManager creates an empty manager.
func NewTransactionalCacheManager(logger *slog.Logger) *TransactionalCacheManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransactionalCacheManager{
		caches: make(map[Cache]*TransactionalCache),
		logger: logger,
	}
}

// Get looks key up through the transactional view of c.
func (m *TransactionalCacheManager) Get(c Cache, key *Key) (any, bool) {
	return m.transactional(c).Get(key)
}

// Put stages value for c.
func (m *TransactionalCacheManager) Put(c Cache, key *Key, value any) {
	m.transactional(c).Put(key, value)
}

// Clear schedules c to be cleared on commit.
func (m *TransactionalCacheManager) Clear(c Cache) {
	m.transactional(c).Clear()
}

// Commit commits every registered wrapper.
func (m *TransactionalCacheManager) Commit() {
	for _, c := range m.order {
		m.caches[c].Commit()
	}
}

// Rollback rolls back every registered wrapper.
func (m *TransactionalCacheManager) Rollback() {
	for _, c := range m.order {
		m.caches[c].Rollback()
	}
}

// Len returns the number of registered wrappers.
func (m *TransactionalCacheManager) Len() int {
	return len(m.caches)
}

func (m *TransactionalCacheManager) transactional(c Cache) *TransactionalCache {
	if tc, ok := m.caches[c]; ok {
		return tc
	}
	tc := NewTransactionalCache(c, m.logger)
	m.caches[c] = tc
	m.order = append(m.order, c)
	return tc
}
