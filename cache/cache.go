package cache

// Cache is the shared, cross-session (second-level) store.
// Implementations must be safe for concurrent use: many sessions commit into the same
// instance at once. Keys are canonical Key fingerprints (see Key.String).
type Cache interface {
	// ID names the cache, usually after the statement namespace that owns it.
	ID() string
	Get(key string) (any, bool)
	Put(key string, value any) error
	Remove(key string) error
	Clear() error
	Size() int
}
