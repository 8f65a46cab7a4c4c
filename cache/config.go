package cache

import (
	"time"

	"github.com/goliatone/go-sqlsession/internal/cacheinfra"
	"github.com/puzpuzpuz/xsync/v3"
)

// Config exposes shared cache store options for consumers of the cache package.
type Config struct {
	Capacity           int
	NumShards          int
	TTL                time.Duration
	EvictionPercentage int
	EvictionInterval   time.Duration
	// Serialized stores msgpack copies instead of live values (see SerializedCache).
	Serialized bool
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// SharedStore hands out namespaced second-level caches backed by one sturdyc client.
type SharedStore struct {
	store      *cacheinfra.Store
	serialized bool
	caches     *xsync.MapOf[string, Cache]
}

// NewSharedStore constructs the default shared cache backend using the provided configuration.
func NewSharedStore(cfg Config) (*SharedStore, error) {
	store, err := cacheinfra.NewStore(cfg.toInternal())
	if err != nil {
		return nil, err
	}
	return &SharedStore{
		store:      store,
		serialized: cfg.Serialized,
		caches:     xsync.NewMapOf[string, Cache](),
	}, nil
}

// Cache returns the second-level cache for id. The same id always yields the same
// instance, which TransactionalCacheManager relies on.
func (s *SharedStore) Cache(id string) Cache {
	c, _ := s.caches.LoadOrCompute(id, func() Cache {
		ns := s.store.Namespace(id)
		if s.serialized {
			return NewSerializedCache(ns)
		}
		return ns
	})
	return c
}

// Len returns the number of entries held across every cache of the store.
func (s *SharedStore) Len() int {
	return s.store.Len()
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}
