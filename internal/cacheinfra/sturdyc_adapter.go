package cacheinfra

import (
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/viccon/sturdyc"
)

const namespaceSeparator = "::"

// Config holds the configuration for the sturdyc backed shared cache store.
type Config struct {
	// Capacity defines the maximum number of entries that the store can hold
	// across every namespace. Must be greater than 0.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	// Higher values improve concurrency but increase memory overhead.
	// Must be greater than 0. Default: 256
	NumShards int

	// TTL is the time-to-live for cached entries. Must be greater than 0.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the store reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval sets how often the store checks for expired entries.
	// Zero value uses the sturdyc default.
	EvictionInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          256,
		TTL:                5 * time.Minute,
		EvictionPercentage: 10,
		EvictionInterval:   0,
	}
}

// ToSturdycOptions converts the optional parts of Config to sturdyc options.
// Capacity, NumShards, TTL and EvictionPercentage go straight to sturdyc.New.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return options
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}

	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}

	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}

	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}

	if c.EvictionInterval < 0 {
		return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// Store owns one sturdyc client shared by many namespaces. Each second-level cache is
// a Namespace over the store; entries are prefixed with the namespace so clearing one
// cache never touches another.
type Store struct {
	client *sturdyc.Client[any]
}

// NewStore validates cfg and creates the sturdyc client.
func NewStore(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[any](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &Store{client: client}, nil
}

// Namespace returns the cache view for id. Calling it twice with the same id returns
// views over the same entries.
func (s *Store) Namespace(id string) *Namespace {
	return &Namespace{
		store:  s,
		id:     id,
		prefix: namespacePrefix(id),
	}
}

// namespacePrefix keeps the readable snake_case id and tags it with a fixed-width hash
// of the raw id, so ids that fold to the same snake form still get distinct prefixes.
func namespacePrefix(id string) string {
	sum := strconv.FormatUint(xxhash.Sum64String(id), 16)
	return toSnake(id) + "_" + strings.Repeat("0", 16-len(sum)) + sum + namespaceSeparator
}

// Len returns the number of entries across every namespace.
func (s *Store) Len() int {
	return s.client.Size()
}

// Namespace is a second-level cache living inside a Store.
// It satisfies cache.Cache.
type Namespace struct {
	store  *Store
	id     string
	prefix string
}

func (n *Namespace) ID() string { return n.id }

func (n *Namespace) Get(key string) (any, bool) {
	return n.store.client.Get(n.prefix + key)
}

func (n *Namespace) Put(key string, value any) error {
	n.store.client.Set(n.prefix+key, value)
	return nil
}

func (n *Namespace) Remove(key string) error {
	n.store.client.Delete(n.prefix + key)
	return nil
}

// Clear deletes every key carrying this namespace prefix.
func (n *Namespace) Clear() error {
	for _, key := range n.store.client.ScanKeys() {
		if strings.HasPrefix(key, n.prefix) {
			n.store.client.Delete(key)
		}
	}
	return nil
}

// Size counts the keys carrying this namespace prefix.
func (n *Namespace) Size() int {
	count := 0
	for _, key := range n.store.client.ScanKeys() {
		if strings.HasPrefix(key, n.prefix) {
			count++
		}
	}
	return count
}
