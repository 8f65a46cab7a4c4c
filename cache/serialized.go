package cache

import (
	"bytes"

	goerrors "github.com/goliatone/go-errors"
	"github.com/vmihailenco/msgpack/v5"
)

// SerializedCache stores msgpack encoded copies of values in a delegate Cache, so every
// reader gets its own copy and no session can mutate what another one sees.
// Decoded values use loose interface types: integers come back as int64, floats as
// float64, maps as map[string]any and slices as []any.
type SerializedCache struct {
	delegate Cache
}

var _ Cache = (*SerializedCache)(nil)

// NewSerializedCache wraps delegate with copy-on-read semantics.
func NewSerializedCache(delegate Cache) *SerializedCache {
	return &SerializedCache{delegate: delegate}
}

func (c *SerializedCache) ID() string { return c.delegate.ID() }

func (c *SerializedCache) Get(key string) (any, bool) {
	raw, ok := c.delegate.Get(key)
	if !ok {
		return nil, false
	}
	data, ok := raw.([]byte)
	if !ok {
		return nil, false
	}

	value, err := msgpack.NewDecoder(bytes.NewReader(data)).DecodeInterfaceLoose()
	if err != nil {
		return nil, false
	}
	return value, true
}

func (c *SerializedCache) Put(key string, value any) error {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "serialize cache value").
			WithTextCode("CACHE_SERIALIZE_FAILED").
			WithMetadata(map[string]any{"cache_id": c.delegate.ID()})
	}
	return c.delegate.Put(key, data)
}

func (c *SerializedCache) Remove(key string) error { return c.delegate.Remove(key) }

func (c *SerializedCache) Clear() error { return c.delegate.Clear() }

func (c *SerializedCache) Size() int { return c.delegate.Size() }
