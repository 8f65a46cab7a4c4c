package cache

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// PerpetualCache is an unbounded in-memory Cache. Entries live until removed or cleared.
type PerpetualCache struct {
	id      string
	entries *xsync.MapOf[string, any]
}

var _ Cache = (*PerpetualCache)(nil)

// NewPerpetualCache creates an empty cache named id.
func NewPerpetualCache(id string) *PerpetualCache {
	return &PerpetualCache{
		id:      id,
		entries: xsync.NewMapOf[string, any](),
	}
}

func (c *PerpetualCache) ID() string { return c.id }

func (c *PerpetualCache) Get(key string) (any, bool) {
	return c.entries.Load(key)
}

func (c *PerpetualCache) Put(key string, value any) error {
	c.entries.Store(key, value)
	return nil
}

func (c *PerpetualCache) Remove(key string) error {
	c.entries.Delete(key)
	return nil
}

func (c *PerpetualCache) Clear() error {
	c.entries.Clear()
	return nil
}

func (c *PerpetualCache) Size() int {
	return c.entries.Size()
}
