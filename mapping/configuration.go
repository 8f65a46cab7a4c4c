package mapping

import (
	"sort"

	goerrors "github.com/goliatone/go-errors"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-sqlsession/cache"
)

// ExecutorType selects the base executor strategy.
type ExecutorType string

const (
	ExecutorSimple ExecutorType = "simple"
	ExecutorReuse  ExecutorType = "reuse"
)

// LocalCacheScope controls how long first-level cache entries live.
type LocalCacheScope string

const (
	// ScopeSession keeps entries until a write, commit, rollback or explicit clear.
	ScopeSession LocalCacheScope = "session"
	// ScopeStatement clears the local cache after every top-level query.
	ScopeStatement LocalCacheScope = "statement"
)

// Configuration is the shared, read-mostly registry of statements and caches.
// It is safe for concurrent use once built.
type Configuration struct {
	EnvironmentID       string
	CacheEnabled        bool
	DefaultExecutorType ExecutorType
	LocalCacheScope     LocalCacheScope

	statements *xsync.MapOf[string, *Statement]
	caches     *xsync.MapOf[string, cache.Cache]
}

// Option configures a Configuration.
type Option func(*Configuration)

// WithEnvironmentID sets the id mixed into every cache key.
func WithEnvironmentID(id string) Option {
	return func(c *Configuration) { c.EnvironmentID = id }
}

// WithCacheEnabled toggles the second-level cache layer.
func WithCacheEnabled(enabled bool) Option {
	return func(c *Configuration) { c.CacheEnabled = enabled }
}

// WithDefaultExecutorType sets the strategy used when a session does not choose one.
func WithDefaultExecutorType(t ExecutorType) Option {
	return func(c *Configuration) { c.DefaultExecutorType = t }
}

// WithLocalCacheScope sets the first-level cache scope.
func WithLocalCacheScope(scope LocalCacheScope) Option {
	return func(c *Configuration) { c.LocalCacheScope = scope }
}

// NewConfiguration returns an empty registry with cache enabled, the simple executor
// and session scoped local caches.
func NewConfiguration(opts ...Option) *Configuration {
	cfg := &Configuration{
		CacheEnabled:        true,
		DefaultExecutorType: ExecutorSimple,
		LocalCacheScope:     ScopeSession,
		statements:          xsync.NewMapOf[string, *Statement](),
		caches:              xsync.NewMapOf[string, cache.Cache](),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// AddStatement validates and registers st. Ids must be unique.
func (c *Configuration) AddStatement(st *Statement) error {
	if st == nil {
		return goerrors.New("statement is nil", goerrors.CategoryValidation).
			WithTextCode(TextCodeInvalidStatement)
	}
	if err := st.Validate(); err != nil {
		return err
	}

	if _, loaded := c.statements.LoadOrStore(st.ID, st); loaded {
		return goerrors.New("mapped statement "+st.ID+" already registered", goerrors.CategoryConflict).
			WithTextCode(TextCodeDuplicateStatement).
			WithMetadata(map[string]any{"statement_id": st.ID})
	}

	if st.Cache != nil {
		c.caches.LoadOrStore(st.Cache.ID(), st.Cache)
	}
	return nil
}

// Statement returns the statement registered under id.
func (c *Configuration) Statement(id string) (*Statement, error) {
	st, ok := c.statements.Load(id)
	if !ok {
		return nil, ErrStatementNotFound(id)
	}
	return st, nil
}

// HasStatement reports whether id is registered.
func (c *Configuration) HasStatement(id string) bool {
	_, ok := c.statements.Load(id)
	return ok
}

// StatementIDs returns the registered ids, sorted.
func (c *Configuration) StatementIDs() []string {
	ids := make([]string, 0, c.statements.Size())
	c.statements.Range(func(id string, _ *Statement) bool {
		ids = append(ids, id)
		return true
	})
	sort.Strings(ids)
	return ids
}

// AddCache registers a shared cache under its id.
func (c *Configuration) AddCache(sc cache.Cache) {
	c.caches.Store(sc.ID(), sc)
}

// Cache returns the shared cache registered under id.
func (c *Configuration) Cache(id string) (cache.Cache, bool) {
	return c.caches.Load(id)
}

// Caches returns every registered shared cache.
func (c *Configuration) Caches() []cache.Cache {
	out := make([]cache.Cache, 0, c.caches.Size())
	c.caches.Range(func(_ string, sc cache.Cache) bool {
		out = append(out, sc)
		return true
	})
	return out
}
