package di

import (
	"context"
	"log/slog"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/trace"

	"github.com/goliatone/go-sqlsession/cache"
	"github.com/goliatone/go-sqlsession/mapping"
	"github.com/goliatone/go-sqlsession/pkg/config"
	"github.com/goliatone/go-sqlsession/session"
	"github.com/goliatone/go-sqlsession/sqlstore"
)

// Container wires the runtime from Settings: the shared cache store, the statement
// configuration, the bun transport and the session factory.
type Container struct {
	settings config.Settings
	store    *cache.SharedStore
	config   *mapping.Configuration
	db       *bun.DB
	ownsDB   bool
	factory  *session.Factory
}

// Option customises a Container.
type Option func(*options)

type options struct {
	db     *bun.DB
	logger *slog.Logger
	tracer trace.TracerProvider
}

// WithDB uses db instead of opening one from the settings. The container does not
// close it.
func WithDB(db *bun.DB) Option {
	return func(o *options) { o.db = db }
}

// WithLogger sets the logger used by the transport and sessions.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTracerProvider enables query tracing.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp }
}

// NewContainer validates settings and builds every component.
func NewContainer(settings config.Settings, opts ...Option) (*Container, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	store, err := cache.NewSharedStore(settings.CacheConfig())
	if err != nil {
		return nil, err
	}

	db, ownsDB := o.db, false
	if db == nil {
		db, err = sqlstore.Open(settings.Driver, settings.DSN)
		if err != nil {
			return nil, err
		}
		ownsDB = true
	}

	cfg := mapping.NewConfiguration(settings.MappingOptions()...)

	factoryOpts := []session.FactoryOption{session.WithLogger(o.logger)}
	if o.tracer != nil {
		factoryOpts = append(factoryOpts, session.WithTracerProvider(o.tracer))
	}

	return &Container{
		settings: settings,
		store:    store,
		config:   cfg,
		db:       db,
		ownsDB:   ownsDB,
		factory: session.NewFactory(cfg,
			sqlstore.NewTransactionFactory(db, sqlstore.WithLogger(o.logger)),
			sqlstore.NewStatementHandler(),
			factoryOpts...,
		),
	}, nil
}

// NewContainerFromEnv loads Settings from the environment and builds a Container.
func NewContainerFromEnv(opts ...Option) (*Container, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, err
	}
	return NewContainer(settings, opts...)
}

// Settings returns the settings the container was built from.
func (c *Container) Settings() config.Settings {
	return c.settings
}

// SharedStore returns the shared cache store.
func (c *Container) SharedStore() *cache.SharedStore {
	return c.store
}

// Configuration returns the statement configuration.
func (c *Container) Configuration() *mapping.Configuration {
	return c.config
}

// DB returns the database.
func (c *Container) DB() *bun.DB {
	return c.db
}

// SessionFactory returns the session factory.
func (c *Container) SessionFactory() *session.Factory {
	return c.factory
}

// Cache returns the shared cache for id and registers it with the configuration.
func (c *Container) Cache(id string) cache.Cache {
	sc := c.store.Cache(id)
	c.config.AddCache(sc)
	return sc
}

// AddStatements registers statements with the configuration.
func (c *Container) AddStatements(statements ...*mapping.Statement) error {
	for _, st := range statements {
		if err := c.config.AddStatement(st); err != nil {
			return err
		}
	}
	return nil
}

// OpenSession opens a session using the configured auto-commit mode unless opts
// override it.
func (c *Container) OpenSession(ctx context.Context, opts ...session.OpenOption) (*session.Session, error) {
	opts = append([]session.OpenOption{session.WithAutoCommit(c.settings.AutoCommit)}, opts...)
	return c.factory.OpenSession(ctx, opts...)
}

// Close closes the database when the container opened it.
func (c *Container) Close() error {
	if !c.ownsDB {
		return nil
	}
	return c.db.Close()
}
