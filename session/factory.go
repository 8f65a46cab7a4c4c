package session

import (
	"context"
	"log/slog"
	"reflect"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/goliatone/go-sqlsession/executor"
	"github.com/goliatone/go-sqlsession/mapping"
)

// TransactionFactory opens the transaction bound to a new session.
type TransactionFactory interface {
	NewTransaction(ctx context.Context, autoCommit bool) (executor.Transaction, error)
}

// Factory opens sessions that share one Configuration, one statement handler and the
// registered mappers. It is safe for concurrent use.
type Factory struct {
	config    *mapping.Configuration
	txFactory TransactionFactory
	handler   executor.StatementHandler
	mapper    executor.ResultMapper
	tracer    trace.TracerProvider
	logger    *slog.Logger
	mappers   *xsync.MapOf[reflect.Type, func(*Session) any]
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithLogger sets the logger used by sessions and executors.
func WithLogger(logger *slog.Logger) FactoryOption {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithResultMapper sets the mapper handed to every executor.
func WithResultMapper(m executor.ResultMapper) FactoryOption {
	return func(f *Factory) { f.mapper = m }
}

// WithTracerProvider wraps every executor chain with a TracingExecutor.
func WithTracerProvider(tp trace.TracerProvider) FactoryOption {
	return func(f *Factory) { f.tracer = tp }
}

// NewFactory builds a Factory.
func NewFactory(cfg *mapping.Configuration, txFactory TransactionFactory, handler executor.StatementHandler, opts ...FactoryOption) *Factory {
	if cfg == nil {
		cfg = mapping.NewConfiguration()
	}
	f := &Factory{
		config:    cfg,
		txFactory: txFactory,
		handler:   handler,
		mapper:    executor.IdentityMapper{},
		logger:    slog.Default(),
		mappers:   xsync.NewMapOf[reflect.Type, func(*Session) any](),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Configuration returns the shared configuration.
func (f *Factory) Configuration() *mapping.Configuration {
	return f.config
}

type openOptions struct {
	autoCommit   bool
	executorType mapping.ExecutorType
}

// OpenOption configures a single session.
type OpenOption func(*openOptions)

// WithAutoCommit opens the session in auto-commit mode.
func WithAutoCommit(autoCommit bool) OpenOption {
	return func(o *openOptions) { o.autoCommit = autoCommit }
}

// WithExecutorType overrides the configured executor strategy.
func WithExecutorType(t mapping.ExecutorType) OpenOption {
	return func(o *openOptions) { o.executorType = t }
}

// OpenSession opens a transaction and builds the executor chain for a new session.
func (f *Factory) OpenSession(ctx context.Context, opts ...OpenOption) (*Session, error) {
	o := openOptions{executorType: f.config.DefaultExecutorType}
	for _, opt := range opts {
		opt(&o)
	}

	tx, err := f.txFactory.NewTransaction(ctx, o.autoCommit)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "open session").
			WithTextCode(TextCodeOpenSessionError)
	}

	id := uuid.NewString()
	logger := f.logger.With(slog.String("session_id", id))

	var exec executor.Executor = executor.New(f.config, o.executorType, tx, f.handler,
		executor.WithResultMapper(f.mapper),
		executor.WithLogger(logger),
	)
	if f.config.CacheEnabled {
		exec = executor.NewCachingExecutor(exec, logger)
	}
	if f.tracer != nil {
		exec = executor.NewTracingExecutor(exec, f.tracer)
	}

	logger.Debug("session opened",
		slog.Bool("auto_commit", o.autoCommit),
		slog.String("executor", string(o.executorType)),
	)

	return &Session{
		id:         id,
		factory:    f,
		config:     f.config,
		exec:       exec,
		autoCommit: o.autoCommit,
		logger:     logger,
	}, nil
}

// RegisterMapper registers a constructor for mapper type T. Sessions build a fresh
// mapper bound to themselves on every GetMapper call.
func RegisterMapper[T any](f *Factory, ctor func(*Session) T) {
	f.mappers.Store(reflect.TypeFor[T](), func(s *Session) any { return ctor(s) })
}

// HasMapper reports whether T is registered.
func HasMapper[T any](f *Factory) bool {
	_, ok := f.mappers.Load(reflect.TypeFor[T]())
	return ok
}

// GetMapper returns a mapper of type T bound to s.
func GetMapper[T any](s *Session) (T, error) {
	var zero T
	rt := reflect.TypeFor[T]()
	ctor, ok := s.factory.mappers.Load(rt)
	if !ok {
		return zero, goerrors.New("mapper "+rt.String()+" is not registered", goerrors.CategoryNotFound).
			WithTextCode(TextCodeMapperNotFound).
			WithMetadata(map[string]any{"mapper": rt.String()})
	}
	return ctor(s).(T), nil
}
