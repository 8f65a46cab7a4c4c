package executor

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/goliatone/go-sqlsession/cache"
	"github.com/goliatone/go-sqlsession/mapping"
)

const tracerName = "github.com/goliatone/go-sqlsession/executor"

// TracingExecutor records a span for every query, update, commit and rollback.
type TracingExecutor struct {
	delegate Executor
	tracer   trace.Tracer
}

// NewTracingExecutor wraps delegate. A nil provider uses the global one.
func NewTracingExecutor(delegate Executor, tp trace.TracerProvider) *TracingExecutor {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	t := &TracingExecutor{
		delegate: delegate,
		tracer:   tp.Tracer(tracerName),
	}
	if inner, ok := delegate.(wrappable); ok {
		inner.setWrapper(t)
	}
	return t
}

func (t *TracingExecutor) setWrapper(w Executor) {
	if inner, ok := t.delegate.(wrappable); ok {
		inner.setWrapper(w)
	}
}

func (t *TracingExecutor) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func statementAttrs(ms *mapping.Statement) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("db.statement.id", ms.ID),
		attribute.String("db.operation", ms.Command.String()),
	}
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (t *TracingExecutor) Query(ctx context.Context, ms *mapping.Statement, params any, bounds mapping.Bounds, handler ResultHandler) ([]any, error) {
	ctx, span := t.start(ctx, "sqlsession.query", statementAttrs(ms)...)
	list, err := t.delegate.Query(ctx, ms, params, bounds, handler)
	span.SetAttributes(
		attribute.Int("db.result.count", len(list)),
		attribute.Bool("db.streaming", handler != nil),
	)
	finish(span, err)
	return list, err
}

func (t *TracingExecutor) Update(ctx context.Context, ms *mapping.Statement, params any) (int64, error) {
	ctx, span := t.start(ctx, "sqlsession.update", statementAttrs(ms)...)
	n, err := t.delegate.Update(ctx, ms, params)
	span.SetAttributes(attribute.Int64("db.rows_affected", n))
	finish(span, err)
	return n, err
}

func (t *TracingExecutor) Commit(ctx context.Context, required bool) error {
	ctx, span := t.start(ctx, "sqlsession.commit", attribute.Bool("db.required", required))
	err := t.delegate.Commit(ctx, required)
	finish(span, err)
	return err
}

func (t *TracingExecutor) Rollback(ctx context.Context, required bool) error {
	ctx, span := t.start(ctx, "sqlsession.rollback", attribute.Bool("db.required", required))
	err := t.delegate.Rollback(ctx, required)
	finish(span, err)
	return err
}

func (t *TracingExecutor) FlushStatements(ctx context.Context) error {
	return t.delegate.FlushStatements(ctx)
}

func (t *TracingExecutor) Close(ctx context.Context, forceRollback bool) error {
	return t.delegate.Close(ctx, forceRollback)
}

func (t *TracingExecutor) IsClosed() bool {
	return t.delegate.IsClosed()
}

func (t *TracingExecutor) CreateCacheKey(ms *mapping.Statement, params any, bounds mapping.Bounds) (*cache.Key, error) {
	return t.delegate.CreateCacheKey(ms, params, bounds)
}

func (t *TracingExecutor) IsCached(ms *mapping.Statement, key *cache.Key) bool {
	return t.delegate.IsCached(ms, key)
}

func (t *TracingExecutor) DeferLoad(ms *mapping.Statement, target any, property string, key *cache.Key, many bool) error {
	return t.delegate.DeferLoad(ms, target, property, key, many)
}

func (t *TracingExecutor) ClearLocalCache() {
	t.delegate.ClearLocalCache()
}

func (t *TracingExecutor) Transaction() Transaction {
	return t.delegate.Transaction()
}
