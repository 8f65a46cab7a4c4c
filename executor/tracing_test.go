package executor_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/goliatone/go-sqlsession/cache"
	"github.com/goliatone/go-sqlsession/executor"
	"github.com/goliatone/go-sqlsession/mapping"
	"github.com/goliatone/go-sqlsession/pkg/testsupport"
)

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracingExecutor_Spans(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	tx := &testsupport.FakeTransaction{}
	h := testsupport.NewFakeStatementHandler().
		WithRows(selectUsers, userRows()...).
		WithAffected(updateUsers, 1)
	shared := cache.NewPerpetualCache("users")
	sel, upd := cachedStatements(shared)

	exec := executor.NewTracingExecutor(
		executor.NewCachingExecutor(executor.NewSimpleExecutor(nil, tx, h), nil), tp)

	exec.Query(ctx, sel, "active", mapping.DefaultBounds, nil)
	exec.Update(ctx, upd, []any{"inactive", 1})
	exec.Commit(ctx, true)
	exec.Rollback(ctx, false)

	spans := recorder.Ended()
	names := make([]string, len(spans))
	for i, s := range spans {
		names[i] = s.Name()
	}
	want := []string{"sqlsession.query", "sqlsession.update", "sqlsession.commit", "sqlsession.rollback"}
	if len(names) != len(want) {
		t.Fatalf("expected spans %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("span %d: expected %s, got %s", i, want[i], names[i])
		}
	}

	query := spans[0]
	if v, ok := attrValue(query.Attributes(), "db.statement.id"); !ok || v.AsString() != "users.byStatus" {
		t.Errorf("expected statement id attribute, got %v", query.Attributes())
	}
	if v, ok := attrValue(query.Attributes(), "db.result.count"); !ok || v.AsInt64() != 3 {
		t.Errorf("expected result count 3, got %v", v)
	}
	if v, ok := attrValue(spans[1].Attributes(), "db.rows_affected"); !ok || v.AsInt64() != 1 {
		t.Errorf("expected rows affected 1, got %v", v)
	}
}

func TestTracingExecutor_RecordsErrors(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	transportErr := errors.New("connection reset")
	h := testsupport.NewFakeStatementHandler().WithError(selectUsers, transportErr)
	exec := executor.NewTracingExecutor(executor.NewSimpleExecutor(nil, &testsupport.FakeTransaction{}, h), tp)

	if _, err := exec.Query(ctx, usersByStatus, "active", mapping.DefaultBounds, nil); !errors.Is(err, transportErr) {
		t.Fatalf("expected transport error, got %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", spans[0].Status())
	}
	if len(spans[0].Events()) == 0 {
		t.Error("expected the error to be recorded as an event")
	}
}

func TestTracingExecutor_IsTheLoader(t *testing.T) {
	ctx := context.Background()
	var loaders []executor.Executor
	base := executor.NewSimpleExecutor(nil, &testsupport.FakeTransaction{}, blogHandler(),
		executor.WithResultMapper(blogMappers(t, &loaders)))
	traced := executor.NewTracingExecutor(executor.NewCachingExecutor(base, nil), nil)

	if _, err := traced.Query(ctx, blogByID, 1, mapping.DefaultBounds, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(loaders) == 0 || loaders[0] != executor.Executor(traced) {
		t.Fatal("nested loads must run through the outermost executor")
	}
}
