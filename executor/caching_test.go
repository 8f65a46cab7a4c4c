package executor_test

import (
	"context"
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlsession/cache"
	"github.com/goliatone/go-sqlsession/executor"
	"github.com/goliatone/go-sqlsession/mapping"
	"github.com/goliatone/go-sqlsession/pkg/testsupport"
)

type chain struct {
	exec    *executor.CachingExecutor
	tx      *testsupport.FakeTransaction
	handler *testsupport.FakeStatementHandler
}

func newChain() chain {
	tx := &testsupport.FakeTransaction{}
	h := testsupport.NewFakeStatementHandler().
		WithRows(selectUsers, userRows()...).
		WithAffected(updateUsers, 1)
	return chain{
		exec:    executor.NewCachingExecutor(executor.NewSimpleExecutor(nil, tx, h), nil),
		tx:      tx,
		handler: h,
	}
}

func cachedStatements(shared cache.Cache) (*mapping.Statement, *mapping.Statement) {
	sel := mapping.NewStatement("users.byStatus", selectUsers, mapping.CommandSelect,
		mapping.WithCache(shared), mapping.WithParams(mapping.In("status")))
	upd := mapping.NewStatement("users.setStatus", updateUsers, mapping.CommandUpdate,
		mapping.WithCache(shared), mapping.WithParams(mapping.In("status"), mapping.In("id")))
	return sel, upd
}

func TestCachingExecutor_SecondLevelIsolation(t *testing.T) {
	ctx := context.Background()
	shared := cache.NewPerpetualCache("users")
	sel, _ := cachedStatements(shared)
	a, b := newChain(), newChain()

	if _, err := a.exec.Query(ctx, sel, "active", mapping.DefaultBounds, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shared.Size() != 0 {
		t.Fatal("uncommitted results must not reach the shared cache")
	}

	b.exec.Query(ctx, sel, "active", mapping.DefaultBounds, nil)
	if got := b.handler.Count("query"); got != 1 {
		t.Fatalf("session B must not read session A's staged entry, got %d queries", got)
	}
	b.exec.Rollback(ctx, true)

	if err := a.exec.Commit(ctx, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shared.Size() != 1 {
		t.Fatalf("expected one shared entry after commit, got %d", shared.Size())
	}

	c := newChain()
	list, err := c.exec.Query(ctx, sel, "active", mapping.DefaultBounds, nil)
	if err != nil || len(list) != 3 {
		t.Fatalf("unexpected result %v %v", list, err)
	}
	if got := c.handler.Count("query"); got != 0 {
		t.Errorf("committed entry must be served from the shared cache, got %d queries", got)
	}
}

func TestCachingExecutor_FlushBeforeRead(t *testing.T) {
	ctx := context.Background()
	shared := cache.NewPerpetualCache("users")
	sel, upd := cachedStatements(shared)

	a := newChain()
	a.exec.Query(ctx, sel, "active", mapping.DefaultBounds, nil)
	a.exec.Commit(ctx, true)

	b := newChain()
	if _, err := b.exec.Update(ctx, upd, []any{"inactive", 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b.exec.Query(ctx, sel, "active", mapping.DefaultBounds, nil)

	if got := b.handler.Count("query", selectUsers); got != 1 {
		t.Fatalf("the pending flush must force a miss, got %d queries", got)
	}
	if shared.Size() != 1 {
		t.Fatal("the shared cache must stay untouched before commit")
	}

	b.exec.Commit(ctx, true)
	if shared.Size() != 1 {
		t.Fatalf("commit must evict and then publish the fresh entry, got %d entries", shared.Size())
	}
}

func TestCachingExecutor_RollbackDiscards(t *testing.T) {
	ctx := context.Background()
	shared := cache.NewPerpetualCache("users")
	sel, _ := cachedStatements(shared)

	a := newChain()
	a.exec.Query(ctx, sel, "active", mapping.DefaultBounds, nil)
	if err := a.exec.Rollback(ctx, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.tx.Count("rollback") != 0 {
		t.Error("rollback not required must not reach the transaction")
	}
	a.exec.Commit(ctx, true)

	b := newChain()
	b.exec.Query(ctx, sel, "active", mapping.DefaultBounds, nil)
	if got := b.handler.Count("query"); got != 1 {
		t.Errorf("rolled back entries must never become visible, got %d queries", got)
	}
}

func TestCachingExecutor_CommitFailureKeepsStaging(t *testing.T) {
	ctx := context.Background()
	shared := cache.NewPerpetualCache("users")
	sel, _ := cachedStatements(shared)

	a := newChain()
	a.tx.CommitErr = errors.New("commit failed")
	a.exec.Query(ctx, sel, "active", mapping.DefaultBounds, nil)

	if err := a.exec.Commit(ctx, true); err == nil {
		t.Fatal("expected commit error")
	}
	if shared.Size() != 0 {
		t.Fatal("staged entries must not be published when the delegate commit fails")
	}
}

func TestCachingExecutor_RollbackErrorStillDiscards(t *testing.T) {
	ctx := context.Background()
	shared := cache.NewPerpetualCache("users")
	sel, _ := cachedStatements(shared)

	a := newChain()
	a.tx.RollbackErr = errors.New("rollback failed")
	a.exec.Query(ctx, sel, "active", mapping.DefaultBounds, nil)

	if err := a.exec.Rollback(ctx, true); err == nil {
		t.Fatal("expected rollback error")
	}
	a.exec.Close(ctx, false)
	if shared.Size() != 0 {
		t.Fatal("entries staged before a rollback must be discarded")
	}
}

func TestCachingExecutor_Close(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		forceRollback bool
		wantEntries   int
	}{
		{name: "commit on close", forceRollback: false, wantEntries: 1},
		{name: "rollback on close", forceRollback: true, wantEntries: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shared := cache.NewPerpetualCache("users")
			sel, _ := cachedStatements(shared)
			a := newChain()
			a.exec.Query(ctx, sel, "active", mapping.DefaultBounds, nil)

			if err := a.exec.Close(ctx, tt.forceRollback); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if shared.Size() != tt.wantEntries {
				t.Errorf("expected %d shared entries, got %d", tt.wantEntries, shared.Size())
			}
			if !a.exec.IsClosed() || a.tx.Count("close") != 1 {
				t.Error("close must reach the delegate")
			}
		})
	}
}

func TestCachingExecutor_UnsafeCallableRejected(t *testing.T) {
	ctx := context.Background()
	proc := mapping.NewStatement("users.proc", "CALL users_proc(?, ?)", mapping.CommandSelect,
		mapping.WithCallable(),
		mapping.WithCache(cache.NewPerpetualCache("users")),
		mapping.WithParams(mapping.In("id"), mapping.Out("total")))

	a := newChain()
	_, err := a.exec.Query(ctx, proc, map[string]any{"id": 1, "total": nil}, mapping.DefaultBounds, nil)

	if !goerrors.IsCategory(err, goerrors.CategoryValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var richErr *goerrors.Error
	goerrors.As(err, &richErr)
	if richErr.TextCode != executor.TextCodeUnsafeCachedCallable {
		t.Errorf("unexpected text code %s", richErr.TextCode)
	}
	if calls := a.handler.Calls(); len(calls) != 0 {
		t.Errorf("the transport must never be reached, got %v", calls)
	}
}

func TestCachingExecutor_Bypass(t *testing.T) {
	ctx := context.Background()
	shared := cache.NewPerpetualCache("users")

	tests := []struct {
		name    string
		ms      *mapping.Statement
		handler executor.ResultHandler
	}{
		{name: "no cache", ms: mapping.NewStatement("a", selectUsers, mapping.CommandSelect)},
		{name: "use cache off", ms: mapping.NewStatement("b", selectUsers, mapping.CommandSelect,
			mapping.WithCache(shared), mapping.WithUseCache(false))},
		{name: "streaming", ms: mapping.NewStatement("c", selectUsers, mapping.CommandSelect, mapping.WithCache(shared)),
			handler: executor.ResultHandlerFunc(func(*executor.ResultContext) error { return nil })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newChain()
			if _, err := a.exec.Query(ctx, tt.ms, nil, mapping.DefaultBounds, tt.handler); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			a.exec.Commit(ctx, true)
			if shared.Size() != 0 {
				t.Errorf("bypassed queries must not be cached, got %d entries", shared.Size())
			}
			if a.exec.TransactionalCaches().Len() != 0 {
				t.Error("bypassed queries must not register transactional caches")
			}
		})
	}
}

func TestCachingExecutor_SerializedSharedCache(t *testing.T) {
	ctx := context.Background()
	shared := cache.NewSerializedCache(cache.NewPerpetualCache("users"))
	sel, _ := cachedStatements(shared)

	a := newChain()
	a.exec.Query(ctx, sel, "active", mapping.DefaultBounds, nil)
	a.exec.Commit(ctx, true)

	b := newChain()
	list, err := b.exec.Query(ctx, sel, "active", mapping.DefaultBounds, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.handler.Count("query") != 0 {
		t.Fatal("expected a shared cache hit")
	}
	row, ok := list[0].(map[string]any)
	if !ok || row["name"] != "ann" {
		t.Fatalf("unexpected decoded row %#v", list[0])
	}
}
