package sqlstore_test

import (
	"context"
	"fmt"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-sqlsession/cache"
	"github.com/goliatone/go-sqlsession/mapping"
	"github.com/goliatone/go-sqlsession/session"
	"github.com/goliatone/go-sqlsession/sqlstore"
)

func openTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := sqlstore.Open(sqlstore.DriverSQLite, "file::memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	stmts := []string{
		`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, status TEXT NOT NULL)`,
		`INSERT INTO users (id, name, status) VALUES (1, 'ann', 'active'), (2, 'bob', 'active'), (3, 'cid', 'inactive')`,
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			t.Fatalf("failed to prepare schema: %v", err)
		}
	}
	return db
}

func newFactory(t *testing.T, db *bun.DB) (*session.Factory, *cache.PerpetualCache) {
	t.Helper()

	shared := cache.NewPerpetualCache("users")
	cfg := mapping.NewConfiguration()
	statements := []*mapping.Statement{
		mapping.NewStatement("users.byStatus", "SELECT id, name, status FROM users WHERE status = ? ORDER BY id",
			mapping.CommandSelect, mapping.WithCache(shared), mapping.WithParams(mapping.In("status"))),
		mapping.NewStatement("users.count", "SELECT COUNT(*) AS total FROM users", mapping.CommandSelect),
		mapping.NewStatement("users.insert", "INSERT INTO users (name, status) VALUES (?, ?)",
			mapping.CommandInsert, mapping.WithCache(shared),
			mapping.WithParams(mapping.In("name"), mapping.In("status"))),
		mapping.NewStatement("users.none", "SELECT id FROM users WHERE id < 0", mapping.CommandSelect),
	}
	for _, st := range statements {
		if err := cfg.AddStatement(st); err != nil {
			t.Fatalf("failed to register %s: %v", st.ID, err)
		}
	}

	return session.NewFactory(cfg, sqlstore.NewTransactionFactory(db), sqlstore.NewStatementHandler()), shared
}

func names(t *testing.T, list []any) []string {
	t.Helper()
	out := make([]string, 0, len(list))
	for _, v := range list {
		row, ok := v.(map[string]any)
		if !ok {
			t.Fatalf("unexpected result type %T", v)
		}
		out = append(out, fmt.Sprint(row["name"]))
	}
	return out
}

func count(t *testing.T, s *session.Session) string {
	t.Helper()
	row, err := s.SelectOne(context.Background(), "users.count", nil)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return fmt.Sprint(row.(map[string]any)["total"])
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := sqlstore.Open("oracle", "dsn")
	if !goerrors.IsCategory(err, goerrors.CategoryBadInput) {
		t.Fatalf("expected bad input, got %v", err)
	}
}

func TestSession_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	factory, shared := newFactory(t, db)

	s1, err := factory.OpenSession(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	list, err := s1.SelectList(ctx, "users.byStatus", "active", mapping.DefaultBounds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := names(t, list); len(got) != 2 || got[0] != "ann" || got[1] != "bob" {
		t.Fatalf("unexpected rows %v", got)
	}

	n, err := s1.Insert(ctx, "users.insert", map[string]any{"name": "dan", "status": "active"})
	if err != nil || n != 1 {
		t.Fatalf("unexpected insert result %d %v", n, err)
	}
	if err := s1.Commit(ctx, false); err != nil {
		t.Fatalf("unexpected commit error: %v", err)
	}
	if err := s1.Close(ctx); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if shared.Size() != 0 {
		t.Fatalf("the committed insert must clear the shared cache, got %d entries", shared.Size())
	}

	s2, _ := factory.OpenSession(ctx)
	list, err = s2.SelectList(ctx, "users.byStatus", "active", mapping.DefaultBounds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := names(t, list); len(got) != 3 {
		t.Fatalf("expected the inserted row, got %v", got)
	}
	s2.Close(ctx)
	if shared.Size() != 1 {
		t.Errorf("a clean close must publish the read, got %d entries", shared.Size())
	}

	none, err := func() (any, error) {
		s, _ := factory.OpenSession(ctx)
		defer s.Close(ctx)
		return s.SelectOne(ctx, "users.none", nil)
	}()
	if err != nil || none != nil {
		t.Errorf("expected no row, got %v %v", none, err)
	}
}

func TestSession_SQLiteRollback(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	factory, _ := newFactory(t, db)

	s, _ := factory.OpenSession(ctx)
	if _, err := s.Insert(ctx, "users.insert", []any{"eve", "inactive"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := count(t, s); got != "4" {
		t.Fatalf("the session must see its own write, got %s", got)
	}
	if err := s.Rollback(ctx, false); err != nil {
		t.Fatalf("unexpected rollback error: %v", err)
	}
	if got := count(t, s); got != "3" {
		t.Fatalf("expected the insert to be rolled back, got %s", got)
	}
	s.Close(ctx)

	closing, _ := factory.OpenSession(ctx)
	closing.Insert(ctx, "users.insert", []any{"fay", "active"})
	if err := closing.Close(ctx); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	check, _ := factory.OpenSession(ctx)
	defer check.Close(ctx)
	if got := count(t, check); got != "3" {
		t.Errorf("closing a dirty session must roll back, got %s", got)
	}
}

func TestSession_SQLiteAutoCommit(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	factory, _ := newFactory(t, db)

	s, _ := factory.OpenSession(ctx, session.WithAutoCommit(true))
	if _, err := s.Insert(ctx, "users.insert", []any{"gus", "active"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Close(ctx)

	check, _ := factory.OpenSession(ctx)
	defer check.Close(ctx)
	if got := count(t, check); got != "4" {
		t.Errorf("an auto-committed write must persist without commit, got %s", got)
	}
}

func TestTransaction_Lifecycle(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	txs := sqlstore.NewTransactionFactory(db)

	tx, err := txs.NewTransaction(ctx, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st := tx.(*sqlstore.Transaction)
	if st.Active() {
		t.Fatal("transactions begin lazily")
	}

	conn, err := tx.Connection(ctx)
	if err != nil || conn == nil {
		t.Fatalf("unexpected connection %v %v", conn, err)
	}
	if !st.Active() {
		t.Fatal("expected an open transaction")
	}
	again, _ := tx.Connection(ctx)
	if again != conn {
		t.Error("the same transaction must be reused until commit")
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("unexpected commit error: %v", err)
	}
	if st.Active() {
		t.Error("commit must end the transaction")
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Errorf("rollback without a transaction must be a no-op, got %v", err)
	}
	if err := tx.Close(ctx); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		t.Errorf("closing a transaction must not close the database: %v", err)
	}

	auto, _ := txs.NewTransaction(ctx, true)
	conn, _ = auto.Connection(ctx)
	if conn != bun.IDB(db) {
		t.Error("auto-commit transactions use the database directly")
	}
}
