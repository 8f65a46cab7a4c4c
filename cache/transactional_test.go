package cache

import (
	"errors"
	"sync"
	"testing"
)

// recordingCache wraps a PerpetualCache and records calls made against it.
type recordingCache struct {
	*PerpetualCache
	mu      sync.Mutex
	calls   []string
	failPut bool
}

func newRecordingCache(id string) *recordingCache {
	return &recordingCache{PerpetualCache: NewPerpetualCache(id)}
}

func (r *recordingCache) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recordingCache) getCalls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recordingCache) count(call string) int {
	n := 0
	for _, c := range r.getCalls() {
		if c == call {
			n++
		}
	}
	return n
}

func (r *recordingCache) Put(key string, value any) error {
	r.record("Put")
	if r.failPut {
		return errors.New("put rejected")
	}
	return r.PerpetualCache.Put(key, value)
}

func (r *recordingCache) Remove(key string) error {
	r.record("Remove")
	return r.PerpetualCache.Remove(key)
}

func (r *recordingCache) Clear() error {
	r.record("Clear")
	return r.PerpetualCache.Clear()
}

func key(parts ...any) *Key {
	return NewKey().UpdateAll(parts...)
}

func TestTransactionalCache_PutIsStagedUntilCommit(t *testing.T) {
	shared := newRecordingCache("users")
	tc := NewTransactionalCache(shared, nil)

	tc.Put(key("k"), "v")

	if shared.count("Put") != 0 {
		t.Fatal("put must not reach the shared cache before commit")
	}
	if _, ok := shared.Get(key("k").String()); ok {
		t.Fatal("staged value must not be visible in the shared cache")
	}

	if v, ok := tc.Get(key("k")); !ok || v != "v" {
		t.Fatalf("expected read-your-writes, got %v %v", v, ok)
	}

	tc.Commit()

	if v, ok := shared.Get(key("k").String()); !ok || v != "v" {
		t.Fatalf("expected committed value in shared cache, got %v %v", v, ok)
	}
	if tc.Pending() != 0 {
		t.Errorf("expected no pending entries after commit, got %d", tc.Pending())
	}
}

func TestTransactionalCache_GetPassesThrough(t *testing.T) {
	shared := newRecordingCache("users")
	shared.PerpetualCache.Put(key("k").String(), "shared")
	tc := NewTransactionalCache(shared, nil)

	if v, ok := tc.Get(key("k")); !ok || v != "shared" {
		t.Fatalf("expected shared value, got %v %v", v, ok)
	}
	if _, ok := tc.Get(key("missing")); ok {
		t.Fatal("expected miss")
	}
}

func TestTransactionalCache_ClearForcesMissesLocally(t *testing.T) {
	shared := newRecordingCache("users")
	shared.PerpetualCache.Put(key("k").String(), "shared")
	tc := NewTransactionalCache(shared, nil)

	tc.Put(key("staged"), "mine")
	tc.Clear()

	if !tc.ClearPending() {
		t.Fatal("expected clear to be pending")
	}
	if tc.Pending() != 0 {
		t.Fatal("clear must discard staged entries")
	}
	if _, ok := tc.Get(key("k")); ok {
		t.Fatal("reads must miss while a clear is pending")
	}

	tc.Put(key("after"), "x")
	if _, ok := tc.Get(key("after")); ok {
		t.Fatal("reads must miss while a clear is pending, even for own writes")
	}

	if shared.count("Clear") != 0 {
		t.Fatal("the shared cache must stay untouched until commit")
	}
	if _, ok := shared.Get(key("k").String()); !ok {
		t.Fatal("other sessions must still see the shared entry before commit")
	}

	tc.Commit()

	if shared.count("Clear") != 1 {
		t.Fatalf("expected one shared clear on commit, got %d", shared.count("Clear"))
	}
	if _, ok := shared.Get(key("k").String()); ok {
		t.Fatal("expected shared entry to be evicted on commit")
	}
	if v, ok := shared.Get(key("after").String()); !ok || v != "x" {
		t.Fatal("entries staged after the clear must be published after the eviction")
	}
	if tc.ClearPending() {
		t.Fatal("commit must reset the clear flag")
	}
	if v, ok := tc.Get(key("after")); !ok || v != "x" {
		t.Fatalf("expected reads to resume after commit, got %v %v", v, ok)
	}
}

func TestTransactionalCache_Rollback(t *testing.T) {
	shared := newRecordingCache("users")
	shared.PerpetualCache.Put(key("k").String(), "shared")
	tc := NewTransactionalCache(shared, nil)

	tc.Put(key("new"), "v")
	tc.Clear()
	tc.Rollback()

	if shared.count("Put") != 0 || shared.count("Clear") != 0 {
		t.Fatalf("rollback must not publish anything, calls: %v", shared.getCalls())
	}
	if tc.ClearPending() || tc.Pending() != 0 {
		t.Fatal("rollback must reset the wrapper")
	}
	if v, ok := tc.Get(key("k")); !ok || v != "shared" {
		t.Fatal("reads must pass through again after rollback")
	}
}

func TestTransactionalCache_MissedKeysLeaveSharedCacheAlone(t *testing.T) {
	shared := newRecordingCache("users")
	tc := NewTransactionalCache(shared, nil)

	tc.Get(key("a"))
	tc.Get(key("b"))
	tc.Put(key("b"), "staged")
	if tc.Missed() != 2 {
		t.Fatalf("expected 2 tracked misses, got %d", tc.Missed())
	}
	tc.Commit()

	if got := shared.count("Remove"); got != 0 {
		t.Errorf("commit must not release missed keys, got %d removes", got)
	}
	if got := shared.count("Put"); got != 1 {
		t.Errorf("commit must only publish staged entries, got %d puts", got)
	}

	tc.Get(key("c"))
	tc.Rollback()
	if calls := shared.getCalls(); len(calls) != 1 {
		t.Errorf("rollback must not touch the shared cache, calls: %v", calls)
	}
	if tc.Missed() != 0 {
		t.Error("rollback must reset tracked misses")
	}
}

func TestTransactionalCache_ReadOnlySessionKeepsOthersCommits(t *testing.T) {
	for _, finish := range []string{"commit", "rollback"} {
		t.Run(finish, func(t *testing.T) {
			shared := NewPerpetualCache("users")
			reader := NewTransactionalCache(shared, nil)
			writer := NewTransactionalCache(shared, nil)

			if _, ok := reader.Get(key("k")); ok {
				t.Fatal("expected an initial miss")
			}
			writer.Put(key("k"), "committed")
			writer.Commit()

			if finish == "commit" {
				reader.Commit()
			} else {
				reader.Rollback()
			}

			if v, ok := shared.Get(key("k").String()); !ok || v != "committed" {
				t.Fatalf("a read-only %s must keep the other session's entry, got %v %v", finish, v, ok)
			}
		})
	}
}

func TestTransactionalCache_CommitFailuresAreNotEscalated(t *testing.T) {
	shared := newRecordingCache("users")
	shared.failPut = true
	tc := NewTransactionalCache(shared, nil)

	tc.Put(key("a"), 1)
	tc.Put(key("b"), 2)
	tc.Commit()

	if shared.count("Put") != 2 {
		t.Fatalf("expected both entries to be attempted, got %d", shared.count("Put"))
	}
	if tc.Pending() != 0 {
		t.Fatal("a partially failed commit must still reset the wrapper")
	}
}

func TestTransactionalCacheManager_FanOut(t *testing.T) {
	users := newRecordingCache("users")
	orders := newRecordingCache("orders")
	tcm := NewTransactionalCacheManager(nil)

	tcm.Put(users, key("u"), "user")
	tcm.Put(orders, key("o"), "order")
	tcm.Clear(orders)

	if tcm.Len() != 2 {
		t.Fatalf("expected 2 registered caches, got %d", tcm.Len())
	}
	if v, ok := tcm.Get(users, key("u")); !ok || v != "user" {
		t.Fatal("expected staged user entry")
	}
	if _, ok := tcm.Get(orders, key("o")); ok {
		t.Fatal("cleared cache must miss")
	}

	tcm.Commit()

	if _, ok := users.Get(key("u").String()); !ok {
		t.Error("expected users entry to be published")
	}
	if orders.count("Clear") != 1 {
		t.Error("expected orders to be cleared on commit")
	}

	tcm.Put(users, key("u2"), "user2")
	tcm.Rollback()
	if _, ok := users.Get(key("u2").String()); ok {
		t.Error("rolled back entry must not be published")
	}
}

func TestTransactionalCache_IsolatedBetweenSessions(t *testing.T) {
	shared := NewPerpetualCache("users")
	sessionA := NewTransactionalCache(shared, nil)
	sessionB := NewTransactionalCache(shared, nil)

	sessionA.Put(key("k"), "a")
	if _, ok := sessionB.Get(key("k")); ok {
		t.Fatal("session B must not see session A's uncommitted entry")
	}

	sessionA.Commit()
	if v, ok := sessionB.Get(key("k")); !ok || v != "a" {
		t.Fatal("session B must see session A's entry after commit")
	}
}
