package testsupport

import (
	"context"
	"strings"
	"sync"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-sqlsession/executor"
	"github.com/goliatone/go-sqlsession/mapping"
)

// FakeTransaction records the calls an executor makes against its transaction.
type FakeTransaction struct {
	mu          sync.Mutex
	calls       []string
	AutoCommit  bool
	CommitErr   error
	RollbackErr error
	CloseErr    error
}

func (f *FakeTransaction) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

// Calls returns a copy of the recorded calls.
func (f *FakeTransaction) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Count returns how many times call was recorded.
func (f *FakeTransaction) Count(call string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (f *FakeTransaction) Connection(ctx context.Context) (bun.IDB, error) {
	f.record("connection")
	return nil, nil
}

func (f *FakeTransaction) Commit(ctx context.Context) error {
	f.record("commit")
	return f.CommitErr
}

func (f *FakeTransaction) Rollback(ctx context.Context) error {
	f.record("rollback")
	return f.RollbackErr
}

func (f *FakeTransaction) Close(ctx context.Context) error {
	f.record("close")
	return f.CloseErr
}

// FakeTransactionFactory hands out FakeTransactions and keeps them for inspection.
type FakeTransactionFactory struct {
	mu           sync.Mutex
	transactions []*FakeTransaction
	Err          error
}

func (f *FakeTransactionFactory) NewTransaction(ctx context.Context, autoCommit bool) (executor.Transaction, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	tx := &FakeTransaction{AutoCommit: autoCommit}
	f.transactions = append(f.transactions, tx)
	return tx, nil
}

// Last returns the most recent transaction, or nil.
func (f *FakeTransactionFactory) Last() *FakeTransaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.transactions) == 0 {
		return nil
	}
	return f.transactions[len(f.transactions)-1]
}

// FakeStatementHandler serves canned rows and affected counts keyed by SQL text and
// records every prepare, query, exec and close.
type FakeStatementHandler struct {
	mu       sync.Mutex
	calls    []string
	rows     map[string][]executor.Row
	affected map[string]int64
	errs     map[string]error
	open     int
}

// NewFakeStatementHandler returns a handler with no canned results.
func NewFakeStatementHandler() *FakeStatementHandler {
	return &FakeStatementHandler{
		rows:     make(map[string][]executor.Row),
		affected: make(map[string]int64),
		errs:     make(map[string]error),
	}
}

// WithRows sets the rows returned for sql.
func (h *FakeStatementHandler) WithRows(sql string, rows ...executor.Row) *FakeStatementHandler {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rows[sql] = rows
	return h
}

// WithAffected sets the affected count returned for sql.
func (h *FakeStatementHandler) WithAffected(sql string, n int64) *FakeStatementHandler {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.affected[sql] = n
	return h
}

// WithError makes query and exec of sql fail.
func (h *FakeStatementHandler) WithError(sql string, err error) *FakeStatementHandler {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs[sql] = err
	return h
}

func (h *FakeStatementHandler) record(call string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, call)
}

// Calls returns a copy of the recorded calls, formatted as "op:sql".
func (h *FakeStatementHandler) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

// Count returns the number of calls with the given op ("prepare", "query", "exec",
// "close"), optionally restricted to one SQL text.
func (h *FakeStatementHandler) Count(op string, sql ...string) int {
	n := 0
	for _, c := range h.Calls() {
		name, text, _ := strings.Cut(c, ":")
		if name != op {
			continue
		}
		if len(sql) > 0 && text != sql[0] {
			continue
		}
		n++
	}
	return n
}

// OpenStatements returns the number of prepared statements not yet closed.
func (h *FakeStatementHandler) OpenStatements() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open
}

func (h *FakeStatementHandler) Prepare(ctx context.Context, conn bun.IDB, ms *mapping.Statement, bound mapping.BoundStatement) (executor.PreparedStatement, error) {
	h.record("prepare:" + bound.SQL)
	h.mu.Lock()
	h.open++
	h.mu.Unlock()
	return &fakeStatement{handler: h, sql: bound.SQL}, nil
}

type fakeStatement struct {
	handler *FakeStatementHandler
	sql     string
	closed  bool
}

func (s *fakeStatement) Query(ctx context.Context, args []any) ([]executor.Row, error) {
	h := s.handler
	h.record("query:" + s.sql)
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.errs[s.sql]; err != nil {
		return nil, err
	}
	rows := h.rows[s.sql]
	out := make([]executor.Row, len(rows))
	for i, row := range rows {
		cp := make(executor.Row, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out[i] = cp
	}
	return out, nil
}

func (s *fakeStatement) Exec(ctx context.Context, args []any) (int64, error) {
	h := s.handler
	h.record("exec:" + s.sql)
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.errs[s.sql]; err != nil {
		return 0, err
	}
	return h.affected[s.sql], nil
}

func (s *fakeStatement) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.handler.record("close:" + s.sql)
	s.handler.mu.Lock()
	s.handler.open--
	s.handler.mu.Unlock()
	return nil
}
