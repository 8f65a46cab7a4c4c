package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-sqlsession/executor"
	"github.com/goliatone/go-sqlsession/mapping"
)

// StatementHandler runs bound SQL through bun raw queries. Placeholders are "?" and
// arguments are formatted by the connection dialect.
type StatementHandler struct{}

// NewStatementHandler returns a StatementHandler.
func NewStatementHandler() *StatementHandler {
	return &StatementHandler{}
}

// Prepare binds bound to conn.
func (h *StatementHandler) Prepare(ctx context.Context, conn bun.IDB, ms *mapping.Statement, bound mapping.BoundStatement) (executor.PreparedStatement, error) {
	if conn == nil {
		return nil, goerrors.New("no connection for statement "+ms.ID, goerrors.CategoryInternal).
			WithMetadata(map[string]any{"statement_id": ms.ID})
	}
	return &rawStatement{conn: conn, sql: bound.SQL}, nil
}

type rawStatement struct {
	conn   bun.IDB
	sql    string
	closed bool
}

func (s *rawStatement) Query(ctx context.Context, args []any) ([]executor.Row, error) {
	if s.closed {
		return nil, errStatementClosed
	}

	var rows []map[string]interface{}
	err := s.conn.NewRaw(s.sql, args...).Scan(ctx, &rows)
	if errors.Is(err, sql.ErrNoRows) {
		return []executor.Row{}, nil
	}
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		for col, v := range row {
			if b, ok := v.([]byte); ok {
				row[col] = string(b)
			}
		}
	}
	return rows, nil
}

func (s *rawStatement) Exec(ctx context.Context, args []any) (int64, error) {
	if s.closed {
		return 0, errStatementClosed
	}

	res, err := s.conn.NewRaw(s.sql, args...).Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *rawStatement) Close() error {
	s.closed = true
	return nil
}

var errStatementClosed = goerrors.New("statement is closed", goerrors.CategoryOperation)
