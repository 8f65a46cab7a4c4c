package sqlstore

import (
	"database/sql"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

const TextCodeUnsupportedDriver = "UNSUPPORTED_DRIVER"

// Open connects to dsn with driver and returns a bun database using the matching dialect.
// In-memory sqlite databases are limited to one connection so every statement sees the
// same database.
func Open(driver, dsn string) (*bun.DB, error) {
	dialect, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	sqldb, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "open "+driver+" database")
	}

	if driver == DriverSQLite && strings.Contains(dsn, ":memory:") {
		sqldb.SetMaxOpenConns(1)
		sqldb.SetMaxIdleConns(1)
	}

	if err := sqldb.Ping(); err != nil {
		sqldb.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "ping "+driver+" database")
	}

	return bun.NewDB(sqldb, dialect), nil
}

func dialectFor(driver string) (schema.Dialect, error) {
	switch driver {
	case DriverSQLite:
		return sqlitedialect.New(), nil
	case DriverPostgres:
		return pgdialect.New(), nil
	default:
		return nil, goerrors.New("unsupported driver "+driver, goerrors.CategoryBadInput).
			WithTextCode(TextCodeUnsupportedDriver).
			WithMetadata(map[string]any{"driver": driver})
	}
}
