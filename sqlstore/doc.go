// Package sqlstore provides the bun-backed transport for sessions: Open selects the
// dialect for a driver, TransactionFactory hands out lazily started transactions and
// StatementHandler executes bound SQL as raw queries.
//
//	db, err := sqlstore.Open(sqlstore.DriverSQLite, "file::memory:")
//	if err != nil {
//		return err
//	}
//	factory := session.NewFactory(cfg, sqlstore.NewTransactionFactory(db), sqlstore.NewStatementHandler())
package sqlstore
