// Package session is the caller-facing API: a Session runs mapped statements by id and
// owns the commit or rollback decision of its unit of work.
//
//	factory := session.NewFactory(cfg, sqlstore.NewTransactionFactory(db), sqlstore.NewStatementHandler())
//	s, err := factory.OpenSession(ctx)
//	if err != nil {
//		return err
//	}
//	defer s.Close(ctx)
//
//	users, err := s.SelectList(ctx, "users.byStatus", "active", mapping.DefaultBounds)
//
// Errors returned by a Session carry the statement id and the phase in their metadata.
// Failures from the transport are reported with the external category and the
// STATEMENT_FAILED text code; the original error stays reachable through errors.Is.
package session
