package session

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeTooManyResults   = "TOO_MANY_RESULTS"
	TextCodeStatementFailed  = "STATEMENT_FAILED"
	TextCodeMapperNotFound   = "MAPPER_NOT_FOUND"
	TextCodeOpenSessionError = "OPEN_SESSION_FAILED"
	TextCodeInvalidMapKey    = "INVALID_MAP_KEY"
)

// Phases recorded in error metadata.
const (
	PhaseQuery    = "query"
	PhaseUpdate   = "update"
	PhaseCommit   = "commit"
	PhaseRollback = "rollback"
	PhaseFlush    = "flush"
	PhaseClose    = "close"
)

// ErrTooManyResults reports a SelectOne that resolved to more than one row.
func ErrTooManyResults(statementID string, count int) *goerrors.Error {
	return goerrors.New("expected one result (or none) to be returned by SelectOne", goerrors.CategoryBadInput).
		WithTextCode(TextCodeTooManyResults).
		WithMetadata(map[string]any{"statement_id": statementID, "count": count})
}

// wrapError attaches the statement id and phase. Errors already carrying a category keep
// it; anything else is a transport failure.
func wrapError(err error, statementID, phase string) error {
	if err == nil {
		return nil
	}

	meta := map[string]any{"phase": phase}
	if statementID != "" {
		meta["statement_id"] = statementID
	}

	message := "error during " + phase
	if statementID != "" {
		message += " of " + statementID
	}

	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return goerrors.Wrap(err, rich.Category, message).WithMetadata(meta)
	}
	return goerrors.Wrap(err, goerrors.CategoryExternal, message).
		WithTextCode(TextCodeStatementFailed).
		WithMetadata(meta)
}
