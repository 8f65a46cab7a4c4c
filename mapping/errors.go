package mapping

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidStatement   = "INVALID_STATEMENT"
	TextCodeDuplicateStatement = "DUPLICATE_STATEMENT"
	TextCodeStatementNotFound  = "STATEMENT_NOT_FOUND"
	TextCodeParameterNotFound  = "PARAMETER_NOT_FOUND"
	TextCodeInvalidParameter   = "INVALID_PARAMETER"
	TextCodeInvalidBounds      = "INVALID_BOUNDS"
)

// ErrStatementNotFound reports an unknown statement id.
func ErrStatementNotFound(id string) *goerrors.Error {
	return goerrors.New("mapped statement "+id+" is not registered", goerrors.CategoryNotFound).
		WithTextCode(TextCodeStatementNotFound).
		WithMetadata(map[string]any{"statement_id": id})
}

// ErrParameterNotFound reports a parameter name missing from the supplied parameter object.
func ErrParameterNotFound(name string, available []string) *goerrors.Error {
	return goerrors.New("parameter "+name+" not found", goerrors.CategoryNotFound).
		WithTextCode(TextCodeParameterNotFound).
		WithMetadata(map[string]any{"parameter": name, "available": available})
}
