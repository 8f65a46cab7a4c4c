package executor

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeExecutorClosed       = "EXECUTOR_CLOSED"
	TextCodeRecursiveLoad        = "RECURSIVE_LOAD"
	TextCodeUnsafeCachedCallable = "UNSAFE_CACHED_CALLABLE"
	TextCodeDeferredLoadFailed   = "DEFERRED_LOAD_FAILED"
)

// ErrExecutorClosed is returned by any operation on a closed executor.
func ErrExecutorClosed(op string) *goerrors.Error {
	return goerrors.New("executor was closed", goerrors.CategoryOperation).
		WithTextCode(TextCodeExecutorClosed).
		WithMetadata(map[string]any{"operation": op})
}

// ErrRecursiveLoad reports a query for a key whose load is still in progress.
func ErrRecursiveLoad(statementID string) *goerrors.Error {
	return goerrors.New("statement "+statementID+" is already loading; defer nested loads of the same key", goerrors.CategoryOperation).
		WithTextCode(TextCodeRecursiveLoad).
		WithMetadata(map[string]any{"statement_id": statementID})
}

// ErrUnsafeCachedCallable rejects caching a procedure call with OUT parameters.
func ErrUnsafeCachedCallable(statementID string) *goerrors.Error {
	return goerrors.New("caching callable statement "+statementID+" with OUT parameters is not supported; set UseCache to false", goerrors.CategoryValidation).
		WithTextCode(TextCodeUnsafeCachedCallable).
		WithMetadata(map[string]any{"statement_id": statementID})
}

func errDeferredLoad(property, message string) *goerrors.Error {
	return goerrors.New("deferred load of "+property+": "+message, goerrors.CategoryBadInput).
		WithTextCode(TextCodeDeferredLoadFailed).
		WithMetadata(map[string]any{"property": property})
}
