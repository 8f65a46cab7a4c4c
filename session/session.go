package session

import (
	"context"
	"log/slog"
	"reflect"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-sqlsession/executor"
	"github.com/goliatone/go-sqlsession/mapping"
)

// Session is one unit of work over a single executor chain and transaction.
// A Session is not safe for concurrent use; open one per goroutine or request.
type Session struct {
	id         string
	factory    *Factory
	config     *mapping.Configuration
	exec       executor.Executor
	autoCommit bool
	dirty      bool
	closed     bool
	logger     *slog.Logger
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Configuration returns the shared configuration.
func (s *Session) Configuration() *mapping.Configuration {
	return s.config
}

// Executor returns the outermost executor of the chain.
func (s *Session) Executor() executor.Executor {
	return s.exec
}

// IsDirty reports whether a write ran since the last commit or rollback.
func (s *Session) IsDirty() bool {
	return s.dirty
}

// IsClosed reports whether Close ran.
func (s *Session) IsClosed() bool {
	return s.closed
}

// SelectOne returns the single result of statement id, or nil when there is none.
func (s *Session) SelectOne(ctx context.Context, id string, params any) (any, error) {
	list, err := s.SelectList(ctx, id, params, mapping.DefaultBounds)
	if err != nil {
		return nil, err
	}
	switch len(list) {
	case 0:
		return nil, nil
	case 1:
		return list[0], nil
	default:
		return nil, ErrTooManyResults(id, len(list))
	}
}

// SelectList returns the results of statement id within bounds.
func (s *Session) SelectList(ctx context.Context, id string, params any, bounds mapping.Bounds) ([]any, error) {
	ms, err := s.config.Statement(id)
	if err != nil {
		return nil, wrapError(err, id, PhaseQuery)
	}
	list, err := s.exec.Query(ctx, ms, wrapCollection(params), bounds, nil)
	if err != nil {
		return nil, wrapError(err, id, PhaseQuery)
	}
	return list, nil
}

// SelectMap indexes the results of statement id by the mapKey property of each result.
// Results are maps or structs; later results overwrite earlier ones with the same key.
func (s *Session) SelectMap(ctx context.Context, id string, params any, mapKey string, bounds mapping.Bounds) (map[any]any, error) {
	list, err := s.SelectList(ctx, id, params, bounds)
	if err != nil {
		return nil, err
	}

	out := make(map[any]any, len(list))
	for _, value := range list {
		key, err := propertyOf(value, mapKey)
		if err != nil {
			return nil, wrapError(err, id, PhaseQuery)
		}
		out[key] = value
	}
	return out, nil
}

// Select streams the results of statement id to handler.
func (s *Session) Select(ctx context.Context, id string, params any, bounds mapping.Bounds, handler executor.ResultHandler) error {
	ms, err := s.config.Statement(id)
	if err != nil {
		return wrapError(err, id, PhaseQuery)
	}
	if _, err := s.exec.Query(ctx, ms, wrapCollection(params), bounds, handler); err != nil {
		return wrapError(err, id, PhaseQuery)
	}
	return nil
}

// Insert runs statement id and returns the affected row count.
func (s *Session) Insert(ctx context.Context, id string, params any) (int64, error) {
	return s.Update(ctx, id, params)
}

// Update runs statement id and returns the affected row count.
func (s *Session) Update(ctx context.Context, id string, params any) (int64, error) {
	ms, err := s.config.Statement(id)
	if err != nil {
		return 0, wrapError(err, id, PhaseUpdate)
	}
	s.dirty = true
	n, err := s.exec.Update(ctx, ms, wrapCollection(params))
	if err != nil {
		return 0, wrapError(err, id, PhaseUpdate)
	}
	return n, nil
}

// Delete runs statement id and returns the affected row count.
func (s *Session) Delete(ctx context.Context, id string, params any) (int64, error) {
	return s.Update(ctx, id, params)
}

// Commit commits when force is set or the session is dirty and not auto-committing.
// The dirty flag is reset even when the commit fails.
func (s *Session) Commit(ctx context.Context, force bool) error {
	err := s.exec.Commit(ctx, s.commitOrRollbackRequired(force))
	s.dirty = false
	return wrapError(err, "", PhaseCommit)
}

// Rollback rolls back when force is set or the session is dirty and not auto-committing.
// The dirty flag is reset even when the rollback fails.
func (s *Session) Rollback(ctx context.Context, force bool) error {
	err := s.exec.Rollback(ctx, s.commitOrRollbackRequired(force))
	s.dirty = false
	return wrapError(err, "", PhaseRollback)
}

// FlushStatements releases statements kept by the executor.
func (s *Session) FlushStatements(ctx context.Context) error {
	return wrapError(s.exec.FlushStatements(ctx), "", PhaseFlush)
}

// ClearCache clears the first-level cache.
func (s *Session) ClearCache() {
	s.exec.ClearLocalCache()
}

// Connection returns the connection of the session transaction.
func (s *Session) Connection(ctx context.Context) (bun.IDB, error) {
	conn, err := s.exec.Transaction().Connection(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "get connection")
	}
	return conn, nil
}

// Close rolls back uncommitted writes and releases the executor. Closing twice is a no-op.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	err := s.exec.Close(ctx, s.commitOrRollbackRequired(false))
	s.dirty = false
	s.closed = true

	if err != nil {
		wrapped := wrapError(err, "", PhaseClose)
		var rich *goerrors.Error
		if goerrors.As(wrapped, &rich) {
			goerrors.LogBySeverity(s.logger, rich)
		}
		return wrapped
	}
	s.logger.Debug("session closed")
	return nil
}

func (s *Session) commitOrRollbackRequired(force bool) bool {
	return (!s.autoCommit && s.dirty) || force
}

// SelectOneAs is SelectOne with the result asserted to T. The boolean is false when
// there was no result.
func SelectOneAs[T any](ctx context.Context, s *Session, id string, params any) (T, bool, error) {
	var zero T
	value, err := s.SelectOne(ctx, id, params)
	if err != nil || value == nil {
		return zero, false, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, false, goerrors.New("result of "+id+" is "+reflect.TypeOf(value).String(), goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"statement_id": id})
	}
	return typed, true, nil
}

// SelectListAs is SelectList with every result asserted to T.
func SelectListAs[T any](ctx context.Context, s *Session, id string, params any, bounds mapping.Bounds) ([]T, error) {
	list, err := s.SelectList(ctx, id, params, bounds)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(list))
	for _, value := range list {
		typed, ok := value.(T)
		if !ok {
			return nil, goerrors.New("result of "+id+" has unexpected type", goerrors.CategoryBadInput).
				WithMetadata(map[string]any{"statement_id": id})
		}
		out = append(out, typed)
	}
	return out, nil
}

// wrapCollection exposes typed slices under "collection" and "list" and arrays under
// "array". []any is left alone and binds positionally.
func wrapCollection(params any) any {
	if params == nil {
		return nil
	}
	if _, ok := params.([]any); ok {
		return params
	}
	if _, ok := params.([]byte); ok {
		return params
	}

	switch reflect.TypeOf(params).Kind() {
	case reflect.Slice:
		return mapping.StrictMap{"collection": params, "list": params}
	case reflect.Array:
		return mapping.StrictMap{"array": params}
	}
	return params
}

func propertyOf(value any, name string) (any, error) {
	if m, ok := value.(map[string]any); ok {
		key, found := m[name]
		if !found {
			return nil, invalidMapKey(name)
		}
		return hashable(key, name)
	}

	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Ptr && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, invalidMapKey(name)
	}
	field := rv.FieldByNameFunc(func(n string) bool { return strings.EqualFold(n, name) })
	if !field.IsValid() || !field.CanInterface() {
		return nil, invalidMapKey(name)
	}
	return hashable(field.Interface(), name)
}

func hashable(key any, name string) (any, error) {
	if key != nil && !reflect.TypeOf(key).Comparable() {
		return nil, invalidMapKey(name)
	}
	return key, nil
}

func invalidMapKey(name string) *goerrors.Error {
	return goerrors.New("map key property "+name+" is missing or not comparable", goerrors.CategoryBadInput).
		WithTextCode(TextCodeInvalidMapKey).
		WithMetadata(map[string]any{"map_key": name})
}
