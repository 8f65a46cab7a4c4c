package mapping

import (
	"errors"
	"math"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlsession/cache"
)

// CommandType is the SQL command a statement issues.
type CommandType int

const (
	CommandUnknown CommandType = iota
	CommandSelect
	CommandInsert
	CommandUpdate
	CommandDelete
)

func (c CommandType) String() string {
	switch c {
	case CommandSelect:
		return "select"
	case CommandInsert:
		return "insert"
	case CommandUpdate:
		return "update"
	case CommandDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// StatementKind separates plain prepared statements from procedure calls.
type StatementKind int

const (
	KindPrepared StatementKind = iota
	KindCallable
)

// ParameterMode is the direction of a procedure parameter.
type ParameterMode int

const (
	ModeIn ParameterMode = iota
	ModeOut
	ModeInOut
)

// ParameterMapping declares one bound parameter, in declaration order.
type ParameterMapping struct {
	Name string        `json:"name"`
	Mode ParameterMode `json:"mode"`
}

// Bounds restricts the rows returned by a query. The zero value, like DefaultBounds,
// returns every row: a Limit of zero or less means no limit.
type Bounds struct {
	Offset int
	Limit  int
}

const (
	NoOffset = 0
	NoLimit  = math.MaxInt
)

// DefaultBounds returns every row.
var DefaultBounds = Bounds{Offset: NoOffset, Limit: NoLimit}

// NewBounds returns bounds skipping offset rows and returning at most limit rows.
func NewBounds(offset, limit int) Bounds {
	return Bounds{Offset: offset, Limit: limit}
}

// Normalize maps every unlimited form to NoLimit so equal restrictions compare equal.
func (b Bounds) Normalize() Bounds {
	if b.Limit <= 0 {
		b.Limit = NoLimit
	}
	return b
}

// IsDefault reports whether b applies no restriction.
func (b Bounds) IsDefault() bool {
	n := b.Normalize()
	return n.Offset == NoOffset && n.Limit == NoLimit
}

// Validate rejects a negative offset.
func (b Bounds) Validate() error {
	if b.Offset < 0 {
		return goerrors.New("bounds offset must not be negative", goerrors.CategoryBadInput).
			WithTextCode(TextCodeInvalidBounds).
			WithMetadata(map[string]any{"offset": b.Offset, "limit": b.Limit})
	}
	return nil
}

// Statement describes one mapped operation. Statements are read-only once registered
// in a Configuration.
type Statement struct {
	ID                 string             `json:"id"`
	Namespace          string             `json:"namespace"`
	SQL                string             `json:"sql"`
	Command            CommandType        `json:"command"`
	Kind               StatementKind      `json:"kind"`
	Params             []ParameterMapping `json:"params"`
	Cache              cache.Cache        `json:"-"`
	UseCache           bool               `json:"use_cache"`
	FlushCacheRequired bool               `json:"flush_cache"`
	Binder             ParameterBinder    `json:"-"`
}

// StatementOption customises a Statement built with NewStatement.
type StatementOption func(*Statement)

// NewStatement builds a statement with the command defaults applied: selects use the
// second-level cache and never flush it, writes flush it.
func NewStatement(id, sql string, command CommandType, opts ...StatementOption) *Statement {
	st := &Statement{
		ID:                 id,
		SQL:                sql,
		Command:            command,
		Kind:               KindPrepared,
		UseCache:           command == CommandSelect,
		FlushCacheRequired: command != CommandSelect,
	}
	for _, opt := range opts {
		opt(st)
	}
	return st
}

// WithNamespace sets the namespace the statement belongs to.
func WithNamespace(ns string) StatementOption {
	return func(s *Statement) { s.Namespace = ns }
}

// WithCache attaches the shared cache used by the statement.
func WithCache(c cache.Cache) StatementOption {
	return func(s *Statement) { s.Cache = c }
}

// WithUseCache overrides the second-level cache default.
func WithUseCache(use bool) StatementOption {
	return func(s *Statement) { s.UseCache = use }
}

// WithFlushCache overrides the flush default.
func WithFlushCache(flush bool) StatementOption {
	return func(s *Statement) { s.FlushCacheRequired = flush }
}

// WithCallable marks the statement as a procedure call.
func WithCallable() StatementOption {
	return func(s *Statement) { s.Kind = KindCallable }
}

// WithParams declares the bound parameters in order.
func WithParams(params ...ParameterMapping) StatementOption {
	return func(s *Statement) { s.Params = append(s.Params, params...) }
}

// WithBinder replaces the default parameter binder.
func WithBinder(b ParameterBinder) StatementOption {
	return func(s *Statement) { s.Binder = b }
}

// In, Out and InOut are shorthands for parameter mappings.
func In(name string) ParameterMapping    { return ParameterMapping{Name: name, Mode: ModeIn} }
func Out(name string) ParameterMapping   { return ParameterMapping{Name: name, Mode: ModeOut} }
func InOut(name string) ParameterMapping { return ParameterMapping{Name: name, Mode: ModeInOut} }

// HasOutParams reports whether any declared parameter is not input-only.
func (s *Statement) HasOutParams() bool {
	for _, p := range s.Params {
		if p.Mode != ModeIn {
			return true
		}
	}
	return false
}

// IsSelect reports whether the statement reads.
func (s *Statement) IsSelect() bool {
	return s.Command == CommandSelect
}

// UnsafeToCache reports whether caching this statement would store partial results:
// a procedure call with OUT parameters combined with UseCache.
func (s *Statement) UnsafeToCache() bool {
	return s.UseCache && s.Kind == KindCallable && s.HasOutParams()
}

// Bind resolves params against the declared parameters.
func (s *Statement) Bind(params any) (BoundStatement, error) {
	binder := s.Binder
	if binder == nil {
		binder = DefaultBinder{}
	}
	return binder.Bind(s, params)
}

var errUnsafeCache = errors.New("callable statements with OUT parameters cannot use the cache")

// Validate checks the descriptor invariants.
func (s *Statement) Validate() error {
	err := validation.ValidateStruct(s,
		validation.Field(&s.ID, validation.Required),
		validation.Field(&s.SQL, validation.Required),
		validation.Field(&s.Command, validation.Required.Error("must be select, insert, update or delete")),
		validation.Field(&s.UseCache, validation.By(func(any) error {
			if s.UnsafeToCache() {
				return errUnsafeCache
			}
			return nil
		})),
	)
	if err == nil {
		return nil
	}
	return goerrors.FromOzzoValidation(err, "invalid statement "+s.ID).
		WithTextCode(TextCodeInvalidStatement).
		WithMetadata(map[string]any{"statement_id": s.ID})
}
