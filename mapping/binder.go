package mapping

import (
	"reflect"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// BoundStatement is the SQL text plus the arguments resolved for one execution.
type BoundStatement struct {
	SQL  string
	Args []any
}

// ParameterBinder resolves a caller supplied parameter object into positional arguments.
type ParameterBinder interface {
	Bind(ms *Statement, params any) (BoundStatement, error)
}

// ParameterBinderFunc adapts a function to ParameterBinder.
type ParameterBinderFunc func(ms *Statement, params any) (BoundStatement, error)

func (f ParameterBinderFunc) Bind(ms *Statement, params any) (BoundStatement, error) {
	return f(ms, params)
}

// StrictMap is a parameter map whose lookups fail on missing keys instead of yielding nil.
type StrictMap map[string]any

// Get returns the value under key or a binding error.
func (m StrictMap) Get(key string) (any, error) {
	value, ok := m[key]
	if !ok {
		return nil, ErrParameterNotFound(key, m.keys())
	}
	return value, nil
}

func (m StrictMap) keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DefaultBinder binds by declared parameter name.
//
// With no declared parameters a []any is used positionally and any other non-nil,
// non-map value becomes the only argument. With declared parameters each name is
// looked up in a StrictMap, a map[string]any or the exported fields of a struct; a
// single declared parameter also accepts a scalar, and []any binds by position.
type DefaultBinder struct{}

func (DefaultBinder) Bind(ms *Statement, params any) (BoundStatement, error) {
	bound := BoundStatement{SQL: ms.SQL}

	if len(ms.Params) == 0 {
		bound.Args = positional(params)
		return bound, nil
	}

	bound.Args = make([]any, 0, len(ms.Params))
	for i, p := range ms.Params {
		value, err := lookup(params, p.Name, i, len(ms.Params))
		if err != nil {
			return BoundStatement{}, err
		}
		bound.Args = append(bound.Args, value)
	}
	return bound, nil
}

func positional(params any) []any {
	switch v := params.(type) {
	case nil:
		return nil
	case []any:
		return v
	case StrictMap, map[string]any:
		return nil
	}

	rv := reflect.ValueOf(params)
	if rv.Kind() == reflect.Map || (rv.Kind() == reflect.Ptr && rv.Elem().Kind() == reflect.Struct) || rv.Kind() == reflect.Struct {
		return nil
	}
	return []any{params}
}

func lookup(params any, name string, index, total int) (any, error) {
	switch v := params.(type) {
	case nil:
		return nil, nil
	case StrictMap:
		return v.Get(name)
	case map[string]any:
		value, ok := v[name]
		if !ok {
			return nil, ErrParameterNotFound(name, StrictMap(v).keys())
		}
		return value, nil
	case []any:
		if index >= len(v) {
			return nil, goerrors.New("not enough positional parameters", goerrors.CategoryBadInput).
				WithTextCode(TextCodeInvalidParameter).
				WithMetadata(map[string]any{"parameter": name, "expected": total, "got": len(v)})
		}
		return v[index], nil
	}

	rv := reflect.ValueOf(params)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}

	if rv.Kind() == reflect.Struct {
		field := rv.FieldByNameFunc(func(n string) bool {
			return strings.EqualFold(n, name)
		})
		if !field.IsValid() || !field.CanInterface() {
			return nil, ErrParameterNotFound(name, exportedFields(rv.Type()))
		}
		return field.Interface(), nil
	}

	if total == 1 {
		return params, nil
	}
	return nil, goerrors.New("scalar parameter cannot bind multiple placeholders", goerrors.CategoryBadInput).
		WithTextCode(TextCodeInvalidParameter).
		WithMetadata(map[string]any{"parameter": name, "expected": total})
}

func exportedFields(rt reflect.Type) []string {
	var names []string
	for i := 0; i < rt.NumField(); i++ {
		if f := rt.Field(i); f.IsExported() {
			names = append(names, f.Name)
		}
	}
	return names
}
