package executor

import (
	"reflect"
	"strings"

	"github.com/goliatone/go-sqlsession/cache"
)

type entryState int

const (
	stateLoading entryState = iota
	stateRealized
)

type localEntry struct {
	state entryState
	value []any
}

// LocalCache is the first-level cache of one executor. Entries are either loading
// (a query for the key is in flight) or realized. Deferred loads queue per key until
// the key is realized.
type LocalCache struct {
	entries  map[string]*localEntry
	deferred map[string][]*DeferredLoad
}

// NewLocalCache returns an empty cache.
func NewLocalCache() *LocalCache {
	return &LocalCache{
		entries:  make(map[string]*localEntry),
		deferred: make(map[string][]*DeferredLoad),
	}
}

// Get returns the realized value for key.
func (l *LocalCache) Get(key *cache.Key) ([]any, bool) {
	entry, ok := l.entries[key.String()]
	if !ok || entry.state != stateRealized {
		return nil, false
	}
	return entry.value, true
}

// IsLoading reports whether a load for key is in flight.
func (l *LocalCache) IsLoading(key *cache.Key) bool {
	entry, ok := l.entries[key.String()]
	return ok && entry.state == stateLoading
}

// Contains reports whether key is loading or realized.
func (l *LocalCache) Contains(key *cache.Key) bool {
	_, ok := l.entries[key.String()]
	return ok
}

// Size returns the number of entries, loading ones included.
func (l *LocalCache) Size() int {
	return len(l.entries)
}

// PendingLoads returns the number of deferred loads queued for key.
func (l *LocalCache) PendingLoads(key *cache.Key) int {
	return len(l.deferred[key.String()])
}

// Clear drops every entry and queued deferred load.
func (l *LocalCache) Clear() {
	clear(l.entries)
	clear(l.deferred)
}

func (l *LocalCache) markLoading(key *cache.Key) {
	l.entries[key.String()] = &localEntry{state: stateLoading}
}

// realize stores value and returns the deferred loads waiting on key.
func (l *LocalCache) realize(key *cache.Key, value []any) []*DeferredLoad {
	fp := key.String()
	l.entries[fp] = &localEntry{state: stateRealized, value: value}
	loads := l.deferred[fp]
	delete(l.deferred, fp)
	return loads
}

// remove drops key and its deferred loads.
func (l *LocalCache) remove(key *cache.Key) {
	fp := key.String()
	delete(l.entries, fp)
	delete(l.deferred, fp)
}

func (l *LocalCache) enqueue(load *DeferredLoad) {
	fp := load.Key.String()
	l.deferred[fp] = append(l.deferred[fp], load)
}

// PropertySetter lets a result type receive deferred values without reflection.
type PropertySetter interface {
	SetProperty(name string, value any) error
}

// DeferredLoad assigns the result stored under Key to Target.Property. Target is a
// PropertySetter, a map[string]any or a pointer to a struct. With Many the whole list
// is assigned, otherwise its single element.
type DeferredLoad struct {
	Target   any
	Property string
	Key      *cache.Key
	Many     bool
}

func (d *DeferredLoad) apply(list []any) error {
	var value any
	if d.Many {
		value = list
	} else {
		switch len(list) {
		case 0:
		case 1:
			value = list[0]
		default:
			return errDeferredLoad(d.Property, "expected one result, got more")
		}
	}

	switch target := d.Target.(type) {
	case PropertySetter:
		return target.SetProperty(d.Property, value)
	case map[string]any:
		target[d.Property] = value
		return nil
	}

	rv := reflect.ValueOf(d.Target)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return errDeferredLoad(d.Property, "target must be a pointer to a struct")
	}

	field := rv.Elem().FieldByNameFunc(func(n string) bool {
		return strings.EqualFold(n, d.Property)
	})
	if !field.IsValid() || !field.CanSet() {
		return errDeferredLoad(d.Property, "no settable field")
	}

	if d.Many && field.Kind() == reflect.Slice && field.Type().Elem().Kind() != reflect.Interface {
		out := reflect.MakeSlice(field.Type(), 0, len(list))
		for _, item := range list {
			ev, err := convert(item, field.Type().Elem())
			if err != nil {
				return errDeferredLoad(d.Property, err.Error())
			}
			out = reflect.Append(out, ev)
		}
		field.Set(out)
		return nil
	}

	fv, err := convert(value, field.Type())
	if err != nil {
		return errDeferredLoad(d.Property, err.Error())
	}
	field.Set(fv)
	return nil
}

type conversionError struct {
	from, to reflect.Type
}

func (e conversionError) Error() string {
	return "cannot assign " + e.from.String() + " to " + e.to.String()
}

func convert(value any, to reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(to), nil
	}
	rv := reflect.ValueOf(value)
	switch {
	case rv.Type().AssignableTo(to):
		return rv, nil
	case rv.Kind() == reflect.Ptr && !rv.IsNil() && rv.Elem().Type().AssignableTo(to):
		return rv.Elem(), nil
	case rv.Type().ConvertibleTo(to) && rv.Kind() != reflect.String:
		return rv.Convert(to), nil
	}
	return reflect.Value{}, conversionError{from: rv.Type(), to: to}
}
