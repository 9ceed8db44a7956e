package descriptor

import (
	"reflect"
	"sync"

	"github.com/cockroachdb/errors"
)

// Table serves hand-written descriptors and defers every other type to a
// fallback provider. Slices of registered records resolve to lists of the
// registered descriptor.
type Table struct {
	mu       sync.RWMutex
	types    map[reflect.Type]*Type
	fallback Provider
}

// NewTable creates a table backed by fallback, which may be nil.
func NewTable(fallback Provider) *Table {
	return &Table{
		types:    make(map[reflect.Type]*Type),
		fallback: fallback,
	}
}

// Register adds a descriptor built with NewRecord or NewUnion. A second
// registration for the same Go type replaces the first.
func (t *Table) Register(d *Type) error {
	if d == nil || d.GoType == nil {
		return errors.New("descriptor: cannot register a descriptor without a Go type")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.types[d.GoType] = d
	return nil
}

// MustRegister is like Register but panics on error.
func (t *Table) MustRegister(d *Type, err error) *Table {
	if err != nil {
		panic(err)
	}
	if err := t.Register(d); err != nil {
		panic(err)
	}
	return t
}

// TypeOf returns the registered descriptor for goType, a list of it, or the
// fallback's answer.
func (t *Table) TypeOf(goType reflect.Type) (*Type, error) {
	if goType == nil {
		return nil, errors.Wrap(ErrUnsupportedType, "nil type")
	}
	goType = Deref(goType)

	t.mu.RLock()
	d, ok := t.types[goType]
	var elem *Type
	if !ok && goType.Kind() == reflect.Slice {
		elem = t.types[Deref(goType.Elem())]
	}
	t.mu.RUnlock()

	switch {
	case ok:
		return d, nil
	case elem != nil:
		return listOf(goType, elem)
	case t.fallback != nil:
		return t.fallback.TypeOf(goType)
	default:
		return nil, Unsupported(goType, "not registered")
	}
}

var _ Provider = (*Table)(nil)
