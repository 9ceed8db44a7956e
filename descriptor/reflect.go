package descriptor

import (
	"reflect"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// TagName is the struct tag read by the reflection provider.
//
//	// Field serializes as "id"
//	ID int `toon:"id"`
//
//	// Field serializes as "name" and accepts null
//	Name string `toon:"name,nullable"`
//
//	// Field is never written and never assigned on decode
//	Secret string `toon:"-"`
//
// Untagged exported fields keep their Go name. Pointer, slice and interface
// fields are always nullable.
const TagName = "toon"

// Reflect derives descriptors from Go types and struct tags. Descriptors are
// cached per type and shared; they must not be modified.
type Reflect struct {
	mu      sync.Mutex
	cache   map[reflect.Type]*Type
	scalars map[reflect.Type]Scalar
	unions  map[reflect.Type]*Type
	added   []reflect.Type // cache entries created by the current TypeOf
}

// NewReflect creates a reflection provider with the built-in scalars.
func NewReflect() *Reflect {
	return &Reflect{
		cache:   make(map[reflect.Type]*Type),
		scalars: builtinScalars(),
		unions:  make(map[reflect.Type]*Type),
	}
}

// RegisterScalar installs the codec used for every value of goType.
// Register scalars before the first TypeOf call that can reach goType.
func (r *Reflect) RegisterScalar(goType reflect.Type, s Scalar) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scalars[goType] = s
}

// RegisterUnion makes u the descriptor for its interface type. Build u with
// NewUnion.
func (r *Reflect) RegisterUnion(u *Type) error {
	if u == nil || u.Kind != Union {
		return errors.New("descriptor: RegisterUnion requires a union descriptor")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unions[u.GoType] = u
	return nil
}

// TypeOf returns the descriptor for t, building and caching it on first use.
func (r *Reflect) TypeOf(t reflect.Type) (*Type, error) {
	if t == nil {
		return nil, errors.Wrap(ErrUnsupportedType, "nil type")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.added = r.added[:0]
	d, err := r.build(Deref(t))
	if err != nil {
		// Drop partially built records that may now be referenced by
		// other entries created in this call.
		for _, added := range r.added {
			delete(r.cache, added)
		}
		return nil, err
	}
	return d, nil
}

func (r *Reflect) build(t reflect.Type) (*Type, error) {
	if d, ok := r.cache[t]; ok {
		return d, nil
	}
	if s, ok := r.scalars[t]; ok {
		return r.store(&Type{Name: t.Name(), Kind: Primitive, GoType: t, Scalar: s}), nil
	}
	if u, ok := r.unions[t]; ok {
		return u, nil
	}
	if t.Kind() != reflect.Struct && isText(t) {
		return r.store(&Type{Name: t.Name(), Kind: Primitive, GoType: t, Scalar: textScalar{}}), nil
	}
	if s := kindScalar(t); s != nil {
		return r.store(&Type{Name: t.Name(), Kind: Primitive, GoType: t, Scalar: s}), nil
	}

	switch t.Kind() {
	case reflect.Struct:
		if isText(t) {
			return r.store(&Type{Name: t.Name(), Kind: Primitive, GoType: t, Scalar: textScalar{}}), nil
		}
		return r.buildRecord(t)
	case reflect.Slice:
		elem, err := r.build(Deref(t.Elem()))
		if err != nil {
			return nil, err
		}
		list, err := listOf(t, elem)
		if err != nil {
			return nil, err
		}
		return r.store(list), nil
	case reflect.Map:
		return nil, Unsupported(t, "maps are unordered")
	case reflect.Interface:
		return nil, Unsupported(t, "no union registered for interface")
	default:
		return nil, Unsupported(t, "")
	}
}

func (r *Reflect) store(d *Type) *Type {
	r.cache[d.GoType] = d
	r.added = append(r.added, d.GoType)
	return d
}

// buildRecord publishes the record before resolving its fields so that
// recursive types resolve to the same descriptor.
func (r *Reflect) buildRecord(t reflect.Type) (*Type, error) {
	d := r.store(&Type{Name: t.Name(), Kind: Record, GoType: t})

	fields := make([]Field, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		name, opts := parseTag(sf.Tag.Get(TagName))
		f := Field{
			Name:     sf.Name,
			GoName:   sf.Name,
			Index:    sf.Index,
			Nullable: isNullable(sf.Type) || opts.has("nullable"),
		}
		if name == "-" && opts == "" {
			f.Skip = true
			fields = append(fields, f)
			continue
		}
		if name != "" {
			f.Name = name
		}

		ft, err := r.build(Deref(sf.Type))
		if err != nil {
			return nil, errors.Wrapf(err, "field %s.%s", t.Name(), sf.Name)
		}
		f.Type = ft
		fields = append(fields, f)
	}

	if err := checkNames(t, fields); err != nil {
		return nil, err
	}
	d.Fields = fields
	return d, nil
}

type tagOptions string

func parseTag(tag string) (string, tagOptions) {
	name, opts, _ := strings.Cut(tag, ",")
	return name, tagOptions(opts)
}

func (o tagOptions) has(option string) bool {
	for _, opt := range strings.Split(string(o), ",") {
		if opt == option {
			return true
		}
	}
	return false
}

var _ Provider = (*Reflect)(nil)
