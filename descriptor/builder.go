package descriptor

import (
	"reflect"

	"github.com/cockroachdb/errors"

	"github.com/paularlott/toon/internal/lexer"
)

// FieldOption adjusts a field added with RecordBuilder.Field.
type FieldOption func(*Field)

// Nullable lets the field accept null even when its Go type cannot be nil;
// a decoded null leaves the zero value.
func Nullable() FieldOption {
	return func(f *Field) {
		f.Nullable = true
	}
}

// Required makes a pointer, slice or interface field reject null.
func Required() FieldOption {
	return func(f *Field) {
		f.Nullable = false
	}
}

// WithScalar overrides the codec of a primitive field.
func WithScalar(s Scalar) FieldOption {
	return func(f *Field) {
		t := *f.Type
		t.Scalar = s
		f.Type = &t
	}
}

// RecordBuilder provides a fluent API for hand-written record descriptors.
// Only the fields named through Field are serialized, in the order they
// were added.
//
//	user, err := descriptor.NewRecord(reflect.TypeOf(User{})).
//		Field("ID", "id").
//		Field("Name", "full_name", descriptor.Nullable()).
//		Skip("Password").
//		Build(provider)
type RecordBuilder struct {
	goType reflect.Type
	name   string
	fields []fieldDef
}

type fieldDef struct {
	goName string
	name   string
	skip   bool
	opts   []FieldOption
}

// NewRecord starts a descriptor for the struct type goType.
func NewRecord(goType reflect.Type) *RecordBuilder {
	goType = Deref(goType)
	return &RecordBuilder{
		goType: goType,
		name:   goType.Name(),
		fields: []fieldDef{},
	}
}

// Named sets the descriptor name.
func (b *RecordBuilder) Named(name string) *RecordBuilder {
	b.name = name
	return b
}

// Field adds the Go field goName under the serialized name.
func (b *RecordBuilder) Field(goName, name string, opts ...FieldOption) *RecordBuilder {
	b.fields = append(b.fields, fieldDef{goName: goName, name: name, opts: opts})
	return b
}

// Skip records goName as excluded from the wire format.
func (b *RecordBuilder) Skip(goName string) *RecordBuilder {
	b.fields = append(b.fields, fieldDef{goName: goName, skip: true})
	return b
}

// Build resolves the field types through p and returns the descriptor.
func (b *RecordBuilder) Build(p Provider) (*Type, error) {
	if b.goType.Kind() != reflect.Struct {
		return nil, Unsupported(b.goType, "records must be structs")
	}

	d := &Type{Name: b.name, Kind: Record, GoType: b.goType}
	for _, def := range b.fields {
		sf, ok := b.goType.FieldByName(def.goName)
		if !ok || len(sf.Index) != 1 {
			return nil, errors.Newf("descriptor: %s has no field %s", b.goType, def.goName)
		}
		if !sf.IsExported() {
			return nil, errors.Newf("descriptor: %s.%s is not exported", b.goType, def.goName)
		}

		f := Field{
			Name:     def.name,
			GoName:   sf.Name,
			Index:    sf.Index,
			Nullable: isNullable(sf.Type),
			Skip:     def.skip,
		}
		if !f.Skip {
			ft, err := p.TypeOf(sf.Type)
			if err != nil {
				return nil, errors.Wrapf(err, "field %s.%s", b.goType.Name(), sf.Name)
			}
			f.Type = ft
			for _, opt := range def.opts {
				opt(&f)
			}
			if f.Type.Kind != Primitive && f.Type.Scalar != nil {
				return nil, errors.Newf("descriptor: %s.%s: WithScalar applies to primitive fields only", b.goType, sf.Name)
			}
		}
		d.Fields = append(d.Fields, f)
	}

	if err := checkNames(b.goType, d.Fields); err != nil {
		return nil, err
	}
	return d, nil
}

// UnionBuilder assembles a polymorphic descriptor for an interface type.
// The discriminator is written as the first field of every variant.
//
//	shape, err := descriptor.NewUnion(reflect.TypeOf((*Shape)(nil)).Elem(), "kind").
//		Variant("circle", reflect.TypeOf(Circle{})).
//		Variant("rect", reflect.TypeOf(&Rect{})).
//		Build(provider)
type UnionBuilder struct {
	iface         reflect.Type
	discriminator string
	variants      []variantDef
}

type variantDef struct {
	tag    string
	goType reflect.Type
}

// NewUnion starts a union over the interface type iface.
func NewUnion(iface reflect.Type, discriminator string) *UnionBuilder {
	return &UnionBuilder{iface: iface, discriminator: discriminator}
}

// Variant binds tag to goType, which is a struct type or a pointer to one
// and must implement the interface.
func (b *UnionBuilder) Variant(tag string, goType reflect.Type) *UnionBuilder {
	b.variants = append(b.variants, variantDef{tag: tag, goType: goType})
	return b
}

// Build resolves every variant through p and returns the descriptor.
func (b *UnionBuilder) Build(p Provider) (*Type, error) {
	if b.iface.Kind() != reflect.Interface {
		return nil, Unsupported(b.iface, "unions must be interfaces")
	}
	if len(b.variants) == 0 {
		return nil, errors.Newf("descriptor: union %s has no variants", b.iface)
	}
	if !lexer.IsIdentifier(b.discriminator) {
		return nil, errors.Newf("descriptor: union %s: discriminator %q is not an identifier", b.iface, b.discriminator)
	}

	d := &Type{Name: b.iface.Name(), Kind: Union, GoType: b.iface, Discriminator: b.discriminator}
	for _, def := range b.variants {
		if def.tag == "" {
			return nil, errors.Newf("descriptor: union %s: empty tag for %s", b.iface, def.goType)
		}
		if _, dup := d.VariantByTag(def.tag); dup {
			return nil, errors.Newf("descriptor: union %s: duplicate tag %q", b.iface, def.tag)
		}
		if !def.goType.Implements(b.iface) {
			return nil, errors.Newf("descriptor: %s does not implement %s", def.goType, b.iface)
		}

		vt, err := p.TypeOf(def.goType)
		if err != nil {
			return nil, errors.Wrapf(err, "union %s variant %q", b.iface, def.tag)
		}
		if vt.Kind != Record {
			return nil, Unsupported(def.goType, "union variants must be records")
		}
		if vt.FieldIndex(b.discriminator) >= 0 {
			return nil, errors.Newf("descriptor: %s already has a field named %q", def.goType, b.discriminator)
		}
		d.Variants = append(d.Variants, Variant{
			Tag:     def.tag,
			Type:    vt,
			Pointer: def.goType.Kind() == reflect.Ptr,
		})
	}
	return d, nil
}
