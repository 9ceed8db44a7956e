// Package descriptor supplies the per-type structural metadata consumed by
// the TOON codec: the structural kind of a Go type, and for records the
// ordered serialized field names with their nullable and skip flags.
//
// Descriptors come from a Provider. NewReflect derives them from struct
// tags; NewTable serves hand-written descriptors assembled with NewRecord
// and NewUnion.
package descriptor

import (
	"fmt"
	"reflect"

	"github.com/cockroachdb/errors"

	"github.com/paularlott/toon/internal/lexer"
)

// ErrUnsupportedType is returned for Go types that have no TOON
// representation, such as maps, channels and functions.
var ErrUnsupportedType = errors.New("unsupported type")

// Kind is the structural kind of a described type.
type Kind int

const (
	Primitive Kind = iota
	Record
	RecordList
	PrimitiveList
	Union
)

func (k Kind) String() string {
	switch k {
	case Primitive:
		return "primitive"
	case Record:
		return "record"
	case RecordList:
		return "list of records"
	case PrimitiveList:
		return "list of primitives"
	case Union:
		return "union"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Provider resolves Go types to descriptors. Implementations must be safe
// for concurrent use.
type Provider interface {
	TypeOf(t reflect.Type) (*Type, error)
}

// Type describes how values of one Go type are laid out. Pointer
// indirection is not part of a descriptor: GoType is always the base type
// and nullability is carried by the Field that holds it.
type Type struct {
	Name   string
	Kind   Kind
	GoType reflect.Type

	// Primitive
	Scalar Scalar

	// Record
	Fields []Field

	// RecordList, PrimitiveList
	Elem *Type

	// Union
	Discriminator string
	Variants      []Variant
}

// Field is one entry of a record descriptor.
type Field struct {
	Name     string // serialized name
	GoName   string
	Index    []int
	Nullable bool
	Skip     bool
	Type     *Type // nil when Skip is set
}

// Variant binds a discriminator value to a concrete record type.
type Variant struct {
	Tag     string
	Type    *Type
	Pointer bool // the interface is implemented by *T rather than T
}

func (t *Type) String() string {
	if t.GoType != nil {
		return t.GoType.String()
	}
	return t.Name
}

// FieldNames returns the serialized names of the non-skipped fields in
// declaration order.
func (t *Type) FieldNames() []string {
	names := make([]string, 0, len(t.Fields))
	for i := range t.Fields {
		if !t.Fields[i].Skip {
			names = append(names, t.Fields[i].Name)
		}
	}
	return names
}

// FieldIndex returns the index in Fields of the non-skipped field with the
// given serialized name, or -1.
func (t *Type) FieldIndex(name string) int {
	for i := range t.Fields {
		if !t.Fields[i].Skip && t.Fields[i].Name == name {
			return i
		}
	}
	return -1
}

// IsFlat reports whether every non-skipped field is primitive, which is
// what table rows require.
func (t *Type) IsFlat() bool {
	for i := range t.Fields {
		if !t.Fields[i].Skip && t.Fields[i].Type.Kind != Primitive {
			return false
		}
	}
	return true
}

// VariantByTag returns the variant selected by a discriminator value.
func (t *Type) VariantByTag(tag string) (*Variant, bool) {
	for i := range t.Variants {
		if t.Variants[i].Tag == tag {
			return &t.Variants[i], true
		}
	}
	return nil, false
}

// VariantOf returns the variant whose record type is goType.
func (t *Type) VariantOf(goType reflect.Type) (*Variant, bool) {
	for i := range t.Variants {
		if t.Variants[i].Type.GoType == goType {
			return &t.Variants[i], true
		}
	}
	return nil, false
}

// Tags returns the discriminator values of a union.
func (t *Type) Tags() []string {
	tags := make([]string, len(t.Variants))
	for i := range t.Variants {
		tags[i] = t.Variants[i].Tag
	}
	return tags
}

// Unsupported builds an error that wraps ErrUnsupportedType and names t.
func Unsupported(t reflect.Type, reason string) error {
	if reason == "" {
		return errors.Wrapf(ErrUnsupportedType, "%s", t)
	}
	return errors.Wrapf(ErrUnsupportedType, "%s (%s)", t, reason)
}

// Deref strips pointer types.
func Deref(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// isNullable reports whether a field of Go type t can hold null.
func isNullable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Interface:
		return true
	default:
		return false
	}
}

// listOf wraps an element descriptor into the list descriptor for goType.
func listOf(goType reflect.Type, elem *Type) (*Type, error) {
	switch elem.Kind {
	case Record:
		return &Type{Kind: RecordList, GoType: goType, Elem: elem}, nil
	case Primitive:
		return &Type{Kind: PrimitiveList, GoType: goType, Elem: elem}, nil
	default:
		return nil, Unsupported(goType, "list elements must be records or primitives")
	}
}

// checkNames validates serialized field names: identifiers, unique.
func checkNames(goType reflect.Type, fields []Field) error {
	seen := make(map[string]string, len(fields))
	for i := range fields {
		f := &fields[i]
		if f.Skip {
			continue
		}
		if !lexer.IsIdentifier(f.Name) {
			return errors.Newf("descriptor: %s.%s: serialized name %q is not an identifier", goType, f.GoName, f.Name)
		}
		if other, ok := seen[f.Name]; ok {
			return errors.Newf("descriptor: %s: fields %s and %s both serialize as %q", goType, other, f.GoName, f.Name)
		}
		seen[f.Name] = f.GoName
	}
	return nil
}
