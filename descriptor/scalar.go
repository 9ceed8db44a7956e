package descriptor

import (
	"encoding"
	"reflect"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-module/carbon/v2"
	"github.com/google/uuid"
)

// Scalar converts a primitive value to and from its canonical string form.
// Format receives the base (non-pointer) value; Parse receives a settable
// base value.
type Scalar interface {
	Format(v reflect.Value) (string, error)
	Parse(s string, v reflect.Value) error
}

// ScalarFuncs adapts a pair of functions to the Scalar interface.
type ScalarFuncs struct {
	FormatFunc func(v reflect.Value) (string, error)
	ParseFunc  func(s string, v reflect.Value) error
}

func (f ScalarFuncs) Format(v reflect.Value) (string, error) { return f.FormatFunc(v) }
func (f ScalarFuncs) Parse(s string, v reflect.Value) error { return f.ParseFunc(s, v) }

var (
	timeType            = reflect.TypeOf(time.Time{})
	durationType        = reflect.TypeOf(time.Duration(0))
	uuidType            = reflect.TypeOf(uuid.UUID{})
	textMarshalerType   = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// builtinScalars are consulted before the Go kind of a type.
func builtinScalars() map[reflect.Type]Scalar {
	return map[reflect.Type]Scalar{
		timeType:     timeScalar{},
		durationType: durationScalar{},
		uuidType:     uuidScalar{},
	}
}

// kindScalar returns the scalar for a basic Go kind, or nil.
func kindScalar(t reflect.Type) Scalar {
	switch t.Kind() {
	case reflect.Bool:
		return boolScalar{}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return intScalar{}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return uintScalar{}
	case reflect.Float32, reflect.Float64:
		return floatScalar{}
	case reflect.String:
		return stringScalar{}
	default:
		return nil
	}
}

// isText reports whether t round-trips through encoding.TextMarshaler and
// encoding.TextUnmarshaler.
func isText(t reflect.Type) bool {
	pt := reflect.PtrTo(t)
	marshals := t.Implements(textMarshalerType) || pt.Implements(textMarshalerType)
	return marshals && pt.Implements(textUnmarshalerType)
}

type boolScalar struct{}

func (boolScalar) Format(v reflect.Value) (string, error) {
	return strconv.FormatBool(v.Bool()), nil
}

func (boolScalar) Parse(s string, v reflect.Value) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return errors.Newf("invalid boolean %q", s)
	}
	v.SetBool(b)
	return nil
}

type intScalar struct{}

func (intScalar) Format(v reflect.Value) (string, error) {
	return strconv.FormatInt(v.Int(), 10), nil
}

func (intScalar) Parse(s string, v reflect.Value) error {
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return errors.Newf("invalid integer %q", s)
	}
	if v.OverflowInt(i) {
		return errors.Newf("%d overflows %s", i, v.Type())
	}
	v.SetInt(i)
	return nil
}

type uintScalar struct{}

func (uintScalar) Format(v reflect.Value) (string, error) {
	return strconv.FormatUint(v.Uint(), 10), nil
}

func (uintScalar) Parse(s string, v reflect.Value) error {
	u, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return errors.Newf("invalid unsigned integer %q", s)
	}
	if v.OverflowUint(u) {
		return errors.Newf("%d overflows %s", u, v.Type())
	}
	v.SetUint(u)
	return nil
}

// floatScalar writes plain decimal notation, never an exponent, because the
// number grammar has none; very large or small values are long but exact.
type floatScalar struct{}

func (floatScalar) Format(v reflect.Value) (string, error) {
	return strconv.FormatFloat(v.Float(), 'f', -1, v.Type().Bits()), nil
}

func (floatScalar) Parse(s string, v reflect.Value) error {
	f, err := strconv.ParseFloat(s, v.Type().Bits())
	if err != nil {
		return errors.Newf("invalid number %q", s)
	}
	v.SetFloat(f)
	return nil
}

type stringScalar struct{}

func (stringScalar) Format(v reflect.Value) (string, error) {
	return v.String(), nil
}

func (stringScalar) Parse(s string, v reflect.Value) error {
	v.SetString(s)
	return nil
}

// timeScalar writes RFC 3339 and reads RFC 3339 first, then anything carbon
// understands, interpreted in UTC when no zone is given.
type timeScalar struct{}

func (timeScalar) Format(v reflect.Value) (string, error) {
	return v.Interface().(time.Time).Format(time.RFC3339Nano), nil
}

func (timeScalar) Parse(s string, v reflect.Value) error {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		v.Set(reflect.ValueOf(ts))
		return nil
	}
	c := carbon.Parse(s, "UTC")
	if c.Error != nil {
		return errors.Newf("invalid timestamp %q", s)
	}
	v.Set(reflect.ValueOf(c.ToStdTime()))
	return nil
}

type durationScalar struct{}

func (durationScalar) Format(v reflect.Value) (string, error) {
	return time.Duration(v.Int()).String(), nil
}

func (durationScalar) Parse(s string, v reflect.Value) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return errors.Newf("invalid duration %q", s)
	}
	v.SetInt(int64(d))
	return nil
}

type uuidScalar struct{}

func (uuidScalar) Format(v reflect.Value) (string, error) {
	return v.Interface().(uuid.UUID).String(), nil
}

func (uuidScalar) Parse(s string, v reflect.Value) error {
	id, err := uuid.Parse(s)
	if err != nil {
		return errors.Wrapf(err, "invalid uuid %q", s)
	}
	v.Set(reflect.ValueOf(id))
	return nil
}

type textScalar struct{}

func (textScalar) Format(v reflect.Value) (string, error) {
	m, ok := v.Interface().(encoding.TextMarshaler)
	if !ok {
		if !v.CanAddr() {
			// MarshalText has a pointer receiver; work on a copy.
			cp := reflect.New(v.Type()).Elem()
			cp.Set(v)
			v = cp
		}
		m = v.Addr().Interface().(encoding.TextMarshaler)
	}
	b, err := m.MarshalText()
	if err != nil {
		return "", errors.Wrapf(err, "marshal %s", v.Type())
	}
	return string(b), nil
}

func (textScalar) Parse(s string, v reflect.Value) error {
	u := v.Addr().Interface().(encoding.TextUnmarshaler)
	if err := u.UnmarshalText([]byte(s)); err != nil {
		return errors.Wrapf(err, "invalid %s %q", v.Type(), s)
	}
	return nil
}
