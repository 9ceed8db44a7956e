// Package jsontoon converts JSON documents to TOON. The JSON is read
// against a descriptor, so only the fields the descriptor names are kept
// and they come out in descriptor order.
package jsontoon

import (
	"reflect"
	"strconv"

	"github.com/buger/jsonparser"
	"github.com/cockroachdb/errors"

	"github.com/paularlott/toon"
	"github.com/paularlott/toon/descriptor"
)

// Transcode reads the JSON document data as a value of t and returns its
// TOON form.
func Transcode(data []byte, t *descriptor.Type) (string, error) {
	return TranscodeWithOptions(data, t, nil)
}

// TranscodeWithOptions is Transcode with explicit encoding options.
func TranscodeWithOptions(data []byte, t *descriptor.Type, opts *toon.Options) (string, error) {
	if t == nil {
		return "", errors.New("jsontoon: nil descriptor")
	}
	v := reflect.New(t.GoType)
	if err := Fill(data, v.Interface(), t); err != nil {
		return "", err
	}
	return toon.EncodeWithOptions(v.Elem().Interface(), t, opts)
}

// Fill decodes the JSON document data into the value pointed to by v,
// which t describes. Keys the descriptor does not name are ignored.
func Fill(data []byte, v interface{}, t *descriptor.Type) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.Newf("jsontoon: Fill requires a non-nil pointer, got %T", v)
	}

	raw, dataType, _, err := jsonparser.Get(data)
	if err != nil {
		return errors.Wrap(err, "jsontoon: malformed JSON")
	}
	if dataType == jsonparser.Null {
		rv.Elem().Set(reflect.Zero(rv.Elem().Type()))
		return nil
	}
	return fill(raw, dataType, rv.Elem(), t, "$")
}

func fill(raw []byte, dataType jsonparser.ValueType, v reflect.Value, t *descriptor.Type, path string) error {
	switch t.Kind {
	case descriptor.Primitive:
		return fillScalar(raw, dataType, v, t, path)
	case descriptor.Record:
		if dataType != jsonparser.Object {
			return mismatch(path, "object", dataType)
		}
		return fillRecord(raw, allocate(v), t, path)
	case descriptor.Union:
		if dataType != jsonparser.Object {
			return mismatch(path, "object", dataType)
		}
		return fillUnion(raw, allocate(v), t, path)
	case descriptor.RecordList, descriptor.PrimitiveList:
		if dataType != jsonparser.Array {
			return mismatch(path, "array", dataType)
		}
		return fillList(raw, allocate(v), t, path)
	default:
		return descriptor.Unsupported(t.GoType, "")
	}
}

func fillScalar(raw []byte, dataType jsonparser.ValueType, v reflect.Value, t *descriptor.Type, path string) error {
	var text string
	switch dataType {
	case jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return errors.Wrapf(err, "jsontoon: %s", path)
		}
		text = s
	case jsonparser.Number, jsonparser.Boolean:
		text = string(raw)
	default:
		return mismatch(path, "scalar", dataType)
	}

	if err := t.Scalar.Parse(text, allocate(v)); err != nil {
		return errors.Wrapf(toon.ErrTypeMismatch, "jsontoon: %s: %s", path, err)
	}
	return nil
}

func fillRecord(raw []byte, v reflect.Value, t *descriptor.Type, path string) error {
	for i := range t.Fields {
		f := &t.Fields[i]
		if f.Skip {
			continue
		}
		fieldPath := path + "." + f.Name

		value, dataType, _, err := jsonparser.Get(raw, f.Name)
		if dataType == jsonparser.NotExist {
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "jsontoon: %s", fieldPath)
		}
		if dataType == jsonparser.Null {
			if !f.Nullable {
				return errors.Wrapf(toon.ErrEmptyValue, "jsontoon: %s is null but not nullable", fieldPath)
			}
			continue
		}
		if err := fill(value, dataType, v.FieldByIndex(f.Index), f.Type, fieldPath); err != nil {
			return err
		}
	}
	return nil
}

func fillUnion(raw []byte, v reflect.Value, t *descriptor.Type, path string) error {
	tag, err := jsonparser.GetString(raw, t.Discriminator)
	if err != nil {
		return errors.Wrapf(toon.ErrTypeMismatch, "jsontoon: %s: missing string discriminator %q", path, t.Discriminator)
	}
	variant, ok := t.VariantByTag(tag)
	if !ok {
		return errors.Wrapf(toon.ErrUnknownField, "jsontoon: %s: %s %q", path, t.Discriminator, tag)
	}

	rec := reflect.New(variant.Type.GoType).Elem()
	if err := fillRecord(raw, rec, variant.Type, path); err != nil {
		return err
	}
	if variant.Pointer {
		rec = rec.Addr()
	}
	v.Set(rec)
	return nil
}

func fillList(raw []byte, v reflect.Value, t *descriptor.Type, path string) error {
	sliceType := v.Type()
	slice := reflect.MakeSlice(sliceType, 0, 0)
	nullable := t.Kind == descriptor.PrimitiveList && sliceType.Elem().Kind() == reflect.Ptr

	var fillErr error
	i := 0
	_, err := jsonparser.ArrayEach(raw, func(value []byte, dataType jsonparser.ValueType, _ int, err error) {
		if fillErr != nil {
			return
		}
		elemPath := path + "[" + strconv.Itoa(i) + "]"
		i++
		if err != nil {
			fillErr = errors.Wrapf(err, "jsontoon: %s", elemPath)
			return
		}

		ev := reflect.New(sliceType.Elem()).Elem()
		if dataType == jsonparser.Null {
			if !nullable {
				fillErr = errors.Wrapf(toon.ErrEmptyValue, "jsontoon: %s is null", elemPath)
				return
			}
		} else if err := fill(value, dataType, ev, t.Elem, elemPath); err != nil {
			fillErr = err
			return
		}
		slice = reflect.Append(slice, ev)
	})
	if fillErr != nil {
		return fillErr
	}
	if err != nil {
		return errors.Wrapf(err, "jsontoon: %s", path)
	}
	v.Set(slice)
	return nil
}

func mismatch(path, expected string, found jsonparser.ValueType) error {
	return errors.Wrapf(toon.ErrTypeMismatch, "jsontoon: %s: expected %s, found %s", path, expected, found)
}

func allocate(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	return v
}
