package toon

import (
	"reflect"
	"strings"

	"github.com/paularlott/toon/descriptor"
	"github.com/paularlott/toon/internal/lexer"
)

// decodeDone is returned by decodeElementIndex when a record or table has
// no more entries.
const decodeDone = -1

type stagedKind int

const (
	stagedRaw   stagedKind = iota // `name: raw`, raw may be empty
	stagedNull                    // `name: null`
	stagedTable                   // `name[N]{...}:`, cursor still on the header
	stagedList                    // `name[N]: v1,v2`
)

// stagedValue is the value of the field most recently returned by
// decodeElementIndex.
type stagedValue struct {
	kind stagedKind
	name string
	raw  string
	size int
	line int
}

// decoder reads one document. levels is the stack of indentation levels of
// the records being decoded; the root record sits at level 0.
type decoder struct {
	lex    *lexer.Lexer
	opts   *Options
	levels []int
	staged stagedValue
}

func newDecoder(data string, opts *Options) *decoder {
	return &decoder{
		lex:    lexer.New(data),
		opts:   opts,
		levels: []int{0},
	}
}

// decodeFrom decodes data into v, which must be settable.
func decodeFrom(data string, v reflect.Value, t *descriptor.Type, opts *Options) error {
	return newDecoder(data, opts).decodeRoot(v, t)
}

func (d *decoder) level() int {
	return d.levels[len(d.levels)-1]
}

func (d *decoder) errorf(kind error, line int, format string, args ...interface{}) error {
	return errorAt(d.lex, kind, line, format, args...)
}

// checkIndentation enforces even indentation when configured to.
func (d *decoder) checkIndentation() error {
	if !d.opts.StrictIndentation {
		return nil
	}
	if n := d.lex.LeadingSpaces(); n%lexer.IndentWidth != 0 {
		return d.errorf(ErrIndentation, d.lex.Line(), "indentation of %d spaces is not a multiple of %d", n, lexer.IndentWidth)
	}
	return nil
}

// decodeElementIndex positions on the next field of the record t and
// returns its index in t.Fields, or decodeDone when the record ends.
func (d *decoder) decodeElementIndex(t *descriptor.Type) (int, error) {
	d.lex.SkipBlank()
	if !d.lex.HasMore() {
		return decodeDone, nil
	}
	if err := d.checkIndentation(); err != nil {
		return 0, err
	}

	line := d.lex.Line()
	switch indent := d.lex.Indentation(); {
	case indent < d.level():
		return decodeDone, nil
	case indent > d.level():
		return 0, d.errorf(ErrIndentation, line, "expected indentation level %d, found %d", d.level(), indent)
	}

	if d.lex.IsTableHeader() {
		h, err := d.lex.TableHeader()
		if err != nil {
			return 0, syntaxError(d.lex, line, err)
		}
		idx, err := d.resolve(t, h.Name, line)
		if err != nil {
			return 0, err
		}
		if kind := t.Fields[idx].Type.Kind; kind != descriptor.RecordList {
			return 0, d.errorf(ErrTypeMismatch, line, "field %q is a %s, not a table", h.Name, kind)
		}
		d.staged = stagedValue{kind: stagedTable, name: h.Name, size: h.Size, line: line}
		return idx, nil
	}

	if d.lex.IsListHeader() {
		name, size, values, err := d.lex.ListHeader()
		if err != nil {
			return 0, syntaxError(d.lex, line, err)
		}
		idx, err := d.resolve(t, name, line)
		if err != nil {
			return 0, err
		}
		if kind := t.Fields[idx].Type.Kind; kind != descriptor.PrimitiveList {
			return 0, d.errorf(ErrTypeMismatch, line, "field %q is a %s, not an inline list", name, kind)
		}
		d.staged = stagedValue{kind: stagedList, name: name, raw: values, size: size, line: line}
		d.lex.Advance()
		return idx, nil
	}

	name, raw, err := d.keyValue()
	if err != nil {
		return 0, err
	}
	idx, err := d.resolve(t, name, line)
	if err != nil {
		return 0, err
	}
	d.staged = stagedValue{kind: stagedRaw, name: name, raw: raw, line: line}
	if raw == "null" {
		d.staged.kind = stagedNull
	}
	d.lex.Advance()
	return idx, nil
}

// keyValue parses the current line as `identifier ':' rest` without
// advancing.
func (d *decoder) keyValue() (string, string, error) {
	line := d.lex.Line()
	tok, err := d.lex.Next()
	if err != nil {
		return "", "", syntaxError(d.lex, line, err)
	}
	if tok.Kind != lexer.Identifier {
		return "", "", d.errorf(ErrSyntax, line, "column %d: expected field name, found %s", tok.Column, tok)
	}
	colon, err := d.lex.Next()
	if err != nil {
		return "", "", syntaxError(d.lex, line, err)
	}
	if colon.Kind != lexer.Colon {
		return "", "", d.errorf(ErrSyntax, line, "column %d: expected ':' after %q, found %s", colon.Column, tok.Text, colon)
	}
	return tok.Text, d.lex.Rest(), nil
}

func (d *decoder) resolve(t *descriptor.Type, name string, line int) (int, error) {
	idx := t.FieldIndex(name)
	if idx < 0 {
		return 0, d.errorf(ErrUnknownField, line, "%q; expected one of: %s", name, strings.Join(t.FieldNames(), ", "))
	}
	return idx, nil
}

// decodeNotNullMark reports whether the staged value is present.
func (d *decoder) decodeNotNullMark() bool {
	return d.staged.kind != stagedNull
}

// beginStructure enters the record held by the field just staged.
func (d *decoder) beginStructure() {
	d.levels = append(d.levels, d.level()+1)
}

func (d *decoder) endStructure() {
	d.levels = d.levels[:len(d.levels)-1]
}

// decodeRecord fills the struct v from the lines at the current level.
func (d *decoder) decodeRecord(v reflect.Value, t *descriptor.Type) error {
	seen := make([]bool, len(t.Fields))
	for {
		idx, err := d.decodeElementIndex(t)
		if err != nil {
			return err
		}
		if idx == decodeDone {
			return nil
		}
		if seen[idx] {
			return d.errorf(ErrSyntax, d.staged.line, "field %q appears more than once", d.staged.name)
		}
		seen[idx] = true

		f := &t.Fields[idx]
		if err := d.decodeField(v.FieldByIndex(f.Index), f); err != nil {
			return err
		}
	}
}

// decodeField assigns the staged value to fv.
func (d *decoder) decodeField(fv reflect.Value, f *descriptor.Field) error {
	s := d.staged
	if !d.decodeNotNullMark() {
		if !f.Nullable {
			return d.errorf(ErrEmptyValue, s.line, "field %q is not nullable", f.Name)
		}
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}

	switch f.Type.Kind {
	case descriptor.Primitive:
		if s.raw == "" {
			if !f.Nullable {
				return d.errorf(ErrEmptyValue, s.line, "field %q has no value", f.Name)
			}
			fv.Set(reflect.Zero(fv.Type()))
			return nil
		}
		return d.decodeScalar(allocate(fv), f.Type, s.raw, f.Name, s.line)

	case descriptor.Record, descriptor.Union:
		if s.raw != "" {
			return d.errorf(ErrTypeMismatch, s.line, "field %q holds a nested %s, found value %q", f.Name, f.Type.Kind, s.raw)
		}
		d.beginStructure()
		var err error
		if f.Type.Kind == descriptor.Union {
			err = d.decodeUnion(allocate(fv), f.Type)
		} else {
			err = d.decodeRecord(allocate(fv), f.Type)
		}
		if err != nil {
			return err
		}
		d.endStructure()
		return nil

	case descriptor.RecordList:
		if s.kind != stagedTable {
			if s.raw != "" {
				return d.errorf(ErrTypeMismatch, s.line, "field %q holds a table, found value %q", f.Name, s.raw)
			}
			return d.errorf(ErrSyntax, s.line, "expected table header %s[N]{...}: for field %q", f.Name, f.Name)
		}
		return d.decodeCollection(allocate(fv), f.Type)

	case descriptor.PrimitiveList:
		if s.kind != stagedList {
			if s.raw != "" {
				return d.errorf(ErrTypeMismatch, s.line, "field %q holds a list, found value %q", f.Name, s.raw)
			}
			return d.errorf(ErrSyntax, s.line, "expected list header %s[N]: for field %q", f.Name, f.Name)
		}
		return d.decodeInlineList(allocate(fv), f.Type, s)

	default:
		return descriptor.Unsupported(f.Type.GoType, "")
	}
}

// decodeScalar parses raw, which may be a string literal, into v.
func (d *decoder) decodeScalar(v reflect.Value, t *descriptor.Type, raw, name string, line int) error {
	text, err := lexer.Unquote(raw)
	if err != nil {
		return syntaxError(d.lex, line, err)
	}
	if err := t.Scalar.Parse(text, v); err != nil {
		return d.errorf(ErrTypeMismatch, line, "field %q: %s", name, err)
	}
	return nil
}

// decodeUnion reads the discriminator, which must be the first line of the
// record, and decodes the selected variant into v.
func (d *decoder) decodeUnion(v reflect.Value, t *descriptor.Type) error {
	d.lex.SkipBlank()
	line := d.lex.Line()
	if !d.lex.HasMore() {
		return d.errorf(ErrSyntax, d.endLine(), "missing discriminator %q", t.Discriminator)
	}
	if d.lex.Indentation() < d.level() {
		return d.errorf(ErrSyntax, line, "missing discriminator %q", t.Discriminator)
	}
	if err := d.checkIndentation(); err != nil {
		return err
	}
	if indent := d.lex.Indentation(); indent > d.level() {
		return d.errorf(ErrIndentation, line, "expected indentation level %d, found %d", d.level(), indent)
	}

	name, raw, err := d.keyValue()
	if err != nil {
		return err
	}
	if name != t.Discriminator {
		return d.errorf(ErrSyntax, line, "expected discriminator %q as the first field, found %q", t.Discriminator, name)
	}
	tag, err := lexer.Unquote(raw)
	if err != nil {
		return syntaxError(d.lex, line, err)
	}
	variant, ok := t.VariantByTag(tag)
	if !ok {
		return d.errorf(ErrUnknownField, line, "%s %q; expected one of: %s", t.Discriminator, tag, strings.Join(t.Tags(), ", "))
	}
	d.lex.Advance()

	rec := reflect.New(variant.Type.GoType).Elem()
	if err := d.decodeRecord(rec, variant.Type); err != nil {
		return err
	}
	if variant.Pointer {
		rec = rec.Addr()
	}
	v.Set(rec)
	return nil
}

// decodeRoot decodes the whole document into v.
func (d *decoder) decodeRoot(v reflect.Value, t *descriptor.Type) error {
	d.lex.SkipBlank()
	if strings.TrimSpace(d.lex.Text()) == "null" {
		line := d.lex.Line()
		d.lex.Advance()
		if err := d.expectEnd(); err != nil {
			return err
		}
		if !isNullable(v.Type()) {
			return d.errorf(ErrEmptyValue, line, "document is null but %s is not nullable", v.Type())
		}
		v.Set(reflect.Zero(v.Type()))
		return nil
	}

	switch t.Kind {
	case descriptor.Primitive:
		return d.decodeRootScalar(v, t)
	case descriptor.Record:
		return d.decodeRecord(allocate(v), t)
	case descriptor.Union:
		return d.decodeUnion(allocate(v), t)
	case descriptor.RecordList, descriptor.PrimitiveList:
		return d.decodeRootList(v, t)
	default:
		return descriptor.Unsupported(t.GoType, "")
	}
}

func (d *decoder) decodeRootScalar(v reflect.Value, t *descriptor.Type) error {
	d.lex.SkipBlank()
	line := d.lex.Line()
	raw := strings.TrimSpace(d.lex.Text())
	d.lex.Advance()
	if err := d.expectEnd(); err != nil {
		return err
	}
	if raw == "" {
		if !isNullable(v.Type()) {
			return d.errorf(ErrEmptyValue, d.endLine(), "document is empty but %s is not nullable", v.Type())
		}
		return nil
	}
	return d.decodeScalar(allocate(v), t, raw, t.Name, line)
}

func (d *decoder) decodeRootList(v reflect.Value, t *descriptor.Type) error {
	d.lex.SkipBlank()
	if !d.lex.HasMore() {
		return nil
	}
	if err := d.checkIndentation(); err != nil {
		return err
	}
	line := d.lex.Line()
	if indent := d.lex.Indentation(); indent != 0 {
		return d.errorf(ErrIndentation, line, "expected indentation level 0, found %d", indent)
	}

	if t.Kind == descriptor.RecordList {
		if !d.lex.IsTableHeader() {
			return d.errorf(ErrSyntax, line, "expected table header, found %q", strings.TrimSpace(d.lex.Text()))
		}
		if err := d.decodeCollection(allocate(v), t); err != nil {
			return err
		}
		return d.expectEnd()
	}

	if !d.lex.IsListHeader() {
		return d.errorf(ErrSyntax, line, "expected list header, found %q", strings.TrimSpace(d.lex.Text()))
	}
	name, size, values, err := d.lex.ListHeader()
	if err != nil {
		return syntaxError(d.lex, line, err)
	}
	d.lex.Advance()
	s := stagedValue{kind: stagedList, name: name, raw: values, size: size, line: line}
	if err := d.decodeInlineList(allocate(v), t, s); err != nil {
		return err
	}
	return d.expectEnd()
}

// expectEnd fails when anything but blank lines remains.
func (d *decoder) expectEnd() error {
	d.lex.SkipBlank()
	if d.lex.HasMore() {
		return d.errorf(ErrSyntax, d.lex.Line(), "unexpected content after value: %q", strings.TrimSpace(d.lex.Text()))
	}
	return nil
}

// endLine is the line reported for errors found at the end of input.
func (d *decoder) endLine() int {
	return max(1, d.lex.LineCount())
}

// allocate follows v through pointers, allocating nil ones, and returns the
// base value.
func allocate(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	return v
}

func isNullable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Interface:
		return true
	default:
		return false
	}
}
