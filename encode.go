package toon

import (
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cockroachdb/errors"

	"github.com/paularlott/toon/descriptor"
)

// encodingState tracks what the encoder is emitting.
type encodingState int

const (
	stateIdle encodingState = iota
	stateStructure
	stateCollection
	stateValue
)

func (s encodingState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateStructure:
		return "structure"
	case stateCollection:
		return "collection"
	case stateValue:
		return "value"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// transitions lists the states each state may enter. A collection holds
// only rows, and each row is the structure of one element.
var transitions = map[encodingState][]encodingState{
	stateIdle:       {stateStructure, stateCollection, stateValue},
	stateStructure:  {stateStructure, stateCollection, stateValue},
	stateCollection: {stateStructure},
}

// encoder writes one document in a single forward pass. Output is only
// ever appended to w.
type encoder struct {
	w            io.StringWriter
	opts         *Options
	state        encodingState
	stack        []encodingState
	wroteLine    bool
	indentCache  []string
	escapeBuffer strings.Builder
	err          error
}

func newEncoder(w io.StringWriter, opts *Options) *encoder {
	return &encoder{w: w, opts: opts, state: stateIdle}
}

// encodeTo writes v, described by t, to w.
func encodeTo(w io.StringWriter, v reflect.Value, t *descriptor.Type, opts *Options) error {
	e := newEncoder(w, opts)
	if err := e.encodeRoot(v, t); err != nil {
		return err
	}
	return e.err
}

func (e *encoder) enter(next encodingState) error {
	for _, allowed := range transitions[e.state] {
		if allowed == next {
			e.stack = append(e.stack, e.state)
			e.state = next
			return nil
		}
	}
	return illegalState("toon: cannot begin %s while encoding %s", next, e.state)
}

func (e *encoder) leave(current encodingState) error {
	if e.state != current || len(e.stack) == 0 {
		return illegalState("toon: cannot end %s while encoding %s", current, e.state)
	}
	e.state = e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	return nil
}

func (e *encoder) write(s string) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.WriteString(s)
}

// startLine begins a line at the given level. Lines are separated, not
// terminated, so the document has no trailing newline.
func (e *encoder) startLine(level int) {
	if e.wroteLine {
		e.write("\n")
	}
	e.wroteLine = true
	e.write(e.getIndent(level))
}

func (e *encoder) getIndent(level int) string {
	needed := level + 1
	for len(e.indentCache) < needed {
		n := len(e.indentCache)
		e.indentCache = append(e.indentCache, strings.Repeat(" ", n*2))
	}
	return e.indentCache[level]
}

func (e *encoder) encodeRoot(v reflect.Value, t *descriptor.Type) error {
	v, ok := present(v)
	if !ok {
		e.startLine(0)
		e.write("null")
		return nil
	}
	if err := checkType(v, t); err != nil {
		return err
	}

	switch t.Kind {
	case descriptor.Primitive:
		if err := e.enter(stateValue); err != nil {
			return err
		}
		s, err := e.formatScalar(t, v)
		if err != nil {
			return err
		}
		e.startLine(0)
		e.write(s)
		return e.leave(stateValue)
	case descriptor.Record:
		return e.encodeStructure(v, t, 0)
	case descriptor.Union:
		return e.encodeUnion(v, t, 0)
	case descriptor.RecordList:
		return e.encodeCollection(e.opts.rootName(), v, t, 0)
	case descriptor.PrimitiveList:
		return e.encodeInlineList(e.opts.rootName(), v, t, 0)
	default:
		return descriptor.Unsupported(t.GoType, "")
	}
}

// checkType verifies that the value handed to the facade matches its
// descriptor.
func checkType(v reflect.Value, t *descriptor.Type) error {
	if t.Kind == descriptor.Union {
		if _, ok := t.VariantOf(v.Type()); !ok {
			return errors.Wrapf(ErrTypeMismatch, "toon: %s is not a variant of %s", v.Type(), t)
		}
		return nil
	}
	if v.Type() != t.GoType {
		return errors.Wrapf(ErrTypeMismatch, "toon: cannot encode %s with the descriptor of %s", v.Type(), t)
	}
	return nil
}

// encodeStructure writes the fields of the record v at level.
func (e *encoder) encodeStructure(v reflect.Value, t *descriptor.Type, level int) error {
	if err := e.enter(stateStructure); err != nil {
		return err
	}
	for i := range t.Fields {
		f := &t.Fields[i]
		if f.Skip {
			continue
		}
		if err := e.encodeField(f.Name, v.FieldByIndex(f.Index), f.Type, level); err != nil {
			return errors.Wrapf(err, "field %s", f.Name)
		}
	}
	return e.leave(stateStructure)
}

// encodeUnion writes the discriminator line followed by the fields of the
// variant held in v.
func (e *encoder) encodeUnion(v reflect.Value, t *descriptor.Type, level int) error {
	variant, ok := t.VariantOf(v.Type())
	if !ok {
		return descriptor.Unsupported(v.Type(), fmt.Sprintf("not a variant of %s", t))
	}
	if err := e.enter(stateValue); err != nil {
		return err
	}
	e.startLine(level)
	e.write(t.Discriminator)
	e.write(": ")
	e.write(e.encodeString(variant.Tag))
	if err := e.leave(stateValue); err != nil {
		return err
	}
	return e.encodeStructure(v, variant.Type, level)
}

func (e *encoder) encodeField(name string, fv reflect.Value, t *descriptor.Type, level int) error {
	v, ok := present(fv)
	if !ok {
		return e.encodeValueLine(name, "null", level)
	}

	switch t.Kind {
	case descriptor.Primitive:
		s, err := e.formatScalar(t, v)
		if err != nil {
			return err
		}
		return e.encodeValueLine(name, s, level)
	case descriptor.Record:
		e.startLine(level)
		e.write(name)
		e.write(":")
		return e.encodeStructure(v, t, level+1)
	case descriptor.Union:
		e.startLine(level)
		e.write(name)
		e.write(":")
		return e.encodeUnion(v, t, level+1)
	case descriptor.RecordList:
		return e.encodeCollection(name, v, t, level)
	case descriptor.PrimitiveList:
		return e.encodeInlineList(name, v, t, level)
	default:
		return descriptor.Unsupported(t.GoType, "")
	}
}

func (e *encoder) encodeValueLine(name, value string, level int) error {
	if err := e.enter(stateValue); err != nil {
		return err
	}
	e.startLine(level)
	e.write(name)
	e.write(": ")
	e.write(value)
	return e.leave(stateValue)
}

// formatScalar returns the canonical text of a primitive, quoted when a
// bare token would be ambiguous.
func (e *encoder) formatScalar(t *descriptor.Type, v reflect.Value) (string, error) {
	s, err := t.Scalar.Format(v)
	if err != nil {
		return "", err
	}
	return e.encodeString(s), nil
}

func (e *encoder) encodeString(s string) string {
	if needsQuoting(s) {
		return e.quoteString(s)
	}
	return s
}

// needsQuoting reports whether s would not read back as itself when
// written bare in a value position or a table cell.
func needsQuoting(s string) bool {
	if len(s) == 0 {
		return true
	}
	if s == "null" {
		return true
	}
	if s[0] == '"' {
		return true
	}
	// The decoder trims Unicode whitespace at both ends of a value.
	first, _ := utf8.DecodeRuneInString(s)
	last, _ := utf8.DecodeLastRuneInString(s)
	if unicode.IsSpace(first) || unicode.IsSpace(last) {
		return true
	}
	for _, c := range s {
		switch {
		case c == ',' || c == '"' || c == '\\':
			return true
		case c < 0x20 || c == 0x7f:
			return true
		}
	}
	return false
}

func (e *encoder) quoteString(s string) string {
	e.escapeBuffer.Reset()
	e.escapeBuffer.WriteByte('"')

	// Every escaped character is ASCII, so copying the other bytes as they
	// are keeps multi-byte sequences and invalid UTF-8 intact.
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			e.escapeBuffer.WriteString("\\\\")
		case '"':
			e.escapeBuffer.WriteString("\\\"")
		case '\n':
			e.escapeBuffer.WriteString("\\n")
		case '\r':
			e.escapeBuffer.WriteString("\\r")
		case '\t':
			e.escapeBuffer.WriteString("\\t")
		default:
			e.escapeBuffer.WriteByte(c)
		}
	}

	e.escapeBuffer.WriteByte('"')
	return e.escapeBuffer.String()
}

// indirect follows pointers and interfaces. It reports false when it meets
// a nil.
func indirect(v reflect.Value) (reflect.Value, bool) {
	if !v.IsValid() {
		return v, false
	}
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return v, false
		}
		v = v.Elem()
	}
	return v, true
}

// present is indirect that also treats a nil slice as null.
func present(v reflect.Value) (reflect.Value, bool) {
	v, ok := indirect(v)
	if ok && v.Kind() == reflect.Slice && v.IsNil() {
		return v, false
	}
	return v, ok
}
