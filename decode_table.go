package toon

import (
	"reflect"
	"strings"

	"github.com/paularlott/toon/descriptor"
	"github.com/paularlott/toon/internal/lexer"
)

// maxPrealloc caps the slice capacity reserved from a declared size, which
// comes from untrusted input.
const maxPrealloc = 1024

// collectionDecoder reads the rows of one table.
type collectionDecoder struct {
	d          *decoder
	header     *lexer.Header
	headerLine int
	elem       *descriptor.Type
	columns    []int // header column -> index in elem.Fields
	rowLevel   int
	index      int
}

// beginCollection consumes the table header on the current line.
func (d *decoder) beginCollection(elem *descriptor.Type) (*collectionDecoder, error) {
	line := d.lex.Line()
	tok, err := d.lex.Next()
	if err != nil {
		return nil, syntaxError(d.lex, line, err)
	}
	if tok.Kind != lexer.TableHeader {
		return nil, d.errorf(ErrSyntax, line, "expected table header, found %s", tok)
	}

	h := tok.Header
	columns := make([]int, len(h.Fields))
	for i, name := range h.Fields {
		idx := elem.FieldIndex(name)
		if idx < 0 {
			return nil, d.errorf(ErrUnknownField, line, "%q in table %q; expected one of: %s", name, h.Name, strings.Join(elem.FieldNames(), ", "))
		}
		if kind := elem.Fields[idx].Type.Kind; kind != descriptor.Primitive {
			return nil, d.errorf(ErrTypeMismatch, line, "column %q of table %q is a %s; table cells hold primitives only", name, h.Name, kind)
		}
		columns[i] = idx
	}

	c := &collectionDecoder{
		d:          d,
		header:     h,
		headerLine: line,
		elem:       elem,
		columns:    columns,
		rowLevel:   d.lex.Indentation() + 1,
	}
	d.lex.Advance()
	return c, nil
}

// decodeCollectionSize returns the row count the header declares.
func (c *collectionDecoder) decodeCollectionSize() int {
	return c.header.Size
}

// skipBlank passes over blank lines between rows. A table without columns
// has blank rows, so nothing is skipped there.
func (c *collectionDecoder) skipBlank() {
	if len(c.columns) > 0 {
		c.d.lex.SkipBlank()
	}
}

// atRow reports whether the current line belongs to this table.
func (c *collectionDecoder) atRow() bool {
	lex := c.d.lex
	if !lex.HasMore() {
		return false
	}
	if len(c.columns) == 0 {
		return lex.IsBlank() && lex.Indentation() >= c.rowLevel
	}
	return lex.Indentation() >= c.rowLevel
}

// decodeElementIndex returns the index of the next row, or decodeDone once
// the declared number of rows has been read.
func (c *collectionDecoder) decodeElementIndex() (int, error) {
	c.skipBlank()
	size := c.decodeCollectionSize()
	if c.index == size {
		if c.atRow() {
			return 0, c.d.errorf(ErrTableSizeMismatch, c.d.lex.Line(), "table %q declares %d rows but found more", c.header.Name, size)
		}
		return decodeDone, nil
	}

	if !c.atRow() {
		return 0, c.d.errorf(ErrTableSizeMismatch, c.headerLine, "table %q declares %d rows but found %d", c.header.Name, size, c.index)
	}
	if err := c.d.checkIndentation(); err != nil {
		return 0, err
	}
	if indent := c.d.lex.Indentation(); len(c.columns) > 0 && indent > c.rowLevel {
		return 0, c.d.errorf(ErrIndentation, c.d.lex.Line(), "expected row at indentation level %d, found %d", c.rowLevel, indent)
	}

	idx := c.index
	c.index++
	return idx, nil
}

// rowDecoder holds the cells of one data row.
type rowDecoder struct {
	cells []string
	line  int
}

// beginRow splits the current line into cells, advances past it and checks
// the cell count against the header.
func (c *collectionDecoder) beginRow() (*rowDecoder, error) {
	lex := c.d.lex
	line := lex.Line()
	text := strings.TrimSpace(lex.Text())

	var cells []string
	if text != "" || len(c.columns) > 0 {
		var err error
		cells, err = lexer.SplitRow(text)
		if err != nil {
			return nil, syntaxError(lex, line, err)
		}
	}
	lex.Advance()

	if len(cells) != len(c.columns) {
		return nil, c.d.errorf(ErrRowFieldCountMismatch, line, "row has %d cells but header declares %d fields: %q", len(cells), len(c.columns), text)
	}
	return &rowDecoder{cells: cells, line: line}, nil
}

// decodeNotNullMark reports whether cell i holds a value.
func (r *rowDecoder) decodeNotNullMark(i int) bool {
	return r.cells[i] != ""
}

// decodeRow fills the record v from the current row.
func (c *collectionDecoder) decodeRow(v reflect.Value) error {
	row, err := c.beginRow()
	if err != nil {
		return err
	}
	for i, idx := range c.columns {
		f := &c.elem.Fields[idx]
		fv := v.FieldByIndex(f.Index)
		if !row.decodeNotNullMark(i) {
			if !f.Nullable {
				return c.d.errorf(ErrEmptyValue, row.line, "field %q is not nullable but its cell is empty", f.Name)
			}
			fv.Set(reflect.Zero(fv.Type()))
			continue
		}
		if err := c.d.decodeScalar(allocate(fv), f.Type, row.cells[i], f.Name, row.line); err != nil {
			return err
		}
	}
	return nil
}

// decodeCollection decodes the table whose header is the current line into
// the slice v.
func (d *decoder) decodeCollection(v reflect.Value, t *descriptor.Type) error {
	c, err := d.beginCollection(t.Elem)
	if err != nil {
		return err
	}

	sliceType := v.Type()
	slice := reflect.MakeSlice(sliceType, 0, min(c.decodeCollectionSize(), maxPrealloc))
	for {
		idx, err := c.decodeElementIndex()
		if err != nil {
			return err
		}
		if idx == decodeDone {
			break
		}
		ev := reflect.New(sliceType.Elem()).Elem()
		if err := c.decodeRow(allocate(ev)); err != nil {
			return err
		}
		slice = reflect.Append(slice, ev)
	}
	v.Set(slice)
	return nil
}

// decodeInlineList decodes `name[N]: v1,v2` into the slice v.
func (d *decoder) decodeInlineList(v reflect.Value, t *descriptor.Type, s stagedValue) error {
	// `name[0]:` has no cells; otherwise an empty value is one empty cell.
	var cells []string
	if s.raw != "" || s.size > 0 {
		var err error
		cells, err = lexer.SplitRow(s.raw)
		if err != nil {
			return syntaxError(d.lex, s.line, err)
		}
	}
	if len(cells) != s.size {
		return d.errorf(ErrTableSizeMismatch, s.line, "list %q declares %d values but found %d", s.name, s.size, len(cells))
	}

	sliceType := v.Type()
	nullable := isNullable(sliceType.Elem())
	slice := reflect.MakeSlice(sliceType, len(cells), len(cells))
	for i, cell := range cells {
		if cell == "" {
			if !nullable {
				return d.errorf(ErrEmptyValue, s.line, "list %q has an empty value at position %d", s.name, i)
			}
			continue
		}
		if err := d.decodeScalar(allocate(slice.Index(i)), t.Elem, cell, s.name, s.line); err != nil {
			return err
		}
	}
	v.Set(slice)
	return nil
}
