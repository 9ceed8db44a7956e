package toon

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/paularlott/toon/descriptor"
)

// collectionEncoder writes one table: the header, then one row per element.
type collectionEncoder struct {
	e     *encoder
	elem  *descriptor.Type
	level int // level of the rows
	size  int
	rows  int
}

// beginCollection writes the header of a table with size rows at level.
func (e *encoder) beginCollection(name string, size int, elem *descriptor.Type, level int) (*collectionEncoder, error) {
	if !elem.IsFlat() {
		return nil, descriptor.Unsupported(elem.GoType, "table rows hold primitive fields only")
	}
	if err := e.enter(stateCollection); err != nil {
		return nil, err
	}

	e.startLine(level)
	e.write(name)
	e.write("[")
	e.write(strconv.Itoa(size))
	e.write("]{")
	e.write(strings.Join(elem.FieldNames(), ","))
	e.write("}:")

	return &collectionEncoder{e: e, elem: elem, level: level + 1, size: size}, nil
}

// encodeElement writes the row of the record v.
func (c *collectionEncoder) encodeElement(v reflect.Value) error {
	row, err := c.e.beginRow(c.elem)
	if err != nil {
		return err
	}
	for i := range c.elem.Fields {
		f := &c.elem.Fields[i]
		if f.Skip {
			continue
		}
		if err := row.encodeCell(v.FieldByIndex(f.Index), f.Type); err != nil {
			return errors.Wrapf(err, "field %s", f.Name)
		}
	}
	c.rows++
	return row.end(c.level)
}

// end closes the table. Writing a different number of rows than the header
// declared is a bug in the caller.
func (c *collectionEncoder) end() error {
	if c.rows != c.size {
		return illegalState("toon: table header declared %d rows but %d were written", c.size, c.rows)
	}
	return c.e.leave(stateCollection)
}

func (e *encoder) encodeCollection(name string, v reflect.Value, t *descriptor.Type, level int) error {
	c, err := e.beginCollection(name, v.Len(), t.Elem, level)
	if err != nil {
		return err
	}
	for i := 0; i < v.Len(); i++ {
		ev, ok := indirect(v.Index(i))
		if !ok {
			return errors.Wrapf(ErrUnsupportedType, "toon: nil element %d in table %s", i, name)
		}
		if err := c.encodeElement(ev); err != nil {
			return errors.Wrapf(err, "row %d", i)
		}
	}
	return c.end()
}

// rowEncoder accumulates the cells of one table row.
type rowEncoder struct {
	e     *encoder
	cells []string
}

func (e *encoder) beginRow(elem *descriptor.Type) (*rowEncoder, error) {
	if err := e.enter(stateStructure); err != nil {
		return nil, err
	}
	return &rowEncoder{e: e, cells: make([]string, 0, len(elem.Fields))}, nil
}

// encodeCell appends one cell; null becomes an empty cell.
func (r *rowEncoder) encodeCell(fv reflect.Value, t *descriptor.Type) error {
	if err := r.e.enter(stateValue); err != nil {
		return err
	}
	v, ok := indirect(fv)
	if !ok {
		r.cells = append(r.cells, "")
		return r.e.leave(stateValue)
	}
	s, err := r.e.formatScalar(t, v)
	if err != nil {
		return err
	}
	r.cells = append(r.cells, s)
	return r.e.leave(stateValue)
}

func (r *rowEncoder) end(level int) error {
	r.e.startLine(level)
	r.e.write(strings.Join(r.cells, ","))
	return r.e.leave(stateStructure)
}

// encodeInlineList writes a list of primitives on one line as
// `name[N]: v1,v2`.
func (e *encoder) encodeInlineList(name string, v reflect.Value, t *descriptor.Type, level int) error {
	if err := e.enter(stateValue); err != nil {
		return err
	}

	cells := make([]string, v.Len())
	for i := range cells {
		ev, ok := indirect(v.Index(i))
		if !ok {
			continue
		}
		s, err := e.formatScalar(t.Elem, ev)
		if err != nil {
			return errors.Wrapf(err, "element %d", i)
		}
		cells[i] = s
	}

	e.startLine(level)
	e.write(name)
	e.write("[")
	e.write(strconv.Itoa(len(cells)))
	e.write("]:")
	if len(cells) > 0 {
		e.write(" ")
		e.write(strings.Join(cells, ","))
	}
	return e.leave(stateValue)
}
