// Package toon implements TOON, a compact line-oriented text format with two
// layouts. Records are written one `key: value` line per field and nest by
// two-space indentation:
//
//	id: 1
//	name: Alice
//	address:
//	  city: Paris
//
// Lists of records are written as a table, a header naming the row count
// and the columns followed by one comma-separated row per element:
//
//	users[2]{id,name}:
//	  1,Alice
//	  2,Bob
//
// Encoding and decoding are driven by descriptors from the descriptor
// package. Marshal and Unmarshal derive them from struct tags; Encode and
// Decode take an explicit descriptor.
package toon

import (
	"io"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/paularlott/toon/descriptor"
)

// DefaultRootName names the header of a list encoded at the document root.
const DefaultRootName = "items"

// Options configures encoding and decoding. A nil *Options means defaults.
// Options are read, never modified, and may be shared between goroutines.
type Options struct {
	// Provider resolves descriptors for Marshal and Unmarshal. Defaults to a
	// package-wide reflection provider.
	Provider descriptor.Provider

	// RootName is the header name used when a list is the root value
	// (default: "items"). Decoding accepts any name.
	RootName string

	// StrictIndentation rejects lines whose leading space count is not a
	// multiple of two. By default such counts round down to a level.
	StrictIndentation bool
}

var defaultProvider = descriptor.NewReflect()

var defaultOptions = &Options{}

func (o *Options) provider() descriptor.Provider {
	if o.Provider == nil {
		return defaultProvider
	}
	return o.Provider
}

func (o *Options) rootName() string {
	if o.RootName == "" {
		return DefaultRootName
	}
	return o.RootName
}

// Encode writes v in the layout described by t.
func Encode(v interface{}, t *descriptor.Type) (string, error) {
	return EncodeWithOptions(v, t, nil)
}

// EncodeWithOptions is Encode with explicit options.
func EncodeWithOptions(v interface{}, t *descriptor.Type, opts *Options) (string, error) {
	if opts == nil {
		opts = defaultOptions
	}
	if t == nil {
		return "", errors.New("toon: nil descriptor")
	}

	var b strings.Builder
	if err := encodeTo(&b, reflect.ValueOf(v), t, opts); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Decode parses data into a new value of t's Go type and returns it.
func Decode(data string, t *descriptor.Type) (interface{}, error) {
	return DecodeWithOptions(data, t, nil)
}

// DecodeWithOptions is Decode with explicit options.
func DecodeWithOptions(data string, t *descriptor.Type, opts *Options) (interface{}, error) {
	if opts == nil {
		opts = defaultOptions
	}
	if t == nil {
		return nil, errors.New("toon: nil descriptor")
	}

	v := reflect.New(t.GoType).Elem()
	if err := decodeFrom(data, v, t, opts); err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// Marshal encodes v using the descriptor the default provider derives for
// its type.
func Marshal(v interface{}) (string, error) {
	return MarshalWithOptions(v, nil)
}

// MarshalWithOptions is Marshal with explicit options.
func MarshalWithOptions(v interface{}, opts *Options) (string, error) {
	if opts == nil {
		opts = defaultOptions
	}
	if v == nil {
		return "null", nil
	}

	t, err := opts.provider().TypeOf(reflect.TypeOf(v))
	if err != nil {
		return "", err
	}
	return EncodeWithOptions(v, t, opts)
}

// Unmarshal decodes data into the value pointed to by v.
func Unmarshal(data string, v interface{}) error {
	return UnmarshalWithOptions(data, v, nil)
}

// UnmarshalWithOptions is Unmarshal with explicit options.
func UnmarshalWithOptions(data string, v interface{}, opts *Options) error {
	if opts == nil {
		opts = defaultOptions
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.Newf("toon: Unmarshal requires a non-nil pointer, got %T", v)
	}
	rv = rv.Elem()

	t, err := opts.provider().TypeOf(rv.Type())
	if err != nil {
		return err
	}
	return decodeFrom(data, rv, t, opts)
}

// Encoder writes TOON documents to an output stream.
type Encoder struct {
	w    io.Writer
	opts *Options
}

// NewEncoder returns an encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w, opts: defaultOptions}
}

// WithOptions sets the options used by later calls.
func (e *Encoder) WithOptions(opts *Options) *Encoder {
	if opts == nil {
		opts = defaultOptions
	}
	e.opts = opts
	return e
}

// Encode writes the TOON form of v followed by a newline. Nothing is
// written when encoding fails.
func (e *Encoder) Encode(v interface{}) error {
	s, err := MarshalWithOptions(v, e.opts)
	if err != nil {
		return err
	}
	_, err = io.WriteString(e.w, s+"\n")
	return err
}

// Decoder reads a TOON document from an input stream.
type Decoder struct {
	r    io.Reader
	opts *Options
}

// NewDecoder returns a decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, opts: defaultOptions}
}

// WithOptions sets the options used by later calls.
func (d *Decoder) WithOptions(opts *Options) *Decoder {
	if opts == nil {
		opts = defaultOptions
	}
	d.opts = opts
	return d
}

// Decode reads all remaining input and decodes it into v.
func (d *Decoder) Decode(v interface{}) error {
	data, err := io.ReadAll(d.r)
	if err != nil {
		return errors.Wrap(err, "toon: read")
	}
	return UnmarshalWithOptions(string(data), v, d.opts)
}
