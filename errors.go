package toon

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/paularlott/toon/descriptor"
	"github.com/paularlott/toon/internal/lexer"
)

// Error kinds. Decode failures are *DecodeError values whose Kind is one of
// these; match them with errors.Is.
var (
	// ErrSyntax reports a line that does not follow the grammar.
	ErrSyntax = errors.New("syntax error")

	// ErrIndentation reports a line indented deeper than its record allows.
	ErrIndentation = errors.New("indentation error")

	// ErrUnknownField reports a name the descriptor does not declare.
	ErrUnknownField = errors.New("unknown field")

	// ErrTypeMismatch reports a value that cannot be parsed as its field's
	// type, or a line whose shape does not fit the field.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrTableSizeMismatch reports a table or inline list whose declared
	// size differs from the number of entries present.
	ErrTableSizeMismatch = errors.New("table size mismatch")

	// ErrRowFieldCountMismatch reports a table row with the wrong number of
	// cells.
	ErrRowFieldCountMismatch = errors.New("row field count mismatch")

	// ErrEmptyValue reports null or an empty cell for a non-nullable field.
	ErrEmptyValue = errors.New("empty value")

	// ErrUnsupportedType reports a Go type with no TOON representation.
	ErrUnsupportedType = descriptor.ErrUnsupportedType

	// ErrIllegalState reports encoder operations invoked out of order. It
	// indicates a bug, not bad data.
	ErrIllegalState = errors.New("illegal encoder state")
)

// DecodeError describes malformed input. Line is 1-based and Context holds
// the surrounding lines with the offending one marked by '>'.
//
// Example:
//
//	var derr *toon.DecodeError
//	if errors.As(err, &derr) {
//	    fmt.Println(derr.Detailed())
//	}
type DecodeError struct {
	Kind    error
	Line    int
	Msg     string
	Context string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("toon: line %d: %s: %s", e.Line, e.Kind, e.Msg)
}

// Unwrap returns the error kind.
func (e *DecodeError) Unwrap() error {
	return e.Kind
}

// Detailed returns the message followed by the context window.
func (e *DecodeError) Detailed() string {
	if e.Context == "" {
		return e.Error()
	}
	return e.Error() + "\n" + e.Context
}

// errorAt builds a DecodeError for line with the context taken from lex.
func errorAt(lex *lexer.Lexer, kind error, line int, format string, args ...interface{}) *DecodeError {
	return &DecodeError{
		Kind:    kind,
		Line:    line,
		Msg:     fmt.Sprintf(format, args...),
		Context: lex.Context(line),
	}
}

// syntaxError reports err as a syntax error on line, or at the position a
// lexer error carries.
func syntaxError(lex *lexer.Lexer, line int, err error) error {
	var lerr *lexer.Error
	if errors.As(err, &lerr) {
		return errorAt(lex, ErrSyntax, lerr.Line, "column %d: %s", lerr.Column, lerr.Msg)
	}
	return errorAt(lex, ErrSyntax, line, "%s", err)
}

// illegalState reports an encoder bug. The error is flagged as an assertion
// failure and wraps ErrIllegalState.
func illegalState(format string, args ...interface{}) error {
	return errors.WithAssertionFailure(errors.Wrapf(ErrIllegalState, format, args...))
}
