package lexer

import "fmt"

// Kind identifies the type of a Token.
type Kind int

const (
	EOL Kind = iota // end of the current line
	Identifier
	Number
	String
	Colon
	Comma
	TableHeader
)

func (k Kind) String() string {
	switch k {
	case EOL:
		return "end of line"
	case Identifier:
		return "identifier"
	case Number:
		return "number"
	case String:
		return "string literal"
	case Colon:
		return "':'"
	case Comma:
		return "','"
	case TableHeader:
		return "table header"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Token is one lexical unit of the current line.
type Token struct {
	Kind   Kind
	Text   string // identifier or number text, or the decoded string literal
	Column int    // 1-based
	Header *Header
}

func (t Token) String() string {
	switch t.Kind {
	case Identifier, Number:
		return fmt.Sprintf("%s %q", t.Kind, t.Text)
	case String:
		return fmt.Sprintf("string %q", t.Text)
	case TableHeader:
		return fmt.Sprintf("table header %q", t.Header.Name)
	default:
		return t.Kind.String()
	}
}

// Header is a parsed `name[N]{f1,f2,...}:` line.
type Header struct {
	Name   string
	Size   int
	Fields []string
}
