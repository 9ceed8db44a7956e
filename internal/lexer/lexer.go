// Package lexer splits TOON documents into lines and positioned tokens.
//
// The lexer is line oriented: callers inspect the current line (its
// indentation, whether it is a table header), pull tokens from it, and move
// to the next line explicitly with Advance. It never looks back at a line it
// has left.
package lexer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

// IndentWidth is the number of spaces per indentation level.
const IndentWidth = 2

// contextRadius is how many lines before and after an offending line are
// shown by Context.
const contextRadius = 2

var (
	headerRegex     = regexp.MustCompile(`^\w+\[\d+\]\{[^}]*\}:$`)
	listHeaderRegex = regexp.MustCompile(`^(\w+)\[(\d+)\]:(.*)$`)
)

// Error is a lexical or grammatical error at a position in the input.
type Error struct {
	Line   int // 1-based
	Column int // 1-based
	Msg    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Msg)
}

// Lexer walks a TOON document line by line.
type Lexer struct {
	lines  []string
	line   int // 0-based index of the current line
	col    int // byte offset of the scan cursor in the current line
	peeked *Token
}

// New creates a lexer over input. Lines are separated by "\n"; a trailing
// "\r" on a line is dropped.
func New(input string) *Lexer {
	lines := strings.Split(input, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return &Lexer{lines: lines}
}

// HasMore reports whether there is a current line.
func (l *Lexer) HasMore() bool {
	return l.line < len(l.lines)
}

// Line returns the 1-based number of the current line.
func (l *Lexer) Line() int {
	return l.line + 1
}

// LineCount returns the number of lines in the input.
func (l *Lexer) LineCount() int {
	return len(l.lines)
}

// Text returns the current line verbatim, or "" past the end of input.
func (l *Lexer) Text() string {
	if !l.HasMore() {
		return ""
	}
	return l.lines[l.line]
}

// Advance moves to the next line and resets the token cursor.
func (l *Lexer) Advance() {
	if l.HasMore() {
		l.line++
	}
	l.col = 0
	l.peeked = nil
}

// IsBlank reports whether the current line holds only whitespace.
func (l *Lexer) IsBlank() bool {
	return strings.TrimSpace(l.Text()) == ""
}

// SkipBlank advances past whitespace-only lines.
func (l *Lexer) SkipBlank() {
	for l.HasMore() && l.IsBlank() {
		l.Advance()
	}
}

// LeadingSpaces counts the spaces that start the current line.
func (l *Lexer) LeadingSpaces() int {
	text := l.Text()
	n := 0
	for n < len(text) && text[n] == ' ' {
		n++
	}
	return n
}

// Indentation returns the indentation level of the current line. Counts
// that are not a multiple of IndentWidth are floored.
func (l *Lexer) Indentation() int {
	return l.LeadingSpaces() / IndentWidth
}

// IsTableHeader reports whether the trimmed current line has the shape of a
// `name[N]{f1,f2}:` header.
func (l *Lexer) IsTableHeader() bool {
	return headerRegex.MatchString(strings.TrimSpace(l.Text()))
}

// TableHeader parses the current line as a table header. It does not
// advance.
func (l *Lexer) TableHeader() (*Header, error) {
	text := strings.TrimSpace(l.Text())
	col := l.LeadingSpaces() + 1
	if !headerRegex.MatchString(text) {
		return nil, l.errorf(col, "expected table header, found %q", text)
	}

	open := strings.IndexByte(text, '[')
	end := strings.IndexByte(text, ']')
	name := text[:open]
	if !IsIdentifier(name) {
		return nil, l.errorf(col, "invalid table name %q", name)
	}
	size, err := strconv.Atoi(text[open+1 : end])
	if err != nil {
		return nil, l.errorf(col+open+1, "invalid table size %q", text[open+1:end])
	}

	h := &Header{Name: name, Size: size}
	body := text[end+2 : len(text)-2]
	if body == "" {
		return h, nil
	}
	seen := make(map[string]bool)
	for _, field := range strings.Split(body, ",") {
		if !IsIdentifier(field) {
			return nil, l.errorf(col+end+2, "invalid field name %q in table header", field)
		}
		if seen[field] {
			return nil, l.errorf(col+end+2, "duplicate field %q in table header", field)
		}
		seen[field] = true
		h.Fields = append(h.Fields, field)
	}
	return h, nil
}

// IsListHeader reports whether the trimmed current line has the shape of an
// inline list `name[N]: v1,v2`.
func (l *Lexer) IsListHeader() bool {
	return listHeaderRegex.MatchString(strings.TrimSpace(l.Text()))
}

// ListHeader parses the current line as an inline list and returns its
// name, declared size and the unparsed values. It does not advance.
func (l *Lexer) ListHeader() (name string, size int, values string, err error) {
	text := strings.TrimSpace(l.Text())
	col := l.LeadingSpaces() + 1
	m := listHeaderRegex.FindStringSubmatch(text)
	if m == nil {
		return "", 0, "", l.errorf(col, "expected list header, found %q", text)
	}
	if !IsIdentifier(m[1]) {
		return "", 0, "", l.errorf(col, "invalid list name %q", m[1])
	}
	size, convErr := strconv.Atoi(m[2])
	if convErr != nil {
		return "", 0, "", l.errorf(col+len(m[1])+1, "invalid list size %q", m[2])
	}
	return m[1], size, strings.TrimSpace(m[3]), nil
}

// Peek returns the next token on the current line without consuming it.
func (l *Lexer) Peek() (Token, error) {
	if l.peeked == nil {
		tok, err := l.scan()
		if err != nil {
			return Token{}, err
		}
		l.peeked = &tok
	}
	return *l.peeked, nil
}

// Next consumes and returns the next token on the current line.
func (l *Lexer) Next() (Token, error) {
	tok, err := l.Peek()
	l.peeked = nil
	return tok, err
}

// Rest consumes the remainder of the current line, including a peeked
// token, and returns it trimmed.
func (l *Lexer) Rest() string {
	start := l.col
	if l.peeked != nil {
		start = l.peeked.Column - 1
		l.peeked = nil
	}
	text := l.Text()
	if start > len(text) {
		start = len(text)
	}
	l.col = len(text)
	return strings.TrimSpace(text[start:])
}

// Context renders the lines around line (1-based) with the line itself
// marked by '>'.
func (l *Lexer) Context(line int) string {
	if line < 1 || line > len(l.lines) {
		return ""
	}
	first := max(1, line-contextRadius)
	last := min(len(l.lines), line+contextRadius)
	width := len(strconv.Itoa(last))

	var b strings.Builder
	for n := first; n <= last; n++ {
		marker := "  "
		if n == line {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%*d | %s", marker, width, n, l.lines[n-1])
		if n < last {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (l *Lexer) scan() (Token, error) {
	if !l.HasMore() {
		return Token{Kind: EOL, Column: 1}, nil
	}
	text := l.lines[l.line]

	if l.col == 0 && l.IsTableHeader() {
		h, err := l.TableHeader()
		if err != nil {
			return Token{}, err
		}
		col := l.LeadingSpaces() + 1
		l.col = len(text)
		return Token{Kind: TableHeader, Text: h.Name, Column: col, Header: h}, nil
	}

	for l.col < len(text) && text[l.col] == ' ' {
		l.col++
	}
	if l.col >= len(text) {
		return Token{Kind: EOL, Column: l.col + 1}, nil
	}

	start := l.col
	c := text[start]
	switch {
	case c == ':':
		l.col++
		return Token{Kind: Colon, Text: ":", Column: start + 1}, nil
	case c == ',':
		l.col++
		return Token{Kind: Comma, Text: ",", Column: start + 1}, nil
	case c == '"':
		value, end, err := scanString(text, start)
		if err != nil {
			return Token{}, l.errorf(start+1, "%s", err)
		}
		l.col = end
		return Token{Kind: String, Text: value, Column: start + 1}, nil
	case isLetter(c):
		end := start + 1
		for end < len(text) && isIdentChar(text[end]) {
			end++
		}
		l.col = end
		return Token{Kind: Identifier, Text: text[start:end], Column: start + 1}, nil
	case c == '-' || isDigit(c):
		end := scanNumber(text, start)
		if end == start {
			return Token{}, l.errorf(start+1, "invalid number")
		}
		l.col = end
		return Token{Kind: Number, Text: text[start:end], Column: start + 1}, nil
	default:
		r, _ := utf8.DecodeRuneInString(text[start:])
		return Token{}, l.errorf(start+1, "unexpected character %q", r)
	}
}

func (l *Lexer) errorf(col int, format string, args ...interface{}) *Error {
	return &Error{Line: l.Line(), Column: col, Msg: fmt.Sprintf(format, args...)}
}

// Unquote decodes raw when it is a string literal and returns it unchanged
// otherwise.
func Unquote(raw string) (string, error) {
	if raw == "" || raw[0] != '"' {
		return raw, nil
	}
	value, end, err := scanString(raw, 0)
	if err != nil {
		return "", err
	}
	if end != len(raw) {
		return "", errors.Newf("unexpected text %q after string literal", raw[end:])
	}
	return value, nil
}

// SplitRow splits a data row into trimmed cells on commas outside string
// literals. String literal cells are returned still quoted.
func SplitRow(text string) ([]string, error) {
	var cells []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '"':
			_, end, err := scanString(text, i)
			if err != nil {
				return nil, err
			}
			i = end - 1
		case ',':
			cells = append(cells, strings.TrimSpace(text[start:i]))
			start = i + 1
		}
	}
	return append(cells, strings.TrimSpace(text[start:])), nil
}

// IsIdentifier reports whether s matches [A-Za-z_][A-Za-z0-9_]*.
func IsIdentifier(s string) bool {
	if s == "" || !isLetter(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentChar(s[i]) {
			return false
		}
	}
	return true
}

// scanString decodes the literal starting at s[start] == '"' and returns
// the value and the offset just past the closing quote.
func scanString(s string, start int) (string, int, error) {
	var b strings.Builder
	for i := start + 1; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			return b.String(), i + 1, nil
		case '\\':
			if i+1 >= len(s) {
				return "", 0, errors.New("unterminated string literal")
			}
			i++
			switch s[i] {
			case '\\':
				b.WriteByte('\\')
			case '"':
				b.WriteByte('"')
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			default:
				return "", 0, errors.Newf("invalid escape sequence \\%c", s[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, errors.New("unterminated string literal")
}

func scanNumber(s string, start int) int {
	i := start
	if s[i] == '-' {
		i++
	}
	digits := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	if i == digits {
		return start
	}
	if i+1 < len(s) && s[i] == '.' && isDigit(s[i+1]) {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
		}
	}
	return i
}

func isLetter(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || isDigit(c)
}
