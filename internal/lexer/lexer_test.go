package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndentation(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected int
	}{
		{"none", "id: 1", 0},
		{"one level", "  id: 1", 1},
		{"two levels", "    id: 1", 2},
		{"odd count floors", "   id: 1", 1},
		{"single space floors", " id: 1", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.line)
			assert.Equal(t, tt.expected, l.Indentation())
		})
	}
}

func TestTokens(t *testing.T) {
	l := New(`name: "Al\"ice", -12.5 x_1`)

	expected := []Token{
		{Kind: Identifier, Text: "name", Column: 1},
		{Kind: Colon, Text: ":", Column: 5},
		{Kind: String, Text: `Al"ice`, Column: 7},
		{Kind: Comma, Text: ",", Column: 16},
		{Kind: Number, Text: "-12.5", Column: 18},
		{Kind: Identifier, Text: "x_1", Column: 24},
		{Kind: EOL, Column: 27},
	}
	for _, want := range expected {
		peeked, err := l.Peek()
		require.NoError(t, err)
		got, err := l.Next()
		require.NoError(t, err)
		assert.Equal(t, peeked, got)
		assert.Equal(t, want, got)
	}
}

func TestTokenErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		msg   string
	}{
		{"unterminated string", `name: "abc`, "unterminated string literal"},
		{"bad escape", `name: "a\qb"`, "invalid escape sequence"},
		{"unexpected character", "name: @", "unexpected character '@'"},
		{"lone minus", "name: -x", "invalid number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.input)
			var err error
			for i := 0; i < 5 && err == nil; i++ {
				_, err = l.Next()
			}
			require.Error(t, err)
			var lexErr *Error
			require.ErrorAs(t, err, &lexErr)
			assert.Equal(t, 1, lexErr.Line)
			assert.Contains(t, lexErr.Msg, tt.msg)
		})
	}
}

func TestTableHeader(t *testing.T) {
	l := New("  users[2]{id,name}:")
	require.True(t, l.IsTableHeader())

	h, err := l.TableHeader()
	require.NoError(t, err)
	assert.Equal(t, &Header{Name: "users", Size: 2, Fields: []string{"id", "name"}}, h)

	tok, err := l.Next()
	require.NoError(t, err)
	assert.Equal(t, TableHeader, tok.Kind)
	assert.Equal(t, 3, tok.Column)
	assert.Equal(t, h, tok.Header)
}

func TestTableHeaderEmptyFields(t *testing.T) {
	l := New("things[0]{}:")
	h, err := l.TableHeader()
	require.NoError(t, err)
	assert.Equal(t, "things", h.Name)
	assert.Equal(t, 0, h.Size)
	assert.Empty(t, h.Fields)
}

func TestTableHeaderRejects(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		isHeader bool
	}{
		{"missing colon", "users[2]{id,name}", false},
		{"key value", "users: 2", false},
		{"spaces in fields", "users[2]{id, name}:", true},
		{"duplicate fields", "users[2]{id,id}:", true},
		{"digit name", "9users[2]{id}:", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.line)
			assert.Equal(t, tt.isHeader, l.IsTableHeader())
			_, err := l.TableHeader()
			assert.Error(t, err)
		})
	}
}

func TestListHeader(t *testing.T) {
	l := New(`  tags[3]: a, "b,c" ,d`)
	require.True(t, l.IsListHeader())
	require.False(t, l.IsTableHeader())

	name, size, values, err := l.ListHeader()
	require.NoError(t, err)
	assert.Equal(t, "tags", name)
	assert.Equal(t, 3, size)
	assert.Equal(t, `a, "b,c" ,d`, values)
}

func TestSplitRow(t *testing.T) {
	tests := []struct {
		name     string
		row      string
		expected []string
	}{
		{"simple", "1,Alice", []string{"1", "Alice"}},
		{"trims cells", " 1 , Alice ", []string{"1", "Alice"}},
		{"empty trailing cell", "1,", []string{"1", ""}},
		{"empty line", "", []string{""}},
		{"quoted comma", `1,"Smith, J"`, []string{"1", `"Smith, J"`}},
		{"escaped quote", `"a\"b",c`, []string{`"a\"b"`, "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cells, err := SplitRow(tt.row)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, cells)
		})
	}

	_, err := SplitRow(`1,"open`)
	assert.Error(t, err)
}

func TestUnquote(t *testing.T) {
	s, err := Unquote(`"a\tb\\c\n"`)
	require.NoError(t, err)
	assert.Equal(t, "a\tb\\c\n", s)

	s, err = Unquote("bare words")
	require.NoError(t, err)
	assert.Equal(t, "bare words", s)

	_, err = Unquote(`"a" b`)
	assert.Error(t, err)
}

func TestLineCursor(t *testing.T) {
	l := New("a: 1\r\n\n   \nb: 2")
	assert.Equal(t, 1, l.Line())
	assert.Equal(t, "a: 1", l.Text())

	l.Advance()
	l.SkipBlank()
	assert.Equal(t, 4, l.Line())
	assert.Equal(t, "b: 2", l.Text())

	l.Advance()
	assert.False(t, l.HasMore())
	assert.Equal(t, "", l.Text())
}

func TestRestIncludesPeekedToken(t *testing.T) {
	l := New("name:   Alice Smith  ")
	_, err := l.Next()
	require.NoError(t, err)
	_, err = l.Next()
	require.NoError(t, err)
	_, err = l.Peek()
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", l.Rest())
}

func TestContext(t *testing.T) {
	l := New("a: 1\nb: 2\nc: 3\nd: 4\ne: 5\nf: 6")
	expected := "  1 | a: 1\n" +
		"  2 | b: 2\n" +
		"> 3 | c: 3\n" +
		"  4 | d: 4\n" +
		"  5 | e: 5"
	assert.Equal(t, expected, l.Context(3))
	assert.Equal(t, "> 1 | a: 1\n  2 | b: 2\n  3 | c: 3", l.Context(1))
	assert.Empty(t, l.Context(0))
}
