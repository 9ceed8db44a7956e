package toon

import (
	"bytes"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paularlott/toon/descriptor"
)

type user struct {
	ID   int    `toon:"id"`
	Name string `toon:"name"`
}

type nullableUser struct {
	ID   int     `toon:"id"`
	Name *string `toon:"name"`
}

type team struct {
	Name    string   `toon:"name"`
	Lead    *user    `toon:"lead"`
	Members []user   `toon:"members"`
	Tags    []string `toon:"tags"`
}

type org struct {
	Name  string `toon:"name"`
	Team  team   `toon:"team"`
	Score float64
}

type users struct {
	Users []user `toon:"users"`
}

type nullableUsers struct {
	Users []nullableUser `toon:"users"`
}

func strPtr(s string) *string { return &s }

func typeOf(t *testing.T, v interface{}) *descriptor.Type {
	t.Helper()
	d, err := descriptor.NewReflect().TypeOf(reflect.TypeOf(v))
	require.NoError(t, err)
	return d
}

// requireDecodeError asserts err is a DecodeError of the given kind on line.
func requireDecodeError(t *testing.T, err error, kind error, line int) *DecodeError {
	t.Helper()
	require.Error(t, err)
	var derr *DecodeError
	require.True(t, errors.As(err, &derr), "expected *DecodeError, got %T: %v", err, err)
	assert.ErrorIs(t, err, kind)
	assert.Equal(t, line, derr.Line, "error: %v", err)
	return derr
}

func TestEncodeRecord(t *testing.T) {
	out, err := Marshal(user{ID: 1, Name: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "id: 1\nname: Alice", out)

	var got user
	require.NoError(t, Unmarshal(out, &got))
	assert.Equal(t, user{ID: 1, Name: "Alice"}, got)
}

func TestEncodeTable(t *testing.T) {
	out, err := Marshal(users{Users: []user{{1, "Alice"}, {2, "Bob"}}})
	require.NoError(t, err)
	assert.Equal(t, "users[2]{id,name}:\n  1,Alice\n  2,Bob", out)

	out, err = MarshalWithOptions([]user{{1, "Alice"}, {2, "Bob"}}, &Options{RootName: "users"})
	require.NoError(t, err)
	assert.Equal(t, "users[2]{id,name}:\n  1,Alice\n  2,Bob", out)
}

func TestDecodeTableTooFewRows(t *testing.T) {
	var got users
	err := Unmarshal("users[3]{id,name}:\n  1,Alice\n  2,Bob", &got)
	derr := requireDecodeError(t, err, ErrTableSizeMismatch, 1)
	assert.Contains(t, derr.Msg, "declares 3")
	assert.Contains(t, derr.Msg, "found 2")
}

func TestDecodeUnexpectedIndentation(t *testing.T) {
	var got user
	err := Unmarshal("id: 1\n  name: Alice", &got)
	requireDecodeError(t, err, ErrIndentation, 2)
}

func TestEncodeNullField(t *testing.T) {
	out, err := Marshal(nullableUser{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, "id: 1\nname: null", out)

	var got nullableUser
	require.NoError(t, Unmarshal(out, &got))
	assert.Equal(t, nullableUser{ID: 1}, got)
}

func TestDecodeEmptyCell(t *testing.T) {
	var nullable nullableUsers
	require.NoError(t, Unmarshal("users[1]{id,name}:\n  1,", &nullable))
	require.Len(t, nullable.Users, 1)
	assert.Equal(t, 1, nullable.Users[0].ID)
	assert.Nil(t, nullable.Users[0].Name)

	var strict users
	err := Unmarshal("users[1]{id,name}:\n  1,", &strict)
	derr := requireDecodeError(t, err, ErrEmptyValue, 2)
	assert.Contains(t, derr.Msg, `"name"`)
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
	}{
		{"record", &user{ID: 7, Name: "Grace Hopper"}},
		{"nullable set", &nullableUser{ID: 1, Name: strPtr("x")}},
		{"nullable nil", &nullableUser{ID: 1}},
		{"table", &users{Users: []user{{1, "Alice"}, {2, "Bob, Jr."}, {3, `"quoted"`}}}},
		{"empty table", &users{Users: []user{}}},
		{"nil table", &users{}},
		{"table with nulls", &nullableUsers{Users: []nullableUser{{1, nil}, {2, strPtr("")}, {3, strPtr("null")}}}},
		{"nested", &team{
			Name:    "core",
			Lead:    &user{1, "Alice"},
			Members: []user{{1, "Alice"}, {2, "Bob"}},
			Tags:    []string{"go", "toon", "a,b"},
		}},
		{"deeply nested", &org{
			Name:  "acme",
			Team:  team{Name: "infra", Members: []user{{9, "Zed"}}, Tags: []string{}},
			Score: -1.25,
		}},
		{"root list", &[]user{{1, "Alice"}}},
		{"root primitive list", &[]int{3, 1, 2}},
		{"root string", strPtr("hello, world")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Marshal(tt.value)
			require.NoError(t, err)

			got := reflect.New(reflect.TypeOf(tt.value).Elem())
			require.NoError(t, Unmarshal(out, got.Interface()), "document:\n%s", out)

			if diff := cmp.Diff(tt.value, got.Interface()); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s\ndocument:\n%s", diff, out)
			}
		})
	}
}

func TestEncodeNested(t *testing.T) {
	v := org{
		Name: "acme",
		Team: team{
			Name:    "core",
			Members: []user{{1, "Alice"}},
			Tags:    []string{},
		},
		Score: 0.5,
	}

	out, err := Marshal(v)
	require.NoError(t, err)
	expected := strings.Join([]string{
		"name: acme",
		"team:",
		"  name: core",
		"  lead: null",
		"  members[1]{id,name}:",
		"    1,Alice",
		"  tags[0]:",
		"Score: 0.5",
	}, "\n")
	assert.Equal(t, expected, out)
}

func TestHeaderArity(t *testing.T) {
	for _, n := range []int{0, 1, 2, 17} {
		v := users{Users: make([]user, n)}
		for i := range v.Users {
			v.Users[i] = user{ID: i, Name: "u"}
		}

		out, err := Marshal(v)
		require.NoError(t, err)

		lines := strings.Split(out, "\n")
		assert.Equal(t, "users["+strconv.Itoa(n)+"]{id,name}:", lines[0])
		assert.Len(t, lines, n+1)
		for _, row := range lines[1:] {
			assert.True(t, strings.HasPrefix(row, "  "), "row %q", row)
		}
	}
}

func TestNullSymmetry(t *testing.T) {
	out, err := Marshal(nullableUser{ID: 1})
	require.NoError(t, err)
	assert.Contains(t, out, "name: null")

	out, err = Marshal(nullableUsers{Users: []nullableUser{{ID: 1}}})
	require.NoError(t, err)
	assert.Equal(t, "users[1]{id,name}:\n  1,", out)

	// Only nullable fields accept either form.
	var u user
	err = Unmarshal("id: 1\nname: null", &u)
	requireDecodeError(t, err, ErrEmptyValue, 2)
}

func TestRenamedField(t *testing.T) {
	type renamed struct {
		Name string `toon:"full_name"`
	}

	out, err := Marshal(renamed{Name: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "full_name: Ada", out)

	var got renamed
	require.NoError(t, Unmarshal(out, &got))
	assert.Equal(t, "Ada", got.Name)

	err = Unmarshal("Name: Ada", &got)
	derr := requireDecodeError(t, err, ErrUnknownField, 1)
	assert.Contains(t, derr.Msg, "full_name")
}

func TestUnknownField(t *testing.T) {
	var got user
	err := Unmarshal("id: 1\nemail: a@b.c", &got)
	derr := requireDecodeError(t, err, ErrUnknownField, 2)
	assert.Equal(t, `"email"; expected one of: id, name`, derr.Msg)
}

func TestSkippedField(t *testing.T) {
	type account struct {
		Login    string `toon:"login"`
		Password string `toon:"-"`
	}

	out, err := Marshal(account{Login: "root", Password: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, "login: root", out)

	got := account{Password: "kept"}
	require.NoError(t, Unmarshal("login: admin", &got))
	assert.Equal(t, account{Login: "admin", Password: "kept"}, got)

	err = Unmarshal("login: admin\nPassword: x", &got)
	requireDecodeError(t, err, ErrUnknownField, 2)
}

func TestAbsentFieldsKeepZeroValue(t *testing.T) {
	var got team
	require.NoError(t, Unmarshal("name: solo", &got))
	assert.Equal(t, team{Name: "solo"}, got)
}

func TestEncodeDecodeWithDescriptor(t *testing.T) {
	d := typeOf(t, user{})

	out, err := Encode(user{ID: 2, Name: "Bob"}, d)
	require.NoError(t, err)
	assert.Equal(t, "id: 2\nname: Bob", out)

	got, err := Decode(out, d)
	require.NoError(t, err)
	assert.Equal(t, user{ID: 2, Name: "Bob"}, got)

	_, err = Encode(team{}, d)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = Encode(user{}, nil)
	assert.Error(t, err)
}

func TestHandWrittenDescriptor(t *testing.T) {
	table := descriptor.NewTable(descriptor.NewReflect())
	table.MustRegister(descriptor.NewRecord(reflect.TypeOf(user{})).
		Field("Name", "n").
		Field("ID", "i").
		Build(table))
	table.MustRegister(descriptor.NewRecord(reflect.TypeOf(users{})).
		Field("Users", "people").
		Build(table))
	opts := &Options{Provider: table}

	out, err := MarshalWithOptions(users{Users: []user{{1, "A"}}}, opts)
	require.NoError(t, err)
	assert.Equal(t, "people[1]{n,i}:\n  A,1", out)

	var got users
	require.NoError(t, UnmarshalWithOptions(out, &got, opts))
	assert.Equal(t, users{Users: []user{{1, "A"}}}, got)

	out, err = MarshalWithOptions([]user{{2, "B"}}, opts)
	require.NoError(t, err)
	assert.Equal(t, "items[1]{n,i}:\n  B,2", out)
}

func TestMarshalNil(t *testing.T) {
	out, err := Marshal(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", out)

	out, err = Marshal((*user)(nil))
	require.NoError(t, err)
	assert.Equal(t, "null", out)

	got := &user{ID: 1}
	require.NoError(t, Unmarshal("null", &got))
	assert.Nil(t, got)

	var u user
	err = Unmarshal("null", &u)
	requireDecodeError(t, err, ErrEmptyValue, 1)
}

func TestUnmarshalRequiresPointer(t *testing.T) {
	assert.Error(t, Unmarshal("id: 1", user{}))
	assert.Error(t, Unmarshal("id: 1", (*user)(nil)))
}

func TestUnsupportedTypes(t *testing.T) {
	type withMap struct {
		Attrs map[string]string `toon:"attrs"`
	}

	tests := []struct {
		name  string
		value interface{}
	}{
		{"map", map[string]int{"a": 1}},
		{"map field", withMap{}},
		{"channel", make(chan int)},
		{"list of lists", [][]int{{1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Marshal(tt.value)
			assert.ErrorIs(t, err, ErrUnsupportedType)
		})
	}

	type nested struct {
		Teams []team `toon:"teams"`
	}
	_, err := Marshal(nested{Teams: []team{{Name: "x"}}})
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = Marshal([]*user{{1, "a"}, nil})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestStreams(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(team{Name: "core", Tags: []string{"a"}}))
	assert.Equal(t, "name: core\nlead: null\nmembers: null\ntags[1]: a\n", buf.String())

	var got team
	require.NoError(t, NewDecoder(&buf).Decode(&got))
	assert.Equal(t, team{Name: "core", Tags: []string{"a"}}, got)

	// Nothing is written when encoding fails.
	buf.Reset()
	assert.Error(t, NewEncoder(&buf).Encode(map[string]int{}))
	assert.Zero(t, buf.Len())

	err := NewDecoder(strings.NewReader("   id: 1")).
		WithOptions(&Options{StrictIndentation: true}).
		Decode(&user{})
	requireDecodeError(t, err, ErrIndentation, 1)
}

func TestDecodeErrorFormatting(t *testing.T) {
	doc := "name: core\nmembers[2]{id,name}:\n  1,Alice\n  2,Bob,extra\ntags[0]:"
	var got team
	err := Unmarshal(doc, &got)
	derr := requireDecodeError(t, err, ErrRowFieldCountMismatch, 4)

	assert.Equal(t, `toon: line 4: row field count mismatch: row has 3 cells but header declares 2 fields: "2,Bob,extra"`, derr.Error())
	assert.Equal(t, "  2 | members[2]{id,name}:\n  3 |   1,Alice\n> 4 |   2,Bob,extra\n  5 | tags[0]:", derr.Context)
	assert.True(t, strings.HasSuffix(derr.Detailed(), derr.Context))
}
