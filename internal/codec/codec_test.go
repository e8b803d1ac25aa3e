package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tree(kv ...any) *Tree {
	t := NewTree()
	for i := 0; i+1 < len(kv); i += 2 {
		t.Set(kv[i].(string), kv[i+1])
	}
	return t
}

func TestTree_SetKeepsPosition(t *testing.T) {
	tr := tree("a", int64(1), "b", int64(2))
	tr.Set("a", "replaced")
	tr.Set("c", true)

	assert.Equal(t, []string{"a", "b", "c"}, tr.Keys())
	v, ok := tr.Get("a")
	require.True(t, ok)
	assert.Equal(t, "replaced", v)
}

func TestTree_CloneIsDeep(t *testing.T) {
	orig := tree("nested", tree("x", int64(1)), "list", []any{tree("y", int64(2))})
	c := orig.Clone()

	nested, _ := c.Get("nested")
	nested.(*Tree).Set("x", int64(99))
	list, _ := c.Get("list")
	list.([]any)[0].(*Tree).Set("y", int64(99))

	origNested, _ := orig.Get("nested")
	v, _ := origNested.(*Tree).Get("x")
	assert.Equal(t, int64(1), v)
	origList, _ := orig.Get("list")
	v, _ = origList.([]any)[0].(*Tree).Get("y")
	assert.Equal(t, int64(2), v)
}

func TestForFormat(t *testing.T) {
	for _, tc := range []struct {
		format Format
		ext    string
	}{
		{FormatYAML, "yml"},
		{FormatYAML, "YAML"},
		{FormatJSON, "json"},
		{FormatProperties, "properties"},
	} {
		c, err := ForFormat(tc.format)
		require.NoError(t, err)
		assert.Equal(t, tc.format, c.Format())
		assert.True(t, c.Accepts(tc.ext), "%s should accept %s", tc.format, tc.ext)
	}

	_, err := ForFormat("toml")
	assert.Error(t, err)

	yaml, _ := ForFormat(FormatYAML)
	assert.False(t, yaml.Accepts("json"))
}

func TestYAML_DecodePreservesOrder(t *testing.T) {
	data := []byte(`
zeta: 1
alpha:
  second: two
  first: one
list:
  - a
  - b: c
flag: true
ratio: 0.5
empty:
`)
	got, err := YAML{}.Decode(data)
	require.NoError(t, err)

	want := tree(
		"zeta", int64(1),
		"alpha", tree("second", "two", "first", "one"),
		"list", []any{"a", tree("b", "c")},
		"flag", true,
		"ratio", 0.5,
		"empty", nil,
	)
	assert.Equal(t, want, got)
}

func TestYAML_DecodeMergeKeys(t *testing.T) {
	data := []byte(`
defaults: &defaults
  timeout: 10
  retries: 3
service:
  <<: *defaults
  timeout: 20
`)
	got, err := YAML{}.Decode(data)
	require.NoError(t, err)

	service, _ := got.Get("service")
	assert.Equal(t, tree("timeout", int64(20), "retries", int64(3)), service)
}

func TestYAML_DecodeEmptyAndInvalid(t *testing.T) {
	got, err := YAML{}.Decode([]byte(""))
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = YAML{}.Decode([]byte("~\n"))
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = YAML{}.Decode([]byte("key: [unclosed"))
	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, FormatYAML, decodeErr.Format)

	_, err = YAML{}.Decode([]byte("- just\n- a list\n"))
	assert.True(t, errors.As(err, &decodeErr))
}

func TestYAML_Encode(t *testing.T) {
	out, err := YAML{}.Encode(tree("b", int64(1), "a", tree("y", "text", "x", "z")))
	require.NoError(t, err)
	assert.Equal(t, "b: 1\na:\n  y: text\n  x: z\n", out)

	out, err = YAML{}.Encode(NewTree())
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestEncode_WholeNumberFloatsKeepFraction(t *testing.T) {
	in := tree("count", int64(3), "ratio", 3.0, "neg", -2.0, "half", 0.5)

	out, err := YAML{}.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, "count: 3\nratio: 3.0\nneg: -2.0\nhalf: 0.5\n", out)

	out, err = JSON{}.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"count\": 3,\n  \"ratio\": 3.0,\n  \"neg\": -2.0,\n  \"half\": 0.5\n}", out)
}

func TestJSON_DecodePreservesOrder(t *testing.T) {
	data := []byte(`{
  // comments are tolerated
  "zeta": 1,
  "alpha": {"second": "two", "first": "one"},
  "list": ["a", {"b": "c"}],
  "ratio": 1.5,
  "none": null,
}`)
	got, err := JSON{}.Decode(data)
	require.NoError(t, err)

	want := tree(
		"zeta", int64(1),
		"alpha", tree("second", "two", "first", "one"),
		"list", []any{"a", tree("b", "c")},
		"ratio", 1.5,
		"none", nil,
	)
	assert.Equal(t, want, got)
}

func TestJSON_DecodeInvalid(t *testing.T) {
	var decodeErr *DecodeError

	_, err := JSON{}.Decode([]byte(`{"a": `))
	assert.True(t, errors.As(err, &decodeErr))

	_, err = JSON{}.Decode([]byte(`["a"]`))
	assert.True(t, errors.As(err, &decodeErr))

	_, err = JSON{}.Decode([]byte(`{"a": 1} {"b": 2}`))
	assert.True(t, errors.As(err, &decodeErr))

	got, err := JSON{}.Decode([]byte("  \n"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestJSON_EncodePretty(t *testing.T) {
	out, err := JSON{}.Encode(tree("b", int64(1), "a", tree("url", "http://x?a=1&b=<2>")))
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"b\": 1,\n  \"a\": {\n    \"url\": \"http://x?a=1&b=<2>\"\n  }\n}", out)

	out, err = JSON{}.Encode(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestProperties_Decode(t *testing.T) {
	data := []byte(`# comment
server.port=8080
server.host = localhost
path=${HOME}/data
spaced\ key=value with spaces
`)
	got, err := Properties{}.Decode(data)
	require.NoError(t, err)

	want := tree(
		"server.port", "8080",
		"server.host", "localhost",
		"path", "${HOME}/data",
		"spaced key", "value with spaces",
	)
	assert.Equal(t, want, got)
}

func TestProperties_EncodeFlattensNested(t *testing.T) {
	out, err := Properties{}.Encode(tree(
		"server", tree("port", int64(8080), "hosts", []any{"a", "b"}),
		"enabled", true,
	))
	require.NoError(t, err)
	assert.Equal(t, "server.port=8080\nserver.hosts[0]=a\nserver.hosts[1]=b\nenabled=true", out)
}

func TestRoundTrip(t *testing.T) {
	structured := tree(
		"name", "service",
		"port", int64(8080),
		"ratio", 0.25,
		"replicas", 3.0,
		"huge", 1e21,
		"enabled", false,
		"nothing", nil,
		"nested", tree("z", "last", "a", tree("deep", "value")),
		"list", []any{"x", int64(2), tree("k", "v")},
	)
	flat := tree(
		"a.b", "1",
		"key with spaces", "  leading spaces",
		"equals=sign", "multi\nline\\path",
		"unicode", "héllo",
	)

	for _, tc := range []struct {
		codec Codec
		tree  *Tree
	}{
		{YAML{}, structured},
		{JSON{}, structured},
		{Properties{}, flat},
	} {
		t.Run(string(tc.codec.Format()), func(t *testing.T) {
			encoded, err := tc.codec.Encode(tc.tree)
			require.NoError(t, err)

			decoded, err := tc.codec.Decode([]byte(encoded))
			require.NoError(t, err)
			assert.Equal(t, tc.tree, decoded)
		})
	}
}
