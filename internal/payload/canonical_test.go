package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    Value
		expected string
	}{
		{"string", String("hello"), `"hello"`},
		{"empty string", String(""), `""`},
		{"int", Int(42), "42"},
		{"negative int", Int(-1), "-1"},
		{"max int64", Int(9223372036854775807), "9223372036854775807"},
		{"bool", Bool(false), "false"},
		{"null", Null{}, "null"},
		{"empty array", Array{}, "[]"},
		{"empty object", Object{}, "{}"},
		{"object", Object{"b": Int(2), "a": Int(1)}, `{"a":1,"b":2}`},
		{"nested", Object{"z": Object{"y": Int(1), "x": Int(2)}, "a": Array{Int(3)}}, `{"a":[3],"z":{"x":2,"y":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
		})
	}
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	got, err := MarshalCanonical(String("<Home & Away>"))
	require.NoError(t, err)
	assert.Equal(t, `"<Home & Away>"`, string(got))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// An NFD "e" plus combining acute must serialize identically to the
	// precomposed form.
	decomposed := String("Ame\u0301lie")
	composed := String("Am\u00e9lie")

	a, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	b, err := MarshalCanonical(composed)
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	got, err := MarshalCanonical(String("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(got))

	got, err = MarshalCanonical(String(`x\u2028`))
	require.NoError(t, err)
	assert.Equal(t, `"x\\u2028"`, string(got))
}

func TestMarshalCanonicalControlChars(t *testing.T) {
	got, err := MarshalCanonical(String("tab\there\n"))
	require.NoError(t, err)
	assert.Equal(t, `"tab\there\n"`, string(got))
}

func TestMarshalCanonicalStable(t *testing.T) {
	obj := New(
		P("goal_id", String("g1")),
		P("value", Int(1)),
		P("time", String("12:34")),
		P("scorer_id", Null{}),
	)
	first := MustCanonical(obj)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, MustCanonical(obj.Clone()))
	}
}
