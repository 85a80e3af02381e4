package testcase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"key order", `{"z":1,"a":2}`, `{"a":2,"z":1}`},
		{"nested", `{"b":[{"y":true,"x":null}],"a":"s"}`, `{"a":"s","b":[{"x":null,"y":true}]}`},
		{"no html escape", `"<a&b>"`, `"<a&b>"`},
		{"nfc", "\"e\u0301\"", "\"\u00e9\""},
		{"number text kept", `1.0`, `1.0`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalizeJSON([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestCanonicalizeJSONInvalid(t *testing.T) {
	_, err := CanonicalizeJSON([]byte(`{`))
	require.Error(t, err)
}

func TestCompareUTF16(t *testing.T) {
	// U+FF61 sorts before U+1F600 in UTF-8 but after its surrogate pair in UTF-16.
	assert.Equal(t, 1, compareUTF16("\uFF61", "\U0001F600"))
	assert.Equal(t, 0, compareUTF16("a", "a"))
	assert.Equal(t, -1, compareUTF16("a", "ab"))
}

func TestDigestIgnoresInputOrder(t *testing.T) {
	a := NewCase(1, 1, map[string]Value{"title": String("A")})
	b := NewCase(2, 1, map[string]Value{"title": String("B")})

	d1, err := Digest([]Case{a, b})
	require.NoError(t, err)
	d2, err := Digest([]Case{b, a})
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)

	b.SetField("title", String("B2"))
	d3, err := Digest([]Case{a, b})
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)
}
