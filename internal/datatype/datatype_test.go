package datatype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in       string
		wantType DataType
		wantSize int
	}{
		{"INTEGER", Integer, 0},
		{"boolean", Boolean, 0},
		{"TEXT", Text, DefaultTextSize},
		{"TEXT(32)", Text, 32},
		{"real", Real, 0},
	}

	for _, tt := range tests {
		dt, size, err := Parse(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.wantType, dt, tt.in)
		assert.Equal(t, tt.wantSize, size, tt.in)
	}
}

func TestParseInvalid(t *testing.T) {
	_, _, err := Parse("NOT_A_TYPE")
	assert.Error(t, err)

	_, _, err = Parse("TEXT(abc)")
	assert.Error(t, err)

	_, _, err = Parse("TEXT(0)")
	assert.Error(t, err)
}

func TestSQLType(t *testing.T) {
	assert.Equal(t, "INTEGER", Integer.SQLType())
	assert.Equal(t, "REAL", Real.SQLType())
	assert.Equal(t, "TEXT", Text.SQLType())
	assert.Equal(t, "INTEGER", Boolean.SQLType())
}

func TestRegisterSpan(t *testing.T) {
	assert.Equal(t, 1, RegisterSpan(Integer, 0))
	assert.Equal(t, 2, RegisterSpan(DoubleInteger, 0))
	assert.Equal(t, 2, RegisterSpan(Real, 0))
	assert.Equal(t, 127, RegisterSpan(Text, 0))
	assert.Equal(t, 32, RegisterSpan(Text, 32))
}

func TestS7Code(t *testing.T) {
	assert.Equal(t, "BOOL", S7Code(Boolean, 0))
	assert.Equal(t, "DINT", S7Code(DoubleInteger, 0))
	assert.Equal(t, "STRING(254)", S7Code(Text, 0))
	assert.Equal(t, "STRING(32)", S7Code(Text, 32))
	assert.Equal(t, "STRING(254)", S7Code(Text, 1000))
}

func TestEncodeDecodeTextRoundTrip(t *testing.T) {
	cases := []struct {
		dt  DataType
		val any
	}{
		{Boolean, true},
		{Integer, int64(42)},
		{Float, 3.5},
		{Text, "hello"},
	}

	for _, c := range cases {
		text, err := EncodeText(c.dt, c.val)
		require.NoError(t, err)

		back, err := DecodeText(c.dt, text)
		require.NoError(t, err)

		switch c.dt {
		case Integer:
			assert.Equal(t, c.val, back)
		case Boolean:
			assert.Equal(t, c.val, back)
		case Text:
			assert.Equal(t, c.val, back)
		default:
			assert.InDelta(t, c.val, back, 1e-9)
		}
	}
}

func TestEncodeTextWrongKind(t *testing.T) {
	_, err := EncodeText(Integer, "not an int")
	assert.Error(t, err)

	_, err = EncodeText(Boolean, 1)
	assert.Error(t, err)
}

func TestDecodeTextInvalid(t *testing.T) {
	_, err := DecodeText(Boolean, "maybe")
	assert.Error(t, err)

	_, err = DecodeText(Integer, "abc")
	assert.Error(t, err)
}
