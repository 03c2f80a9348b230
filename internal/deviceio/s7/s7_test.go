package s7

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilguido/jidl/internal/datatype"
)

func TestTypedTag(t *testing.T) {
	assert.Equal(t, "DB1.DBW0:INT", TypedTag("DB1.DBW0", datatype.Integer, 0))
	assert.Equal(t, "DB1.DBB4:STRING(32)", TypedTag("DB1.DBB4", datatype.Text, 32))
}

func TestParseAreaWord(t *testing.T) {
	a, err := ParseArea("DB1.DBW0", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, a.DBNumber)
	assert.Equal(t, 0, a.Start)
	assert.False(t, a.IsBit)
}

func TestParseAreaBit(t *testing.T) {
	a, err := ParseArea("DB3.DBX2.5", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, a.DBNumber)
	assert.Equal(t, 2, a.Start)
	assert.True(t, a.IsBit)
	assert.Equal(t, 5, a.Bit)
}

func TestParseAreaInvalid(t *testing.T) {
	_, err := ParseArea("MW100", 2)
	assert.Error(t, err)

	_, err = ParseArea("DB1.DBX2.9", 1)
	assert.Error(t, err)

	_, err = ParseArea("DB1", 2)
	assert.Error(t, err)
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	area, err := ParseArea("DB1.DBD0", 4)
	require.NoError(t, err)

	buf, err := encode(12.5, datatype.Real, area)
	require.NoError(t, err)

	v, err := decode(buf, datatype.Real, area)
	require.NoError(t, err)
	assert.InDelta(t, 12.5, v, 1e-6)
}

func TestDecodeBit(t *testing.T) {
	area, err := ParseArea("DB1.DBX0.3", 1)
	require.NoError(t, err)

	buf, err := encode(true, datatype.Boolean, area)
	require.NoError(t, err)

	v, err := decode(buf, datatype.Boolean, area)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestDecodeText(t *testing.T) {
	area, err := ParseArea("DB1.DBB0", 10)
	require.NoError(t, err)

	buf, err := encode("hi", datatype.Text, area)
	require.NoError(t, err)

	v, err := decode(buf, datatype.Text, area)
	require.NoError(t, err)
	assert.Equal(t, "hi", v)
}
