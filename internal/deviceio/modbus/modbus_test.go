package modbus

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilguido/jidl/internal/apperror"
	"github.com/ilguido/jidl/internal/datatype"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in       string
		wantFile RegisterFile
		wantOff  uint16
	}{
		{"00001", Coils, 1},
		{"10005", DiscreteInputs, 5},
		{"30010", InputRegisters, 10},
		{"40100", HoldingRegisters, 100},
	}

	for _, tt := range tests {
		a, err := ParseAddress(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.wantFile, a.File, tt.in)
		assert.Equal(t, tt.wantOff, a.Offset, tt.in)
	}
}

func TestParseAddressInvalid(t *testing.T) {
	_, err := ParseAddress("5")
	assert.Error(t, err)

	_, err = ParseAddress("abcde")
	assert.Error(t, err)

	_, err = ParseAddress("20001")
	assert.Error(t, err)
}

func TestValidateType(t *testing.T) {
	assert.NoError(t, ValidateType(Coils, datatype.Boolean))
	assert.Error(t, ValidateType(Coils, datatype.Integer))
	assert.Error(t, ValidateType(HoldingRegisters, datatype.Boolean))
	assert.NoError(t, ValidateType(HoldingRegisters, datatype.Integer))
}

func TestDecodeRegistersInteger(t *testing.T) {
	raw := []byte{0x00, 0x2A}
	v, err := DecodeRegisters(raw, datatype.Integer, false)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
}

func TestDecodeRegistersReversed(t *testing.T) {
	// DoubleInteger 0x00010000 split into two words, swapped on the wire.
	raw := []byte{0x00, 0x01, 0x00, 0x00}
	v, err := DecodeRegisters(raw, datatype.DoubleInteger, false)
	require.NoError(t, err)
	assert.Equal(t, int64(0x00010000), v)

	reversedRaw := []byte{0x00, 0x00, 0x00, 0x01}
	v, err = DecodeRegisters(reversedRaw, datatype.DoubleInteger, true)
	require.NoError(t, err)
	assert.Equal(t, int64(0x00010000), v)
}

func TestDecodeRegistersFloat(t *testing.T) {
	raw := make([]byte, 4)
	binary.BigEndian.PutUint32(raw, math.Float32bits(3.5))
	v, err := DecodeRegisters(raw, datatype.Real, false)
	require.NoError(t, err)
	assert.InDelta(t, 3.5, v, 1e-6)
}

func TestDecodeRegistersShortRead(t *testing.T) {
	_, err := DecodeRegisters([]byte{0x00}, datatype.Integer, false)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeDecodeError, apperror.Code(err))
}

func TestEncodeDecodeRegistersRoundTrip(t *testing.T) {
	raw, err := EncodeRegisters(int64(1234), datatype.Integer, false)
	require.NoError(t, err)
	back, err := DecodeRegisters(raw, datatype.Integer, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), back)

	raw, err = EncodeRegisters(12.25, datatype.Real, true)
	require.NoError(t, err)
	back, err = DecodeRegisters(raw, datatype.Real, true)
	require.NoError(t, err)
	assert.InDelta(t, 12.25, back, 1e-6)
}

func TestEncodeRegistersWrongKind(t *testing.T) {
	_, err := EncodeRegisters("not a number", datatype.Integer, false)
	assert.Error(t, err)
}
