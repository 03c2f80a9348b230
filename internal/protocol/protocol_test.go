package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, OKWithPayload, map[string]any{"payload": map[string]any{"a": float64(1)}})
	require.NoError(t, err)

	raw := buf.Bytes()
	assert.Equal(t, []byte{0x6A, 0x69, 0x64, 0x6C, 0x41}, raw[:5])

	frame, err := Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, OKWithPayload, frame.Status)

	resp, err := DecodeResponse(frame)
	require.NoError(t, err)
	payload, ok := resp.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), payload["a"])
}

func TestDecodeBadMagic(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte{0, 0, 0, 0, 0, 0, 0}))
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, UnrecognizedProtocol, de.Status)
}

func TestDecodeShortRead(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte{'j', 'i', 'd'}))
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, IncompleteData, de.Status)
}

func TestDecodeInvalidStatusCode(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(Magic[:])
	buf.WriteByte(0xFE) // unused, reserved top bits 11
	buf.Write([]byte{0, 0})

	_, err := Decode(&buf)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, InvalidStatusCode, de.Status)
}

func TestDecodeInvalidBody(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(Magic[:])
	buf.WriteByte(byte(OKWithPayload))
	body := []byte("not json")
	buf.WriteByte(byte(len(body)))
	buf.WriteByte(0)
	buf.Write(body)

	_, err := Decode(&buf)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, InvalidBody, de.Status)
}

func TestEncodeBufferOverflow(t *testing.T) {
	var buf bytes.Buffer
	big := make([]byte, MaxBodySize) // the string alone already fills the body limit
	for i := range big {
		big[i] = 'a'
	}
	err := Encode(&buf, OKWithPayload, map[string]any{"payload": string(big)})
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, BufferOverflow, de.Status)
}

func TestIsRequestGoodBadExclusive(t *testing.T) {
	recognized := []StatusCode{RequestEmpty, RequestPayloadOnly, RequestMethodOnly, RequestMethodPayload,
		OK, OKWithPayload, Error, UnrecognizedProtocol, IncompleteData, InvalidStatusCode, InvalidBody,
		BufferOverflow, FailedRequestHandling}

	for _, c := range recognized {
		n := 0
		if IsRequest(c) {
			n++
		}
		if IsGoodResponse(c) {
			n++
		}
		if IsBadResponse(c) {
			n++
		}
		assert.Equal(t, 1, n, "code 0x%02x should match exactly one category", byte(c))
	}

	// Reserved top-bits-11 range: none of the three predicates should hold.
	reserved := StatusCode(0xC0)
	assert.False(t, IsRequest(reserved))
	assert.False(t, IsGoodResponse(reserved))
	assert.False(t, IsBadResponse(reserved))
}

func TestRequestCodeBits(t *testing.T) {
	assert.Equal(t, RequestMethodPayload, RequestCode(true, true))
	assert.Equal(t, RequestMethodOnly, RequestCode(true, false))
	assert.Equal(t, RequestPayloadOnly, RequestCode(false, true))
	assert.Equal(t, RequestEmpty, RequestCode(false, false))

	assert.True(t, RequestMethodPayload.HasMethod())
	assert.True(t, RequestMethodPayload.HasPayload())
	assert.False(t, RequestMethodOnly.HasPayload())
}

func TestEncodeFlushesBufferedWriter(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)

	err := Encode(bw, OK, nil)
	require.NoError(t, err)

	// If Encode didn't flush, buf would still be empty.
	assert.Greater(t, buf.Len(), 0)
}

func TestDecodeRequestBody(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, RequestMethodPayload, RequestBody{Method: "values", Payload: map[string]any{"c": []string{"a"}}})
	require.NoError(t, err)

	frame, err := Decode(&buf)
	require.NoError(t, err)

	req, err := DecodeRequest(frame)
	require.NoError(t, err)
	assert.Equal(t, "values", req.Method)
}

func TestEncodeEmptyBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, OK, nil))

	frame, err := Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, OK, frame.Status)
	assert.Empty(t, frame.Body)
	_ = io.Discard
	_ = json.Valid
}
