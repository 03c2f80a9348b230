package variable

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilguido/jidl/internal/apperror"
	"github.com/ilguido/jidl/internal/datatype"
)

type fakeClient struct {
	values  map[string]any
	readErr error
	writeErr error
	written  map[string]any
}

func newFakeClient() *fakeClient {
	return &fakeClient{values: map[string]any{}, written: map[string]any{}}
}

func (f *fakeClient) ReadTag(_ context.Context, address string, _ datatype.DataType) (any, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.values[address], nil
}

func (f *fakeClient) WriteTag(_ context.Context, address string, _ datatype.DataType, value any) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written[address] = value
	return nil
}

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("foo"))
	assert.True(t, ValidName("_foo_1"))
	assert.False(t, ValidName("1foo"))
	assert.False(t, ValidName("foo-bar"))
	assert.False(t, ValidName(""))
}

func TestReaderReadAndValue(t *testing.T) {
	client := newFakeClient()
	client.values["foo"] = int64(42)

	r, err := NewReader("x", "foo", datatype.Integer, 0)
	require.NoError(t, err)
	assert.False(t, r.HasValue())

	_, err = r.Read(context.Background(), client)
	require.NoError(t, err)
	assert.True(t, r.HasValue())
	assert.Equal(t, int64(42), r.Value())
	assert.Equal(t, "42", r.Text())
}

func TestReaderInvalidName(t *testing.T) {
	_, err := NewReader("1bad", "foo", datatype.Integer, 0)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeBadArgument, apperror.Code(err))
}

func TestReaderReadErrorMapping(t *testing.T) {
	client := newFakeClient()
	client.readErr = assertError{"boom"}

	r, err := NewReader("x", "foo", datatype.Integer, 0)
	require.NoError(t, err)

	_, err = r.Read(context.Background(), client)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeDeviceReadError, apperror.Code(err))
}

func TestWriterWritesSourceValue(t *testing.T) {
	client := newFakeClient()
	client.values["foo"] = int64(7)

	r, err := NewReader("x", "foo", datatype.Integer, 0)
	require.NoError(t, err)
	_, err = r.Read(context.Background(), client)
	require.NoError(t, err)

	w, err := NewWriter("y", "bar", r)
	require.NoError(t, err)

	_, err = w.Write(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, int64(7), client.written["bar"])
}

func TestWriterNoSourceValueYetIsNoop(t *testing.T) {
	r, err := NewReader("x", "foo", datatype.Integer, 0)
	require.NoError(t, err)

	w, err := NewWriter("y", "bar", r)
	require.NoError(t, err)

	client := newFakeClient()
	_, err = w.Write(context.Background(), client)
	require.NoError(t, err)
	assert.Empty(t, client.written)
}

func TestWriterRequiresSource(t *testing.T) {
	_, err := NewWriter("y", "bar", nil)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeBadArgument, apperror.Code(err))
}

func TestParseQualifierConnection(t *testing.T) {
	q, err := ParseQualifier("plc1")
	require.NoError(t, err)
	assert.True(t, q.IsConnection)
	assert.Equal(t, "plc1", q.Connection)
}

func TestParseQualifierReader(t *testing.T) {
	q, err := ParseQualifier("x::plc1")
	require.NoError(t, err)
	assert.False(t, q.IsConnection)
	assert.Equal(t, "x", q.Var)
	assert.Equal(t, "plc1", q.Connection)
	assert.False(t, q.HasSource)
	assert.Equal(t, "x::plc1", q.String())
}

func TestParseQualifierWriter(t *testing.T) {
	q, err := ParseQualifier("y::plc2<-x::plc1")
	require.NoError(t, err)
	assert.Equal(t, "y", q.Var)
	assert.Equal(t, "plc2", q.Connection)
	assert.True(t, q.HasSource)
	assert.Equal(t, "x", q.SourceVar)
	assert.Equal(t, "plc1", q.SourceConn)
}

func TestParseQualifierMalformed(t *testing.T) {
	cases := []string{
		"x::",
		"::plc1",
		"x::plc1::extra",
		"x::1bad",
		"",
		"y::plc2<-x::",
	}
	for _, c := range cases {
		_, err := ParseQualifier(c)
		require.Error(t, err, c)
		assert.Equal(t, apperror.CodeConfigInvalid, apperror.Code(err), c)
	}
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
