package jsonhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilguido/jidl/internal/apperror"
	"github.com/ilguido/jidl/internal/datatype"
)

func TestRefreshAndReadTag(t *testing.T) {
	n := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n++
		_ = json.NewEncoder(w).Encode(map[string]any{"foo": n, "bar": "hello!", "baz": 127.2})
	}))
	defer srv.Close()

	c := New(srv.URL)
	require.NoError(t, c.Initialize())
	require.NoError(t, c.Connect(context.Background()))

	v, err := c.ReadTag(context.Background(), "foo", datatype.Integer)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	require.NoError(t, c.Refresh(context.Background()))
	v, err = c.ReadTag(context.Background(), "foo", datatype.Integer)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestReadTagMissingKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"foo": 1})
	}))
	defer srv.Close()

	c := New(srv.URL)
	require.NoError(t, c.Initialize())
	require.NoError(t, c.Connect(context.Background()))

	_, err := c.ReadTag(context.Background(), "missing", datatype.Integer)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeDecodeError, apperror.Code(err))
}

func TestConnectFailsWhenUnreachable(t *testing.T) {
	c := New("http://127.0.0.1:1")
	require.NoError(t, c.Initialize())

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperror.CodeDeviceUnreachable, apperror.Code(err))
}

func TestWriteTagUnsupported(t *testing.T) {
	c := New("http://example.invalid")
	err := c.WriteTag(context.Background(), "foo", datatype.Integer, int64(1))
	require.Error(t, err)
	assert.Equal(t, apperror.CodeBadArgument, apperror.Code(err))
}

func TestCoerceText(t *testing.T) {
	v, err := coerce("hello!", datatype.Text, "bar")
	require.NoError(t, err)
	assert.Equal(t, "hello!", v)

	v, err = coerce(127.2, datatype.Real, "baz")
	require.NoError(t, err)
	assert.InDelta(t, 127.2, v, 1e-9)
}
