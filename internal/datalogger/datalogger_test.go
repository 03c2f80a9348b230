package datalogger

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilguido/jidl/internal/apperror"
	"github.com/ilguido/jidl/internal/connection"
	"github.com/ilguido/jidl/internal/datatype"
	"github.com/ilguido/jidl/internal/sink"
	"github.com/ilguido/jidl/internal/valuecache"
	"github.com/ilguido/jidl/internal/variable"
)

type fakeClient struct {
	initialized bool
	connected   bool
	reads       int32
}

func (f *fakeClient) Initialize() error              { f.initialized = true; return nil }
func (f *fakeClient) IsInitialized() bool            { return f.initialized }
func (f *fakeClient) Connect(context.Context) error  { f.connected = true; return nil }
func (f *fakeClient) Disconnect() error              { f.connected = false; return nil }
func (f *fakeClient) IsConnected() bool              { return f.connected }
func (f *fakeClient) ReadTag(context.Context, string, datatype.DataType) (any, error) {
	atomic.AddInt32(&f.reads, 1)
	return 41.0, nil
}
func (f *fakeClient) WriteTag(context.Context, string, datatype.DataType, any) error { return nil }

func newTestConnection(t *testing.T, name string, sampleTicks int) (*connection.Connection, *fakeClient) {
	t.Helper()
	client := &fakeClient{}
	c, err := connection.New(name, "json", "addr", sampleTicks, client)
	require.NoError(t, err)

	r, err := variable.NewReader("temperature", "40001", datatype.Real, 0)
	require.NoError(t, err)
	require.NoError(t, c.AddReader(r))

	return c, client
}

func TestLoggerRunsThreeTicksAgainstDummySink(t *testing.T) {
	c, _ := newTestConnection(t, "plc1", 1)
	s := sink.NewDummySink()

	l, err := New("test", t.TempDir(), []*connection.Connection{c}, s, nil)
	require.NoError(t, err)

	require.NoError(t, l.Start(nil))
	defer l.Stop()

	assert.Eventually(t, func() bool {
		return len(s.Entries()) >= 3
	}, 2*time.Second, 20*time.Millisecond)

	entries := s.Entries()
	assert.Equal(t, "plc1", entries[0].Table)
	assert.Equal(t, "41", entries[0].Row["temperature"])
}

func TestLoggerValueFallsBackToConnectionWithoutCache(t *testing.T) {
	c, _ := newTestConnection(t, "plc1", 1)
	s := sink.NewDummySink()

	l, err := New("test", t.TempDir(), []*connection.Connection{c}, s, nil)
	require.NoError(t, err)

	require.NoError(t, l.Start(nil))
	defer l.Stop()

	assert.Eventually(t, func() bool {
		_, ok := l.Value("plc1", "temperature")
		return ok
	}, 2*time.Second, 20*time.Millisecond)
}

func TestLoggerValueReadsFromValueCache(t *testing.T) {
	c, _ := newTestConnection(t, "plc1", 1)
	s := sink.NewDummySink()
	cache := valuecache.NewMemory()

	l, err := New("test", t.TempDir(), []*connection.Connection{c}, s, nil, WithValueCache(cache))
	require.NoError(t, err)

	require.NoError(t, l.Start(nil))
	defer l.Stop()

	assert.Eventually(t, func() bool {
		_, ok := cache.Value(context.Background(), "plc1", "temperature")
		return ok
	}, 2*time.Second, 20*time.Millisecond)

	v, ok := l.Value("plc1", "temperature")
	require.True(t, ok)
	assert.Equal(t, 41.0, v)
}

func TestLoggerStopsOnSinkFatalError(t *testing.T) {
	c, _ := newTestConnection(t, "plc1", 1)
	s := sink.NewDummySink()
	s.AddEntryErr = apperror.New(apperror.CodeSinkUnavailable, "disk full")

	var fatalErr error
	var fatalCalled int32

	l, err := New("test", t.TempDir(), []*connection.Connection{c}, s, nil)
	require.NoError(t, err)

	require.NoError(t, l.Start(func(err error) {
		fatalErr = err
		atomic.AddInt32(&fatalCalled, 1)
	}))

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&fatalCalled) == 1
	}, 2*time.Second, 20*time.Millisecond)

	require.Error(t, fatalErr)
	assert.Equal(t, apperror.CodeSinkUnavailable, apperror.Code(fatalErr))

	assert.Eventually(t, func() bool {
		return !l.Status()
	}, 2*time.Second, 20*time.Millisecond)
}

func TestNewRejectsDuplicateConnectionNames(t *testing.T) {
	c1, _ := newTestConnection(t, "dup", 1)
	c2, _ := newTestConnection(t, "dup", 1)
	s := sink.NewDummySink()

	_, err := New("test", t.TempDir(), []*connection.Connection{c1, c2}, s, nil)
	require.Error(t, err)
}

func TestNewRejectsMissingWorkingDir(t *testing.T) {
	c, _ := newTestConnection(t, "plc1", 1)
	s := sink.NewDummySink()

	_, err := New("test", "/no/such/directory", []*connection.Connection{c}, s, nil)
	require.Error(t, err)
}
