package ipc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilguido/jidl/internal/protocol"
)

type fakeValueSource struct {
	values map[string]any
}

func (f fakeValueSource) Value(connection, varName string) (any, bool) {
	v, ok := f.values[varName+"::"+connection]
	return v, ok
}

type fakeControl struct {
	running   bool
	startErr  error
	startCall int
	stopCall  int
}

func (f *fakeControl) Start(_ func(error)) error {
	f.startCall++
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeControl) Stop() {
	f.stopCall++
	f.running = false
}

func (f *fakeControl) Status() bool { return f.running }

func TestHandleValues(t *testing.T) {
	h := &RequestHandler{
		Values: fakeValueSource{values: map[string]any{"a::c": int64(5), "b::c": 1.5}},
	}

	status, resp := h.Handle(context.Background(), &protocol.RequestBody{
		Method:  "values",
		Payload: map[string]any{"c": []any{"a", "b"}},
	})

	require.Equal(t, protocol.OKWithPayload, status)
	payload := resp.Payload.(map[string]any)
	assert.Equal(t, int64(5), payload["a::c"])
	assert.Equal(t, 1.5, payload["b::c"])
}

func TestHandleValuesUnknownVariable(t *testing.T) {
	h := &RequestHandler{Values: fakeValueSource{values: map[string]any{}}}

	status, _ := h.Handle(context.Background(), &protocol.RequestBody{
		Method:  "values",
		Payload: map[string]any{"c": []any{"missing"}},
	})
	assert.Equal(t, protocol.FailedRequestHandling, status)
}

func TestHandleStartDisabled(t *testing.T) {
	h := &RequestHandler{Control: &fakeControl{}, ControlEnabled: false}
	status, _ := h.Handle(context.Background(), &protocol.RequestBody{Method: "start"})
	assert.Equal(t, protocol.FailedRequestHandling, status)
}

func TestHandleStartAlreadyRunning(t *testing.T) {
	control := &fakeControl{running: true}
	h := &RequestHandler{Control: control, ControlEnabled: true}
	status, _ := h.Handle(context.Background(), &protocol.RequestBody{Method: "start"})
	assert.Equal(t, protocol.OK, status)
	assert.Equal(t, 0, control.startCall)
}

func TestHandleStartAndStop(t *testing.T) {
	control := &fakeControl{}
	h := &RequestHandler{Control: control, ControlEnabled: true}

	status, _ := h.Handle(context.Background(), &protocol.RequestBody{Method: "start"})
	assert.Equal(t, protocol.OK, status)
	assert.True(t, control.running)

	status, _ = h.Handle(context.Background(), &protocol.RequestBody{Method: "stop"})
	assert.Equal(t, protocol.OK, status)
	assert.False(t, control.running)
}

func TestHandleTrends(t *testing.T) {
	h := &RequestHandler{}
	status, resp := h.Handle(context.Background(), &protocol.RequestBody{Method: "trends"})
	assert.Equal(t, protocol.OK, status)
	assert.Nil(t, resp.Payload)
}

func TestHandleUnknownMethod(t *testing.T) {
	h := &RequestHandler{}
	status, _ := h.Handle(context.Background(), &protocol.RequestBody{Method: "bogus"})
	assert.Equal(t, protocol.FailedRequestHandling, status)
}
