package ipc

import (
	"context"

	"github.com/ilguido/jidl/internal/protocol"
	"github.com/ilguido/jidl/internal/telemetry"
)

// LoggerControl is the subset of the running logger the "start"/"stop"
// methods need.
type LoggerControl interface {
	Start(fatalHandler func(error)) error
	Stop()
	Status() bool
}

// ValueSource supplies the most recent cached value for one
// variable::connection pair, backing the "values" method.
type ValueSource interface {
	Value(connection, varName string) (value any, ok bool)
}

// RequestHandler implements Handler against live logger state.
type RequestHandler struct {
	Control        LoggerControl
	Values         ValueSource
	ControlEnabled bool // the -r flag: permit start/stop over IPC
}

// Handle dispatches req.Method to the corresponding logger operation.
func (h *RequestHandler) Handle(ctx context.Context, req *protocol.RequestBody) (protocol.StatusCode, *protocol.ResponseBody) {
	_, span := telemetry.StartIPCRequest(ctx, req.Method)
	defer telemetry.End(span, nil)

	switch req.Method {
	case "values":
		return h.handleValues(req.Payload)
	case "start":
		return h.handleStart()
	case "stop":
		return h.handleStop()
	case "trends":
		return protocol.OK, &protocol.ResponseBody{}
	default:
		return protocol.FailedRequestHandling, &protocol.ResponseBody{Message: protocol.FailedRequestHandling.TextMessage()}
	}
}

func (h *RequestHandler) handleValues(payload any) (protocol.StatusCode, *protocol.ResponseBody) {
	request, ok := payload.(map[string]any)
	if !ok {
		return protocol.FailedRequestHandling, &protocol.ResponseBody{Message: "values: malformed payload"}
	}

	result := make(map[string]any)

	for connection, rawVars := range request {
		vars, ok := rawVars.([]any)
		if !ok {
			return protocol.FailedRequestHandling, &protocol.ResponseBody{Message: "values: malformed variable list for " + connection}
		}

		for _, rawVar := range vars {
			varName, ok := rawVar.(string)
			if !ok {
				return protocol.FailedRequestHandling, &protocol.ResponseBody{Message: "values: malformed variable name"}
			}

			v, ok := h.Values.Value(connection, varName)
			if !ok {
				return protocol.FailedRequestHandling, &protocol.ResponseBody{
					Message: "values: unknown variable " + varName + "::" + connection,
				}
			}
			result[varName+"::"+connection] = v
		}
	}

	return protocol.OKWithPayload, &protocol.ResponseBody{Payload: result}
}

func (h *RequestHandler) handleStart() (protocol.StatusCode, *protocol.ResponseBody) {
	if !h.ControlEnabled {
		return protocol.FailedRequestHandling, &protocol.ResponseBody{Message: "start: remote control disabled"}
	}
	if h.Control.Status() {
		return protocol.OK, &protocol.ResponseBody{}
	}
	if err := h.Control.Start(nil); err != nil {
		return protocol.FailedRequestHandling, &protocol.ResponseBody{Message: "start: " + err.Error()}
	}
	return protocol.OK, &protocol.ResponseBody{}
}

func (h *RequestHandler) handleStop() (protocol.StatusCode, *protocol.ResponseBody) {
	if !h.ControlEnabled {
		return protocol.FailedRequestHandling, &protocol.ResponseBody{Message: "stop: remote control disabled"}
	}
	if !h.Control.Status() {
		return protocol.OK, &protocol.ResponseBody{}
	}
	h.Control.Stop()
	return protocol.OK, &protocol.ResponseBody{}
}
