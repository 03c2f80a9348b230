// Package apperror provides the closed set of error kinds the JIDL core
// can raise, with enough structure to decide scheduler recovery policy
// and to map onto a Jidl protocol status code at the IPC boundary.
package apperror

import (
	"errors"
	"fmt"
)

// ErrorCode identifies one of the error kinds from the error handling design.
type ErrorCode string

const (
	// CodeConfigInvalid marks malformed INI, a missing required field,
	// a bad number, or an unknown type at configuration load time.
	CodeConfigInvalid ErrorCode = "CONFIG_INVALID"

	// CodeDeviceUnreachable marks a connect failure. Recovered locally:
	// the connection is marked disconnected and retried on its next due tick.
	CodeDeviceUnreachable ErrorCode = "DEVICE_UNREACHABLE"

	// CodeDeviceReadError marks a per-request read I/O failure.
	CodeDeviceReadError ErrorCode = "DEVICE_READ_ERROR"

	// CodeDeviceWriteError marks a per-request write I/O failure.
	CodeDeviceWriteError ErrorCode = "DEVICE_WRITE_ERROR"

	// CodeDecodeError marks a per-tag encoding mismatch. The row proceeds
	// with NULL for that tag; it is not fatal.
	CodeDecodeError ErrorCode = "DECODE_ERROR"

	// CodeSinkUnavailable is fatal: it bubbles out of the scheduler,
	// stops the logger, and reaches the optional fatal handler.
	CodeSinkUnavailable ErrorCode = "SINK_UNAVAILABLE"

	// CodeProtocolError wraps a bad Jidl response status observed by a client.
	CodeProtocolError ErrorCode = "PROTOCOL_ERROR"

	// CodeAuthMaterialInvalid marks missing or unreadable TLS material
	// at server construction. Fatal at startup.
	CodeAuthMaterialInvalid ErrorCode = "AUTH_MATERIAL_INVALID"

	// CodeBadArgument is a programmer-facing error: duplicate connection
	// name, duplicate variable name, invalid address, and similar.
	CodeBadArgument ErrorCode = "BAD_ARGUMENT"

	// CodeInternal is the fallback for errors that don't map to a closed code.
	CodeInternal ErrorCode = "INTERNAL"
)

// Error is the structured error type for the JIDL core.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to Cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetails attaches a key/value pair and returns the same error for chaining.
func (e *Error) WithDetails(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new *Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a new *Error with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new *Error that wraps cause with the given code and message.
func Wrap(cause error, code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Wrapf creates a new *Error that wraps cause with a formatted message.
func Wrapf(cause error, code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err is an *Error with the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Code extracts the ErrorCode carried by err, or CodeInternal if err is
// not an *Error.
func Code(err error) ErrorCode {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// IsFatal reports whether err should stop the scheduler. Only sink
// unavailability is fatal mid-run; everything else is recovered locally.
func IsFatal(err error) bool {
	return Is(err, CodeSinkUnavailable)
}
