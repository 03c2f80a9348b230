package ipc

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"time"

	"github.com/ilguido/jidl/internal/apperror"
	"github.com/ilguido/jidl/internal/protocol"
)

// dialFunc abstracts the connect step so tests can substitute an
// in-memory pipe instead of a real TLS handshake.
type dialFunc func(ctx context.Context, timeout time.Duration) (net.Conn, error)

// Client is the IPC request/response client: one connect/write/read/close
// per call, exactly as specified. It is not meant for high-frequency use.
type Client struct {
	address   string
	tlsConfig *tls.Config
	dial      dialFunc
}

// NewClient constructs a client dialing address with tlsConfig.
func NewClient(address string, tlsConfig *tls.Config) *Client {
	c := &Client{address: address, tlsConfig: tlsConfig}
	c.dial = c.tlsDial
	return c
}

func (c *Client) tlsDial(ctx context.Context, timeout time.Duration) (net.Conn, error) {
	dialer := &tls.Dialer{NetDialer: &net.Dialer{Timeout: timeout}, Config: c.tlsConfig}
	return dialer.DialContext(ctx, "tcp", c.address)
}

// Call performs one request/response exchange. timeoutMillis bounds
// the whole call (connect + write + read); 0 means no timeout.
func (c *Client) Call(ctx context.Context, method string, payload any, timeoutMillis int) (*protocol.ResponseBody, error) {
	var timeout time.Duration
	if timeoutMillis > 0 {
		timeout = time.Duration(timeoutMillis) * time.Millisecond
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conn, err := c.dial(ctx, timeout)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeDeviceUnreachable, "ipc dial "+c.address)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	status := protocol.RequestCode(method != "", payload != nil)
	body := protocol.RequestBody{Method: method, Payload: payload}
	if err := protocol.Encode(conn, status, body); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeDeviceUnreachable, "ipc write request")
	}

	frame, err := protocol.Decode(conn)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, apperror.Wrap(err, apperror.CodeDeviceUnreachable, "ipc read timeout")
		}
		return nil, apperror.Wrap(err, apperror.CodeDeviceUnreachable, "ipc read response")
	}

	if protocol.IsBadResponse(frame.Status) {
		resp, _ := protocol.DecodeResponse(frame)
		msg := frame.Status.TextMessage()
		if resp != nil && resp.Message != "" {
			msg = resp.Message
		}
		return nil, apperror.Newf(apperror.CodeProtocolError, "%s", msg).WithDetails("statusCode", byte(frame.Status))
	}

	resp, err := protocol.DecodeResponse(frame)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeProtocolError, "ipc decode response body")
	}
	return resp, nil
}
