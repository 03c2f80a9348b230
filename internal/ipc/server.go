// Package ipc implements the Jidl IPC server and client: a TLS-gated,
// framed request/response transport over internal/protocol.
package ipc

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"

	"github.com/ilguido/jidl/internal/apperror"
	"github.com/ilguido/jidl/internal/applog"
	"github.com/ilguido/jidl/internal/protocol"
)

// Handler dispatches one decoded request to logger state and returns
// the status code and body to write back.
type Handler interface {
	Handle(ctx context.Context, req *protocol.RequestBody) (protocol.StatusCode, *protocol.ResponseBody)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, req *protocol.RequestBody) (protocol.StatusCode, *protocol.ResponseBody)

func (f HandlerFunc) Handle(ctx context.Context, req *protocol.RequestBody) (protocol.StatusCode, *protocol.ResponseBody) {
	return f(ctx, req)
}

// Server terminates TLS, reads one framed request per accepted
// connection, dispatches it, writes one framed response, and closes.
type Server struct {
	addr      string
	tlsConfig *tls.Config
	handler   Handler

	mu       sync.Mutex
	listener net.Listener
	started  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewServer constructs a server bound to addr, serving handler.
func NewServer(addr string, tlsConfig *tls.Config, handler Handler) *Server {
	return &Server{addr: addr, tlsConfig: tlsConfig, handler: handler}
}

// Start binds the TLS listener and begins accepting. Idempotent.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	ln, err := tls.Listen("tcp", s.addr, s.tlsConfig)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeAuthMaterialInvalid, "ipc listen on "+s.addr)
	}

	s.listener = ln
	s.stopCh = make(chan struct{})
	s.started = true

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				applog.Log.Warn("ipc accept failed", "error", err)
				continue
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

// serveConn handles exactly one framed request/response exchange,
// independent of whether conn is TLS-wrapped, so dispatch logic is
// testable without a real certificate chain.
func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	frame, err := protocol.Decode(conn)
	if err != nil {
		var de *protocol.DecodeError
		status := protocol.Error
		if errors.As(err, &de) {
			status = de.Status
		}
		_ = protocol.Encode(conn, status, protocol.ResponseBody{Message: status.TextMessage()})
		return
	}

	req, err := protocol.DecodeRequest(frame)
	if err != nil {
		_ = protocol.Encode(conn, protocol.InvalidBody, protocol.ResponseBody{Message: protocol.InvalidBody.TextMessage()})
		return
	}

	status, resp := s.handler.Handle(context.Background(), req)
	if resp == nil {
		resp = &protocol.ResponseBody{}
	}
	if err := protocol.Encode(conn, status, resp); err != nil {
		applog.Log.Warn("ipc encode response failed", "error", err)
	}
}

// Stop closes the listener and waits for in-flight connections to
// finish serving. Idempotent.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	close(s.stopCh)
	err := s.listener.Close()
	s.started = false
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

// IsStarted reports whether the server is currently accepting connections.
func (s *Server) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
