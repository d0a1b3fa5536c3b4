// Package grpc provides a lightweight JSON-over-TCP RPC framework for the
// link service's remote-call surface.
//
// Protocol: newline-delimited JSON over a persistent TCP connection. Each
// Request names a "Service.Method"; each Response echoes the request id and
// carries either data or an error message with an HTTP-style status code.
//
// Example server:
//
//	s := grpc.NewServer()
//	s.Register(proto.MethodSearch, func(ctx context.Context, req json.RawMessage) (any, error) {
//	    var in proto.SearchRequest
//	    if err := json.Unmarshal(req, &in); err != nil {
//	        return nil, err
//	    }
//	    return svc.Search(ctx, in.Query, int(in.Limit))
//	})
//	go s.ListenAndServe(":50051")
//
// Example client:
//
//	c, _ := grpc.Dial(ctx, "localhost:50051")
//	var resp proto.SearchResponse
//	c.Call(ctx, proto.MethodSearch, &proto.SearchRequest{Query: "go"}, &resp)
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/errors"
)

// HandlerFunc processes an RPC request and returns a response or error.
type HandlerFunc func(ctx context.Context, req json.RawMessage) (any, error)

// Request is the wire format for an RPC request.
type Request struct {
	Method string          `json:"method"`
	ID     string          `json:"id"`
	Params json.RawMessage `json:"params"`
}

// Response is the wire format for an RPC response. Code is an HTTP status
// derived from the handler error and is zero on success.
type Response struct {
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
	Code  int             `json:"code,omitempty"`
}

// ErrServerClosed is returned by Serve after Stop.
var ErrServerClosed = errors.New("rpc server closed")

// Server is a lightweight JSON-over-TCP RPC server.
type Server struct {
	handlers map[string]HandlerFunc
	mu       sync.RWMutex
	logger   *slog.Logger

	lnMu      sync.Mutex
	listeners map[net.Listener]struct{}
	conns     map[net.Conn]struct{}
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewServer() *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		handlers:  make(map[string]HandlerFunc),
		logger:    slog.Default().With("component", "rpc-server"),
		listeners: make(map[net.Listener]struct{}),
		conns:     make(map[net.Conn]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Register adds a handler for the given method name.
func (s *Server) Register(method string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
	s.logger.Debug("method registered", "method", method)
}

// MethodCount returns the number of registered methods.
func (s *Server) MethodCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Stop is called, then returns
// ErrServerClosed.
func (s *Server) Serve(ln net.Listener) error {
	s.lnMu.Lock()
	if s.closed {
		s.lnMu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listeners[ln] = struct{}{}
	s.lnMu.Unlock()
	s.logger.Info("rpc server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.logger.Error("accept error", "error", err)
			continue
		}
		if !s.track(conn) {
			conn.Close()
			return ErrServerClosed
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.lnMu.Lock()
		delete(s.conns, conn)
		s.lnMu.Unlock()
		conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)
	for {
		var req Request
		if err := decoder.Decode(&req); err != nil {
			return
		}
		resp := s.dispatch(req)
		if err := encoder.Encode(resp); err != nil {
			s.logger.Error("write error", "method", req.Method, "error", err)
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	resp := Response{ID: req.ID}

	s.mu.RLock()
	handler, exists := s.handlers[req.Method]
	s.mu.RUnlock()
	if !exists {
		resp.Error = fmt.Sprintf("unknown method: %s", req.Method)
		resp.Code = 404
		return resp
	}

	data, err := handler(s.ctx, req.Params)
	if err != nil {
		resp.Error = err.Error()
		resp.Code = apperrors.HTTPStatusCode(err)
		if resp.Code >= 500 {
			s.logger.Error("rpc failed", "method", req.Method, "id", req.ID, "error", err)
		}
		return resp
	}
	raw, err := json.Marshal(data)
	if err != nil {
		resp.Error = fmt.Sprintf("encoding result: %v", err)
		resp.Code = 500
		return resp
	}
	resp.Data = raw
	return resp
}

// Stop closes every listener and connection and waits for in-flight
// requests to finish.
func (s *Server) Stop() {
	s.lnMu.Lock()
	if s.closed {
		s.lnMu.Unlock()
		return
	}
	s.closed = true
	s.cancel()
	for ln := range s.listeners {
		ln.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.lnMu.Unlock()
	s.wg.Wait()
	s.logger.Info("rpc server stopped")
}
