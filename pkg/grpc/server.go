// Package grpc is the internal RPC layer between services: method
// registration, dispatch, and request/response framing as
// newline-delimited JSON over persistent TCP connections. It deliberately
// avoids pulling in the full google.golang.org/grpc stack — the services
// exchange small JSON messages on a trusted network and need nothing
// more than "Service.Method" dispatch.
//
// Serving:
//
//	s := grpc.NewServer()
//	s.Register("Search.Query", func(ctx context.Context, params json.RawMessage) (any, error) {
//		var req proto.SearchRequest
//		if err := json.Unmarshal(params, &req); err != nil {
//			return nil, err
//		}
//		return runSearch(ctx, req)
//	})
//	s.Serve(":9000")
//
// Calling:
//
//	c, _ := grpc.Dial("localhost:9000")
//	var resp proto.SearchResponse
//	err := c.Call("Search.Query", req, &resp)
package grpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// HandlerFunc serves one RPC method.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// request is the wire frame a client sends.
type request struct {
	Method string          `json:"method"`
	ID     string          `json:"id"`
	Params json.RawMessage `json:"params"`
}

// response is the wire frame a server answers with.
type response struct {
	ID    string `json:"id"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Server accepts connections and dispatches frames to registered
// handlers, one goroutine per connection.
type Server struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	listener net.Listener
	logger   *slog.Logger
	conns    sync.WaitGroup
	closing  chan struct{}
}

// NewServer returns a server with no methods registered.
func NewServer() *Server {
	return &Server{
		handlers: make(map[string]HandlerFunc),
		logger:   slog.Default().With("component", "rpc-server"),
		closing:  make(chan struct{}),
	}
}

// Register binds a "Service.Method" name to its handler. Later
// registrations for the same name win.
func (s *Server) Register(method string, h HandlerFunc) {
	s.mu.Lock()
	s.handlers[method] = h
	s.mu.Unlock()
}

// Serve listens on addr and blocks until Stop. Each accepted connection
// is served on its own goroutine for its whole lifetime.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln
	s.logger.Info("rpc listening", "addr", addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.closing:
				return nil
			default:
				s.logger.Error("accept failed", "error", err)
				continue
			}
		}
		s.conns.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.conns.Done()
	defer conn.Close()

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			return
		}
		enc.Encode(s.dispatch(req))
	}
}

func (s *Server) dispatch(req request) response {
	s.mu.RLock()
	h, ok := s.handlers[req.Method]
	s.mu.RUnlock()

	resp := response{ID: req.ID}
	if !ok {
		resp.Error = "unknown method: " + req.Method
		return resp
	}
	data, err := h(context.Background(), req.Params)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.Data = data
	return resp
}

// Methods returns the registered method names, for startup logging.
func (s *Server) Methods() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		names = append(names, m)
	}
	return names
}

// Stop closes the listener and waits for in-flight connections.
func (s *Server) Stop() {
	close(s.closing)
	if s.listener != nil {
		s.listener.Close()
	}
	s.conns.Wait()
	s.logger.Info("rpc stopped")
}
