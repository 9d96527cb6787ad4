package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/redbco/dbgrid/pkg/logger"
)

// Handler serves every action except health and shutdown, which the Server
// answers itself.
type Handler interface {
	Handle(ctx context.Context, req Request) *Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request) *Response

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, req Request) *Response {
	return f(ctx, req)
}

// ConnectionCounter is implemented by handlers that track open connections.
// The count is reported in health responses.
type ConnectionCounter interface {
	Connections() int
}

// DefaultShutdownDelay is how long the server keeps running after replying
// to a shutdown request.
const DefaultShutdownDelay = 100 * time.Millisecond

// Server is the helper side of the bridge protocol, listening on a unix socket.
type Server struct {
	Handler       Handler
	Logger        *logger.Logger
	ShutdownDelay time.Duration

	mu       sync.Mutex
	listener net.Listener
	path     string
	closed   bool
	done     chan struct{}
	active   map[net.Conn]struct{}
	conns    sync.WaitGroup
}

var handledActions = map[string]bool{
	ActionConnect:    true,
	ActionDisconnect: true,
	ActionTest:       true,
	ActionQuery:      true,
	ActionScan:       true,
	ActionCaches:     true,
	ActionTables:     true,
	ActionSchema:     true,
}

// Listen binds the socket at path, removing a stale socket file first.
func (s *Server) Listen(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}

	l, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", path, err)
	}

	s.mu.Lock()
	s.listener = l
	s.path = path
	s.done = make(chan struct{})
	s.active = make(map[net.Conn]struct{})
	s.mu.Unlock()

	s.logInfo("Bridge IPC server running on %s", path)
	return nil
}

// Serve accepts connections until the server is closed. It returns nil after
// a shutdown request or Close.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l == nil {
		return fmt.Errorf("server is not listening")
	}

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	for {
		conn, err := l.Accept()
		if err != nil {
			if s.isClosed() {
				s.conns.Wait()
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		if !s.track(conn) {
			conn.Close()
			continue
		}
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			defer s.untrack(conn)
			s.serveConn(ctx, conn)
		}()
	}
}

// ListenAndServe combines Listen and Serve.
func (s *Server) ListenAndServe(ctx context.Context, path string) error {
	if err := s.Listen(path); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Done is closed when the server stops.
func (s *Server) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Close stops accepting connections and removes the socket file.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.listener == nil {
		return nil
	}
	s.closed = true
	err := s.listener.Close()
	for conn := range s.active {
		conn.Close()
	}
	os.Remove(s.path)
	close(s.done)
	return err
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.active[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.active, conn)
	s.mu.Unlock()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	for {
		body, err := readRaw(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.isClosed() {
				s.logWarn("Socket error: %v", err)
			}
			return
		}

		var req Request
		var resp *Response
		if err := json.Unmarshal(body, &req); err != nil {
			resp = Fail(fmt.Sprintf("Parse error: %v", err))
		} else {
			resp = s.dispatch(ctx, req)
		}

		if err := WriteFrame(conn, resp); err != nil {
			s.logWarn("Failed to write response: %v", err)
			return
		}

		if req.Action == ActionShutdown {
			delay := s.ShutdownDelay
			if delay <= 0 {
				delay = DefaultShutdownDelay
			}
			time.AfterFunc(delay, func() { s.Close() })
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = Fail(fmt.Sprintf("%v", r))
		}
	}()

	switch {
	case req.Action == ActionHealth:
		resp = OK("")
		if counter, ok := s.Handler.(ConnectionCounter); ok {
			n := counter.Connections()
			resp.Connections = &n
		}
		return resp
	case req.Action == ActionShutdown:
		s.logInfo("Shutting down...")
		return OK("Shutting down...")
	case handledActions[req.Action] && s.Handler != nil:
		if resp = s.Handler.Handle(ctx, req); resp == nil {
			return Fail(fmt.Sprintf("No response for action: %s", req.Action))
		}
		return resp
	default:
		return Fail(fmt.Sprintf("Unknown action: %s", req.Action))
	}
}

func (s *Server) logInfo(message string, args ...interface{}) {
	if s.Logger != nil {
		s.Logger.Info(message, args...)
	}
}

func (s *Server) logWarn(message string, args ...interface{}) {
	if s.Logger != nil {
		s.Logger.Warn(message, args...)
	}
}
