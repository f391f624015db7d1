package transport

import (
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"sync"

	"DistMR/internal/coordinator"
	"DistMR/internal/logger"
)

type ServerOpts struct {
	ID       string
	BindAddr string
	Port     int // 0 picks a free port
	Logger   *logger.Logger
}

// Server exposes a coordinator over net/rpc on a TCP listener. Every
// accepted connection is served on its own goroutine.
type Server struct {
	opts   ServerOpts
	rpc    *rpc.Server
	logger *logger.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func NewServer(opts ServerOpts, coord *coordinator.Coordinator) (*Server, error) {
	lg := opts.Logger
	if lg == nil {
		lg = logger.New("INFO")
	}
	lg = lg.Named("rpc")

	srv := rpc.NewServer()
	if err := srv.RegisterName(ServiceName, &Service{coord: coord, logger: lg}); err != nil {
		return nil, fmt.Errorf("failed to register coordinator service: %w", err)
	}

	return &Server{
		opts:   opts,
		rpc:    srv,
		logger: lg,
		conns:  make(map[net.Conn]struct{}),
	}, nil
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("server already shut down")
	}
	if s.listener != nil {
		return errors.New("server already started")
	}

	addr := net.JoinHostPort(s.opts.BindAddr, fmt.Sprintf("%d", s.opts.Port))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = l

	s.wg.Add(1)
	go s.acceptLoop(l)

	s.logger.Info("Coordinator listening: id=%s addr=%s", s.opts.ID, l.Addr())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) acceptLoop(l net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := l.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.logger.Error("Accept failed: %v", err)
			}
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()

	s.logger.Debug("Connection opened: remote=%s", conn.RemoteAddr())
	s.rpc.ServeConn(conn)

	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.logger.Debug("Connection closed: remote=%s", conn.RemoteAddr())
}

// Shutdown stops accepting, closes every open connection and waits for
// the serving goroutines to exit. Safe to call more than once.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Coordinator RPC service stopped: id=%s", s.opts.ID)
	return err
}
