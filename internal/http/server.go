package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	nethttp "net/http"
	"sync"
	"time"

	"DistMR/internal/coordinator"
	"DistMR/internal/logger"
	"DistMR/internal/types"
)

type ServerOpts struct {
	ID       string
	BindAddr string
	Port     int        // 0 picks a free port
	Workers  func() int // Optional live worker count
	Logger   *logger.Logger

	JournalStats func() map[string]string // Optional raft journal stats
}

// Server is a read-only HTTP view of the coordinator. It never mutates
// the queues.
type Server struct {
	opts   ServerOpts
	coord  *coordinator.Coordinator
	logger *logger.Logger

	mu       sync.Mutex
	srv      *nethttp.Server
	listener net.Listener
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	ID        string            `json:"id"`
	NReduce   int               `json:"n_reduce"`
	Progress  types.JobProgress `json:"progress"`
	MapDone   bool              `json:"map_done"`
	Done      bool              `json:"done"`
	Workers   *int              `json:"workers,omitempty"`
	Journal   *JournalStatus    `json:"journal,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// JournalStatus is the subset of raft stats shown in /status.
type JournalStatus struct {
	State        string `json:"state"`
	LastLogIndex string `json:"last_log_index"`
	AppliedIndex string `json:"applied_index"`
}

// TasksResponse is the body of GET /tasks.
type TasksResponse struct {
	MapTasks    []types.MapTask    `json:"map_tasks"`
	ReduceTasks []types.ReduceTask `json:"reduce_tasks"`
}

func NewServer(opts ServerOpts, coord *coordinator.Coordinator) *Server {
	lg := opts.Logger
	if lg == nil {
		lg = logger.New("INFO")
	}
	return &Server{
		opts:   opts,
		coord:  coord,
		logger: lg.Named("http"),
	}
}

// Handler returns the status routes.
func (s *Server) Handler() nethttp.Handler {
	mux := nethttp.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/tasks", s.handleTasks)
	return mux
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return fmt.Errorf("status server already started")
	}

	addr := net.JoinHostPort(s.opts.BindAddr, fmt.Sprint(s.opts.Port))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = l
	s.srv = &nethttp.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := s.srv.Serve(l); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			s.logger.Error("Status server failed: %v", err)
		}
	}()
	s.logger.Info("Status server listening: id=%s addr=%s", s.opts.ID, l.Addr())
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

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleStatus(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Method != nethttp.MethodGet {
		nethttp.Error(w, "method not allowed", nethttp.StatusMethodNotAllowed)
		return
	}

	resp := StatusResponse{
		ID:        s.opts.ID,
		NReduce:   s.coord.NumReduce(),
		Progress:  s.coord.Progress(),
		MapDone:   s.coord.MapDone(),
		Done:      s.coord.Done(),
		Timestamp: time.Now(),
	}
	if s.opts.Workers != nil {
		n := s.opts.Workers()
		resp.Workers = &n
	}
	if s.opts.JournalStats != nil {
		stats := s.opts.JournalStats()
		resp.Journal = &JournalStatus{
			State:        stats["state"],
			LastLogIndex: stats["last_log_index"],
			AppliedIndex: stats["applied_index"],
		}
	}
	s.writeJSON(w, resp)
}

func (s *Server) handleTasks(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Method != nethttp.MethodGet {
		nethttp.Error(w, "method not allowed", nethttp.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, TasksResponse{
		MapTasks:    s.coord.MapTasks(),
		ReduceTasks: s.coord.ReduceTasks(),
	})
}

func (s *Server) writeJSON(w nethttp.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to encode response: %v", err)
	}
}
