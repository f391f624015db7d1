package coordinator

import (
	"context"
	"sync"
	"time"

	"DistMR/internal/logger"
)

const (
	DefaultCheckInterval = time.Second

	// DefaultConfirmTicks is how many consecutive checks must see the job
	// done before shutdown. Two ticks give idle workers at least one full
	// interval to observe completion, so worker waits must stay below it.
	DefaultConfirmTicks = 2
)

// SupervisorConfig for the liveness supervisor
type SupervisorConfig struct {
	Interval     time.Duration // How often completion is checked
	ConfirmTicks int           // Consecutive done checks before shutdown
	Shutdown     func() error  // Called once when the job is done
	Workers      func() int    // Optional live worker count for progress logs
	Logger       *logger.Logger
}

// Supervisor polls the coordinator on a fixed interval, outside the task
// path, and shuts the RPC service down once both queues are DONE.
type Supervisor struct {
	coord  *Coordinator
	cfg    SupervisorConfig
	logger *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	done   chan struct{}
}

// NewSupervisor creates a stopped supervisor.
func NewSupervisor(c *Coordinator, cfg SupervisorConfig) *Supervisor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultCheckInterval
	}
	if cfg.ConfirmTicks < 1 {
		cfg.ConfirmTicks = DefaultConfirmTicks
	}
	lg := cfg.Logger
	if lg == nil {
		lg = logger.New("INFO")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		coord:  c,
		cfg:    cfg,
		logger: lg.Named("supervisor"),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start launches the background loop.
func (s *Supervisor) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop cancels the loop and waits for it to exit.
func (s *Supervisor) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Done is closed after the shutdown hook has run.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

func (s *Supervisor) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	doneTicks := 0
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		s.logProgress()

		if !s.coord.Done() {
			doneTicks = 0
			continue
		}
		doneTicks++
		if doneTicks < s.cfg.ConfirmTicks {
			s.logger.Debug("Job done, confirming before shutdown: ticks=%d/%d", doneTicks, s.cfg.ConfirmTicks)
			continue
		}
		s.shutdown()
		return
	}
}

func (s *Supervisor) shutdown() {
	s.once.Do(func() {
		s.logger.Info("All tasks done, shutting down RPC service")
		if s.cfg.Shutdown != nil {
			if err := s.cfg.Shutdown(); err != nil {
				s.logger.Error("Shutdown failed: %v", err)
			}
		}
		close(s.done)
	})
}

func (s *Supervisor) logProgress() {
	p := s.coord.Progress()
	workers := -1
	if s.cfg.Workers != nil {
		workers = s.cfg.Workers()
	}
	s.logger.Debug("Progress: maps_done=%d/%d maps_running=%d reduces_done=%d/%d reduces_running=%d workers=%d",
		p.Map.Done, p.Map.Total(), p.Map.Running, p.Reduce.Done, p.Reduce.Total(), p.Reduce.Running, workers)
}
