package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"DistMR/internal/logger"
	"DistMR/internal/mapreduce"
	"DistMR/internal/types"
)

const (
	DefaultInitialBackoff = 10 * time.Millisecond
	DefaultMaxBackoff     = 500 * time.Millisecond

	// Jitter applied to every backoff step.
	RandomizationFactor = 0.5
)

// LongestWait is the longest single wait between polls for maxBackoff. It
// must stay below the coordinator's check interval so an idle worker sees
// completion before the RPC service shuts down.
func LongestWait(maxBackoff time.Duration) time.Duration {
	return time.Duration(float64(maxBackoff) * (1 + RandomizationFactor))
}

// Coordinator is the worker's view of the coordinator RPC surface.
// transport.Client implements it.
type Coordinator interface {
	NumReduce() (int, error)
	GetMapTask() (types.MapTask, bool, error)
	CompleteMapTask(id int) error
	MapDone() (bool, error)
	GetReduceTask() (types.ReduceTask, bool, error)
	CompleteReduceTask(partition int) error
	ReduceDone() (bool, error)
}

// Config for creating a worker
type Config struct {
	ID              string // Generated when empty
	JobName         string
	Job             mapreduce.Job
	DataDir         string // Shared input directory
	IntermediateDir string // Shared intermediate directory
	OutputDir       string // Shared output directory
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	Logger          *logger.Logger
}

// Worker pulls tasks from the coordinator and runs them until both phases
// are done.
type Worker struct {
	id      string
	cfg     Config
	coord   Coordinator
	exec    *mapreduce.Executor
	logger  *logger.Logger
	stats   Stats
	backoff *backoff.ExponentialBackOff
}

// Stats counts the tasks a worker ran.
type Stats struct {
	MapTasks    int
	ReduceTasks int
	EmptyPolls  int
}

// NewID returns a fresh worker identifier.
func NewID() string {
	return "worker-" + uuid.New().String()[:8]
}

// New creates a worker bound to coord.
func New(cfg Config, coord Coordinator) (*Worker, error) {
	if cfg.Job.Map == nil || cfg.Job.Reduce == nil {
		return nil, fmt.Errorf("worker needs a job with map and reduce functions")
	}
	if cfg.ID == "" {
		cfg.ID = NewID()
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = DefaultMaxBackoff
		if cfg.MaxBackoff < cfg.InitialBackoff {
			cfg.MaxBackoff = cfg.InitialBackoff
		}
	}

	lg := cfg.Logger
	if lg == nil {
		lg = logger.New("INFO")
	}
	lg = lg.Named(cfg.ID)

	storage, err := mapreduce.NewStorage(cfg.IntermediateDir, cfg.OutputDir)
	if err != nil {
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	b.MaxInterval = cfg.MaxBackoff
	b.RandomizationFactor = RandomizationFactor
	b.MaxElapsedTime = 0
	b.Reset()

	return &Worker{
		id:      cfg.ID,
		cfg:     cfg,
		coord:   coord,
		exec:    mapreduce.NewExecutor(cfg.Job, cfg.DataDir, storage, lg),
		logger:  lg,
		backoff: b,
	}, nil
}

// ID returns the worker identifier.
func (w *Worker) ID() string {
	return w.id
}

// Stats returns the task counters.
func (w *Worker) Stats() Stats {
	return w.stats
}

// Run executes the map phase, then the reduce phase. Any coordinator or
// storage error is fatal and returned. ctx only interrupts the wait
// between empty polls; a task that has started always runs to the end.
func (w *Worker) Run(ctx context.Context) error {
	nReduce, err := w.coord.NumReduce()
	if err != nil {
		return fmt.Errorf("failed to get partition count: %w", err)
	}
	w.logger.Info("Worker started: job=%s n_reduce=%d", w.cfg.JobName, nReduce)

	if err := w.mapPhase(ctx, nReduce); err != nil {
		return err
	}
	w.logger.Info("Map phase done: map_tasks=%d", w.stats.MapTasks)

	if err := w.reducePhase(ctx); err != nil {
		return err
	}
	w.logger.Info("Reduce phase done: reduce_tasks=%d empty_polls=%d", w.stats.ReduceTasks, w.stats.EmptyPolls)
	return nil
}

func (w *Worker) mapPhase(ctx context.Context, nReduce int) error {
	w.backoff.Reset()
	for {
		done, err := w.coord.MapDone()
		if err != nil {
			return fmt.Errorf("failed to poll map phase: %w", err)
		}
		if done {
			return nil
		}

		task, found, err := w.coord.GetMapTask()
		if err != nil {
			return fmt.Errorf("failed to get map task: %w", err)
		}
		if !found {
			if err := w.wait(ctx); err != nil {
				return err
			}
			continue
		}

		w.backoff.Reset()
		if _, err := w.exec.RunMap(task, nReduce); err != nil {
			return fmt.Errorf("map task %d failed: %w", task.ID, err)
		}
		if err := w.coord.CompleteMapTask(task.ID); err != nil {
			return fmt.Errorf("failed to complete map task %d: %w", task.ID, err)
		}
		w.stats.MapTasks++
	}
}

func (w *Worker) reducePhase(ctx context.Context) error {
	w.backoff.Reset()
	for {
		done, err := w.coord.ReduceDone()
		if err != nil {
			return fmt.Errorf("failed to poll reduce phase: %w", err)
		}
		if done {
			return nil
		}

		task, found, err := w.coord.GetReduceTask()
		if err != nil {
			return fmt.Errorf("failed to get reduce task: %w", err)
		}
		if !found {
			if err := w.wait(ctx); err != nil {
				return err
			}
			continue
		}

		w.backoff.Reset()
		if _, err := w.exec.RunReduce(task); err != nil {
			return fmt.Errorf("reduce task %d failed: %w", task.Partition, err)
		}
		if err := w.coord.CompleteReduceTask(task.Partition); err != nil {
			return fmt.Errorf("failed to complete reduce task %d: %w", task.Partition, err)
		}
		w.stats.ReduceTasks++
	}
}

// wait sleeps for the next backoff step after an empty poll.
func (w *Worker) wait(ctx context.Context) error {
	w.stats.EmptyPolls++
	d := w.backoff.NextBackOff()
	if d == backoff.Stop {
		d = w.cfg.MaxBackoff
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
