package coordinator

import (
	"errors"
	"fmt"
	"sync"

	"DistMR/internal/logger"
	"DistMR/internal/types"
)

// ErrNotFound is returned when a completion names a task that is not in
// the queue.
var ErrNotFound = errors.New("task not found")

// Journal durably records task transitions so a restarted coordinator can
// resume the same job. Implemented by raft.Journal.
type Journal interface {
	State() *types.JobState
	Seed(files []string, nReduce int) error
	Record(kind types.TaskKind, id int, status types.Status) error
}

// Config for creating a coordinator
type Config struct {
	Files   []string // Input files, one map task each, in id order
	NReduce int      // Number of reduce partitions
	Journal Journal  // Optional task journal
	Logger  *logger.Logger
}

// Coordinator owns the map and reduce queues. Every mutation happens under
// mu; nothing outside this type touches the queues.
type Coordinator struct {
	mu          sync.RWMutex
	mapTasks    []types.MapTask
	reduceTasks []types.ReduceTask
	nReduce     int
	journal     Journal
	logger      *logger.Logger
}

// New seeds one READY map task per input file and NReduce READY reduce
// tasks.
func New(cfg Config) (*Coordinator, error) {
	if cfg.NReduce < 1 {
		return nil, fmt.Errorf("nReduce must be at least 1, got %d", cfg.NReduce)
	}

	lg := cfg.Logger
	if lg == nil {
		lg = logger.New("INFO")
	}
	lg = lg.Named("coordinator")

	c := &Coordinator{
		mapTasks:    make([]types.MapTask, len(cfg.Files)),
		reduceTasks: make([]types.ReduceTask, cfg.NReduce),
		nReduce:     cfg.NReduce,
		journal:     cfg.Journal,
		logger:      lg,
	}

	for i, name := range cfg.Files {
		c.mapTasks[i] = types.MapTask{ID: i, Name: name, Status: types.StatusReady}
	}
	for p := range c.reduceTasks {
		c.reduceTasks[p] = types.ReduceTask{Partition: p, Status: types.StatusReady}
	}

	if c.journal != nil {
		if err := c.restore(cfg.Files); err != nil {
			return nil, err
		}
	}

	lg.Info("Coordinator initialized: map_tasks=%d reduce_tasks=%d", len(c.mapTasks), c.nReduce)
	return c, nil
}

// restore either seeds an empty journal with this job or replays the
// statuses it already holds.
func (c *Coordinator) restore(files []string) error {
	state := c.journal.State()
	if !state.Seeded() {
		if err := c.journal.Seed(files, c.nReduce); err != nil {
			return fmt.Errorf("failed to seed journal: %w", err)
		}
		return nil
	}

	if state.NReduce != c.nReduce || !sameFiles(state.Files, files) {
		return fmt.Errorf("journal holds a different job: n_reduce=%d files=%d", state.NReduce, len(state.Files))
	}

	for id, status := range state.MapTasks {
		if id < 0 || id >= len(c.mapTasks) || !status.Valid() {
			return fmt.Errorf("journal holds invalid map task %d: status=%q", id, status)
		}
		c.mapTasks[id].Status = status
	}
	for p, status := range state.ReduceTasks {
		if p < 0 || p >= len(c.reduceTasks) || !status.Valid() {
			return fmt.Errorf("journal holds invalid reduce task %d: status=%q", p, status)
		}
		c.reduceTasks[p].Status = status
	}

	progress := c.Progress()
	c.logger.Info("Restored job from journal: maps_done=%d/%d reduces_done=%d/%d",
		progress.Map.Done, progress.Map.Total(), progress.Reduce.Done, progress.Reduce.Total())
	return nil
}

func sameFiles(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// record writes a transition to the journal. Called with mu released.
func (c *Coordinator) record(kind types.TaskKind, id int, status types.Status) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Record(kind, id, status); err != nil {
		c.logger.Warn("Failed to journal transition: kind=%s id=%d status=%s err=%v", kind, id, status, err)
	}
}

// NumReduce returns the fixed partition count.
func (c *Coordinator) NumReduce() int {
	return c.nReduce
}

// GetMapTask hands out the lowest-id READY map task and marks it RUNNING.
// It returns false when no task is READY; callers poll again.
func (c *Coordinator) GetMapTask() (types.MapTask, bool) {
	c.mu.Lock()
	var task types.MapTask
	found := false
	for i := range c.mapTasks {
		if c.mapTasks[i].Status == types.StatusReady {
			c.mapTasks[i].Status = types.StatusRunning
			task = c.mapTasks[i]
			found = true
			break
		}
	}
	c.mu.Unlock()

	if found {
		c.record(types.KindMap, task.ID, types.StatusRunning)
	}
	return task, found
}

// CompleteMapTask marks the map task DONE.
func (c *Coordinator) CompleteMapTask(id int) error {
	c.mu.Lock()
	if id < 0 || id >= len(c.mapTasks) {
		c.mu.Unlock()
		return fmt.Errorf("%w: map task %d", ErrNotFound, id)
	}
	c.mapTasks[id].Status = types.StatusDone
	c.mu.Unlock()

	c.record(types.KindMap, id, types.StatusDone)
	return nil
}

// MapDone reports whether every map task is DONE.
func (c *Coordinator) MapDone() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, t := range c.mapTasks {
		if t.Status != types.StatusDone {
			return false
		}
	}
	return true
}

// GetReduceTask hands out the lowest READY partition and marks it RUNNING.
func (c *Coordinator) GetReduceTask() (types.ReduceTask, bool) {
	c.mu.Lock()
	var task types.ReduceTask
	found := false
	for i := range c.reduceTasks {
		if c.reduceTasks[i].Status == types.StatusReady {
			c.reduceTasks[i].Status = types.StatusRunning
			task = c.reduceTasks[i]
			found = true
			break
		}
	}
	c.mu.Unlock()

	if found {
		c.record(types.KindReduce, task.Partition, types.StatusRunning)
	}
	return task, found
}

// CompleteReduceTask marks the partition's reduce task DONE.
func (c *Coordinator) CompleteReduceTask(partition int) error {
	c.mu.Lock()
	if partition < 0 || partition >= len(c.reduceTasks) {
		c.mu.Unlock()
		return fmt.Errorf("%w: reduce task %d", ErrNotFound, partition)
	}
	c.reduceTasks[partition].Status = types.StatusDone
	c.mu.Unlock()

	c.record(types.KindReduce, partition, types.StatusDone)
	return nil
}

// ReduceDone reports whether every reduce task is DONE.
func (c *Coordinator) ReduceDone() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, t := range c.reduceTasks {
		if t.Status != types.StatusDone {
			return false
		}
	}
	return true
}

// Done reports whether the whole job has finished.
func (c *Coordinator) Done() bool {
	return c.MapDone() && c.ReduceDone()
}

// Progress counts tasks by status in both queues.
func (c *Coordinator) Progress() types.JobProgress {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var p types.JobProgress
	for _, t := range c.mapTasks {
		count(&p.Map, t.Status)
	}
	for _, t := range c.reduceTasks {
		count(&p.Reduce, t.Status)
	}
	return p
}

func count(p *types.Progress, s types.Status) {
	switch s {
	case types.StatusReady:
		p.Ready++
	case types.StatusRunning:
		p.Running++
	case types.StatusDone:
		p.Done++
	}
}

// MapTasks returns a copy of the map queue.
func (c *Coordinator) MapTasks() []types.MapTask {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]types.MapTask(nil), c.mapTasks...)
}

// ReduceTasks returns a copy of the reduce queue.
func (c *Coordinator) ReduceTasks() []types.ReduceTask {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]types.ReduceTask(nil), c.reduceTasks...)
}
