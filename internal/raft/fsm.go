package raft

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"DistMR/internal/logger"
	"DistMR/internal/types"
	raft "github.com/hashicorp/raft"
)

// FSM implements the Finite State Machine for Raft.
// It folds journal entries into the job's task statuses.
type FSM struct {
	mu     sync.RWMutex
	state  *types.JobState
	logger *logger.Logger
}

// NewFSM creates a new FSM with an empty job
func NewFSM(lg *logger.Logger) *FSM {
	if lg == nil {
		lg = logger.New("INFO")
	}
	return &FSM{
		state:  types.NewJobState(),
		logger: lg,
	}
}

// Apply implements raft.FSM - processes a log entry committed by Raft
func (f *FSM) Apply(log *raft.Log) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	var entry types.LogEntry
	if err := json.Unmarshal(log.Data, &entry); err != nil {
		f.logger.Error("Failed to unmarshal log entry: %v", err)
		return fmt.Errorf("failed to unmarshal log entry: %w", err)
	}

	f.logger.Debug("Applying log entry: type=%s operation=%s index=%d", entry.Type, entry.Operation, log.Index)

	switch entry.Type {
	case types.EntryJob:
		return f.applyJobOperation(&entry)
	case types.EntryTask:
		return f.applyTaskOperation(&entry)
	default:
		f.logger.Warn("Unknown log entry type: %s", entry.Type)
		return fmt.Errorf("unknown log entry type: %s", entry.Type)
	}
}

// applyJobOperation records the job definition. A journal holds one job;
// a second seed is rejected.
func (f *FSM) applyJobOperation(entry *types.LogEntry) interface{} {
	if entry.Operation != types.OpSeed {
		f.logger.Warn("Unknown job operation: %s", entry.Operation)
		return fmt.Errorf("unknown job operation: %s", entry.Operation)
	}

	var seed types.JobSeed
	if err := json.Unmarshal(entry.Data, &seed); err != nil {
		return fmt.Errorf("invalid seed data: %w", err)
	}
	if f.state.Seeded() {
		return fmt.Errorf("journal already holds a job")
	}

	f.state.Files = seed.Files
	f.state.NReduce = seed.NReduce
	f.state.Version++
	f.logger.Info("Job seeded: files=%d n_reduce=%d", len(seed.Files), seed.NReduce)
	return nil
}

// applyTaskOperation merges a status transition. Transitions that would
// move a task backwards are ignored, so entries recorded out of order
// still converge on the furthest status.
func (f *FSM) applyTaskOperation(entry *types.LogEntry) interface{} {
	if entry.Operation != types.OpTransition {
		f.logger.Warn("Unknown task operation: %s", entry.Operation)
		return fmt.Errorf("unknown task operation: %s", entry.Operation)
	}

	var tr types.TaskTransition
	if err := json.Unmarshal(entry.Data, &tr); err != nil {
		return fmt.Errorf("invalid transition data: %w", err)
	}
	if !tr.Status.Valid() {
		return fmt.Errorf("invalid status %q", tr.Status)
	}

	var tasks map[int]types.Status
	switch tr.Kind {
	case types.KindMap:
		tasks = f.state.MapTasks
	case types.KindReduce:
		tasks = f.state.ReduceTasks
	default:
		return fmt.Errorf("unknown task kind: %s", tr.Kind)
	}

	if cur, ok := tasks[tr.ID]; ok && !cur.Advances(tr.Status) {
		f.logger.Debug("Ignoring stale transition: kind=%s id=%d %s -> %s", tr.Kind, tr.ID, cur, tr.Status)
		return nil
	}
	tasks[tr.ID] = tr.Status
	f.state.Version++
	return nil
}

// Snapshot implements raft.FSM - creates a snapshot of the current state
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return &snapshot{state: f.state.Clone()}, nil
}

// Restore implements raft.FSM - restores state from a snapshot
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	state := types.NewJobState()
	if err := json.NewDecoder(rc).Decode(state); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if state.MapTasks == nil {
		state.MapTasks = make(map[int]types.Status)
	}
	if state.ReduceTasks == nil {
		state.ReduceTasks = make(map[int]types.Status)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
	return nil
}

// GetState returns a copy of the current job state
func (f *FSM) GetState() *types.JobState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.Clone()
}

// snapshot implements raft.FSMSnapshot
type snapshot struct {
	state *types.JobState
}

// Persist writes the snapshot to a sink
func (s *snapshot) Persist(sink raft.SnapshotSink) error {
	data, err := json.Marshal(s.state)
	if err != nil {
		sink.Cancel()
		return err
	}

	if _, err := sink.Write(data); err != nil {
		sink.Cancel()
		return err
	}

	return sink.Close()
}

// Release is called when we are done with the snapshot
func (s *snapshot) Release() {}
