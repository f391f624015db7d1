package types

import (
	"encoding/json"
	"time"
)

// Journal entry types
const (
	EntryJob  = "job"
	EntryTask = "task"
)

// Journal entry operations
const (
	OpSeed       = "seed"
	OpTransition = "transition"
)

// JobState is the replicated view of a job kept by the task journal.
type JobState struct {
	Files       []string       `json:"files"`
	NReduce     int            `json:"n_reduce"`
	MapTasks    map[int]Status `json:"map_tasks"`
	ReduceTasks map[int]Status `json:"reduce_tasks"`
	Version     int64          `json:"version"`
}

// NewJobState returns an empty state with its maps allocated.
func NewJobState() *JobState {
	return &JobState{
		MapTasks:    make(map[int]Status),
		ReduceTasks: make(map[int]Status),
	}
}

// Seeded reports whether a job has been recorded.
func (s *JobState) Seeded() bool {
	return s.NReduce > 0
}

// Clone returns a deep copy.
func (s *JobState) Clone() *JobState {
	c := &JobState{
		Files:       append([]string(nil), s.Files...),
		NReduce:     s.NReduce,
		MapTasks:    make(map[int]Status, len(s.MapTasks)),
		ReduceTasks: make(map[int]Status, len(s.ReduceTasks)),
		Version:     s.Version,
	}
	for k, v := range s.MapTasks {
		c.MapTasks[k] = v
	}
	for k, v := range s.ReduceTasks {
		c.ReduceTasks[k] = v
	}
	return c
}

// LogEntry represents an entry in the journal's Raft log
type LogEntry struct {
	Type      string          `json:"type"`      // "job", "task"
	Operation string          `json:"operation"` // "seed", "transition"
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// JobSeed records the job definition once per journal.
type JobSeed struct {
	Files   []string `json:"files"`
	NReduce int      `json:"n_reduce"`
}

// TaskTransition records one status change of one task.
type TaskTransition struct {
	Kind   TaskKind `json:"kind"`
	ID     int      `json:"id"`
	Status Status   `json:"status"`
}
