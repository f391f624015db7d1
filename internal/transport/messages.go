package transport

import "DistMR/internal/types"

// ServiceName is the name the coordinator is registered under.
const ServiceName = "Coordinator"

// WorkerArgs identifies the calling worker. The coordinator only uses it
// for logging.
type WorkerArgs struct {
	WorkerID string
}

// CompleteArgs names the task a worker finished.
type CompleteArgs struct {
	WorkerID string
	ID       int // map task id or reduce partition
}

// CompleteReply acknowledges a completion. gob cannot encode a struct
// without exported fields, so it carries one.
type CompleteReply struct {
	Accepted bool
}

// NumReduceReply carries the partition count.
type NumReduceReply struct {
	NReduce int
}

// MapTaskReply carries an assigned map task; Found is false on an empty poll.
type MapTaskReply struct {
	Task  types.MapTask
	Found bool
}

// ReduceTaskReply carries an assigned reduce task; Found is false on an empty poll.
type ReduceTaskReply struct {
	Task  types.ReduceTask
	Found bool
}

// DoneReply answers a phase-completion query.
type DoneReply struct {
	Done bool
}
