package types

// Status is the lifecycle state of a map or reduce task.
// Tasks only ever move forward: ready -> running -> done.
type Status string

const (
	StatusReady   Status = "ready"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
)

func (s Status) rank() int {
	switch s {
	case StatusReady:
		return 0
	case StatusRunning:
		return 1
	case StatusDone:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s.rank() >= 0
}

// Advances reports whether moving from s to next keeps the task's
// status history monotonic. Staying in place counts as advancing.
func (s Status) Advances(next Status) bool {
	return next.Valid() && next.rank() >= s.rank()
}

// TaskKind distinguishes the two task queues.
type TaskKind string

const (
	KindMap    TaskKind = "map"
	KindReduce TaskKind = "reduce"
)

// MapTask transforms one input file into partitioned intermediate records.
// ID is the file's index in the job's input list.
type MapTask struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Status Status `json:"status"`
}

// ReduceTask folds one partition. The partition number is its identity.
type ReduceTask struct {
	Partition int    `json:"partition"`
	Status    Status `json:"status"`
}

// KeyValue is the intermediate key-value pair produced by mappers.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Progress counts tasks per status for one queue.
type Progress struct {
	Ready   int `json:"ready"`
	Running int `json:"running"`
	Done    int `json:"done"`
}

// Total is the queue length.
func (p Progress) Total() int {
	return p.Ready + p.Running + p.Done
}

// JobProgress is a snapshot of both queues.
type JobProgress struct {
	Map    Progress `json:"map"`
	Reduce Progress `json:"reduce"`
}
