package mapreduce

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"DistMR/internal/logger"
	"DistMR/internal/types"
)

// Executor runs the map and reduce pipelines of one job against shared
// storage.
type Executor struct {
	job     Job
	dataDir string
	storage *Storage
	logger  *logger.Logger
}

// NewExecutor creates an executor reading inputs from dataDir.
func NewExecutor(job Job, dataDir string, storage *Storage, lg *logger.Logger) *Executor {
	if lg == nil {
		lg = logger.New("INFO")
	}
	return &Executor{
		job:     job,
		dataDir: dataDir,
		storage: storage,
		logger:  lg,
	}
}

// RunMap maps one input file and writes one intermediate file per
// partition that received records. It returns the partitions written.
func (e *Executor) RunMap(task types.MapTask, nReduce int) ([]int, error) {
	if nReduce < 1 {
		return nil, fmt.Errorf("nReduce must be at least 1, got %d", nReduce)
	}

	content, err := os.ReadFile(filepath.Join(e.dataDir, task.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to read input %s: %w", task.Name, err)
	}

	kvs := e.job.Map(task.Name, string(content))
	SortByKey(kvs)

	buckets := PartitionAll(kvs, nReduce)
	partitions := make([]int, 0, len(buckets))
	for p := range buckets {
		partitions = append(partitions, p)
	}
	sort.Ints(partitions)

	for _, p := range partitions {
		if err := e.storage.WriteIntermediate(task.ID, p, buckets[p]); err != nil {
			return nil, err
		}
	}

	e.logger.Debug("Map task finished: task_id=%d name=%s records=%d partitions=%d",
		task.ID, task.Name, len(kvs), len(partitions))
	return partitions, nil
}

// RunReduce shuffles every intermediate record of the task's partition,
// reduces each key in increasing key order and writes the output file.
// It returns the number of distinct keys.
func (e *Executor) RunReduce(task types.ReduceTask) (int, error) {
	kvs, err := e.storage.ReadPartition(task.Partition)
	if err != nil {
		return 0, err
	}
	SortByKey(kvs)

	groups := GroupByKey(kvs)
	lines := make([]types.KeyValue, 0, len(groups))
	for _, g := range groups {
		lines = append(lines, types.KeyValue{Key: g.Key, Value: e.job.Reduce(g.Key, g.Values)})
	}

	if err := e.storage.WriteOutput(task.Partition, lines); err != nil {
		return 0, err
	}

	e.logger.Debug("Reduce task finished: partition=%d records=%d keys=%d",
		task.Partition, len(kvs), len(groups))
	return len(groups), nil
}
