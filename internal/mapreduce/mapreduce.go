package mapreduce

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"DistMR/internal/types"
)

// ErrUnknownJob is returned when a job name is not registered.
var ErrUnknownJob = errors.New("unknown job")

// MapFunc turns one input document into intermediate records.
type MapFunc func(name, contents string) []types.KeyValue

// ReduceFunc folds every value emitted for one key.
type ReduceFunc func(key string, values []string) string

// Job is the capability pair a worker runs.
type Job struct {
	Map    MapFunc
	Reduce ReduceFunc
}

// Registry maps job names to jobs. Workers resolve their job once at
// startup.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

// NewRegistry creates a registry holding jobs.
func NewRegistry(jobs map[string]Job) *Registry {
	r := &Registry{jobs: make(map[string]Job, len(jobs))}
	for name, job := range jobs {
		r.jobs[name] = job
	}
	return r
}

// Register adds or replaces a job.
func (r *Registry) Register(name string, job Job) error {
	if name == "" {
		return fmt.Errorf("job name cannot be empty")
	}
	if job.Map == nil || job.Reduce == nil {
		return fmt.Errorf("job %s must provide both map and reduce", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[name] = job
	return nil
}

// Lookup resolves a job by name.
func (r *Registry) Lookup(name string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[name]
	if !ok {
		return Job{}, fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	return job, nil
}

// Names returns the registered job names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
