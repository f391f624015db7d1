// Package jobs holds the map/reduce plugins a worker can run.
package jobs

import (
	"regexp"

	"DistMR/internal/mapreduce"
)

var wordPattern = regexp.MustCompile(`\b[a-zA-Z]+\b`)

// Default returns a registry with the built-in jobs.
func Default() *mapreduce.Registry {
	return mapreduce.NewRegistry(map[string]mapreduce.Job{
		"wordcount": WordCount(),
		"indexer":   Indexer(),
	})
}
