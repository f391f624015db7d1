package jobs

import (
	"strconv"

	"DistMR/internal/mapreduce"
	"DistMR/internal/types"
)

// WordCount counts occurrences of every word across all documents.
func WordCount() mapreduce.Job {
	return mapreduce.Job{
		Map: func(name, contents string) []types.KeyValue {
			words := wordPattern.FindAllString(contents, -1)
			kvs := make([]types.KeyValue, 0, len(words))
			for _, w := range words {
				kvs = append(kvs, types.KeyValue{Key: w, Value: "1"})
			}
			return kvs
		},
		Reduce: func(key string, values []string) string {
			return strconv.Itoa(len(values))
		},
	}
}
