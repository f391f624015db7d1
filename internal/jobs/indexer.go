package jobs

import (
	"fmt"
	"sort"
	"strings"

	"DistMR/internal/mapreduce"
	"DistMR/internal/types"
)

// Indexer builds an inverted index: for every word, the documents that
// contain it.
func Indexer() mapreduce.Job {
	return mapreduce.Job{
		Map: func(name, contents string) []types.KeyValue {
			seen := make(map[string]bool)
			var kvs []types.KeyValue
			for _, w := range wordPattern.FindAllString(contents, -1) {
				if seen[w] {
					continue
				}
				seen[w] = true
				kvs = append(kvs, types.KeyValue{Key: w, Value: name})
			}
			return kvs
		},
		Reduce: func(key string, values []string) string {
			docs := append([]string(nil), values...)
			sort.Strings(docs)
			return fmt.Sprintf("%d %s", len(docs), strings.Join(docs, " "))
		},
	}
}
