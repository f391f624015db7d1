package mapreduce

import (
	"sort"

	"DistMR/internal/types"
)

// Group is one key with all of its values in shuffle order.
type Group struct {
	Key    string
	Values []string
}

// SortByKey sorts kvs by key in place. The sort is stable, so values of
// equal keys keep their emission order.
func SortByKey(kvs []types.KeyValue) {
	sort.SliceStable(kvs, func(i, j int) bool {
		return kvs[i].Key < kvs[j].Key
	})
}

// PartitionAll buckets kvs by Partition, preserving input order within each
// bucket. Partitions that receive nothing are absent from the result.
func PartitionAll(kvs []types.KeyValue, nReduce int) map[int][]types.KeyValue {
	buckets := make(map[int][]types.KeyValue)
	for _, kv := range kvs {
		p := Partition(kv.Key, nReduce)
		buckets[p] = append(buckets[p], kv)
	}
	return buckets
}

// GroupByKey collapses runs of equal keys in a key-sorted slice.
func GroupByKey(sorted []types.KeyValue) []Group {
	var groups []Group
	for i := 0; i < len(sorted); {
		j := i + 1
		for j < len(sorted) && sorted[j].Key == sorted[i].Key {
			j++
		}
		values := make([]string, 0, j-i)
		for k := i; k < j; k++ {
			values = append(values, sorted[k].Value)
		}
		groups = append(groups, Group{Key: sorted[i].Key, Values: values})
		i = j
	}
	return groups
}
