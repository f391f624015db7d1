package mapreduce

import (
	"crypto/sha1"
	"encoding/binary"
)

// ihash is a seed-independent hash of key: the low 31 bits of its SHA-1
// digest. Every worker process must agree on it, so it never uses a
// runtime-randomized hash.
func ihash(key string) int {
	sum := sha1.Sum([]byte(key))
	return int(binary.BigEndian.Uint32(sum[len(sum)-4:]) & 0x7fffffff)
}

// Partition returns the reduce partition in [0, nReduce) for key.
func Partition(key string, nReduce int) int {
	return ihash(key) % nReduce
}
