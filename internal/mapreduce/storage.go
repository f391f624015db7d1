package mapreduce

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"DistMR/internal/types"
)

const (
	intermediatePrefix = "mr-"
	intermediateSuffix = ".json"
	outputPrefix       = "mr-out-"
)

// IntermediateName is the file a map task writes for one partition.
func IntermediateName(mapID, partition int) string {
	return fmt.Sprintf("%s%d-%d%s", intermediatePrefix, mapID, partition, intermediateSuffix)
}

// ParseIntermediateName recovers (mapID, partition) from a file name
// produced by IntermediateName.
func ParseIntermediateName(name string) (mapID, partition int, ok bool) {
	if !strings.HasPrefix(name, intermediatePrefix) || !strings.HasSuffix(name, intermediateSuffix) {
		return 0, 0, false
	}
	body := strings.TrimSuffix(strings.TrimPrefix(name, intermediatePrefix), intermediateSuffix)

	left, right, found := strings.Cut(body, "-")
	if !found {
		return 0, 0, false
	}
	m, err := strconv.Atoi(left)
	if err != nil {
		return 0, 0, false
	}
	p, err := strconv.Atoi(right)
	if err != nil {
		return 0, 0, false
	}
	if IntermediateName(m, p) != name {
		return 0, 0, false
	}
	return m, p, true
}

// OutputName is the final output file of one partition.
func OutputName(partition int) string {
	return outputPrefix + strconv.Itoa(partition)
}

// Storage is the shared directory pair every worker reads and writes.
// Files are never written by two tasks, so no locking is used.
type Storage struct {
	IntermediateDir string
	OutputDir       string
}

// NewStorage creates the intermediate and output directories.
func NewStorage(intermediateDir, outputDir string) (*Storage, error) {
	if err := os.MkdirAll(intermediateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create intermediate directory: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Storage{IntermediateDir: intermediateDir, OutputDir: outputDir}, nil
}

// WriteIntermediate writes one partition of one map task as a JSON array.
func (s *Storage) WriteIntermediate(mapID, partition int, kvs []types.KeyValue) error {
	path := filepath.Join(s.IntermediateDir, IntermediateName(mapID, partition))
	return writeAtomic(path, func(w *bufio.Writer) error {
		return json.NewEncoder(w).Encode(kvs)
	})
}

// ReadPartition concatenates the records of every intermediate file for
// partition, whichever mapper wrote it. Files are visited in name order.
func (s *Storage) ReadPartition(partition int) ([]types.KeyValue, error) {
	entries, err := os.ReadDir(s.IntermediateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list intermediate directory: %w", err)
	}

	var all []types.KeyValue
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		_, p, ok := ParseIntermediateName(entry.Name())
		if !ok || p != partition {
			continue
		}

		kvs, err := readIntermediate(filepath.Join(s.IntermediateDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		all = append(all, kvs...)
	}
	return all, nil
}

func readIntermediate(path string) ([]types.KeyValue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open intermediate file %s: %w", path, err)
	}
	defer f.Close()

	var kvs []types.KeyValue
	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&kvs); err != nil {
		return nil, fmt.Errorf("failed to decode intermediate file %s: %w", path, err)
	}
	return kvs, nil
}

// WriteOutput writes "<key> <value>" lines for one partition.
func (s *Storage) WriteOutput(partition int, lines []types.KeyValue) error {
	path := filepath.Join(s.OutputDir, OutputName(partition))
	return writeAtomic(path, func(w *bufio.Writer) error {
		for _, line := range lines {
			if _, err := fmt.Fprintf(w, "%s %s\n", line.Key, line.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeAtomic writes through a temp file in the target directory and
// renames it into place, so readers never see a partial file.
func writeAtomic(path string, write func(w *bufio.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := write(w); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename %s: %w", path, err)
	}
	return nil
}
