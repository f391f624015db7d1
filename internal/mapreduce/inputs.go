package mapreduce

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// CollectInputs lists the input documents of a job as paths relative to
// dataDir. With no paths it walks dataDir itself; otherwise each path
// (relative to dataDir) may name a file or a directory, which is walked
// recursively. The result is sorted so map task ids are stable across
// coordinator restarts.
func CollectInputs(dataDir string, paths []string) ([]string, error) {
	if len(paths) == 0 {
		paths = []string{"."}
	}

	seen := make(map[string]bool)
	var files []string

	for _, path := range paths {
		root := filepath.Join(dataDir, path)
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", root, err)
		}

		if !info.IsDir() {
			rel := filepath.Clean(path)
			if !seen[rel] {
				seen[rel] = true
				files = append(files, rel)
			}
			continue
		}

		err = filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(dataDir, p)
			if err != nil {
				return err
			}
			if !seen[rel] {
				seen[rel] = true
				files = append(files, rel)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk directory %s: %w", root, err)
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no input files found in %s", dataDir)
	}

	sort.Strings(files)
	return files, nil
}
