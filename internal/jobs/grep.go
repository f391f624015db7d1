package jobs

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"DistMR/internal/mapreduce"
	"DistMR/internal/types"
)

// Grep finds lines matching a regular expression across documents.
type Grep struct {
	pattern string
	regex   *regexp.Regexp
}

// NewGrep compiles pattern.
func NewGrep(pattern string) (*Grep, error) {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}

	return &Grep{
		pattern: pattern,
		regex:   regex,
	}, nil
}

// Map emits (line, document) for every matching line. Lines have no
// length limit.
func (g *Grep) Map(name, contents string) []types.KeyValue {
	var results []types.KeyValue

	contents = strings.TrimSuffix(contents, "\n")
	if contents == "" {
		return nil
	}
	for _, line := range strings.Split(contents, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if g.regex.MatchString(line) {
			results = append(results, types.KeyValue{
				Key:   line,
				Value: name,
			})
		}
	}

	return results
}

// Reduce lists the distinct documents a matched line was found in.
func (g *Grep) Reduce(key string, values []string) string {
	docs := make([]string, 0, len(values))
	seen := make(map[string]bool)
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			docs = append(docs, v)
		}
	}
	sort.Strings(docs)

	// Format: [doc1, doc2, ...]
	return fmt.Sprintf("[%s]", strings.Join(docs, ", "))
}

// Job exposes g as a map/reduce capability pair.
func (g *Grep) Job() mapreduce.Job {
	return mapreduce.Job{Map: g.Map, Reduce: g.Reduce}
}

// RegisterGrep adds a "grep" job for pattern to reg.
func RegisterGrep(reg *mapreduce.Registry, pattern string) error {
	g, err := NewGrep(pattern)
	if err != nil {
		return err
	}
	return reg.Register("grep", g.Job())
}
