// Package redirects holds the legacy path table that drives permanent
// redirects. The table is read once at start-up and never mutated.
package redirects

import (
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/docsite/internal/errors"
)

// Entry is one legacy path and the path it moved to.
type Entry struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

// Table maps legacy paths to their new location.
type Table struct {
	targets map[string]string
}

// New builds a table from source → target pairs. The map is copied.
func New(pairs map[string]string) *Table {
	targets := make(map[string]string, len(pairs))
	for source, target := range pairs {
		targets[source] = target
	}

	return &Table{targets: targets}
}

// Load reads a table file. The file is a single JSON or YAML object of
// "/old": "/new" pairs; JSON parses as YAML so one decoder serves both.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeRedirectsLoad, "failed to read redirect table").
			WithFile(path)
	}

	return Parse(data, path)
}

// Parse decodes a table from data. name is only used in error messages.
func Parse(data []byte, name string) (*Table, error) {
	pairs := make(map[string]string)
	if strings.TrimSpace(string(data)) != "" {
		if err := yaml.Unmarshal(data, &pairs); err != nil {
			return nil, errors.WrapConfig(err, errors.ErrCodeRedirectsLoad, "failed to parse redirect table").
				WithFile(name)
		}
	}

	for source, target := range pairs {
		if !strings.HasPrefix(source, "/") {
			return nil, errors.NewValidationError(errors.ErrCodeRedirectsLoad,
				"redirect source must start with /: "+source).WithFile(name)
		}
		if target == "" {
			return nil, errors.NewValidationError(errors.ErrCodeRedirectsLoad,
				"redirect target is empty for "+source).WithFile(name)
		}
	}

	return &Table{targets: pairs}, nil
}

// Lookup returns the target for path. Matching is exact; callers pass the
// URL path without its query string.
func (t *Table) Lookup(path string) (string, bool) {
	if t == nil {
		return "", false
	}
	target, ok := t.targets[path]

	return target, ok
}

// Len returns the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}

	return len(t.targets)
}

// Entries returns every entry sorted by source path.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}

	entries := make([]Entry, 0, len(t.targets))
	for source, target := range t.targets {
		entries = append(entries, Entry{Source: source, Target: target})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Source < entries[j].Source
	})

	return entries
}
