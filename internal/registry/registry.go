// Package registry reads the knowledge-base registry file: named
// groups of directories that searches without an explicit directory
// fan out over.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aixtools/kmcp/internal/log"
)

// KnowledgeBase is one registered entry. A base may span several
// directories.
type KnowledgeBase struct {
	Name        string   `json:"name"`
	Paths       []string `json:"paths"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

type fileEntry struct {
	Path        string   `yaml:"path"`
	Paths       []string `yaml:"paths"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
}

type fileFormat struct {
	Knowledges map[string]yaml.Node `yaml:"knowledges"`
}

// Registry reads knowledge bases from a YAML file on every call, so
// edits to the file take effect without a restart.
type Registry struct {
	file   string
	logger log.Logger
}

// New creates a Registry backed by the given file.
func New(file string, logger log.Logger) *Registry {
	return &Registry{
		file:   file,
		logger: logger.With("component", "registry"),
	}
}

// Load returns all registered knowledge bases sorted by name. A missing
// registry file is an empty registry; a malformed one is an error.
func (r *Registry) Load() ([]KnowledgeBase, error) {
	raw, err := os.ReadFile(r.file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read registry %s: %w", r.file, err)
	}

	var parsed fileFormat
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse registry %s: %w", r.file, err)
	}

	bases := make([]KnowledgeBase, 0, len(parsed.Knowledges))
	for name, node := range parsed.Knowledges {
		var entry fileEntry
		if err := node.Decode(&entry); err != nil {
			r.logger.Warn("skipping malformed registry entry", "base", name, "error", err)
			continue
		}
		paths := entry.Paths
		if len(paths) == 0 && entry.Path != "" {
			paths = []string{entry.Path}
		}

		expanded := make([]string, 0, len(paths))
		for _, p := range paths {
			abs, err := expandPath(p)
			if err != nil {
				r.logger.Warn("skipping unresolvable registry path", "base", name, "path", p, "error", err)
				continue
			}
			expanded = append(expanded, abs)
		}
		if len(expanded) == 0 {
			continue
		}

		bases = append(bases, KnowledgeBase{
			Name:        name,
			Paths:       expanded,
			Description: entry.Description,
			Tags:        entry.Tags,
		})
	}

	sort.Slice(bases, func(i, j int) bool { return bases[i].Name < bases[j].Name })
	return bases, nil
}

// AllPaths returns every registered directory once, in registry order.
func (r *Registry) AllPaths() ([]string, error) {
	bases, err := r.Load()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var paths []string
	for _, base := range bases {
		for _, p := range base.Paths {
			if !seen[p] {
				seen[p] = true
				paths = append(paths, p)
			}
		}
	}
	return paths, nil
}

// Resolve maps a knowledge-base name or a directory path to concrete
// directories. Names win; anything that is not a registered name is
// treated as a path.
func (r *Registry) Resolve(nameOrPath string) ([]string, error) {
	bases, err := r.Load()
	if err != nil {
		return nil, err
	}
	for _, base := range bases {
		if base.Name == nameOrPath {
			return base.Paths, nil
		}
	}

	abs, err := expandPath(nameOrPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", nameOrPath, err)
	}
	return []string{abs}, nil
}

func expandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Abs(p)
}
