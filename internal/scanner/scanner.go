// Package scanner builds the repository batch for a command, either from
// explicit paths or by discovering git repositories under a projects
// directory. Discovery honours .sorotte index files for grouping and
// ignoring subdirectories.
package scanner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/agrahamlincoln/sorotte/internal/config"
	"github.com/agrahamlincoln/sorotte/internal/vcs"
	"github.com/agrahamlincoln/sorotte/pkg/git"
)

// IndexFileName is the per-directory index consulted during discovery.
const IndexFileName = ".sorotte"

// ErrNotARepository is returned for an explicit path that is not a git
// working tree.
var ErrNotARepository = errors.New("not a git repository")

// index is the schema of a .sorotte file.
type index struct {
	Groups  []string `yaml:"groups"`
	Ignores []string `yaml:"ignores"`
}

// Options controls how the batch is built.
type Options struct {
	// Paths lists repositories explicitly. When non-empty, discovery is
	// skipped.
	Paths           []string
	ExcludePatterns []string
}

// Repos returns the repositories for a batch, sorted by path and without
// duplicates.
func Repos(root string, opts Options) ([]vcs.Repo, error) {
	var paths []string
	if len(opts.Paths) > 0 {
		for _, p := range opts.Paths {
			abs, err := filepath.Abs(config.ExpandHome(p))
			if err != nil {
				return nil, fmt.Errorf("resolving %s: %w", p, err)
			}
			if !git.IsRepo(abs) {
				return nil, fmt.Errorf("%s: %w", p, ErrNotARepository)
			}
			paths = append(paths, abs)
		}
	} else {
		var err error
		if paths, err = Scan(root, opts.ExcludePatterns); err != nil {
			return nil, err
		}
	}

	sort.Strings(paths)
	repos := make([]vcs.Repo, 0, len(paths))
	for i, p := range paths {
		if i > 0 && p == paths[i-1] {
			continue
		}
		repos = append(repos, vcs.NewRepo(p))
	}
	return repos, nil
}

// Scan discovers git repositories under root.
//
// A root that is itself a repository yields just that repository. Otherwise
// each directory is read as follows: with a .sorotte file, listed groups are
// descended into and ignores are dropped; without one, immediate children
// are candidate repositories. Hidden directories are skipped and symlink
// cycles are cut.
func Scan(root string, excludes []string) ([]string, error) {
	if git.IsRepo(root) {
		if _, err := os.Stat(filepath.Join(root, ".git")); err == nil {
			return []string{root}, nil
		}
	}
	w := &walker{excludes: excludes, visited: make(map[string]bool)}
	if err := w.walk(root); err != nil {
		return nil, err
	}
	return w.found, nil
}

type walker struct {
	excludes []string
	visited  map[string]bool
	found    []string
}

func (w *walker) walk(dir string) error {
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return fmt.Errorf("resolving symlink %s: %w", dir, err)
	}
	if w.visited[resolved] {
		return nil
	}
	w.visited[resolved] = true

	idx, err := loadIndex(dir)
	if err != nil {
		return err
	}

	skip := make(map[string]bool, len(idx.Groups)+len(idx.Ignores))
	for _, name := range idx.Ignores {
		skip[name] = true
	}
	for _, group := range idx.Groups {
		if skip[group] {
			continue // ignore wins over group
		}
		skip[group] = true
		groupPath := filepath.Join(dir, group)
		if info, err := os.Stat(groupPath); err != nil || !info.IsDir() {
			continue
		}
		if err := w.walk(groupPath); err != nil {
			return err
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || !entry.IsDir() || skip[name] || w.excluded(name) {
			continue
		}
		child := filepath.Join(dir, name)
		if git.IsRepo(child) {
			w.found = append(w.found, child)
		}
	}
	return nil
}

func (w *walker) excluded(name string) bool {
	for _, pattern := range w.excludes {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return false
}

// loadIndex reads the .sorotte file in dir. A missing or empty file is an
// empty index. Only the groups and ignores keys are accepted.
func loadIndex(dir string) (index, error) {
	path := filepath.Clean(filepath.Join(dir, IndexFileName))
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return index{}, nil
	}
	if err != nil {
		return index{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return index{}, nil
	}

	var idx index
	if err := yaml.UnmarshalWithOptions(data, &idx, yaml.Strict()); err != nil {
		return index{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return idx, nil
}
