// Package collect gathers the distinct branch names available across a set
// of repositories.
package collect

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/agrahamlincoln/sorotte/internal/vcs"
)

// Set is a set of branch names.
type Set map[string]struct{}

// Add inserts name.
func (s Set) Add(name string) { s[name] = struct{}{} }

// Has reports whether name is present.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the names in lexicographic order.
func (s Set) Sorted() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Warning records a repository whose refs could not be read.
type Warning struct {
	Repo vcs.Repo
	Err  error
}

// Collect merges local branches and remote-tracking branches of remote from
// every repository into one set. A repository whose refs cannot be listed
// contributes nothing and is reported as a Warning.
func Collect(ctx context.Context, port vcs.Port, repos []vcs.Repo, remote string) (Set, []Warning) {
	set := make(Set)
	var warnings []Warning
	prefix := remote + "/"

	for _, repo := range repos {
		refs, err := port.Refs(ctx, repo)
		if err != nil {
			slog.Warn("could not list refs", "repo", repo.Name, "error", err)
			warnings = append(warnings, Warning{Repo: repo, Err: err})
			continue
		}
		for _, ref := range refs {
			switch ref.Kind {
			case vcs.Head:
				set.Add(ref.Name)
			case vcs.RemoteHead:
				if ref.Remote != remote {
					continue
				}
				name := strings.TrimPrefix(ref.Name, prefix)
				if name == "HEAD" || name == "" {
					continue
				}
				set.Add(name)
			}
		}
	}
	return set, warnings
}
