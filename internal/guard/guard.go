// Package guard decides whether a repository's working tree may be mutated.
package guard

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agrahamlincoln/sorotte/internal/vcs"
)

// Policy selects which conditions make a repository unsafe.
type Policy int

const (
	// WorkingTreeAndUpstream rejects uncommitted changes, unpushed commits
	// and branches without an upstream.
	WorkingTreeAndUpstream Policy = iota
	// WorkingTree rejects only uncommitted, staged or untracked changes.
	WorkingTree
)

// String returns the configuration name of a Policy value.
func (p Policy) String() string {
	switch p {
	case WorkingTreeAndUpstream:
		return "working-tree-and-upstream"
	case WorkingTree:
		return "working-tree"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy converts a configuration value into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "working-tree-and-upstream":
		return WorkingTreeAndUpstream, nil
	case "working-tree":
		return WorkingTree, nil
	default:
		return 0, fmt.Errorf("unknown guard policy %q (want working-tree or working-tree-and-upstream)", s)
	}
}

// Verdict is the result of a guard check. Reason is empty when Safe.
type Verdict struct {
	Safe   bool
	Reason string
}

// Check inspects repo under policy. It never fails: a status query that
// cannot be answered makes the repository unsafe.
func Check(ctx context.Context, port vcs.Port, repo vcs.Repo, policy Policy) Verdict {
	status, err := port.WorkingTreeStatus(ctx, repo)
	if err != nil {
		slog.Warn("could not query working tree", "repo", repo.Name, "error", err)
		return Verdict{Reason: fmt.Sprintf("could not query working tree: %v", err)}
	}
	return Evaluate(status, policy)
}

// Evaluate applies policy to an already-fetched status. Behind-count never
// matters: a repository behind its upstream is still safe to switch.
func Evaluate(status vcs.TreeStatus, policy Policy) Verdict {
	if status.HasUncommittedChanges {
		return Verdict{Reason: "uncommitted changes in working tree"}
	}
	if policy == WorkingTree {
		return Verdict{Safe: true}
	}
	if status.UpstreamErr != nil {
		return Verdict{Reason: fmt.Sprintf("could not query upstream: %v", status.UpstreamErr)}
	}
	if !status.HasUpstream {
		return Verdict{Reason: "no upstream tracking branch configured"}
	}
	if status.Ahead > 0 {
		return Verdict{Reason: fmt.Sprintf("commits not pushed to upstream (%d ahead)", status.Ahead)}
	}
	return Verdict{Safe: true}
}
