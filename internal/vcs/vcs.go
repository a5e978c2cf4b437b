// Package vcs defines the repository model and the capability surface the
// branch coordination logic needs from a version control backend.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// Repo identifies one repository taking part in a batch operation.
type Repo struct {
	Path string
	Name string
}

// NewRepo builds a Repo whose Name is the final segment of path.
func NewRepo(path string) Repo {
	return Repo{Path: path, Name: filepath.Base(path)}
}

// RefKind classifies a Ref.
type RefKind int

const (
	// Head is a local branch.
	Head RefKind = iota
	// RemoteHead is a remote-tracking branch such as origin/main.
	RemoteHead
	// Tag is a tag.
	Tag
)

// String returns the human-readable name of a RefKind value.
func (k RefKind) String() string {
	switch k {
	case Head:
		return "Head"
	case RemoteHead:
		return "RemoteHead"
	case Tag:
		return "Tag"
	default:
		return fmt.Sprintf("RefKind(%d)", int(k))
	}
}

// Ref is a named pointer in a repository. For RemoteHead refs Name carries
// the remote prefix ("origin/feature") and Remote names the remote.
type Ref struct {
	Name   string
	Kind   RefKind
	Remote string
	Commit string
}

// BranchInfo is a local branch with the committer date of its tip.
type BranchInfo struct {
	Name       string
	LastCommit time.Time
}

// Scope selects where BranchExists looks.
type Scope int

const (
	// Local checks refs/heads.
	Local Scope = iota
	// Remote asks the default remote.
	Remote
)

// String returns the human-readable name of a Scope value.
func (s Scope) String() string {
	if s == Remote {
		return "remote"
	}
	return "local"
}

// TreeStatus is the working tree state used by the guard. Ahead and Behind
// are meaningful only when HasUpstream is true. UpstreamErr is set when the
// working tree was read but the upstream comparison failed for a reason
// other than a missing upstream.
type TreeStatus struct {
	HasUncommittedChanges bool
	HasUpstream           bool
	Ahead                 int
	Behind                int
	UpstreamErr           error
}

// Port is the set of operations the coordinator performs on one repository.
// Read-only operations fail with *QueryError, mutating ones with
// *CommandError. BranchExists reports a missing branch as (false, nil).
type Port interface {
	Refs(ctx context.Context, repo Repo) ([]Ref, error)
	WorkingTreeStatus(ctx context.Context, repo Repo) (TreeStatus, error)
	BranchExists(ctx context.Context, repo Repo, name string, scope Scope) (bool, error)
	Checkout(ctx context.Context, repo Repo, name string) error
	CheckoutTracking(ctx context.Context, repo Repo, remoteBranch string) error
	CreateBranch(ctx context.Context, repo Repo, name string) error
	DeleteBranch(ctx context.Context, repo Repo, name string) error
	CurrentBranch(ctx context.Context, repo Repo) (string, error)
	// RemoteDefaultBranch returns the remote's default branch; ok is false
	// when it cannot be determined.
	RemoteDefaultBranch(ctx context.Context, repo Repo) (name string, ok bool, err error)
	BranchesWithCommitDates(ctx context.Context, repo Repo) ([]BranchInfo, error)
	Pull(ctx context.Context, repo Repo) error
}

// Settler is implemented by backends that can tell when a repository has
// no git operation in flight.
type Settler interface {
	WaitIdle(ctx context.Context, repo Repo) error
}

// QueryError is a failed read-only query.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *QueryError) Unwrap() error { return e.Err }

// CommandError is a failed mutating command. Its message is the backend's
// diagnostic, preserved verbatim.
type CommandError struct {
	Op  string
	Err error
}

func (e *CommandError) Error() string { return e.Err.Error() }

func (e *CommandError) Unwrap() error { return e.Err }

// IsQueryError reports whether err is (or wraps) a *QueryError.
func IsQueryError(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}

// IsCommandError reports whether err is (or wraps) a *CommandError.
func IsCommandError(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce)
}
