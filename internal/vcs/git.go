package vcs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/agrahamlincoln/sorotte/pkg/git"
)

// DefaultBranchLookup resolves a remote's default branch from a hosting
// service when the clone has no refs/remotes/<remote>/HEAD.
type DefaultBranchLookup interface {
	DefaultBranchForRemote(ctx context.Context, remoteURL string) (string, error)
}

// GitOptions configures the git-backed Port.
type GitOptions struct {
	// Remote is the default remote, usually "origin".
	Remote string
	// PullStrategy is one of "ff-only", "rebase" or "merge".
	PullStrategy string
	// Timeout bounds each git invocation. Zero means no limit.
	Timeout time.Duration
	// Lookup is consulted by RemoteDefaultBranch when the local clone does
	// not know the remote HEAD. Optional.
	Lookup DefaultBranchLookup
	// IdlePoll and IdleTries control WaitIdle.
	IdlePoll  time.Duration
	IdleTries int
}

// Git implements Port (and Settler) on top of the git CLI, reading refs and
// commit dates directly from the object store with go-git.
type Git struct {
	opts GitOptions
}

// NewGit returns a git-backed Port.
func NewGit(opts GitOptions) *Git {
	if opts.Remote == "" {
		opts.Remote = "origin"
	}
	if opts.PullStrategy == "" {
		opts.PullStrategy = "ff-only"
	}
	if opts.IdlePoll <= 0 {
		opts.IdlePoll = 500 * time.Millisecond
	}
	if opts.IdleTries <= 0 {
		opts.IdleTries = 10
	}
	return &Git{opts: opts}
}

var (
	_ Port    = (*Git)(nil)
	_ Settler = (*Git)(nil)
)

func (g *Git) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.opts.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.opts.Timeout)
}

// Refs enumerates local branches, remote-tracking branches and tags.
func (g *Git) Refs(ctx context.Context, repo Repo) ([]Ref, error) {
	refs, err := g.refsFromStore(repo)
	if err == nil {
		return refs, nil
	}
	slog.Debug("go-git ref listing failed, using git CLI", "repo", repo.Name, "error", err)

	ctx, cancel := g.bound(ctx)
	defer cancel()
	raw, err := git.ListRefs(ctx, repo.Path)
	if err != nil {
		return nil, &QueryError{Op: "list refs", Err: err}
	}
	refs = make([]Ref, 0, len(raw))
	for _, r := range raw {
		if ref, ok := classifyRef(plumbing.ReferenceName(r.Name), r.Hash); ok {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

func (g *Git) refsFromStore(repo Repo) ([]Ref, error) {
	r, err := gogit.PlainOpenWithOptions(repo.Path, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, err
	}
	iter, err := r.References()
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var refs []Ref
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		var commit string
		if ref.Type() == plumbing.HashReference {
			commit = ref.Hash().String()
		}
		if out, ok := classifyRef(ref.Name(), commit); ok {
			refs = append(refs, out)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

func classifyRef(name plumbing.ReferenceName, commit string) (Ref, bool) {
	switch {
	case name.IsBranch():
		return Ref{Name: name.Short(), Kind: Head, Commit: commit}, true
	case name.IsRemote():
		short := name.Short()
		remote, _, _ := strings.Cut(short, "/")
		return Ref{Name: short, Kind: RemoteHead, Remote: remote, Commit: commit}, true
	case name.IsTag():
		return Ref{Name: name.Short(), Kind: Tag, Commit: commit}, true
	default:
		return Ref{}, false
	}
}

// WorkingTreeStatus reports uncommitted changes and the upstream ahead/behind
// counts of the checked-out branch. Only the working tree query fails the
// call; an upstream failure is carried in TreeStatus.UpstreamErr.
func (g *Git) WorkingTreeStatus(ctx context.Context, repo Repo) (TreeStatus, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	clean, err := git.IsClean(ctx, repo.Path)
	if err != nil {
		return TreeStatus{}, &QueryError{Op: "working tree status", Err: err}
	}
	status := TreeStatus{HasUncommittedChanges: !clean}

	ahead, behind, err := git.AheadBehind(ctx, repo.Path)
	switch {
	case errors.Is(err, git.ErrNoUpstream):
		return status, nil
	case err != nil:
		status.UpstreamErr = &QueryError{Op: "upstream status", Err: err}
		return status, nil
	}
	status.HasUpstream = true
	status.Ahead = ahead
	status.Behind = behind
	return status, nil
}

// BranchExists checks refs/heads locally or asks the default remote.
func (g *Git) BranchExists(ctx context.Context, repo Repo, name string, scope Scope) (bool, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	var (
		ok  bool
		err error
	)
	if scope == Remote {
		ok, err = git.RemoteBranchExists(ctx, repo.Path, g.opts.Remote, name)
	} else {
		ok, err = git.LocalBranchExists(ctx, repo.Path, name)
	}
	if err != nil {
		return false, &QueryError{Op: scope.String() + " branch lookup", Err: err}
	}
	return ok, nil
}

// Checkout switches to an existing local branch.
func (g *Git) Checkout(ctx context.Context, repo Repo, name string) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	if err := git.Checkout(ctx, repo.Path, name); err != nil {
		return &CommandError{Op: "checkout", Err: err}
	}
	return nil
}

// CheckoutTracking creates and checks out a local branch following
// remoteBranch. The branch is fetched first because the remote-tracking ref
// may not exist locally yet.
func (g *Git) CheckoutTracking(ctx context.Context, repo Repo, remoteBranch string) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	if branch, ok := strings.CutPrefix(remoteBranch, g.opts.Remote+"/"); ok {
		if err := git.Fetch(ctx, repo.Path, g.opts.Remote, branch); err != nil {
			return &CommandError{Op: "fetch", Err: err}
		}
	}
	if err := git.CheckoutTracking(ctx, repo.Path, remoteBranch); err != nil {
		return &CommandError{Op: "checkout tracking", Err: err}
	}
	return nil
}

// CreateBranch creates name at the current tip and checks it out.
func (g *Git) CreateBranch(ctx context.Context, repo Repo, name string) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	if err := git.CreateBranch(ctx, repo.Path, name); err != nil {
		return &CommandError{Op: "create branch", Err: err}
	}
	return nil
}

// DeleteBranch force-deletes a local branch. Stale branches are by
// definition often unmerged, so a safe delete would refuse most of them.
func (g *Git) DeleteBranch(ctx context.Context, repo Repo, name string) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	if err := git.DeleteLocalBranch(ctx, repo.Path, name, true); err != nil {
		return &CommandError{Op: "delete branch", Err: err}
	}
	return nil
}

// CurrentBranch returns the checked-out branch, or "" for a detached HEAD.
func (g *Git) CurrentBranch(ctx context.Context, repo Repo) (string, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	branch, err := git.CurrentBranch(ctx, repo.Path)
	if err != nil {
		return "", &QueryError{Op: "current branch", Err: err}
	}
	return branch, nil
}

// RemoteDefaultBranch reads refs/remotes/<remote>/HEAD, then falls back to
// the configured hosting lookup.
func (g *Git) RemoteDefaultBranch(ctx context.Context, repo Repo) (string, bool, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	branch, err := git.RemoteHead(ctx, repo.Path, g.opts.Remote)
	if err == nil && branch != "" {
		return branch, true, nil
	}
	slog.Debug("remote HEAD not set", "repo", repo.Name, "remote", g.opts.Remote, "error", err)

	if g.opts.Lookup == nil {
		return "", false, nil
	}
	url, err := git.RemoteURL(ctx, repo.Path, g.opts.Remote)
	if err != nil {
		return "", false, nil
	}
	branch, err = g.opts.Lookup.DefaultBranchForRemote(ctx, url)
	if err != nil {
		slog.Debug("default branch lookup failed", "repo", repo.Name, "error", err)
		return "", false, nil
	}
	return branch, true, nil
}

// BranchesWithCommitDates lists local branches with their tip committer dates.
func (g *Git) BranchesWithCommitDates(ctx context.Context, repo Repo) ([]BranchInfo, error) {
	branches, err := branchDatesFromStore(repo)
	if err == nil {
		return branches, nil
	}
	slog.Debug("go-git branch listing failed, using git CLI", "repo", repo.Name, "error", err)

	ctx, cancel := g.bound(ctx)
	defer cancel()
	dated, err := git.BranchCommitDates(ctx, repo.Path)
	if err != nil {
		return nil, &QueryError{Op: "list branches", Err: err}
	}
	branches = make([]BranchInfo, 0, len(dated))
	for _, b := range dated {
		branches = append(branches, BranchInfo{Name: b.Name, LastCommit: b.Date})
	}
	return branches, nil
}

func branchDatesFromStore(repo Repo) ([]BranchInfo, error) {
	r, err := gogit.PlainOpenWithOptions(repo.Path, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, err
	}
	iter, err := r.Branches()
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var branches []BranchInfo
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		commit, err := r.CommitObject(ref.Hash())
		if err != nil {
			return fmt.Errorf("reading tip of %s: %w", ref.Name().Short(), err)
		}
		branches = append(branches, BranchInfo{
			Name:       ref.Name().Short(),
			LastCommit: commit.Committer.When,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return branches, nil
}

// Pull updates the checked-out branch from its upstream. A failed rebase or
// merge is aborted so the working tree is left as it was.
func (g *Git) Pull(ctx context.Context, repo Repo) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	err := git.Pull(ctx, repo.Path, g.opts.PullStrategy)
	if err == nil {
		return nil
	}
	switch g.opts.PullStrategy {
	case "rebase":
		if abortErr := git.RebaseAbort(context.WithoutCancel(ctx), repo.Path); abortErr != nil {
			slog.Debug("rebase --abort failed (may not be in rebase state)", "repo", repo.Name, "error", abortErr)
		}
	case "merge":
		if abortErr := git.MergeAbort(context.WithoutCancel(ctx), repo.Path); abortErr != nil {
			slog.Debug("merge --abort failed (may not be in merge state)", "repo", repo.Name, "error", abortErr)
		}
	}
	return &CommandError{Op: "pull", Err: err}
}

// WaitIdle blocks until no index.lock is present in the repository, polling
// IdleTries times at IdlePoll intervals.
func (g *Git) WaitIdle(ctx context.Context, repo Repo) error {
	for i := 0; i < g.opts.IdleTries; i++ {
		if !git.IndexLocked(repo.Path) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(g.opts.IdlePoll):
		}
	}
	return fmt.Errorf("%s: index still locked after %v", repo.Name, time.Duration(g.opts.IdleTries)*g.opts.IdlePoll)
}
