// Package resolve decides, per repository, how to get a target branch
// checked out and carries that decision out.
package resolve

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/agrahamlincoln/sorotte/internal/guard"
	"github.com/agrahamlincoln/sorotte/internal/outcome"
	"github.com/agrahamlincoln/sorotte/internal/vcs"
)

// Action is what the resolver will do for one repository.
type Action int

const (
	// Switch checks out an existing local branch.
	Switch Action = iota
	// Track creates a local branch tracking the remote branch.
	Track
	// Create creates a new local branch at the current tip.
	Create
	// Fallback retries with the configured default branch.
	Fallback
)

// String returns the human-readable name of an Action value.
func (a Action) String() string {
	switch a {
	case Switch:
		return "Switch"
	case Track:
		return "Track"
	case Create:
		return "Create"
	case Fallback:
		return "Fallback"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Decide picks the action for a branch given where it exists.
func Decide(local, remote, allowCreate bool) Action {
	switch {
	case local:
		return Switch
	case remote:
		return Track
	case allowCreate:
		return Create
	default:
		return Fallback
	}
}

// commonDefaults are probed, in order, when neither the configured default
// nor the remote HEAD identifies a repository's default branch.
var commonDefaults = []string{"main", "master", "develop"}

// Options configures a Resolver.
type Options struct {
	DefaultBranch string
	Remote        string
	Policy        guard.Policy
}

// Resolver resolves target branches against repositories through a vcs.Port.
type Resolver struct {
	port vcs.Port
	opts Options
}

// New returns a Resolver. Empty DefaultBranch and Remote fall back to
// "master" and "origin".
func New(port vcs.Port, opts Options) *Resolver {
	if opts.DefaultBranch == "" {
		opts.DefaultBranch = "master"
	}
	if opts.Remote == "" {
		opts.Remote = "origin"
	}
	return &Resolver{port: port, opts: opts}
}

// Resolve gets target checked out in repo. When target exists nowhere and
// allowCreate is false, it retries once with the default branch. Every
// failure is folded into the returned Outcome.
func (r *Resolver) Resolve(ctx context.Context, repo vcs.Repo, target string, allowCreate bool) outcome.Outcome {
	return r.resolve(ctx, repo, target, allowCreate, true)
}

func (r *Resolver) resolve(ctx context.Context, repo vcs.Repo, target string, allowCreate, mayFallback bool) outcome.Outcome {
	if v := guard.Check(ctx, r.port, repo, r.opts.Policy); !v.Safe {
		return outcome.Skip(repo, v.Reason+" – skipped")
	}

	local, remote, err := r.exists(ctx, repo, target)
	if err != nil {
		return outcome.Fail(repo, fmt.Sprintf("existence check for %s failed: %v", target, err))
	}

	action := Decide(local, remote, allowCreate)
	slog.Debug("resolved branch action", "repo", repo.Name, "branch", target, "action", action)

	if action == Fallback {
		if !mayFallback || target == r.opts.DefaultBranch {
			return outcome.Fail(repo, fmt.Sprintf("branch %s not found locally or on %s", target, r.opts.Remote))
		}
		out := r.resolve(ctx, repo, r.opts.DefaultBranch, false, false)
		if out.Status == outcome.Success {
			out.Message = fmt.Sprintf("%s not found, switched to default branch %s", target, r.opts.DefaultBranch)
		}
		return out
	}
	return r.apply(ctx, repo, target, action)
}

// apply executes a non-fallback action.
func (r *Resolver) apply(ctx context.Context, repo vcs.Repo, target string, action Action) outcome.Outcome {
	switch action {
	case Switch:
		if err := r.port.Checkout(ctx, repo, target); err != nil {
			return outcome.Fail(repo, err.Error())
		}
		return outcome.Succeeded(repo, "switched to existing local branch")
	case Track:
		if err := r.port.CheckoutTracking(ctx, repo, r.opts.Remote+"/"+target); err != nil {
			return outcome.Fail(repo, err.Error())
		}
		return outcome.Succeeded(repo, "created local tracking branch from "+r.opts.Remote)
	case Create:
		if err := r.port.CreateBranch(ctx, repo, target); err != nil {
			return outcome.Fail(repo, err.Error())
		}
		return outcome.Succeeded(repo, "created new local branch")
	default:
		return outcome.Fail(repo, fmt.Sprintf("cannot apply %s", action))
	}
}

// exists checks local and remote presence of branch concurrently.
func (r *Resolver) exists(ctx context.Context, repo vcs.Repo, branch string) (local, remote bool, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		local, err = r.port.BranchExists(gctx, repo, branch, vcs.Local)
		return err
	})
	g.Go(func() error {
		var err error
		remote, err = r.port.BranchExists(gctx, repo, branch, vcs.Remote)
		return err
	})
	if err := g.Wait(); err != nil {
		return false, false, err
	}
	return local, remote, nil
}

// DetermineDefault picks the branch a repository should return to: the
// configured default if it exists anywhere, else the remote's default
// branch, else the first of main, master, develop that exists, else the
// configured default regardless.
func (r *Resolver) DetermineDefault(ctx context.Context, repo vcs.Repo) string {
	configured := r.opts.DefaultBranch
	if r.existsAnywhere(ctx, repo, configured) {
		return configured
	}

	name, ok, err := r.port.RemoteDefaultBranch(ctx, repo)
	if err != nil {
		slog.Debug("remote default branch query failed", "repo", repo.Name, "error", err)
	} else if ok {
		return name
	}

	for _, candidate := range commonDefaults {
		if candidate != configured && r.existsAnywhere(ctx, repo, candidate) {
			return candidate
		}
	}
	return configured
}

func (r *Resolver) existsAnywhere(ctx context.Context, repo vcs.Repo, branch string) bool {
	local, remote, err := r.exists(ctx, repo, branch)
	if err != nil {
		slog.Debug("branch existence check failed", "repo", repo.Name, "branch", branch, "error", err)
		return false
	}
	return local || remote
}

// SwitchToDefault returns repo to its default branch, creating it locally
// when it exists nowhere.
func (r *Resolver) SwitchToDefault(ctx context.Context, repo vcs.Repo) outcome.Outcome {
	if v := guard.Check(ctx, r.port, repo, r.opts.Policy); !v.Safe {
		return outcome.Skip(repo, v.Reason+" – skipped")
	}

	target := r.DetermineDefault(ctx, repo)
	local, remote, err := r.exists(ctx, repo, target)
	if err != nil {
		return outcome.Fail(repo, fmt.Sprintf("existence check for %s failed: %v", target, err))
	}

	out := r.apply(ctx, repo, target, Decide(local, remote, true))
	if out.Status == outcome.Success {
		out.Message = "switched to " + target
	}
	return out
}
