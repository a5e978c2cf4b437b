package prune

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agrahamlincoln/sorotte/internal/guard"
	"github.com/agrahamlincoln/sorotte/internal/parallel"
	"github.com/agrahamlincoln/sorotte/internal/vcs"
)

var (
	// ErrNoRepositories is returned before any work when the batch is empty.
	ErrNoRepositories = errors.New("no repositories to process")
	// ErrCancelled is returned when the confirmation gate declines.
	ErrCancelled = errors.New("prune cancelled")
)

// Options are the per-invocation prune parameters.
type Options struct {
	CutoffDays int
	Protect    []string
	DryRun     bool
}

// DefaultOptions returns a 14 day cutoff protecting main, master and develop.
func DefaultOptions() Options {
	return Options{CutoffDays: 14, Protect: []string{DefaultProtected}}
}

// Result is the prune outcome for one repository. Skipped lists branches that
// were shielded from deletion (current or protected). In a dry run Deleted
// lists the branches that would be deleted.
type Result struct {
	Repo    vcs.Repo
	Deleted []string
	Skipped []string
	Errors  []string
	DryRun  bool
}

// Summary totals prune results.
type Summary struct {
	Repos   int
	Deleted int
	Skipped int
	Errors  int
}

// Summarize adds up results.
func Summarize(results []Result) Summary {
	s := Summary{Repos: len(results)}
	for _, r := range results {
		s.Deleted += len(r.Deleted)
		s.Skipped += len(r.Skipped)
		s.Errors += len(r.Errors)
	}
	return s
}

// Pruner deletes stale branches through a vcs.Port.
type Pruner struct {
	port   vcs.Port
	policy guard.Policy

	// Workers is the number of repositories processed at once.
	Workers int
	// Confirm is asked once before a destructive run. Nil means proceed.
	Confirm func(opts Options, repos []vcs.Repo) bool
	// OnResult is called serially as each repository finishes.
	OnResult func(completed, total int, r Result)

	now func() time.Time
}

// New returns a Pruner that checks repositories with the given guard policy.
func New(port vcs.Port, policy guard.Policy) *Pruner {
	return &Pruner{port: port, policy: policy, now: time.Now}
}

// Run prunes every repository. Results are returned in input order.
func (p *Pruner) Run(ctx context.Context, repos []vcs.Repo, opts Options) ([]Result, error) {
	if len(repos) == 0 {
		return nil, ErrNoRepositories
	}
	protect, err := CompilePatterns(opts.Protect)
	if err != nil {
		return nil, err
	}
	if !opts.DryRun && p.Confirm != nil && !p.Confirm(opts, repos) {
		return nil, ErrCancelled
	}

	cutoff := Cutoff(p.now(), opts.CutoffDays)
	slog.Debug("pruning", "repos", len(repos), "cutoff", cutoff, "dry_run", opts.DryRun)

	return parallel.Run(repos, p.Workers, func(repo vcs.Repo) Result {
		return p.pruneRepo(ctx, repo, cutoff, protect, opts.DryRun)
	}, p.OnResult), nil
}

func (p *Pruner) pruneRepo(ctx context.Context, repo vcs.Repo, cutoff time.Time, protect PatternSet, dryRun bool) Result {
	res := Result{Repo: repo, DryRun: dryRun}

	if v := guard.Check(ctx, p.port, repo, p.policy); !v.Safe {
		res.Errors = append(res.Errors, fmt.Sprintf("repository not safe to modify (%s) - skipped", v.Reason))
		return res
	}

	current, err := p.port.CurrentBranch(ctx, repo)
	if err != nil {
		slog.Warn("skipping repo: could not determine current branch", "repo", repo.Name, "error", err)
		res.Errors = append(res.Errors, err.Error())
		return res
	}

	branches, err := p.port.BranchesWithCommitDates(ctx, repo)
	if err != nil {
		slog.Warn("skipping repo: could not list branches", "repo", repo.Name, "error", err)
		res.Errors = append(res.Errors, err.Error())
		return res
	}

	part := Classify(branches, current, cutoff, protect)
	for _, name := range part.Retain {
		if r := part.Reasons[name]; r == Current || r == Protected {
			res.Skipped = append(res.Skipped, name)
		}
	}

	if dryRun {
		res.Deleted = append(res.Deleted, part.Stale...)
		return res
	}

	for _, name := range part.Stale {
		if err := p.port.DeleteBranch(ctx, repo, name); err != nil {
			slog.Debug("delete failed", "repo", repo.Name, "branch", name, "error", err)
			res.Errors = append(res.Errors, fmt.Sprintf("failed to delete %s: %v", name, err))
			continue
		}
		res.Deleted = append(res.Deleted, name)
	}
	return res
}
