package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/agrahamlincoln/sorotte/internal/prune"
	"github.com/agrahamlincoln/sorotte/internal/vcs"
)

// PruneCmd deletes local branches whose last commit is older than a cutoff.
type PruneCmd struct {
	Days    int      `name:"days" help:"Age in days after which a branch is stale (default from config)." default:"-1"`
	Protect []string `name:"protect" help:"Regular expression for branches that are never deleted; repeatable, added to the configured patterns."`
	Yes     bool     `name:"yes" short:"y" help:"Delete without asking for confirmation."`
}

// options merges flags over the configured prune settings.
func (c *PruneCmd) options(globals *CLI, days int, protected []string, dryRun bool) prune.Options {
	opts := prune.Options{
		CutoffDays: days,
		Protect:    append(append([]string{}, protected...), c.Protect...),
		DryRun:     dryRun || globals.DryRun,
	}
	if c.Days >= 0 {
		opts.CutoffDays = c.Days
	}
	return opts
}

// Run executes the prune command.
func (c *PruneCmd) Run(ctx context.Context, globals *CLI) error {
	var extra []string
	if c.Days >= 0 {
		extra = append(extra, fmt.Sprintf("--days=%d", c.Days))
	}
	if len(c.Protect) > 0 {
		extra = append(extra, "--protect")
	}
	s, err := newSession(globals, "prune", extra...)
	if err != nil {
		return err
	}
	defer s.close()

	if len(s.repos) == 0 {
		fmt.Println("No repositories found.")
		return nil
	}

	opts := c.options(globals, s.cfg.Prune.CutoffDays, s.cfg.Prune.Protected, s.cfg.Prune.DryRun)

	pruner := prune.New(s.port, s.policy)
	pruner.Workers = s.cfg.Workers
	pruner.OnResult = func(completed, total int, _ prune.Result) {
		progressLine(os.Stdout, completed, total)
	}
	pruner.Confirm = func(o prune.Options, repos []vcs.Repo) bool {
		if c.Yes {
			return true
		}
		return confirm(fmt.Sprintf("Delete local branches older than %d days in %d repositories?", o.CutoffDays, len(repos)))
	}

	if opts.DryRun {
		fmt.Printf("Checking %d repositories for branches older than %d days (dry run)...\n\n", len(s.repos), opts.CutoffDays)
	}
	results, err := pruner.Run(ctx, s.repos, opts)
	if errors.Is(err, prune.ErrCancelled) {
		fmt.Println("Prune cancelled.")
		return nil
	}
	if err != nil {
		return err
	}

	progressLine(os.Stdout, 0, 0)
	printPruneResults(os.Stdout, results, opts.DryRun)

	summary := prune.Summarize(results)
	_ = s.ml.LogPrune(summary, opts.CutoffDays, opts.DryRun)
	if summary.Errors > 0 {
		return fmt.Errorf("prune finished with %d error(s)", summary.Errors)
	}
	return nil
}
