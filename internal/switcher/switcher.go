// Package switcher drives branch resolution across a batch of repositories
// and runs the follow-up pull and reload steps when the whole batch succeeded.
package switcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agrahamlincoln/sorotte/internal/outcome"
	"github.com/agrahamlincoln/sorotte/internal/parallel"
	"github.com/agrahamlincoln/sorotte/internal/resolve"
	"github.com/agrahamlincoln/sorotte/internal/vcs"
)

// ErrNoRepositories is returned before any work when the batch is empty.
var ErrNoRepositories = errors.New("no repositories to process")

// Mode gates a follow-up action.
type Mode int

const (
	// Ask defers to a confirmation callback.
	Ask Mode = iota
	// Always runs the action without asking.
	Always
	// Never skips the action.
	Never
)

// String returns the configuration name of a Mode value.
func (m Mode) String() string {
	switch m {
	case Ask:
		return "Ask"
	case Always:
		return "Always"
	case Never:
		return "Never"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts "Always", "Ask" or "Never" (any case) into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "ask":
		return Ask, nil
	case "always":
		return Always, nil
	case "never":
		return Never, nil
	default:
		return 0, fmt.Errorf("unknown mode %q (want Always, Ask or Never)", s)
	}
}

// Options controls a batch run.
type Options struct {
	// Workers is the number of repositories processed at once. Values
	// below 2 process repositories one after another.
	Workers int

	AutoPull   Mode
	AutoReload Mode
	// ConfirmPull and ConfirmReload answer Ask. A nil callback declines.
	ConfirmPull   func() bool
	ConfirmReload func() bool
	// Reload is the reload step. Nothing is reloaded when it is nil.
	Reload func(ctx context.Context) error

	// SettleDelay is waited after pulling when the backend cannot report
	// that its operations have finished.
	SettleDelay time.Duration

	// OnResult is called serially as each repository finishes.
	OnResult func(completed, total int, o outcome.Outcome)
}

// PullError records a failed follow-up pull.
type PullError struct {
	Repo vcs.Repo
	Err  error
}

// Report is the result of a batch run. Outcomes hold exactly one entry per
// repository, ordered Success, Skipped, Failed.
type Report struct {
	Outcomes   []outcome.Outcome
	Pulled     bool
	PullErrors []PullError
	Reloaded   bool
	ReloadErr  error
}

// Switcher runs branch operations over many repositories.
type Switcher struct {
	port     vcs.Port
	resolver *resolve.Resolver
	opts     Options
	sleep    func(ctx context.Context, d time.Duration)
}

// New returns a Switcher.
func New(port vcs.Port, resolver *resolve.Resolver, opts Options) *Switcher {
	return &Switcher{port: port, resolver: resolver, opts: opts, sleep: sleepCtx}
}

// Run resolves target in every repository.
func (s *Switcher) Run(ctx context.Context, repos []vcs.Repo, target string, allowCreate bool) (Report, error) {
	return s.run(ctx, repos, func(repo vcs.Repo) outcome.Outcome {
		return s.resolver.Resolve(ctx, repo, target, allowCreate)
	})
}

// RunDefault returns every repository to its default branch.
func (s *Switcher) RunDefault(ctx context.Context, repos []vcs.Repo) (Report, error) {
	return s.run(ctx, repos, func(repo vcs.Repo) outcome.Outcome {
		return s.resolver.SwitchToDefault(ctx, repo)
	})
}

func (s *Switcher) run(ctx context.Context, repos []vcs.Repo, one func(vcs.Repo) outcome.Outcome) (Report, error) {
	if len(repos) == 0 {
		return Report{}, ErrNoRepositories
	}

	outcomes := parallel.Run(repos, s.opts.Workers, one, s.opts.OnResult)
	outcome.Sort(outcomes)
	report := Report{Outcomes: outcomes}

	counts := outcome.Count(outcomes)
	slog.Debug("batch finished", "success", counts.Success, "skipped", counts.Skipped, "failed", counts.Failed)
	if !counts.Clean() {
		return report, nil
	}

	if gate(s.opts.AutoPull, s.opts.ConfirmPull) {
		report.Pulled = true
		report.PullErrors = s.pull(ctx, repos)
		s.settle(ctx, repos)
	}
	if s.opts.Reload != nil && gate(s.opts.AutoReload, s.opts.ConfirmReload) {
		report.Reloaded = true
		report.ReloadErr = s.opts.Reload(ctx)
	}
	return report, nil
}

func gate(mode Mode, confirm func() bool) bool {
	switch mode {
	case Always:
		return true
	case Ask:
		return confirm != nil && confirm()
	default:
		return false
	}
}

func (s *Switcher) pull(ctx context.Context, repos []vcs.Repo) []PullError {
	results := parallel.Run(repos, s.opts.Workers, func(repo vcs.Repo) error {
		slog.Debug("pulling", "repo", repo.Name)
		return s.port.Pull(ctx, repo)
	}, nil)

	var errs []PullError
	for i, err := range results {
		if err != nil {
			slog.Warn("pull failed", "repo", repos[i].Name, "error", err)
			errs = append(errs, PullError{Repo: repos[i], Err: err})
		}
	}
	return errs
}

// settle waits for the repositories to finish any background git work.
// It is best effort: failures are logged, never reported.
func (s *Switcher) settle(ctx context.Context, repos []vcs.Repo) {
	settler, ok := s.port.(vcs.Settler)
	if !ok {
		s.sleep(ctx, s.opts.SettleDelay)
		return
	}
	for _, repo := range repos {
		if err := settler.WaitIdle(ctx, repo); err != nil {
			slog.Warn("repository did not settle", "repo", repo.Name, "error", err)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
