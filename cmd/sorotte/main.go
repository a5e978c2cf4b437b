// Package main provides the sorotte CLI, which keeps the same branch checked
// out across a set of repositories.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"

	"github.com/agrahamlincoln/sorotte/internal/config"
	"github.com/agrahamlincoln/sorotte/internal/github"
	"github.com/agrahamlincoln/sorotte/internal/guard"
	"github.com/agrahamlincoln/sorotte/internal/metrics"
	"github.com/agrahamlincoln/sorotte/internal/scanner"
	"github.com/agrahamlincoln/sorotte/internal/vcs"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI defines the top-level command structure for sorotte.
type CLI struct {
	DryRun      bool     `name:"dry-run" short:"n" help:"Show what prune would delete without deleting."`
	Verbose     bool     `name:"verbose" short:"v" help:"Verbose output."`
	ProjectsDir string   `name:"projects-dir" short:"p" help:"Directory to discover repositories in (default from config)."`
	Repo        []string `name:"repo" short:"r" help:"Repository to operate on; repeatable. Disables discovery."`
	Workers     int      `name:"workers" help:"Repositories processed at once (default from config)."`

	Switch   SwitchCmd   `cmd:"" help:"Check out the same branch in every repository."`
	Default  DefaultCmd  `cmd:"" help:"Return every repository to its default branch."`
	Branches BranchesCmd `cmd:"" help:"List branch names known across repositories."`
	Prune    PruneCmd    `cmd:"" help:"Delete stale local branches."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`
}

// flags returns the global flags worth recording with a command event.
func (c *CLI) flags() []string {
	var flags []string
	if c.DryRun {
		flags = append(flags, "--dry-run")
	}
	if c.Verbose {
		flags = append(flags, "--verbose")
	}
	if len(c.Repo) > 0 {
		flags = append(flags, "--repo")
	}
	if c.Workers > 0 {
		flags = append(flags, fmt.Sprintf("--workers=%d", c.Workers))
	}
	return flags
}

// session is the state shared by every repository command.
type session struct {
	cfg     config.Config
	policy  guard.Policy
	port    *vcs.Git
	repos   []vcs.Repo
	ml      *metrics.Logger
	started time.Time
}

// newSession loads configuration, applies flag overrides and builds the
// repository batch.
func newSession(globals *CLI, command string, extra ...string) (*session, error) {
	if globals.Verbose {
		enableVerboseLogging()
	}

	// Metrics are best-effort local telemetry. Logging errors are discarded
	// so that metrics never fail a command.
	ml := metrics.NewOrNil()
	_ = ml.LogCommand(command, append(globals.flags(), extra...))

	cfg, err := config.Load()
	if err != nil {
		_ = ml.Close()
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if globals.ProjectsDir != "" {
		cfg.ProjectsDir = config.ExpandHome(globals.ProjectsDir)
	}
	if globals.Workers > 0 {
		cfg.Workers = globals.Workers
	}
	policy, err := guard.ParsePolicy(cfg.Switch.GuardPolicy)
	if err != nil {
		_ = ml.Close()
		return nil, err
	}

	slog.Debug("collecting repositories", "dir", cfg.ProjectsDir, "explicit", len(globals.Repo))
	repos, err := scanner.Repos(cfg.ProjectsDir, scanner.Options{
		Paths:           globals.Repo,
		ExcludePatterns: cfg.ExcludePatterns,
	})
	if err != nil {
		_ = ml.Close()
		return nil, fmt.Errorf("collecting repositories: %w", err)
	}
	slog.Debug("found repositories", "count", len(repos))

	port := vcs.NewGit(vcs.GitOptions{
		Remote:       cfg.Switch.Remote,
		PullStrategy: cfg.Switch.PullStrategy,
		Timeout:      cfg.CommandTimeout,
		Lookup:       github.NewClient(cfg.GithubToken),
	})

	return &session{
		cfg:     cfg,
		policy:  policy,
		port:    port,
		repos:   repos,
		ml:      ml,
		started: time.Now(),
	}, nil
}

func (s *session) close() {
	_ = s.ml.LogPerf(len(s.repos), s.cfg.Workers, time.Since(s.started))
	_ = s.ml.Close()
}

func enableVerboseLogging() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))
}

// VersionCmd shows version information.
type VersionCmd struct{}

// Run executes the version command.
func (c *VersionCmd) Run() error {
	fmt.Printf("sorotte %s (commit: %s, built: %s)\n", version, commit, date)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("sorotte"),
		kong.Description(`sorotte (揃って) - "all together"

Keeps a multi-repository workspace on the same branch: switch every
repository at once, fall back to the default branch where the target does
not exist, and prune local branches nobody has touched in a while.`),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.Vars{"version": fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)},
	)
	err := kctx.Run(&cli)
	stop()
	kctx.FatalIfErrorf(err)
	os.Exit(0)
}
