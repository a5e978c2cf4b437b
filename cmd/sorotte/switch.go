package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/agrahamlincoln/sorotte/internal/collect"
	"github.com/agrahamlincoln/sorotte/internal/outcome"
	"github.com/agrahamlincoln/sorotte/internal/resolve"
	"github.com/agrahamlincoln/sorotte/internal/switcher"
)

// SwitchCmd checks out one branch across all repositories.
type SwitchCmd struct {
	Branch string `arg:"" optional:"" help:"Branch to switch to. Prompts with the known branches when omitted."`
	Create bool   `name:"create" short:"c" help:"Create the branch in repositories where it exists nowhere."`
}

// Run executes the switch command.
func (c *SwitchCmd) Run(ctx context.Context, globals *CLI) error {
	var extra []string
	if c.Create {
		extra = append(extra, "--create")
	}
	s, err := newSession(globals, "switch", extra...)
	if err != nil {
		return err
	}
	defer s.close()

	if len(s.repos) == 0 {
		fmt.Println("No repositories found.")
		return nil
	}

	target, allowCreate := c.Branch, c.Create
	if target == "" {
		set, warnings := collect.Collect(ctx, s.port, s.repos, s.cfg.Switch.Remote)
		printWarnings(os.Stderr, warnings)
		var created bool
		if target, created, err = pickBranch(set.Sorted()); err != nil {
			return err
		}
		allowCreate = allowCreate || created
	}
	if err := validateBranchName(target); err != nil {
		return err
	}
	target = strings.TrimSpace(target)

	fmt.Printf("Switching %d repositories to %s...\n\n", len(s.repos), bold.Sprint(target))
	report, err := s.newSwitcher().Run(ctx, s.repos, target, allowCreate)
	if err != nil {
		return err
	}
	_ = s.ml.LogSwitch(target, report.Outcomes, report.Pulled, report.Reloaded)
	return finishSwitch(report)
}

// DefaultCmd returns every repository to its default branch.
type DefaultCmd struct{}

// Run executes the default command.
func (c *DefaultCmd) Run(ctx context.Context, globals *CLI) error {
	s, err := newSession(globals, "default")
	if err != nil {
		return err
	}
	defer s.close()

	if len(s.repos) == 0 {
		fmt.Println("No repositories found.")
		return nil
	}

	fmt.Printf("Switching %d repositories to their default branch...\n\n", len(s.repos))
	report, err := s.newSwitcher().RunDefault(ctx, s.repos)
	if err != nil {
		return err
	}
	_ = s.ml.LogSwitch("(default)", report.Outcomes, report.Pulled, report.Reloaded)
	return finishSwitch(report)
}

// BranchesCmd lists the branch names known across repositories.
type BranchesCmd struct{}

// Run executes the branches command.
func (c *BranchesCmd) Run(ctx context.Context, globals *CLI) error {
	s, err := newSession(globals, "branches")
	if err != nil {
		return err
	}
	defer s.close()

	set, warnings := collect.Collect(ctx, s.port, s.repos, s.cfg.Switch.Remote)
	printWarnings(os.Stderr, warnings)
	for _, name := range set.Sorted() {
		fmt.Println(name)
	}
	return nil
}

func (s *session) newSwitcher() *switcher.Switcher {
	resolver := resolve.New(s.port, resolve.Options{
		DefaultBranch: s.cfg.Switch.DefaultBranch,
		Remote:        s.cfg.Switch.Remote,
		Policy:        s.policy,
	})

	// Modes were validated when the config was loaded.
	pullMode, _ := switcher.ParseMode(s.cfg.Switch.AutoPull)
	reloadMode, _ := switcher.ParseMode(s.cfg.Switch.AutoReload)

	opts := switcher.Options{
		Workers:       s.cfg.Workers,
		AutoPull:      pullMode,
		AutoReload:    reloadMode,
		ConfirmPull:   func() bool { return confirm("All repositories switched. Pull latest changes?") },
		ConfirmReload: func() bool { return confirm("Run the reload command?") },
		SettleDelay:   s.cfg.SettleDelay(),
		OnResult: func(completed, total int, _ outcome.Outcome) {
			progressLine(os.Stdout, completed, total)
		},
	}
	if s.cfg.Switch.ReloadCommand != "" {
		opts.Reload = shellReload(s.cfg.Switch.ReloadCommand)
	}
	return switcher.New(s.port, resolver, opts)
}

// shellReload runs command through sh with the terminal attached.
func shellReload(command string) func(context.Context) error {
	return func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("reload command %q: %w", command, err)
		}
		return nil
	}
}

func finishSwitch(report switcher.Report) error {
	progressLine(os.Stdout, 0, 0)
	printSwitchReport(os.Stdout, report)

	if c := outcome.Count(report.Outcomes); c.Failed > 0 {
		return fmt.Errorf("%d of %d repositories failed", c.Failed, len(report.Outcomes))
	}
	if report.ReloadErr != nil {
		return report.ReloadErr
	}
	return nil
}
