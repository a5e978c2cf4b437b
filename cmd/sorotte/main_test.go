package main

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"

	"github.com/agrahamlincoln/sorotte/internal/collect"
	"github.com/agrahamlincoln/sorotte/internal/outcome"
	"github.com/agrahamlincoln/sorotte/internal/prune"
	"github.com/agrahamlincoln/sorotte/internal/switcher"
	"github.com/agrahamlincoln/sorotte/internal/vcs"
)

func init() {
	color.NoColor = true
}

func parse(t *testing.T, args ...string) (*CLI, string) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("sorotte"), kong.Exit(func(int) {}))
	if err != nil {
		t.Fatalf("kong.New: %v", err)
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		t.Fatalf("Parse(%v): %v", args, err)
	}
	return &cli, kctx.Command()
}

func TestParseSwitch(t *testing.T) {
	cli, cmd := parse(t, "switch", "feature/x", "--create", "-r", "/a", "--repo", "/b", "--workers", "4", "-v")
	if !strings.HasPrefix(cmd, "switch") {
		t.Errorf("command = %q", cmd)
	}
	if cli.Switch.Branch != "feature/x" || !cli.Switch.Create {
		t.Errorf("unexpected switch flags %+v", cli.Switch)
	}
	if !slices.Equal(cli.Repo, []string{"/a", "/b"}) || cli.Workers != 4 || !cli.Verbose {
		t.Errorf("unexpected globals %+v", cli)
	}
	want := []string{"--verbose", "--repo", "--workers=4"}
	if !slices.Equal(cli.flags(), want) {
		t.Errorf("flags() = %v, want %v", cli.flags(), want)
	}
}

func TestParseSwitchWithoutBranch(t *testing.T) {
	cli, cmd := parse(t, "switch")
	if !strings.HasPrefix(cmd, "switch") {
		t.Errorf("command = %q", cmd)
	}
	if cli.Switch.Branch != "" {
		t.Errorf("expected empty branch, got %q", cli.Switch.Branch)
	}
}

func TestParsePrune(t *testing.T) {
	cli, _ := parse(t, "prune", "--days", "30", "--protect", "^release/", "--protect", "^hotfix/", "-y", "-n")
	if cli.Prune.Days != 30 || !cli.Prune.Yes || !cli.DryRun {
		t.Errorf("unexpected prune flags %+v dry=%v", cli.Prune, cli.DryRun)
	}
	if !slices.Equal(cli.Prune.Protect, []string{"^release/", "^hotfix/"}) {
		t.Errorf("unexpected protect patterns %v", cli.Prune.Protect)
	}

	cli, _ = parse(t, "prune")
	if cli.Prune.Days != -1 {
		t.Errorf("expected --days to default to -1, got %d", cli.Prune.Days)
	}
}

func TestPruneOptions(t *testing.T) {
	configured := []string{prune.DefaultProtected}

	t.Run("config values", func(t *testing.T) {
		c := &PruneCmd{Days: -1}
		opts := c.options(&CLI{}, 14, configured, false)
		if opts.CutoffDays != 14 || opts.DryRun || !slices.Equal(opts.Protect, configured) {
			t.Errorf("unexpected options %+v", opts)
		}
	})

	t.Run("flags override and extend", func(t *testing.T) {
		c := &PruneCmd{Days: 0, Protect: []string{"^keep/"}}
		opts := c.options(&CLI{DryRun: true}, 14, configured, false)
		if opts.CutoffDays != 0 {
			t.Errorf("expected explicit zero days, got %d", opts.CutoffDays)
		}
		if !opts.DryRun {
			t.Error("expected --dry-run to apply")
		}
		if !slices.Equal(opts.Protect, []string{prune.DefaultProtected, "^keep/"}) {
			t.Errorf("unexpected protect %v", opts.Protect)
		}
		if len(configured) != 1 {
			t.Error("configured patterns were modified")
		}
	})

	t.Run("config dry run", func(t *testing.T) {
		opts := (&PruneCmd{Days: -1}).options(&CLI{}, 14, configured, true)
		if !opts.DryRun {
			t.Error("expected configured dry run to apply")
		}
	})
}

func TestValidateBranchName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"feature/login", false},
		{"  padded  ", false},
		{"", true},
		{"   ", true},
		{"has space", true},
		{"tab\tname", true},
		{"-flag", true},
		{"a..b", true},
	}
	for _, tt := range tests {
		err := validateBranchName(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("validateBranchName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
	if validateBranchName(createNewBranch) == nil {
		t.Error("the create entry must never be a valid branch name")
	}
}

func TestShellReload(t *testing.T) {
	if err := shellReload("true")(context.Background()); err != nil {
		t.Errorf("expected success, got %v", err)
	}
	err := shellReload("exit 3")(context.Background())
	if err == nil || !strings.Contains(err.Error(), "exit 3") {
		t.Errorf("expected error naming the command, got %v", err)
	}
}

func TestPrintSwitchReport(t *testing.T) {
	api := vcs.Repo{Name: "api", Path: "/w/api"}
	web := vcs.Repo{Name: "web", Path: "/w/web"}
	docs := vcs.Repo{Name: "docs", Path: "/w/docs"}

	report := switcher.Report{
		Outcomes: []outcome.Outcome{
			outcome.Succeeded(api, "switched to existing local branch"),
			outcome.Skip(web, "uncommitted changes in working tree – skipped"),
			outcome.Fail(docs, "fatal: cannot lock ref"),
		},
	}

	var buf bytes.Buffer
	printSwitchReport(&buf, report)
	out := buf.String()

	for _, want := range []string{
		"[ok] api: switched to existing local branch",
		"[skip] web: uncommitted changes in working tree – skipped",
		"[fail] docs: fatal: cannot lock ref",
		"Switched 1, skipped 1, failed 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "[ok]") > strings.Index(out, "[skip]") || strings.Index(out, "[skip]") > strings.Index(out, "[fail]") {
		t.Errorf("outcomes out of order:\n%s", out)
	}
	if strings.Contains(out, "[pull]") || strings.Contains(out, "[reload]") {
		t.Errorf("unexpected post action lines:\n%s", out)
	}
}

func TestPrintSwitchReport_PostActions(t *testing.T) {
	api := vcs.Repo{Name: "api"}
	web := vcs.Repo{Name: "web"}
	report := switcher.Report{
		Outcomes: []outcome.Outcome{
			outcome.Succeeded(api, "switched to main"),
			outcome.Succeeded(web, "switched to main"),
		},
		Pulled:     true,
		PullErrors: []switcher.PullError{{Repo: web, Err: errors.New("not possible to fast-forward")}},
		Reloaded:   true,
		ReloadErr:  errors.New("reload command failed"),
	}

	var buf bytes.Buffer
	printSwitchReport(&buf, report)
	out := buf.String()
	for _, want := range []string{
		"[pull] pulled 1 repositories",
		"[pull] web: not possible to fast-forward",
		"[reload] reload command failed",
		"Switched 2, skipped 0, failed 0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintPruneResults(t *testing.T) {
	results := []prune.Result{
		{Repo: vcs.Repo{Name: "api"}, Deleted: []string{"feature/x"}, Skipped: []string{"main"}},
		{Repo: vcs.Repo{Name: "quiet"}},
		{Repo: vcs.Repo{Name: "web"}, Errors: []string{"repository not safe to modify (uncommitted changes in working tree) - skipped"}},
	}

	t.Run("real run", func(t *testing.T) {
		var buf bytes.Buffer
		printPruneResults(&buf, results, false)
		out := buf.String()
		for _, want := range []string{"api", "deleted feature/x", "kept main", "error repository not safe", "Deleted: 1 branch(es)", "Skipped: 1", "Errors: 1"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
		if strings.Contains(out, "quiet") {
			t.Errorf("repositories without changes should be omitted:\n%s", out)
		}
	})

	t.Run("dry run", func(t *testing.T) {
		var buf bytes.Buffer
		printPruneResults(&buf, results[:1], true)
		out := buf.String()
		if !strings.Contains(out, "would delete feature/x") || !strings.Contains(out, "Would delete: 1 branch(es)") {
			t.Errorf("unexpected dry run output:\n%s", out)
		}
		if strings.Contains(out, "Errors:") {
			t.Errorf("error line should be omitted without errors:\n%s", out)
		}
	})
}

func TestPrintWarnings(t *testing.T) {
	var buf bytes.Buffer
	printWarnings(&buf, []collect.Warning{{Repo: vcs.Repo{Name: "broken"}, Err: errors.New("list refs: boom")}})
	if !strings.Contains(buf.String(), "[warn] broken: list refs: boom") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestProgressLine(t *testing.T) {
	var buf bytes.Buffer
	progressLine(&buf, 2, 5)
	if !strings.Contains(buf.String(), "[2/5] 3 remaining...") {
		t.Errorf("unexpected progress %q", buf.String())
	}

	buf.Reset()
	progressLine(&buf, 5, 5)
	if buf.String() != "\r\033[2K" {
		t.Errorf("finished batch should only clear the line, got %q", buf.String())
	}
}
