package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	configDir := filepath.Join(dir, "sorotte")
	if err := os.MkdirAll(configDir, 0750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.ProjectsDir == "" {
		t.Error("expected non-empty projects dir")
	}
	if cfg.Workers != 1 {
		t.Errorf("expected workers 1, got %d", cfg.Workers)
	}
	if cfg.CommandTimeout != 60*time.Second {
		t.Errorf("expected command timeout 60s, got %v", cfg.CommandTimeout)
	}
	if cfg.Switch.DefaultBranch != "master" {
		t.Errorf("expected default branch master, got %q", cfg.Switch.DefaultBranch)
	}
	if cfg.Switch.Remote != "origin" {
		t.Errorf("expected remote origin, got %q", cfg.Switch.Remote)
	}
	if cfg.Switch.GuardPolicy != "working-tree-and-upstream" {
		t.Errorf("unexpected guard policy %q", cfg.Switch.GuardPolicy)
	}
	if cfg.Switch.AutoPull != "Ask" || cfg.Switch.AutoReload != "Ask" {
		t.Errorf("expected Ask modes, got %q/%q", cfg.Switch.AutoPull, cfg.Switch.AutoReload)
	}
	if cfg.SettleDelay() != 1500*time.Millisecond {
		t.Errorf("expected settle delay 1.5s, got %v", cfg.SettleDelay())
	}
	if cfg.Switch.PullStrategy != "ff-only" {
		t.Errorf("expected pull strategy ff-only, got %q", cfg.Switch.PullStrategy)
	}
	if cfg.Prune.CutoffDays != 14 {
		t.Errorf("expected cutoff 14, got %d", cfg.Prune.CutoffDays)
	}
	if len(cfg.Prune.Protected) != 1 || cfg.Prune.Protected[0] != "^(main|master|develop)$" {
		t.Errorf("unexpected protected patterns %v", cfg.Prune.Protected)
	}
	if cfg.Prune.DryRun {
		t.Error("expected dry run off by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	// When no config file exists, Load should return defaults without error.
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Prune.CutoffDays != 14 {
		t.Errorf("expected default cutoff, got %d", cfg.Prune.CutoffDays)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	writeConfig(t, "   \n")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Switch.DefaultBranch != "master" {
		t.Errorf("expected defaults, got %q", cfg.Switch.DefaultBranch)
	}
}

func TestLoadFromFile(t *testing.T) {
	writeConfig(t, `projects_dir: /custom/path
exclude_patterns:
  - vendor
  - node_modules
workers: 6
command_timeout: 30s
switch:
  default_branch: main
  remote: upstream
  guard_policy: working-tree
  auto_pull: Always
  auto_reload: Never
  reload_command: make reload
  settle_delay_ms: 250
  pull_strategy: rebase
prune:
  cutoff_days: 30
  protected:
    - ^main$
    - ^release/
  dry_run: true
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ProjectsDir != "/custom/path" {
		t.Errorf("expected /custom/path, got %s", cfg.ProjectsDir)
	}
	if len(cfg.ExcludePatterns) != 2 {
		t.Errorf("expected 2 exclude patterns, got %d", len(cfg.ExcludePatterns))
	}
	if cfg.Workers != 6 {
		t.Errorf("expected workers 6, got %d", cfg.Workers)
	}
	if cfg.CommandTimeout != 30*time.Second {
		t.Errorf("expected command timeout 30s, got %v", cfg.CommandTimeout)
	}

	sw := cfg.Switch
	if sw.DefaultBranch != "main" || sw.Remote != "upstream" || sw.GuardPolicy != "working-tree" {
		t.Errorf("unexpected switch config %+v", sw)
	}
	if sw.AutoPull != "Always" || sw.AutoReload != "Never" || sw.ReloadCommand != "make reload" {
		t.Errorf("unexpected switch post actions %+v", sw)
	}
	if cfg.SettleDelay() != 250*time.Millisecond || sw.PullStrategy != "rebase" {
		t.Errorf("unexpected settle/pull config %+v", sw)
	}

	if cfg.Prune.CutoffDays != 30 || !cfg.Prune.DryRun || len(cfg.Prune.Protected) != 2 {
		t.Errorf("unexpected prune config %+v", cfg.Prune)
	}
}

func TestLoadFileExpandsHome(t *testing.T) {
	writeConfig(t, "projects_dir: ~/src\n")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	home, _ := os.UserHomeDir()
	if cfg.ProjectsDir != filepath.Join(home, "src") {
		t.Errorf("expected expanded home, got %s", cfg.ProjectsDir)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	writeConfig(t, "switch: [unclosed\n")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parsing config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("SOROTTE_PROJECTS_DIR", "/env/projects")
	t.Setenv("SOROTTE_WORKERS", "8")
	t.Setenv("SOROTTE_COMMAND_TIMEOUT", "2m")
	t.Setenv("SOROTTE_GITHUB_TOKEN", "ghp_test123")
	t.Setenv("SOROTTE_DEFAULT_BRANCH", "trunk")
	t.Setenv("SOROTTE_REMOTE", "fork")
	t.Setenv("SOROTTE_GUARD_POLICY", "working-tree")
	t.Setenv("SOROTTE_AUTO_PULL", "never")
	t.Setenv("SOROTTE_AUTO_RELOAD", "always")
	t.Setenv("SOROTTE_RELOAD_COMMAND", "touch .reload")
	t.Setenv("SOROTTE_SETTLE_DELAY_MS", "0")
	t.Setenv("SOROTTE_PULL_STRATEGY", "merge")
	t.Setenv("SOROTTE_PRUNE_CUTOFF_DAYS", "7")
	t.Setenv("SOROTTE_PRUNE_DRY_RUN", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ProjectsDir != "/env/projects" {
		t.Errorf("expected /env/projects, got %s", cfg.ProjectsDir)
	}
	if cfg.Workers != 8 {
		t.Errorf("expected workers 8, got %d", cfg.Workers)
	}
	if cfg.CommandTimeout != 2*time.Minute {
		t.Errorf("expected timeout 2m, got %v", cfg.CommandTimeout)
	}
	if cfg.GithubToken != "ghp_test123" {
		t.Errorf("expected ghp_test123, got %s", cfg.GithubToken)
	}
	want := SwitchConfig{
		DefaultBranch: "trunk",
		Remote:        "fork",
		GuardPolicy:   "working-tree",
		AutoPull:      "never",
		AutoReload:    "always",
		ReloadCommand: "touch .reload",
		SettleDelayMS: 0,
		PullStrategy:  "merge",
	}
	if cfg.Switch != want {
		t.Errorf("Switch = %+v, want %+v", cfg.Switch, want)
	}
	if cfg.Prune.CutoffDays != 7 || !cfg.Prune.DryRun {
		t.Errorf("unexpected prune config %+v", cfg.Prune)
	}
}

func TestEnvIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("SOROTTE_WORKERS", "lots")
	t.Setenv("SOROTTE_COMMAND_TIMEOUT", "-5s")
	t.Setenv("SOROTTE_PRUNE_CUTOFF_DAYS", "-1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	def := Defaults()
	if cfg.Workers != def.Workers || cfg.CommandTimeout != def.CommandTimeout || cfg.Prune.CutoffDays != def.Prune.CutoffDays {
		t.Errorf("malformed env values should be ignored, got %+v", cfg)
	}
}

func TestGithubTokenFallback(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("SOROTTE_GITHUB_TOKEN", "")
	t.Setenv("GITHUB_TOKEN", "from_github")
	t.Setenv("GH_TOKEN", "from_gh")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// GITHUB_TOKEN should take precedence over GH_TOKEN when SOROTTE_ is empty.
	if cfg.GithubToken != "from_github" {
		t.Errorf("expected from_github, got %s", cfg.GithubToken)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"guard policy", func(c *Config) { c.Switch.GuardPolicy = "yolo" }, "unknown guard policy"},
		{"auto pull", func(c *Config) { c.Switch.AutoPull = "sometimes" }, "switch.auto_pull"},
		{"auto reload", func(c *Config) { c.Switch.AutoReload = "maybe" }, "switch.auto_reload"},
		{"pull strategy", func(c *Config) { c.Switch.PullStrategy = "squash" }, "invalid pull strategy"},
		{"default branch", func(c *Config) { c.Switch.DefaultBranch = "" }, "default_branch"},
		{"cutoff", func(c *Config) { c.Prune.CutoffDays = -3 }, "cutoff_days"},
		{"timeout without unit", func(c *Config) { c.CommandTimeout = 60 }, "command_timeout"},
		{"negative timeout", func(c *Config) { c.CommandTimeout = -time.Second }, "command_timeout"},
		{"protected", func(c *Config) { c.Prune.Protected = []string{"(oops"} }, "invalid protection pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateAcceptsDisabledTimeout(t *testing.T) {
	cfg := Defaults()
	cfg.CommandTimeout = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("zero timeout should disable the limit, got %v", err)
	}
}

func TestLoadRejectsTimeoutWithoutUnit(t *testing.T) {
	writeConfig(t, "command_timeout: 60\n")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for a command_timeout without a unit")
	}
}

func TestInvalidValueFromEnv(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("SOROTTE_PULL_STRATEGY", "invalid")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid strategy from env, got nil")
	}
	if !strings.Contains(err.Error(), "invalid pull strategy") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	got := ExpandHome("~/projects")
	want := filepath.Join(home, "projects")
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}

	// Non-tilde paths should be unchanged.
	got = ExpandHome("/absolute/path")
	if got != "/absolute/path" {
		t.Errorf("expected /absolute/path, got %s", got)
	}
}
