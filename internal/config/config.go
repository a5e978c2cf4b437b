// Package config handles loading and validating sorotte configuration
// from files, environment variables, and CLI flag overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/agrahamlincoln/sorotte/internal/guard"
	"github.com/agrahamlincoln/sorotte/internal/prune"
	"github.com/agrahamlincoln/sorotte/internal/switcher"
)

// SwitchConfig holds configuration for the switch and default commands.
type SwitchConfig struct {
	DefaultBranch string `yaml:"default_branch"`
	Remote        string `yaml:"remote"`
	GuardPolicy   string `yaml:"guard_policy"`  // "working-tree" or "working-tree-and-upstream"
	AutoPull      string `yaml:"auto_pull"`     // "Always", "Ask" or "Never"
	AutoReload    string `yaml:"auto_reload"`   // "Always", "Ask" or "Never"
	ReloadCommand string `yaml:"reload_command"` // run through the shell after a clean batch
	SettleDelayMS int    `yaml:"settle_delay_ms"`
	PullStrategy  string `yaml:"pull_strategy"` // "ff-only", "rebase" or "merge"
}

// PruneConfig holds configuration for the prune command.
type PruneConfig struct {
	CutoffDays int      `yaml:"cutoff_days"`
	Protected  []string `yaml:"protected"`
	DryRun     bool     `yaml:"dry_run"`
}

// Config holds all sorotte configuration.
type Config struct {
	ProjectsDir     string        `yaml:"projects_dir"`
	ExcludePatterns []string      `yaml:"exclude_patterns"`
	Workers         int           `yaml:"workers"`
	CommandTimeout  time.Duration `yaml:"command_timeout"`
	GithubToken     string        `yaml:"github_token"`
	Switch          SwitchConfig  `yaml:"switch"`
	Prune           PruneConfig   `yaml:"prune"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	home, _ := os.UserHomeDir()
	return Config{
		ProjectsDir:     filepath.Join(home, "projects"),
		ExcludePatterns: []string{".archive", "vendor", "node_modules"},
		Workers:         1,
		CommandTimeout:  60 * time.Second,
		Switch: SwitchConfig{
			DefaultBranch: "master",
			Remote:        "origin",
			GuardPolicy:   guard.WorkingTreeAndUpstream.String(),
			AutoPull:      switcher.Ask.String(),
			AutoReload:    switcher.Ask.String(),
			SettleDelayMS: 1500,
			PullStrategy:  "ff-only",
		},
		Prune: PruneConfig{
			CutoffDays: 14,
			Protected:  []string{prune.DefaultProtected},
		},
	}
}

// Load reads configuration from the config file and environment variables.
// Values are layered: defaults < config file < environment variables.
func Load() (Config, error) {
	cfg := Defaults()
	if err := loadFile(&cfg, configPath()); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

// Validate checks values that cannot be corrected silently.
func (c Config) Validate() error {
	if _, err := guard.ParsePolicy(c.Switch.GuardPolicy); err != nil {
		return err
	}
	if _, err := switcher.ParseMode(c.Switch.AutoPull); err != nil {
		return fmt.Errorf("switch.auto_pull: %w", err)
	}
	if _, err := switcher.ParseMode(c.Switch.AutoReload); err != nil {
		return fmt.Errorf("switch.auto_reload: %w", err)
	}
	if !isValidStrategy(c.Switch.PullStrategy) {
		return fmt.Errorf("invalid pull strategy %q (valid: ff-only, rebase, merge)", c.Switch.PullStrategy)
	}
	// A bare number in YAML decodes as nanoseconds; zero disables the timeout.
	if c.CommandTimeout < 0 || (c.CommandTimeout > 0 && c.CommandTimeout < minCommandTimeout) {
		return fmt.Errorf("command_timeout must be at least %v or 0 to disable, got %v (durations need a unit, e.g. 60s)", minCommandTimeout, c.CommandTimeout)
	}
	if c.Switch.DefaultBranch == "" {
		return fmt.Errorf("switch.default_branch must not be empty")
	}
	if c.Prune.CutoffDays < 0 {
		return fmt.Errorf("prune.cutoff_days must not be negative, got %d", c.Prune.CutoffDays)
	}
	for _, p := range c.Prune.Protected {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("invalid protection pattern %q: %w", p, err)
		}
	}
	return nil
}

const minCommandTimeout = time.Second

// SettleDelay returns the post-pull settle delay.
func (c Config) SettleDelay() time.Duration {
	return time.Duration(c.Switch.SettleDelayMS) * time.Millisecond
}

func isValidStrategy(s string) bool {
	switch s {
	case "rebase", "merge", "ff-only":
		return true
	}
	return false
}

// configPath returns the path to the config file.
func configPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sorotte", "config.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "sorotte", "config.yaml")
}

func loadFile(cfg *Config, path string) error {
	path = filepath.Clean(path)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil // no config file is fine
	}
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.ProjectsDir = ExpandHome(cfg.ProjectsDir)
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SOROTTE_PROJECTS_DIR"); v != "" {
		cfg.ProjectsDir = ExpandHome(v)
	}
	if v := os.Getenv("SOROTTE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("SOROTTE_COMMAND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.CommandTimeout = d
		}
	}
	if v := os.Getenv("SOROTTE_GITHUB_TOKEN"); v != "" {
		cfg.GithubToken = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" && cfg.GithubToken == "" {
		cfg.GithubToken = v
	}
	if v := os.Getenv("GH_TOKEN"); v != "" && cfg.GithubToken == "" {
		cfg.GithubToken = v
	}
	if v := os.Getenv("SOROTTE_DEFAULT_BRANCH"); v != "" {
		cfg.Switch.DefaultBranch = v
	}
	if v := os.Getenv("SOROTTE_REMOTE"); v != "" {
		cfg.Switch.Remote = v
	}
	if v := os.Getenv("SOROTTE_GUARD_POLICY"); v != "" {
		cfg.Switch.GuardPolicy = v
	}
	if v := os.Getenv("SOROTTE_AUTO_PULL"); v != "" {
		cfg.Switch.AutoPull = v
	}
	if v := os.Getenv("SOROTTE_AUTO_RELOAD"); v != "" {
		cfg.Switch.AutoReload = v
	}
	if v := os.Getenv("SOROTTE_RELOAD_COMMAND"); v != "" {
		cfg.Switch.ReloadCommand = v
	}
	if v := os.Getenv("SOROTTE_SETTLE_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Switch.SettleDelayMS = n
		}
	}
	if v := os.Getenv("SOROTTE_PULL_STRATEGY"); v != "" {
		cfg.Switch.PullStrategy = v
	}
	if v := os.Getenv("SOROTTE_PRUNE_CUTOFF_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days >= 0 {
			cfg.Prune.CutoffDays = days
		}
	}
	if v := os.Getenv("SOROTTE_PRUNE_DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Prune.DryRun = b
		}
	}
}

// ExpandHome replaces a leading ~/ in path with the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
