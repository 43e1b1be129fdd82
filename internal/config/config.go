// Package config resolves all runtime settings once, at startup, into an
// immutable Config that gets passed into every component. Nothing below cmd/
// reads viper or the environment directly.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/bgdnvk/patchloop/internal/classify"
)

// Config is the full configuration surface of the tool.
type Config struct {
	RepoPath string
	ProdURL  string

	GitRemote string
	GitBranch string

	VercelToken  string
	VercelTeamID string

	GitHubToken string
	GitHubOwner string
	GitHubRepo  string

	// AgentKind selects the fix-agent variant: oneshot, piped or gemini.
	AgentKind string
	// AgentCommand is the piped variant's command line.
	AgentCommand []string
	GeminiAPIKey string
	GeminiModel  string

	MaxIterations  int
	SleepAfterPush time.Duration
	AgentTimeout   time.Duration

	HistoryPath string
	Markers     classify.Markers

	DryRun bool
	Debug  bool
}

// Defaults mirrored from the original operator workflow.
const (
	DefaultMaxIterations  = 10
	DefaultSleepAfterPush = 90 * time.Second
	DefaultAgentTimeout   = 20 * time.Minute
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("git.remote", "origin")
	v.SetDefault("git.branch", "main")
	v.SetDefault("agent.kind", "piped")
	v.SetDefault("agent.command", []string{"echo", "NO_CHANGES"})
	v.SetDefault("loop.max_iterations", DefaultMaxIterations)
	v.SetDefault("loop.sleep_after_push", DefaultSleepAfterPush)
	v.SetDefault("agent.timeout", DefaultAgentTimeout)
}

// Load builds the Config from the given viper instance (flags > env > config
// file > defaults) and validates it.
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	cfg := &Config{
		RepoPath:       v.GetString("repo_path"),
		ProdURL:        v.GetString("prod_url"),
		GitRemote:      v.GetString("git.remote"),
		GitBranch:      v.GetString("git.branch"),
		VercelToken:    v.GetString("vercel.token"),
		VercelTeamID:   v.GetString("vercel.team_id"),
		GitHubToken:    v.GetString("github.token"),
		GitHubOwner:    v.GetString("github.owner"),
		GitHubRepo:     v.GetString("github.repo"),
		AgentKind:      v.GetString("agent.kind"),
		AgentCommand:   v.GetStringSlice("agent.command"),
		GeminiAPIKey:   v.GetString("agent.gemini_api_key"),
		GeminiModel:    v.GetString("agent.gemini_model"),
		MaxIterations:  v.GetInt("loop.max_iterations"),
		SleepAfterPush: v.GetDuration("loop.sleep_after_push"),
		AgentTimeout:   v.GetDuration("agent.timeout"),
		HistoryPath:    v.GetString("history.path"),
		DryRun:         v.GetBool("dry_run"),
		Debug:          v.GetBool("debug"),
	}

	if cfg.RepoPath == "" {
		cfg.RepoPath = "."
	}
	abs, err := filepath.Abs(cfg.RepoPath)
	if err != nil {
		return nil, fmt.Errorf("config: resolve repo path: %w", err)
	}
	cfg.RepoPath = abs

	cfg.Markers = classify.DefaultMarkers()
	if path := v.GetString("classify.markers_file"); path != "" {
		markers, err := classify.LoadMarkers(path)
		if err != nil {
			return nil, err
		}
		cfg.Markers = markers
	}

	if cfg.HistoryPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.HistoryPath = filepath.Join(home, ".patchloop", "history.db")
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	info, err := os.Stat(c.RepoPath)
	if err != nil {
		return fmt.Errorf("config: repo path %s: %w", c.RepoPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("config: repo path %s is not a directory", c.RepoPath)
	}
	if _, err := os.Stat(filepath.Join(c.RepoPath, ".git")); err != nil {
		return fmt.Errorf("config: repo path %s is not a git work tree", c.RepoPath)
	}

	switch c.AgentKind {
	case "oneshot", "piped", "gemini":
	default:
		return fmt.Errorf("config: unknown agent kind %q (want oneshot, piped or gemini)", c.AgentKind)
	}
	if c.AgentKind == "piped" && len(c.AgentCommand) == 0 {
		return fmt.Errorf("config: piped agent requires agent.command")
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("config: loop.max_iterations must be positive")
	}
	return nil
}
