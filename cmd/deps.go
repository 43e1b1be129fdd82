package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/bgdnvk/patchloop/internal/config"
	"github.com/bgdnvk/patchloop/internal/fixer"
	"github.com/bgdnvk/patchloop/internal/github"
	"github.com/bgdnvk/patchloop/internal/gitrepo"
	"github.com/bgdnvk/patchloop/internal/shell"
	"github.com/bgdnvk/patchloop/internal/source"
	"github.com/bgdnvk/patchloop/internal/vercel"
)

func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

func consoleLogf(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

// buildSource wires the correlation pipeline: git HEAD, the optional GitHub
// deployments index, and the Vercel CLI client.
func buildSource(cfg *config.Config, runner shell.Runner, logf func(string, ...any)) (*source.Deployments, *gitrepo.Repo) {
	repo := gitrepo.New(cfg.RepoPath, runner)

	vc := &vercel.Client{
		Dir:    cfg.RepoPath,
		Runner: runner,
		Token:  cfg.VercelToken,
		TeamID: cfg.VercelTeamID,
		Logf:   logf,
	}

	deps := &source.Deployments{
		Repo:   repo,
		Vercel: vc,
		Logf:   logf,
	}
	if cfg.GitHubToken != "" && cfg.GitHubOwner != "" && cfg.GitHubRepo != "" {
		deps.Index = github.NewClient(cfg.GitHubToken, cfg.GitHubOwner, cfg.GitHubRepo)
	}
	return deps, repo
}

// buildAgent selects the fix-agent variant from configuration. The choice is
// made here, once, at construction; callers never branch on the kind again.
func buildAgent(ctx context.Context, cfg *config.Config, runner shell.Runner, logf func(string, ...any)) (fixer.Agent, error) {
	switch cfg.AgentKind {
	case "oneshot":
		return &fixer.OneShot{
			Dir:     cfg.RepoPath,
			Runner:  runner,
			Timeout: cfg.AgentTimeout,
			Logf:    logf,
		}, nil
	case "piped":
		return &fixer.Piped{
			Dir:     cfg.RepoPath,
			Command: cfg.AgentCommand,
			Runner:  runner,
			Timeout: cfg.AgentTimeout,
			Logf:    logf,
		}, nil
	case "gemini":
		return fixer.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.RepoPath, logf)
	default:
		return nil, fmt.Errorf("unknown agent kind %q", cfg.AgentKind)
	}
}
