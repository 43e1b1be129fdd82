package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bgdnvk/patchloop/internal/fixer"
	"github.com/bgdnvk/patchloop/internal/history"
	"github.com/bgdnvk/patchloop/internal/loop"
	"github.com/bgdnvk/patchloop/internal/shell"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the watch → fix → push loop until the build is clean",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		logf := consoleLogf

		logf("[start] patchloop auto-fix loop")
		logf("Repo:   %s", cfg.RepoPath)
		logf("Branch: %s", cfg.GitBranch)
		if cfg.ProdURL != "" {
			logf("URL:    %s", cfg.ProdURL)
		}
		logf("Agent:  %s", cfg.AgentKind)

		runner := shell.Exec{}
		deps, repo := buildSource(cfg, runner, logf)

		agent, err := buildAgent(ctx, cfg, runner, logf)
		if err != nil {
			return err
		}
		invoker := &fixer.Invoker{
			Agent: agent,
			Tree:  repo,
			Dir:   cfg.RepoPath,
			Logf:  logf,
		}

		publisher := &gitPublisher{
			repo:   repo,
			remote: cfg.GitRemote,
			branch: cfg.GitBranch,
			dryRun: cfg.DryRun,
			logf:   logf,
		}

		controller := &loop.Controller{
			MaxIterations: cfg.MaxIterations,
			Sleep:         cfg.SleepAfterPush,
			Source:        deps,
			Classify:      cfg.Markers.Successful,
			Fixer:         invoker,
			Publisher:     publisher,
			Logf:          logf,
		}

		// Run history is an operator convenience; losing it never stops the
		// loop.
		var finish func(loop.Outcome)
		if store, err := history.Open(cfg.HistoryPath); err != nil {
			logf("[warn] run history disabled: %v", err)
		} else {
			defer store.Close()
			runID, err := store.StartRun(cfg.RepoPath, cfg.GitBranch)
			if err != nil {
				logf("[warn] run history disabled: %v", err)
			} else {
				controller.Record = func(rec loop.IterationRecord) {
					if err := store.RecordIteration(history.Iteration{
						RunID:        runID,
						N:            rec.N,
						DeploymentID: rec.DeploymentID,
						ClassifiedOK: rec.ClassifiedOK,
						AgentChanged: rec.AgentChanged,
						Pushed:       rec.Pushed,
					}); err != nil && cfg.Debug {
						logf("[warn] record iteration: %v", err)
					}
				}
				finish = func(outcome loop.Outcome) {
					if err := store.FinishRun(runID, string(outcome.Reason), outcome.Iterations); err != nil && cfg.Debug {
						logf("[warn] finish run: %v", err)
					}
				}
			}
		}

		outcome, runErr := controller.Run(ctx)
		if finish != nil {
			finish(outcome)
		}
		if runErr != nil {
			return runErr
		}
		logf("[done] stopped after %d iteration(s): %s", outcome.Iterations, outcome.Reason)
		return nil
	},
}

// gitPublisher adapts gitrepo.Repo to the loop's Publisher interface.
type gitPublisher struct {
	repo interface {
		CommitAndPush(ctx context.Context, remote, branch string) (bool, error)
	}
	remote string
	branch string
	dryRun bool
	logf   func(format string, args ...any)
}

func (p *gitPublisher) Publish(ctx context.Context) (bool, error) {
	if p.dryRun {
		p.logf("[publish] dry run, leaving changes uncommitted")
		return false, nil
	}
	p.logf("[publish] git add/commit/push...")
	pushed, err := p.repo.CommitAndPush(ctx, p.remote, p.branch)
	if err != nil {
		return false, err
	}
	if !pushed {
		p.logf("[publish] nothing to commit, skipping push")
		return false, nil
	}
	p.logf("[publish] push completed")
	return true, nil
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Int("max-iterations", 0, "maximum fetch-classify-fix-publish cycles (default 10)")
	runCmd.Flags().Duration("sleep", 0, "delay between iterations while the platform rebuilds (default 90s)")
	runCmd.Flags().String("agent", "", "fix agent variant: oneshot, piped or gemini")
	runCmd.Flags().StringSlice("agent-command", nil, "piped agent command line")
	runCmd.Flags().String("remote", "", "git remote to push to (default origin)")
	runCmd.Flags().String("branch", "", "git branch to push (default main)")
	runCmd.Flags().Duration("timeout", 0, "hard timeout for one agent invocation (default 20m)")
	runCmd.Flags().Bool("dry-run", false, "run the agent but skip commit and push")

	viper.BindPFlag("loop.max_iterations", runCmd.Flags().Lookup("max-iterations"))
	viper.BindPFlag("loop.sleep_after_push", runCmd.Flags().Lookup("sleep"))
	viper.BindPFlag("agent.kind", runCmd.Flags().Lookup("agent"))
	viper.BindPFlag("agent.command", runCmd.Flags().Lookup("agent-command"))
	viper.BindPFlag("git.remote", runCmd.Flags().Lookup("remote"))
	viper.BindPFlag("git.branch", runCmd.Flags().Lookup("branch"))
	viper.BindPFlag("agent.timeout", runCmd.Flags().Lookup("timeout"))
	viper.BindPFlag("dry_run", runCmd.Flags().Lookup("dry-run"))
}
