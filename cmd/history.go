package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bgdnvk/patchloop/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded auto-fix runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := history.Open(cfg.HistoryPath)
		if err != nil {
			return err
		}
		defer store.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := store.Runs(limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded yet.")
			return nil
		}
		for _, r := range runs {
			fmt.Printf("%s  %s  branch=%s  iterations=%d  stop=%s\n",
				r.ID, r.StartedAt.Format("2006-01-02 15:04"), r.Branch, r.Iterations, orDash(r.StopReason))
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the iterations of one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := history.Open(cfg.HistoryPath)
		if err != nil {
			return err
		}
		defer store.Close()

		its, err := store.RunIterations(args[0])
		if err != nil {
			return err
		}
		if len(its) == 0 {
			fmt.Println("No iterations recorded for that run.")
			return nil
		}
		for _, it := range its {
			fmt.Printf("#%d  deployment=%s  clean=%v  agent_changed=%v  pushed=%v\n",
				it.N, orDash(it.DeploymentID), it.ClassifiedOK, it.AgentChanged, it.Pushed)
		}
		return nil
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.Flags().Int("limit", 20, "maximum number of runs to list")
}
