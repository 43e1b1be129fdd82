package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bgdnvk/patchloop/internal/shell"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Correlate the current commit to a deployment and show the match",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logf := func(format string, args ...any) {
			if cfg.Debug {
				consoleLogf(format, args...)
			}
		}

		deps, _ := buildSource(cfg, shell.Exec{}, logf)
		head, match, err := deps.Resolve(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Commit:     %s (%s)\n", head.Short, head.Full)
		if match == nil {
			fmt.Println("Deployment: no match found")
			return nil
		}
		fmt.Printf("Deployment: %s\n", match.DeploymentID)
		fmt.Printf("Matched by: %s\n", match.Source)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
