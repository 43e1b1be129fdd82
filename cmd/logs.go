package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bgdnvk/patchloop/internal/shell"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Fetch the current commit's build logs and classify them",
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
		depID, logs, err := deps.Logs(cmd.Context())
		if err != nil {
			return err
		}
		if logs == "" {
			fmt.Println("No logs found for the current commit's deployment.")
			return nil
		}

		fmt.Print(logs)
		if cfg.Markers.Successful(logs) {
			fmt.Printf("\n[classify] deployment %s: build looks successful\n", depID)
		} else {
			fmt.Printf("\n[classify] deployment %s: build looks failed\n", depID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
}
