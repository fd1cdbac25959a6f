package main

import (
	"github.com/felden/docker-manager/internal/services/runner"
	"github.com/spf13/cobra"
)

var backupHost string

var backupCmd = &cobra.Command{
	Use:   "backup [target]",
	Short: "Back up projects immediately, regardless of schedule",
	Long: `Back up the targeted projects now. The target is a project name or
"all" (the default). Updates configured via backup_then_update do not run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sel := runner.Selection{
			Host:      backupHost,
			Force:     true,
			Operation: runner.OperationBackup,
		}
		if len(args) > 0 && args[0] != "all" {
			sel.Project = args[0]
		}
		return executeRun(sel)
	},
}

func init() {
	backupCmd.Flags().StringVar(&backupHost, "host", "", "target a specific host")
}
