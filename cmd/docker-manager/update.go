package main

import (
	"github.com/felden/docker-manager/internal/services/runner"
	"github.com/spf13/cobra"
)

var updateHost string

var updateCmd = &cobra.Command{
	Use:   "update [target]",
	Short: "Check for and apply image updates",
	Long: `Pull images for the targeted projects and recreate containers whose
digests changed. The target is a project name or "all" (the default).
Projects configured backup_only are skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sel := runner.Selection{
			Host:      updateHost,
			Force:     true,
			Operation: runner.OperationUpdate,
		}
		if len(args) > 0 && args[0] != "all" {
			sel.Project = args[0]
		}
		return executeRun(sel)
	},
}

func init() {
	updateCmd.Flags().StringVar(&updateHost, "host", "", "target a specific host")
}
