package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/felden/docker-manager/internal/config"
	"github.com/felden/docker-manager/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	runForce bool
	runHost  string
)

var runCmd = &cobra.Command{
	Use:   "run [project]",
	Short: "Run scheduled backup and update operations",
	Long: `Run the scheduled workflow for every selected (host, project) pair:
1. Discover compose projects under each host's docker root
2. Back up projects whose schedule says they are due
3. Enforce keep-last-N retention after each successful backup
4. Pull images and recreate containers per the project's behavior
5. Prune the remaining artifact groups on each host
6. Send summary notifications (if configured)

An optional project name restricts the run to that project.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sel := runner.Selection{
			Host:      runHost,
			Force:     runForce,
			Operation: runner.OperationAll,
		}
		if len(args) > 0 && args[0] != "all" {
			sel.Project = args[0]
		}
		return executeRun(sel)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runForce, "force", false, "run regardless of schedule")
	runCmd.Flags().StringVar(&runHost, "host", "", "target a specific host")
}

// executeRun is shared by run, backup and update.
func executeRun(sel runner.Selection) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.LoadKey(cfg); err != nil {
		log.Error().Err(err).Msg("failed to load ssh key")
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("received signal, finishing in-flight work")
		cancel()
	}()

	runnerSvc := runner.New(log.Logger)
	summary, err := runnerSvc.Run(ctx, cfg, sel)
	if err != nil {
		log.Error().Err(err).Msg("run failed")
		return err
	}

	for _, item := range summary.Items {
		if item.Err != nil {
			log.Error().
				Str("host", item.Host).
				Str("project", item.Project).
				Err(item.Err).
				Msg("item failed")
		}
	}

	if failed := summary.Failed(); failed > 0 {
		return fmt.Errorf("%d item(s) failed", failed)
	}

	log.Info().Msg("all items completed successfully")
	return nil
}
