package main

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/felden/docker-manager/internal/config"
	"github.com/felden/docker-manager/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old backups per the retention policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := config.LoadKey(cfg); err != nil {
			log.Error().Err(err).Msg("failed to load ssh key")
			return err
		}

		runnerSvc := runner.New(log.Logger)
		freed, removed, err := runnerSvc.Cleanup(context.Background(), cfg)
		if err != nil {
			log.Error().Err(err).Msg("cleanup finished with errors")
			return err
		}

		if removed > 0 {
			log.Info().
				Int("removed", removed).
				Str("freed", humanize.Bytes(uint64(freed))).
				Msg("cleanup complete")
		} else {
			log.Info().Msg("no old backups to remove")
		}
		return nil
	},
}
