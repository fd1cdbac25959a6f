package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/felden/docker-manager/internal/config"
	"github.com/felden/docker-manager/internal/services/notify"
	"github.com/felden/docker-manager/internal/services/ssh"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var testSSHCmd = &cobra.Command{
	Use:   "test-ssh",
	Short: "Test SSH connectivity to all hosts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := config.LoadKey(cfg); err != nil {
			log.Error().Err(err).Msg("failed to load ssh key")
			return err
		}

		executor := ssh.New(log.Logger)
		ctx := context.Background()

		names := make([]string, 0, len(cfg.Hosts))
		for name := range cfg.Hosts {
			names = append(names, name)
		}
		sort.Strings(names)

		failed := 0
		for _, name := range names {
			host := cfg.Hosts[name]
			outcome, err := executor.TestConnection(ctx, host, cfg.SSH)
			switch {
			case err != nil:
				log.Error().Err(err).Str("host", name).Str("addr", host.Address).Msg("connection failed")
				failed++
			case strings.TrimSpace(outcome.Stdout) != "SSH OK":
				log.Error().Str("host", name).Str("addr", host.Address).Msg("unexpected response")
				failed++
			default:
				log.Info().Str("host", name).Str("addr", host.Address).Msg("connected")
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d host(s) unreachable", failed)
		}
		return nil
	},
}

var testNotifyCmd = &cobra.Command{
	Use:   "test-notify",
	Short: "Send a test notification",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !cfg.Notifications.Enabled {
			return fmt.Errorf("notifications are not enabled in the configuration")
		}

		notifySvc := notify.New(log.Logger)
		result, err := notifySvc.SendTest(context.Background(), cfg.Notifications.Ntfy)
		if err != nil {
			return err
		}
		if result.Error != nil {
			return result.Error
		}

		log.Info().Msg("test notification sent")
		return nil
	},
}
