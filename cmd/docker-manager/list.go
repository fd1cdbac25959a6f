package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/felden/docker-manager/internal/config"
	"github.com/felden/docker-manager/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var listHost string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all discovered projects",
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
		all, err := runnerSvc.Discover(context.Background(), cfg, listHost)
		if err != nil {
			return err
		}

		hosts := make([]string, 0, len(all))
		for host := range all {
			hosts = append(hosts, host)
		}
		sort.Strings(hosts)

		fmt.Println("\nDiscovered Projects:")
		for _, host := range hosts {
			fmt.Printf("\n%s:\n", host)
			for _, project := range all[host] {
				fmt.Printf("  - %s (%s)\n", project.Name, project.Path)
			}
		}
		fmt.Println()
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listHost, "host", "", "target a specific host")
}
