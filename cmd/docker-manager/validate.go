package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/felden/docker-manager/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file without touching any host.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if configFile == "" {
			log.Error().Msg("config file is required")
			return cmd.Help()
		}

		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			log.Error().Str("file", configFile).Msg("config file not found")
			return fmt.Errorf("config file not found: %s", configFile)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Println("Configuration is valid!")
		fmt.Println()
		fmt.Println("Hosts:")
		hostNames := make([]string, 0, len(cfg.Hosts))
		for name := range cfg.Hosts {
			hostNames = append(hostNames, name)
		}
		sort.Strings(hostNames)
		for _, name := range hostNames {
			host := cfg.Hosts[name]
			fmt.Printf("  %s: %s (docker root %s)\n", name, host.Address, host.DockerRoot)
			if host.WOL != nil {
				fmt.Printf("    Wake-on-LAN: %s\n", host.WOL.MACAddress)
			}
		}
		fmt.Println()
		fmt.Println("Backup:")
		fmt.Printf("  Root: %s\n", cfg.Backup.Root)
		fmt.Printf("  Compression: %s -%d\n", cfg.Backup.Compression, cfg.Backup.CompressionLevel)
		fmt.Printf("  Default retention: %d\n", cfg.Backup.DefaultRetention)
		fmt.Printf("  Default schedule: %s\n", cfg.Backup.DefaultSchedule)
		fmt.Printf("  Default exclude patterns: %v\n", cfg.Backup.DefaultExcludePatterns)
		fmt.Println()
		fmt.Println("Update:")
		fmt.Printf("  Default behavior: %s\n", cfg.Update.DefaultBehavior)
		fmt.Printf("  On restart failure: %s\n", cfg.Update.OnRestartFailure)
		fmt.Println()
		fmt.Printf("Notifications: %v\n", cfg.Notifications.Enabled)

		if len(cfg.Projects) > 0 {
			fmt.Println()
			fmt.Println("Project Overrides:")
			projectNames := make([]string, 0, len(cfg.Projects))
			for name := range cfg.Projects {
				projectNames = append(projectNames, name)
			}
			sort.Strings(projectNames)
			for _, name := range projectNames {
				resolved, err := config.Resolve(cfg, name)
				if err != nil {
					return err
				}
				fmt.Printf("  %s: retention=%d schedule=%s behavior=%s\n",
					name, resolved.Retention, resolved.Schedule, resolved.Behavior)
			}
		}

		return nil
	},
}
