// Package config provides configuration file parsing and per-project resolution.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/felden/docker-manager/internal/models"
	"github.com/spf13/viper"
)

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.GlobalConfig, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, models.NewConfigError("reading config file: %v", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a string (useful for testing).
func (p *Parser) LoadReader(content string) (*models.GlobalConfig, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, models.NewConfigError("reading config: %v", err)
	}

	return p.parse()
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.GlobalConfig, error) {
	cfg := &models.GlobalConfig{}

	// Parse hosts (required).
	cfg.Hosts = make(map[string]models.HostConfig)
	for name := range p.v.GetStringMap("global.hosts") {
		key := "global.hosts." + name

		host := models.HostConfig{
			Name:       name,
			Address:    p.v.GetString(key + ".address"),
			DockerRoot: p.v.GetString(key + ".docker_root"),
		}
		if host.Address == "" {
			// The original config format called this field "ip".
			host.Address = p.v.GetString(key + ".ip")
		}
		if host.Address == "" {
			return nil, models.NewConfigError("host %s: address is required", name)
		}
		if host.DockerRoot == "" {
			return nil, models.NewConfigError("host %s: docker_root is required", name)
		}

		if p.v.IsSet(key + ".wol") {
			host.WOL = &models.WOLConfig{
				MACAddress:    p.v.GetString(key + ".wol.mac_address"),
				BroadcastIP:   p.v.GetString(key + ".wol.broadcast_ip"),
				StabilizeWait: p.v.GetDuration(key + ".wol.stabilize_wait"),
			}
			if host.WOL.MACAddress == "" {
				return nil, models.NewConfigError("host %s: wol.mac_address is required when wol is configured", name)
			}
			if host.WOL.BroadcastIP == "" {
				host.WOL.BroadcastIP = "255.255.255.255"
			}
			if host.WOL.StabilizeWait == 0 {
				host.WOL.StabilizeWait = 15 * time.Second
			}
		}

		cfg.Hosts[name] = host
	}
	if len(cfg.Hosts) == 0 {
		return nil, models.NewConfigError("global.hosts is required")
	}

	// Parse SSH settings.
	cfg.SSH = models.SSHSettings{
		Username:       p.v.GetString("global.ssh.username"),
		KeyPath:        expandEnv(p.v.GetString("global.ssh.key_path")),
		Port:           p.v.GetInt("global.ssh.port"),
		ConnectTimeout: p.v.GetDuration("global.ssh.connect_timeout"),
		CommandTimeout: p.v.GetDuration("global.ssh.command_timeout"),
	}
	if cfg.SSH.Username == "" {
		cfg.SSH.Username = "root"
	}
	if cfg.SSH.KeyPath == "" {
		return nil, models.NewConfigError("global.ssh.key_path is required")
	}
	if cfg.SSH.Port == 0 {
		cfg.SSH.Port = 22
	}
	if cfg.SSH.ConnectTimeout == 0 {
		cfg.SSH.ConnectTimeout = 10 * time.Second
	}
	if cfg.SSH.CommandTimeout == 0 {
		cfg.SSH.CommandTimeout = 30 * time.Minute
	}

	// Parse backup settings.
	cfg.Backup = models.BackupSettings{
		Root:                   p.v.GetString("global.backup.root"),
		Compression:            p.v.GetString("global.backup.compression"),
		CompressionLevel:       p.v.GetInt("global.backup.compression_level"),
		DefaultRetention:       p.v.GetInt("global.backup.default_retention"),
		DefaultSchedule:        models.Schedule(p.v.GetString("global.backup.default_schedule")),
		DefaultExcludePatterns: p.v.GetStringSlice("global.backup.default_exclude_patterns"),
	}
	if cfg.Backup.Root == "" {
		return nil, models.NewConfigError("global.backup.root is required")
	}
	if cfg.Backup.Compression == "" {
		cfg.Backup.Compression = "pigz"
	}
	if cfg.Backup.Compression != "pigz" && cfg.Backup.Compression != "gzip" {
		return nil, models.NewConfigError("global.backup.compression must be one of: pigz, gzip")
	}
	if cfg.Backup.CompressionLevel == 0 {
		cfg.Backup.CompressionLevel = 6
	}
	if cfg.Backup.CompressionLevel < 1 || cfg.Backup.CompressionLevel > 9 {
		return nil, models.NewConfigError("global.backup.compression_level must be between 1 and 9")
	}
	if cfg.Backup.DefaultRetention == 0 {
		cfg.Backup.DefaultRetention = 4
	}
	if cfg.Backup.DefaultRetention < 1 {
		return nil, models.NewConfigError("global.backup.default_retention must be >= 1")
	}
	if cfg.Backup.DefaultSchedule == "" {
		cfg.Backup.DefaultSchedule = models.ScheduleDaily
	}
	if !cfg.Backup.DefaultSchedule.Valid() {
		return nil, models.NewConfigError("global.backup.default_schedule must be one of: daily, weekly, biweekly, monthly")
	}

	// Parse update settings.
	cfg.Update = models.UpdateSettings{
		DefaultBehavior:  models.Behavior(p.v.GetString("global.update.default_behavior")),
		OnRestartFailure: p.v.GetString("global.update.on_restart_failure"),
	}
	if cfg.Update.DefaultBehavior == "" {
		cfg.Update.DefaultBehavior = models.BehaviorBackupThenUpdate
	}
	if !cfg.Update.DefaultBehavior.Valid() {
		return nil, models.NewConfigError("global.update.default_behavior must be one of: backup_then_update, backup_only, update_only")
	}
	if cfg.Update.OnRestartFailure == "" {
		cfg.Update.OnRestartFailure = "proceed"
	}
	if cfg.Update.OnRestartFailure != "proceed" && cfg.Update.OnRestartFailure != "skip" {
		return nil, models.NewConfigError("global.update.on_restart_failure must be one of: proceed, skip")
	}

	// Parse concurrency settings.
	cfg.Concurrency = models.ConcurrencySettings{
		MaxHosts: p.v.GetInt("global.concurrency.max_hosts"),
	}
	if cfg.Concurrency.MaxHosts == 0 {
		cfg.Concurrency.MaxHosts = 4
	}
	if cfg.Concurrency.MaxHosts < 1 {
		return nil, models.NewConfigError("global.concurrency.max_hosts must be >= 1")
	}

	// Parse notification settings.
	cfg.Notifications = models.NotifySettings{
		Enabled:  p.v.GetBool("global.notifications.enabled"),
		Provider: p.v.GetString("global.notifications.provider"),
	}
	if cfg.Notifications.Enabled {
		if cfg.Notifications.Provider == "" {
			cfg.Notifications.Provider = "ntfy"
		}
		if cfg.Notifications.Provider != "ntfy" {
			return nil, models.NewConfigError("global.notifications.provider must be: ntfy")
		}
		cfg.Notifications.Ntfy = models.NtfyConfig{
			Server:   p.v.GetString("global.notifications.ntfy.server"),
			Topic:    p.v.GetString("global.notifications.ntfy.topic"),
			Username: expandEnv(p.v.GetString("global.notifications.ntfy.username")),
			Password: expandEnv(p.v.GetString("global.notifications.ntfy.password")),
		}
		if cfg.Notifications.Ntfy.Server == "" {
			return nil, models.NewConfigError("global.notifications.ntfy.server is required when notifications are enabled")
		}
		if cfg.Notifications.Ntfy.Topic == "" {
			return nil, models.NewConfigError("global.notifications.ntfy.topic is required when notifications are enabled")
		}
	}

	// Parse project overrides.
	cfg.Projects = make(map[string]models.ProjectOverride)
	for name := range p.v.GetStringMap("projects") {
		key := "projects." + name

		override := models.ProjectOverride{
			Host:            p.v.GetString(key + ".host"),
			Schedule:        p.v.GetString(key + ".schedule"),
			Behavior:        p.v.GetString(key + ".behavior"),
			ExcludeVolumes:  p.v.GetStringSlice(key + ".exclude_volumes"),
			ExcludePatterns: p.v.GetStringSlice(key + ".exclude_patterns"),
		}
		if p.v.IsSet(key + ".retention") {
			retention := p.v.GetInt(key + ".retention")
			override.Retention = &retention
		}
		if p.v.IsSet(key + ".backup_compose") {
			backupCompose := p.v.GetBool(key + ".backup_compose")
			override.BackupCompose = &backupCompose
		}

		cfg.Projects[name] = override
	}

	// Fail fast on invalid overrides instead of surfacing mid-run.
	for name := range cfg.Projects {
		if _, err := Resolve(cfg, name); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.GlobalConfig) error {
	if cfg == nil {
		return models.NewConfigError("configuration is nil")
	}
	if len(cfg.Hosts) == 0 {
		return models.NewConfigError("global.hosts is required")
	}
	if cfg.Backup.Root == "" {
		return models.NewConfigError("global.backup.root is required")
	}
	if cfg.SSH.KeyPath == "" {
		return models.NewConfigError("global.ssh.key_path is required")
	}
	for name := range cfg.Projects {
		if _, err := Resolve(cfg, name); err != nil {
			return err
		}
	}
	return nil
}

// LoadKey reads the SSH private key referenced by the configuration.
func LoadKey(cfg *models.GlobalConfig) error {
	key, err := os.ReadFile(cfg.SSH.KeyPath)
	if err != nil {
		return models.NewConfigError("reading ssh key %s: %v", cfg.SSH.KeyPath, err)
	}
	cfg.SSH.PrivateKey = key
	return nil
}
