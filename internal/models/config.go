// Package models contains the data structures used throughout docker-manager.
package models

import "time"

// GlobalConfig holds the complete configuration for a run.
type GlobalConfig struct {
	Hosts         map[string]HostConfig
	SSH           SSHSettings
	Backup        BackupSettings
	Update        UpdateSettings
	Concurrency   ConcurrencySettings
	Notifications NotifySettings
	Projects      map[string]ProjectOverride
}

// HostConfig describes one remote Docker host.
type HostConfig struct {
	Name       string
	Address    string
	DockerRoot string
	WOL        *WOLConfig // nil if not configured
}

// SSHSettings holds the remote-command channel configuration, shared by all hosts.
type SSHSettings struct {
	Username       string
	KeyPath        string
	PrivateKey     []byte // loaded from KeyPath
	Port           int
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
}

// BackupSettings holds the global backup defaults.
type BackupSettings struct {
	Root                   string // shared backup root, mounted on every host
	Compression            string // "pigz" or "gzip"
	CompressionLevel       int
	DefaultRetention       int
	DefaultSchedule        Schedule
	DefaultExcludePatterns []string
}

// UpdateSettings holds the global update defaults.
type UpdateSettings struct {
	DefaultBehavior Behavior
	// OnRestartFailure decides whether backup_then_update still runs the
	// update step after the post-backup restart failed: "proceed" or "skip".
	OnRestartFailure string
}

// ConcurrencySettings bounds parallel host processing.
type ConcurrencySettings struct {
	MaxHosts int
}

// NotifySettings holds notification configuration.
type NotifySettings struct {
	Enabled  bool
	Provider string // only "ntfy" is supported
	Ntfy     NtfyConfig
}

// NtfyConfig holds ntfy server settings.
type NtfyConfig struct {
	Server   string
	Topic    string
	Username string
	Password string
}

// ProjectOverride holds per-project settings from the projects section.
// Pointer fields distinguish "not set" from an explicit value.
type ProjectOverride struct {
	Host            string // optional: pin the project to a named host
	Retention       *int
	Schedule        string
	Behavior        string
	BackupCompose   *bool
	ExcludeVolumes  []string
	ExcludePatterns []string
}
