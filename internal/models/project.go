package models

import "time"

// Schedule is the frequency class controlling backup eligibility.
type Schedule string

// Supported schedules.
const (
	ScheduleDaily    Schedule = "daily"
	ScheduleWeekly   Schedule = "weekly"
	ScheduleBiweekly Schedule = "biweekly"
	ScheduleMonthly  Schedule = "monthly"
)

// Valid reports whether s is one of the supported schedules.
func (s Schedule) Valid() bool {
	switch s {
	case ScheduleDaily, ScheduleWeekly, ScheduleBiweekly, ScheduleMonthly:
		return true
	}
	return false
}

// Threshold returns the minimum age of the newest backup before a new one is due.
func (s Schedule) Threshold() time.Duration {
	switch s {
	case ScheduleWeekly:
		return 7 * 24 * time.Hour
	case ScheduleBiweekly:
		return 14 * 24 * time.Hour
	case ScheduleMonthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Behavior is the policy governing whether backup and/or update run for a project.
type Behavior string

// Supported behaviors.
const (
	BehaviorBackupThenUpdate Behavior = "backup_then_update"
	BehaviorBackupOnly       Behavior = "backup_only"
	BehaviorUpdateOnly       Behavior = "update_only"
)

// Valid reports whether b is one of the supported behaviors.
func (b Behavior) Valid() bool {
	switch b {
	case BehaviorBackupThenUpdate, BehaviorBackupOnly, BehaviorUpdateOnly:
		return true
	}
	return false
}

// ExcludeAllVolumes is the sentinel volume name meaning "archive compose files only".
const ExcludeAllVolumes = "ALL"

// ProjectConfig is the fully-resolved configuration for one (host, project).
// It is built fresh each run and never mutated after construction.
type ProjectConfig struct {
	Name            string
	Retention       int
	Schedule        Schedule
	Behavior        Behavior
	BackupCompose   bool
	ExcludeVolumes  []string
	ExcludePatterns []string
}

// ExcludesAllVolumes reports whether the ALL sentinel is present.
func (c ProjectConfig) ExcludesAllVolumes() bool {
	for _, v := range c.ExcludeVolumes {
		if v == ExcludeAllVolumes {
			return true
		}
	}
	return false
}

// Project is a discovered compose project on a host.
type Project struct {
	Name string
	Path string
}
