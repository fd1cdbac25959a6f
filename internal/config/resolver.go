package config

import (
	"github.com/felden/docker-manager/internal/models"
)

// Resolve merges the global defaults with the project's override (if any)
// into a fully-resolved ProjectConfig. The result is a fresh value each
// call; resolving the same input twice yields identical configs.
func Resolve(cfg *models.GlobalConfig, project string) (models.ProjectConfig, error) {
	resolved := models.ProjectConfig{
		Name:            project,
		Retention:       cfg.Backup.DefaultRetention,
		Schedule:        cfg.Backup.DefaultSchedule,
		Behavior:        cfg.Update.DefaultBehavior,
		BackupCompose:   true,
		ExcludePatterns: dedup(cfg.Backup.DefaultExcludePatterns, nil),
	}

	if override, ok := cfg.Projects[project]; ok {
		if override.Host != "" {
			if _, exists := cfg.Hosts[override.Host]; !exists {
				return models.ProjectConfig{}, models.NewConfigError(
					"project %s: host %q is not defined in global.hosts", project, override.Host)
			}
		}

		if override.Retention != nil {
			resolved.Retention = *override.Retention
		}
		if override.Schedule != "" {
			resolved.Schedule = models.Schedule(override.Schedule)
		}
		if override.Behavior != "" {
			resolved.Behavior = models.Behavior(override.Behavior)
		}
		if override.BackupCompose != nil {
			resolved.BackupCompose = *override.BackupCompose
		}

		// Volumes and patterns are unioned, never replaced. Global patterns
		// come first so project-specific ones cannot reorder them.
		resolved.ExcludeVolumes = dedup(override.ExcludeVolumes, nil)
		resolved.ExcludePatterns = dedup(cfg.Backup.DefaultExcludePatterns, override.ExcludePatterns)
	}

	// The merged result is validated whether or not an override contributed,
	// so bad globals cannot slip through for projects without one.
	if resolved.Retention < 1 {
		return models.ProjectConfig{}, models.NewConfigError(
			"project %s: retention must be >= 1", project)
	}
	if !resolved.Schedule.Valid() {
		return models.ProjectConfig{}, models.NewConfigError(
			"project %s: schedule must be one of: daily, weekly, biweekly, monthly", project)
	}
	if !resolved.Behavior.Valid() {
		return models.ProjectConfig{}, models.NewConfigError(
			"project %s: behavior must be one of: backup_then_update, backup_only, update_only", project)
	}

	return resolved, nil
}

// Eligible reports whether the project is pinned to a different host than the
// one it was discovered on.
func Eligible(cfg *models.GlobalConfig, project, host string) bool {
	override, ok := cfg.Projects[project]
	if !ok || override.Host == "" {
		return true
	}
	return override.Host == host
}

// dedup unions two ordered lists, dropping duplicates while preserving the
// first occurrence's position.
func dedup(first, second []string) []string {
	seen := make(map[string]struct{}, len(first)+len(second))
	out := make([]string, 0, len(first)+len(second))
	for _, list := range [][]string{first, second} {
		for _, entry := range list {
			if _, dup := seen[entry]; dup {
				continue
			}
			seen[entry] = struct{}{}
			out = append(out, entry)
		}
	}
	return out
}
