// Package scheduler decides whether a project's backup is due. All decisions
// are made from artifact metadata: no state store, no remote access.
package scheduler

import (
	"time"

	"github.com/felden/docker-manager/internal/models"
)

// IsDue reports whether (host, project) needs a backup. The first backup is
// always due; afterwards the newest artifact's age is compared against the
// schedule's threshold, where an age exactly equal to the threshold is due.
func IsDue(host, project string, schedule models.Schedule, artifacts []models.BackupArtifact, now time.Time) bool {
	latest, ok := Latest(host, project, artifacts)
	if !ok {
		return true
	}
	return now.Sub(latest.Timestamp) >= schedule.Threshold()
}

// Latest returns the newest artifact for (host, project).
func Latest(host, project string, artifacts []models.BackupArtifact) (models.BackupArtifact, bool) {
	var latest models.BackupArtifact
	found := false
	for _, a := range artifacts {
		if a.Host != host || a.Project != project {
			continue
		}
		if !found || a.Timestamp.After(latest.Timestamp) {
			latest = a
			found = true
		}
	}
	return latest, found
}
