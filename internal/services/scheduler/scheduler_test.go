package scheduler

import (
	"testing"
	"time"

	"github.com/felden/docker-manager/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func artifactAt(host, project string, ts time.Time) models.BackupArtifact {
	return models.BackupArtifact{
		Host:      host,
		Project:   project,
		Timestamp: ts,
		Path:      "/mnt/backups/" + host + "-" + project + "-" + ts.Format("20060102-150405") + ".tar.gz",
		SizeBytes: 1024,
	}
}

func TestIsDue_NoArtifacts(t *testing.T) {
	now := time.Date(2024, 12, 4, 10, 30, 0, 0, time.UTC)

	for _, schedule := range []models.Schedule{
		models.ScheduleDaily, models.ScheduleWeekly, models.ScheduleBiweekly, models.ScheduleMonthly,
	} {
		assert.True(t, IsDue("docker01", "vaultwarden", schedule, nil, now),
			"first backup must always be due for %s", schedule)
	}
}

func TestIsDue_Boundaries(t *testing.T) {
	now := time.Date(2024, 12, 4, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		schedule models.Schedule
		age      time.Duration
		want     bool
	}{
		{"daily exactly 24h", models.ScheduleDaily, 24 * time.Hour, true},
		{"daily one second short", models.ScheduleDaily, 24*time.Hour - time.Second, false},
		{"weekly exactly 7d", models.ScheduleWeekly, 7 * 24 * time.Hour, true},
		{"weekly one second short", models.ScheduleWeekly, 7*24*time.Hour - time.Second, false},
		{"biweekly exactly 14d", models.ScheduleBiweekly, 14 * 24 * time.Hour, true},
		{"biweekly one second short", models.ScheduleBiweekly, 14*24*time.Hour - time.Second, false},
		{"monthly exactly 30d", models.ScheduleMonthly, 30 * 24 * time.Hour, true},
		{"monthly one second short", models.ScheduleMonthly, 30*24*time.Hour - time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			artifacts := []models.BackupArtifact{
				artifactAt("docker01", "vaultwarden", now.Add(-tt.age)),
			}
			got := IsDue("docker01", "vaultwarden", tt.schedule, artifacts, now)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsDue_UsesNewestArtifact(t *testing.T) {
	now := time.Date(2024, 12, 4, 10, 30, 0, 0, time.UTC)

	artifacts := []models.BackupArtifact{
		artifactAt("docker01", "vaultwarden", now.Add(-72*time.Hour)),
		artifactAt("docker01", "vaultwarden", now.Add(-2*time.Hour)),
		artifactAt("docker01", "vaultwarden", now.Add(-48*time.Hour)),
	}

	assert.False(t, IsDue("docker01", "vaultwarden", models.ScheduleDaily, artifacts, now))
}

func TestIsDue_IgnoresOtherPairs(t *testing.T) {
	now := time.Date(2024, 12, 4, 10, 30, 0, 0, time.UTC)

	artifacts := []models.BackupArtifact{
		artifactAt("docker01", "joplin", now.Add(-time.Hour)),
		artifactAt("docker02", "vaultwarden", now.Add(-time.Hour)),
	}

	assert.True(t, IsDue("docker01", "vaultwarden", models.ScheduleDaily, artifacts, now),
		"artifacts of other (host, project) pairs must not count")
}

func TestLatest(t *testing.T) {
	now := time.Date(2024, 12, 4, 10, 30, 0, 0, time.UTC)

	newest := artifactAt("docker01", "vaultwarden", now.Add(-time.Hour))
	artifacts := []models.BackupArtifact{
		artifactAt("docker01", "vaultwarden", now.Add(-48*time.Hour)),
		newest,
		artifactAt("docker02", "vaultwarden", now),
	}

	got, ok := Latest("docker01", "vaultwarden", artifacts)
	require.True(t, ok)
	assert.Equal(t, newest, got)

	_, ok = Latest("docker03", "vaultwarden", artifacts)
	assert.False(t, ok)
}
