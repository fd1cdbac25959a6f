package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunSummary_Add(t *testing.T) {
	summary := &RunSummary{}

	summary.Add(ItemResult{
		Host: "docker01", Project: "vaultwarden",
		BackupAttempted: true, BackupSucceeded: true,
		ArchiveBytes: 1024, Containers: 2,
		UpdateAttempted: true, UpdateStatus: UpdateApplied, BytesFreed: 512,
	})
	summary.Add(ItemResult{
		Host: "docker01", Project: "joplin",
		BackupAttempted: true,
		Err:             errors.New("tar failed"),
		UpdateAttempted: true, UpdateStatus: UpdateFailed,
	})
	summary.Add(ItemResult{
		Host: "docker02", Project: "paperless",
		BackupSkipped: true, SkipReason: "not due",
		UpdateAttempted: true, UpdateStatus: UpdateUpToDate,
	})
	summary.Add(ItemResult{
		Host: "docker02",
		Err:  &ConnectivityError{Host: "docker02", Err: errors.New("refused")},
	})

	assert.Equal(t, 3, summary.TotalProjects, "the host-level dial failure is not a project")
	assert.Equal(t, 2, summary.TotalContainers)
	assert.Equal(t, 1, summary.BackupsSucceeded)
	assert.Equal(t, 1, summary.BackupsFailed)
	assert.Equal(t, 1, summary.BackupsSkipped)
	assert.Equal(t, 1, summary.UpdatesApplied)
	assert.Equal(t, 1, summary.UpdatesFailed)
	assert.Equal(t, 1, summary.UpdatesSkipped)
	assert.Equal(t, int64(1024), summary.TotalArchiveBytes)
	assert.Equal(t, int64(512), summary.BytesFreed)
	assert.Equal(t, 2, summary.Failed())
}

func TestRunSummary_SkippedBackupIsNotAFailure(t *testing.T) {
	summary := &RunSummary{}
	summary.Add(ItemResult{Host: "docker01", Project: "joplin", BackupSkipped: true})

	assert.Zero(t, summary.BackupsFailed)
	assert.Zero(t, summary.Failed())
}

func TestErrorKinds(t *testing.T) {
	cfgErr := NewConfigError("host %q is not defined", "docker99")
	assert.True(t, IsConfigError(cfgErr))
	assert.Contains(t, cfgErr.Error(), "docker99")

	restart := &RestartFailure{Host: "docker01", Project: "vaultwarden", Err: errors.New("oom")}
	assert.True(t, IsRestartFailure(restart))
	assert.False(t, IsRestartFailure(cfgErr))

	inner := errors.New("connection refused")
	conn := &ConnectivityError{Host: "docker01", Err: inner}
	assert.ErrorIs(t, conn, inner)

	assert.False(t, IsConfigError(nil))
	assert.False(t, IsRestartFailure(nil))
}
