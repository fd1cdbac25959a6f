package backup

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/felden/docker-manager/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSession routes commands to handlers by substring match and records
// every command in order.
type scriptedSession struct {
	handlers map[string]func() *models.ExecutionOutcome
	commands []string
}

func (m *scriptedSession) Run(_ context.Context, command string, _ time.Duration) (*models.ExecutionOutcome, error) {
	m.commands = append(m.commands, command)
	for substr, handler := range m.handlers {
		if strings.Contains(command, substr) {
			return handler(), nil
		}
	}
	return &models.ExecutionOutcome{}, nil
}

func (m *scriptedSession) Close() error { return nil }

func ok(stdout string) func() *models.ExecutionOutcome {
	return func() *models.ExecutionOutcome { return &models.ExecutionOutcome{Stdout: stdout} }
}

func fail(exitCode int, stderr string) func() *models.ExecutionOutcome {
	return func() *models.ExecutionOutcome { return &models.ExecutionOutcome{ExitCode: exitCode, Stderr: stderr} }
}

func timedOut() func() *models.ExecutionOutcome {
	return func() *models.ExecutionOutcome { return &models.ExecutionOutcome{TimedOut: true, ExitCode: -1} }
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2024, 12, 4, 10, 30, 0, 0, time.UTC) }
}

var (
	testHost     = models.HostConfig{Name: "docker01", Address: "10.0.0.11", DockerRoot: "/opt/docker"}
	testProject  = models.Project{Name: "vaultwarden", Path: "/opt/docker/vaultwarden"}
	testSettings = models.BackupSettings{Root: "/mnt/backups", Compression: "pigz", CompressionLevel: 6}
)

func defaultConfig() models.ProjectConfig {
	return models.ProjectConfig{
		Name:          "vaultwarden",
		Retention:     4,
		Schedule:      models.ScheduleDaily,
		Behavior:      models.BehaviorBackupThenUpdate,
		BackupCompose: true,
	}
}

func TestBackup_Success(t *testing.T) {
	session := &scriptedSession{handlers: map[string]func() *models.ExecutionOutcome{
		"wc -l":   ok("2\n"),
		"stat -c": ok("4096\n"),
	}}

	svc := NewWithClock(testLogger(), fixedClock())
	result := svc.Backup(context.Background(), session, testHost, testProject, defaultConfig(), testSettings, time.Hour)

	require.NoError(t, result.Err)
	assert.True(t, result.BackupAttempted)
	assert.True(t, result.BackupSucceeded)
	assert.Equal(t, 2, result.Containers)
	assert.Equal(t, "docker01-vaultwarden-20241204-103000.tar.gz", result.ArchiveName)
	assert.Equal(t, int64(4096), result.ArchiveBytes)

	require.Len(t, session.commands, 5)
	assert.Contains(t, session.commands[0], "docker compose ps -q")
	assert.Contains(t, session.commands[1], "docker compose down")
	assert.Contains(t, session.commands[2], "tar")
	assert.Contains(t, session.commands[2], "pigz -6 > /mnt/backups/docker01-vaultwarden-20241204-103000.tar.gz")
	assert.Contains(t, session.commands[3], "stat -c%s")
	assert.Contains(t, session.commands[4], "docker compose up -d")
}

func TestBackup_ArchiveFailureStillRestarts(t *testing.T) {
	session := &scriptedSession{handlers: map[string]func() *models.ExecutionOutcome{
		"wc -l": ok("1\n"),
		"tar":   fail(2, "tar: write error"),
	}}

	svc := NewWithClock(testLogger(), fixedClock())
	result := svc.Backup(context.Background(), session, testHost, testProject, defaultConfig(), testSettings, time.Hour)

	require.Error(t, result.Err)
	var cmdErr *models.CommandError
	assert.ErrorAs(t, result.Err, &cmdErr)
	assert.False(t, result.BackupSucceeded)

	restarted := false
	for _, cmd := range session.commands {
		if strings.Contains(cmd, "docker compose up -d") {
			restarted = true
		}
	}
	assert.True(t, restarted, "restart must run even when the archive step failed")
}

func TestBackup_ArchiveTimeoutStillRestarts(t *testing.T) {
	session := &scriptedSession{handlers: map[string]func() *models.ExecutionOutcome{
		"wc -l": ok("1\n"),
		"tar":   timedOut(),
	}}

	svc := NewWithClock(testLogger(), fixedClock())
	result := svc.Backup(context.Background(), session, testHost, testProject, defaultConfig(), testSettings, time.Hour)

	var timeoutErr *models.TimeoutError
	assert.ErrorAs(t, result.Err, &timeoutErr)

	restarted := false
	for _, cmd := range session.commands {
		if strings.Contains(cmd, "docker compose up -d") {
			restarted = true
		}
	}
	assert.True(t, restarted, "restart must run even when the archive step timed out")
}

func TestBackup_RestartFailureOutranksArchiveError(t *testing.T) {
	session := &scriptedSession{handlers: map[string]func() *models.ExecutionOutcome{
		"wc -l": ok("1\n"),
		"tar":   fail(2, "tar: write error"),
		"up -d": fail(1, "network not found"),
	}}

	svc := NewWithClock(testLogger(), fixedClock())
	result := svc.Backup(context.Background(), session, testHost, testProject, defaultConfig(), testSettings, time.Hour)

	require.Error(t, result.Err)
	assert.True(t, models.IsRestartFailure(result.Err),
		"a service left down outranks the archive failure")
	assert.False(t, result.BackupSucceeded)
}

func TestBackup_RestartFailureAfterGoodArchive(t *testing.T) {
	session := &scriptedSession{handlers: map[string]func() *models.ExecutionOutcome{
		"wc -l":   ok("3\n"),
		"stat -c": ok("4096\n"),
		"up -d":   fail(1, "oom"),
	}}

	svc := NewWithClock(testLogger(), fixedClock())
	result := svc.Backup(context.Background(), session, testHost, testProject, defaultConfig(), testSettings, time.Hour)

	assert.True(t, models.IsRestartFailure(result.Err))
	assert.False(t, result.BackupSucceeded, "a backup that left the service down is not a success")
}

func TestBackup_StoppedProjectArchivedInPlace(t *testing.T) {
	session := &scriptedSession{handlers: map[string]func() *models.ExecutionOutcome{
		"wc -l":   ok("0\n"),
		"stat -c": ok("2048\n"),
	}}

	svc := NewWithClock(testLogger(), fixedClock())
	result := svc.Backup(context.Background(), session, testHost, testProject, defaultConfig(), testSettings, time.Hour)

	require.NoError(t, result.Err)
	assert.True(t, result.BackupSucceeded)
	assert.Equal(t, 0, result.Containers)

	for _, cmd := range session.commands {
		assert.NotContains(t, cmd, "docker compose down", "stopped projects are not stopped again")
		assert.NotContains(t, cmd, "docker compose up", "stopped projects stay stopped")
	}
}

func TestBackup_NothingToArchiveIsSkipped(t *testing.T) {
	cfg := defaultConfig()
	cfg.BackupCompose = false
	cfg.ExcludeVolumes = []string{models.ExcludeAllVolumes}

	session := &scriptedSession{}

	svc := NewWithClock(testLogger(), fixedClock())
	result := svc.Backup(context.Background(), session, testHost, testProject, cfg, testSettings, time.Hour)

	assert.NoError(t, result.Err)
	assert.True(t, result.BackupSkipped)
	assert.False(t, result.BackupSucceeded)
	assert.Empty(t, session.commands, "a no-op archive issues no remote commands")
}

func TestBackup_StopFailureAbortsSequence(t *testing.T) {
	session := &scriptedSession{handlers: map[string]func() *models.ExecutionOutcome{
		"wc -l": ok("1\n"),
		"down":  fail(1, "cannot stop"),
	}}

	svc := NewWithClock(testLogger(), fixedClock())
	result := svc.Backup(context.Background(), session, testHost, testProject, defaultConfig(), testSettings, time.Hour)

	require.Error(t, result.Err)
	for _, cmd := range session.commands {
		assert.NotContains(t, cmd, "tar", "no archive after a failed stop")
	}
}

func TestExcludeArgs(t *testing.T) {
	tests := []struct {
		name string
		cfg  models.ProjectConfig
		want string
	}{
		{
			"no excludes",
			models.ProjectConfig{BackupCompose: true},
			"",
		},
		{
			"volumes and patterns",
			models.ProjectConfig{
				BackupCompose:   true,
				ExcludeVolumes:  []string{"media", "tmp"},
				ExcludePatterns: []string{"*.log"},
			},
			" --exclude='media' --exclude='tmp' --exclude='*.log'",
		},
		{
			"all volumes sentinel",
			models.ProjectConfig{
				BackupCompose:   true,
				ExcludeVolumes:  []string{models.ExcludeAllVolumes},
				ExcludePatterns: []string{"*.log"},
			},
			" --exclude='*/' --exclude='*.log'",
		},
		{
			"compose files excluded",
			models.ProjectConfig{BackupCompose: false},
			" --exclude='docker-compose.yml' --exclude='docker-compose.override.yml' --exclude='.env'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, excludeArgs(tt.cfg))
		})
	}
}

func TestBackup_AllVolumesArchivesComposeOnly(t *testing.T) {
	cfg := defaultConfig()
	cfg.ExcludeVolumes = []string{models.ExcludeAllVolumes}

	session := &scriptedSession{handlers: map[string]func() *models.ExecutionOutcome{
		"wc -l":   ok("1\n"),
		"stat -c": ok("128\n"),
	}}

	svc := NewWithClock(testLogger(), fixedClock())
	result := svc.Backup(context.Background(), session, testHost, testProject, cfg, testSettings, time.Hour)

	require.NoError(t, result.Err)
	// The size probe names the archive, so match the tar invocation itself.
	var tarCmd string
	for _, cmd := range session.commands {
		if strings.Contains(cmd, "-cf - .") {
			tarCmd = cmd
			break
		}
	}
	require.NotEmpty(t, tarCmd)
	assert.Contains(t, tarCmd, "--exclude='*/'")
}

func TestBackup_GzipCompression(t *testing.T) {
	settings := testSettings
	settings.Compression = "gzip"
	settings.CompressionLevel = 9

	session := &scriptedSession{handlers: map[string]func() *models.ExecutionOutcome{
		"wc -l":   ok("1\n"),
		"stat -c": ok("128\n"),
	}}

	svc := NewWithClock(testLogger(), fixedClock())
	result := svc.Backup(context.Background(), session, testHost, testProject, defaultConfig(), settings, time.Hour)

	require.NoError(t, result.Err)
	found := false
	for _, cmd := range session.commands {
		if strings.Contains(cmd, "| gzip -9 >") {
			found = true
		}
	}
	assert.True(t, found)
}
