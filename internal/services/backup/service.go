// Package backup implements the stop/archive/restart sequence for one project.
package backup

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/felden/docker-manager/internal/models"
	"github.com/felden/docker-manager/internal/services/artifact"
	"github.com/felden/docker-manager/internal/services/ssh"
	"github.com/rs/zerolog"
)

// Service defines the interface for the backup engine.
type Service interface {
	Backup(ctx context.Context, session ssh.Session, host models.HostConfig, project models.Project,
		cfg models.ProjectConfig, settings models.BackupSettings, timeout time.Duration) *models.ItemResult
}

// Impl implements the backup Service interface.
type Impl struct {
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a new backup service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{logger: logger, now: time.Now}
}

// NewWithClock creates a new backup service with a fixed clock (for testing).
func NewWithClock(logger zerolog.Logger, now func() time.Time) *Impl {
	return &Impl{logger: logger, now: now}
}

// Backup stops the project's containers, archives the project directory into
// the backup root and restarts the containers. Once the stop command has been
// issued the remaining steps run detached from run-level cancellation: a
// backup in flight always gets its restart attempt, so an operator interrupt
// cannot leave the project stopped.
func (s *Impl) Backup(ctx context.Context, session ssh.Session, host models.HostConfig, project models.Project,
	cfg models.ProjectConfig, settings models.BackupSettings, timeout time.Duration) *models.ItemResult {
	result := &models.ItemResult{
		Host:            host.Name,
		Project:         project.Name,
		BackupAttempted: true,
	}

	logger := s.logger.With().Str("host", host.Name).Str("project", project.Name).Logger()

	if !cfg.BackupCompose && cfg.ExcludesAllVolumes() {
		// Nothing left to archive.
		result.BackupSkipped = true
		result.SkipReason = "nothing to archive"
		logger.Info().Msg("skipping backup: compose files and all volumes excluded")
		return result
	}

	running, err := s.countContainers(ctx, session, project)
	if err != nil {
		result.Err = err
		return result
	}
	result.Containers = running
	wasRunning := running > 0

	detached := ctx
	if wasRunning {
		logger.Info().Int("containers", running).Msg("stopping containers")

		stopCmd := fmt.Sprintf("cd %s && docker compose down", project.Path)
		outcome, err := session.Run(ctx, stopCmd, timeout)
		if err == nil {
			err = ssh.CheckOutcome(stopCmd, timeout, outcome)
		}
		if err != nil {
			result.Err = err
			return result
		}

		// The containers are down from here on; finish the sequence even if
		// the run is cancelled.
		detached = context.WithoutCancel(ctx)
	} else {
		logger.Info().Msg("no containers running; archiving in place")
	}

	archiveErr := s.archive(detached, session, project, cfg, settings, timeout, result)

	if wasRunning {
		startCmd := fmt.Sprintf("cd %s && docker compose up -d", project.Path)
		logger.Info().Msg("starting containers")

		outcome, err := session.Run(detached, startCmd, timeout)
		if err == nil {
			err = ssh.CheckOutcome(startCmd, timeout, outcome)
		}
		if err != nil {
			// A service left down outranks a failed archive.
			result.Err = &models.RestartFailure{Host: host.Name, Project: project.Name, Err: err}
			logger.Error().Err(err).Msg("restart failed, containers left stopped")
			return result
		}
	}

	if archiveErr != nil {
		result.Err = archiveErr
		return result
	}

	result.BackupSucceeded = true
	logger.Info().
		Str("archive", result.ArchiveName).
		Int64("bytes", result.ArchiveBytes).
		Msg("backup complete")

	return result
}

func (s *Impl) countContainers(ctx context.Context, session ssh.Session, project models.Project) (int, error) {
	command := fmt.Sprintf("cd %s && docker compose ps -q 2>/dev/null | wc -l", project.Path)

	outcome, err := session.Run(ctx, command, time.Minute)
	if err != nil {
		return 0, err
	}
	if err := ssh.CheckOutcome(command, time.Minute, outcome); err != nil {
		return 0, err
	}

	count, err := strconv.Atoi(strings.TrimSpace(outcome.Stdout))
	if err != nil {
		return 0, fmt.Errorf("unexpected container count %q: %w", strings.TrimSpace(outcome.Stdout), err)
	}
	return count, nil
}

func (s *Impl) archive(ctx context.Context, session ssh.Session, project models.Project,
	cfg models.ProjectConfig, settings models.BackupSettings, timeout time.Duration, result *models.ItemResult) error {
	name := artifact.Name(result.Host, project.Name, s.now())
	archivePath := settings.Root + "/" + name

	compress := fmt.Sprintf("pigz -%d", settings.CompressionLevel)
	if settings.Compression == "gzip" {
		compress = fmt.Sprintf("gzip -%d", settings.CompressionLevel)
	}

	command := fmt.Sprintf("cd %s && tar%s -cf - . | %s > %s",
		project.Path, excludeArgs(cfg), compress, archivePath)

	outcome, err := session.Run(ctx, command, timeout)
	if err != nil {
		return err
	}
	if err := ssh.CheckOutcome(command, timeout, outcome); err != nil {
		return err
	}

	result.ArchiveName = name

	sizeCmd := fmt.Sprintf("stat -c%%s %s", archivePath)
	outcome, err = session.Run(ctx, sizeCmd, time.Minute)
	if err != nil {
		return err
	}
	if err := ssh.CheckOutcome(sizeCmd, time.Minute, outcome); err != nil {
		return err
	}

	size, err := strconv.ParseInt(strings.TrimSpace(outcome.Stdout), 10, 64)
	if err != nil {
		return fmt.Errorf("unexpected archive size %q: %w", strings.TrimSpace(outcome.Stdout), err)
	}
	result.ArchiveBytes = size

	return nil
}

// excludeArgs builds the tar exclude rules: compose files when they are not
// backed up, volume directories (or every directory for the ALL sentinel),
// then the resolved patterns.
func excludeArgs(cfg models.ProjectConfig) string {
	var b strings.Builder

	if !cfg.BackupCompose {
		b.WriteString(" --exclude='docker-compose.yml' --exclude='docker-compose.override.yml' --exclude='.env'")
	}

	if cfg.ExcludesAllVolumes() {
		b.WriteString(" --exclude='*/'")
	} else {
		for _, vol := range cfg.ExcludeVolumes {
			fmt.Fprintf(&b, " --exclude='%s'", vol)
		}
	}

	for _, pattern := range cfg.ExcludePatterns {
		fmt.Fprintf(&b, " --exclude='%s'", pattern)
	}

	return b.String()
}
