// Package update implements the pull/digest-compare/recreate sequence.
package update

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/felden/docker-manager/internal/models"
	"github.com/felden/docker-manager/internal/services/ssh"
	"github.com/rs/zerolog"
)

// Service defines the interface for the update engine.
type Service interface {
	Update(ctx context.Context, session ssh.Session, host models.HostConfig, project models.Project,
		timeout time.Duration) (models.UpdateStatus, int, error)
}

// Impl implements the update Service interface.
type Impl struct {
	logger zerolog.Logger
}

// New creates a new update service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{logger: logger}
}

// Update captures the project's image digests, pulls, captures again and
// recreates the containers when any digest changed. It returns the outcome,
// the number of images pulled and the error for a failed step. A pull
// failure is terminal; it is not retried within the run.
func (s *Impl) Update(ctx context.Context, session ssh.Session, host models.HostConfig, project models.Project,
	timeout time.Duration) (models.UpdateStatus, int, error) {
	logger := s.logger.With().Str("host", host.Name).Str("project", project.Name).Logger()

	oldDigests, err := s.digests(ctx, session, project)
	if err != nil {
		return models.UpdateFailed, 0, err
	}

	logger.Info().Msg("pulling images")

	pullCmd := fmt.Sprintf("cd %s && docker compose pull 2>&1", project.Path)
	outcome, err := session.Run(ctx, pullCmd, timeout)
	if err != nil {
		return models.UpdateFailed, 0, err
	}
	// Projects with locally-built services make compose pull exit nonzero;
	// that is not a pull failure.
	if outcome.ExitCode != 0 && !strings.Contains(outcome.Stdout, "must be built from source") {
		return models.UpdateFailed, 0, ssh.CheckOutcome(pullCmd, timeout, outcome)
	}
	if outcome.TimedOut {
		return models.UpdateFailed, 0, ssh.CheckOutcome(pullCmd, timeout, outcome)
	}

	pulled := strings.Count(outcome.Stdout, "Downloaded newer image") + strings.Count(outcome.Stdout, "Pulled")

	newDigests, err := s.digests(ctx, session, project)
	if err != nil {
		return models.UpdateFailed, 0, err
	}

	if oldDigests == newDigests {
		logger.Info().Msg("up-to-date")
		return models.UpdateUpToDate, 0, nil
	}

	logger.Info().Int("images", pulled).Msg("digests changed, recreating containers")

	upCmd := fmt.Sprintf("cd %s && docker compose up -d 2>&1", project.Path)
	outcome, err = session.Run(ctx, upCmd, timeout)
	if err == nil {
		err = ssh.CheckOutcome(upCmd, timeout, outcome)
	}
	if err != nil {
		return models.UpdateFailed, pulled, err
	}

	logger.Info().Int("images", pulled).Msg("updated")
	return models.UpdateApplied, pulled, nil
}

// digests returns the sorted image IDs of the project's services, one per
// line, suitable for direct comparison.
func (s *Impl) digests(ctx context.Context, session ssh.Session, project models.Project) (string, error) {
	command := fmt.Sprintf(
		"cd %s && docker compose images -q 2>/dev/null | xargs -r docker inspect --format='{{.Id}}' 2>/dev/null | sort",
		project.Path,
	)

	outcome, err := session.Run(ctx, command, time.Minute)
	if err != nil {
		return "", err
	}
	if err := ssh.CheckOutcome(command, time.Minute, outcome); err != nil {
		return "", err
	}

	return strings.TrimSpace(outcome.Stdout), nil
}
