// Package discovery lists compose projects under a host's docker root.
package discovery

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/felden/docker-manager/internal/models"
	"github.com/felden/docker-manager/internal/services/ssh"
	"github.com/rs/zerolog"
)

// Service defines the interface for project discovery.
type Service interface {
	Discover(ctx context.Context, session ssh.Session, host models.HostConfig) ([]models.Project, error)
}

// Impl implements the discovery Service interface.
type Impl struct {
	logger zerolog.Logger
}

// New creates a new discovery service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{logger: logger}
}

const discoverTimeout = time.Minute

// Discover finds every directory under the docker root holding a
// docker-compose.yml. The directory name is the project name.
func (s *Impl) Discover(ctx context.Context, session ssh.Session, host models.HostConfig) ([]models.Project, error) {
	command := fmt.Sprintf(
		`find %s -maxdepth 2 -name 'docker-compose.yml' -exec dirname {} \;`,
		host.DockerRoot,
	)

	outcome, err := session.Run(ctx, command, discoverTimeout)
	if err != nil {
		return nil, err
	}
	if err := ssh.CheckOutcome(command, discoverTimeout, outcome); err != nil {
		return nil, err
	}

	var projects []models.Project
	for _, line := range strings.Split(strings.TrimSpace(outcome.Stdout), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		projects = append(projects, models.Project{
			Name: path.Base(line),
			Path: line,
		})
	}

	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })

	s.logger.Info().
		Str("host", host.Name).
		Int("count", len(projects)).
		Msg("projects discovered")

	return projects, nil
}
