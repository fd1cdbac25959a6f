// Package artifact handles canonical backup artifact names and discovery.
//
// The backup root is the only record of past backups: scheduling and
// retention both derive their state from the artifact filenames, so parsing
// is strict and anything nonconforming is ignored.
package artifact

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/felden/docker-manager/internal/models"
	"github.com/felden/docker-manager/internal/services/ssh"
	"github.com/rs/zerolog"
)

// TimeLayout is the timestamp format embedded in artifact names.
const TimeLayout = "20060102-150405"

// Artifact names are {host}-{project}-{YYYYMMDD-HHMMSS}.tar.gz. Host names
// cannot contain hyphens; project names can.
var namePattern = regexp.MustCompile(`^([^-]+)-(.+)-(\d{8}-\d{6})\.tar\.gz$`)

// Name builds the canonical artifact filename.
func Name(host, project string, ts time.Time) string {
	return fmt.Sprintf("%s-%s-%s.tar.gz", host, project, ts.Format(TimeLayout))
}

// Parse extracts host, project and timestamp from an artifact filename.
// It returns false for any filename that does not match the canonical
// pattern exactly.
func Parse(filename string) (host, project string, ts time.Time, ok bool) {
	m := namePattern.FindStringSubmatch(filename)
	if m == nil {
		return "", "", time.Time{}, false
	}
	ts, err := time.Parse(TimeLayout, m[3])
	if err != nil {
		return "", "", time.Time{}, false
	}
	return m[1], m[2], ts, true
}

// Service defines the interface for artifact discovery.
type Service interface {
	List(ctx context.Context, session ssh.Session, backupRoot, host string) ([]models.BackupArtifact, error)
}

// Impl implements the artifact Service interface.
type Impl struct {
	logger zerolog.Logger
}

// New creates a new artifact service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{logger: logger}
}

const listTimeout = time.Minute

// List discovers the host's artifacts in the shared backup root. Filenames
// not matching the canonical pattern are skipped; they are not artifacts of
// this system.
func (s *Impl) List(ctx context.Context, session ssh.Session, backupRoot, host string) ([]models.BackupArtifact, error) {
	command := fmt.Sprintf(
		"find %s -maxdepth 1 -name '%s-*.tar.gz' -printf '%%s %%f\\n'",
		backupRoot, host,
	)

	outcome, err := session.Run(ctx, command, listTimeout)
	if err != nil {
		return nil, err
	}
	if err := ssh.CheckOutcome(command, listTimeout, outcome); err != nil {
		return nil, err
	}

	var artifacts []models.BackupArtifact
	for _, line := range strings.Split(strings.TrimSpace(outcome.Stdout), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		size, name, found := strings.Cut(line, " ")
		if !found {
			continue
		}
		sizeBytes, err := strconv.ParseInt(size, 10, 64)
		if err != nil {
			continue
		}

		artifactHost, project, ts, ok := Parse(name)
		if !ok || artifactHost != host {
			s.logger.Debug().Str("file", name).Msg("ignoring nonconforming file in backup root")
			continue
		}

		artifacts = append(artifacts, models.BackupArtifact{
			Host:      artifactHost,
			Project:   project,
			Timestamp: ts,
			Path:      path.Join(backupRoot, name),
			SizeBytes: sizeBytes,
		})
	}

	s.logger.Debug().
		Str("host", host).
		Int("count", len(artifacts)).
		Msg("artifacts listed")

	return artifacts, nil
}
