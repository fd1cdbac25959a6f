// Package retention deletes excess backup artifacts per (host, project).
package retention

import (
	"context"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/felden/docker-manager/internal/models"
	"github.com/felden/docker-manager/internal/services/ssh"
	"github.com/rs/zerolog"
)

// Service defines the interface for the retention manager.
type Service interface {
	Enforce(ctx context.Context, session ssh.Session, host, project string, retention int,
		artifacts []models.BackupArtifact, currentArchive string) (int64, int, error)
}

// Impl implements the retention Service interface.
type Impl struct {
	logger zerolog.Logger
}

// New creates a new retention service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{logger: logger}
}

const deleteTimeout = time.Minute

// Enforce keeps the newest retention artifacts of (host, project) and
// deletes the rest, returning the bytes freed and the number of files
// removed. currentArchive names the artifact written by the current run, if
// any; it is never considered for deletion.
func (s *Impl) Enforce(ctx context.Context, session ssh.Session, host, project string, retention int,
	artifacts []models.BackupArtifact, currentArchive string) (int64, int, error) {
	var group []models.BackupArtifact
	for _, a := range artifacts {
		if a.Host == host && a.Project == project {
			group = append(group, a)
		}
	}

	sort.Slice(group, func(i, j int) bool { return group[i].Timestamp.After(group[j].Timestamp) })

	if len(group) <= retention {
		return 0, 0, nil
	}
	doomed := group[retention:]

	var freed int64
	removed := 0
	var lastErr error

	for _, a := range doomed {
		// The archive written by this run is never deleted, wherever it
		// sorted.
		if currentArchive != "" && path.Base(a.Path) == currentArchive {
			continue
		}
		command := fmt.Sprintf("rm -f -- %s", a.Path)
		outcome, err := session.Run(ctx, command, deleteTimeout)
		if err == nil {
			err = ssh.CheckOutcome(command, deleteTimeout, outcome)
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("artifact", a.Path).Msg("failed to delete artifact")
			lastErr = err
			continue
		}

		freed += a.SizeBytes
		removed++
		s.logger.Info().
			Str("host", host).
			Str("project", project).
			Str("artifact", path.Base(a.Path)).
			Msg("removed old backup")
	}

	return freed, removed, lastErr
}
