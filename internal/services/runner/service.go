// Package runner coordinates backup and update operations across hosts.
package runner

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/felden/docker-manager/internal/config"
	"github.com/felden/docker-manager/internal/models"
	"github.com/felden/docker-manager/internal/services/artifact"
	"github.com/felden/docker-manager/internal/services/backup"
	"github.com/felden/docker-manager/internal/services/discovery"
	"github.com/felden/docker-manager/internal/services/notify"
	"github.com/felden/docker-manager/internal/services/retention"
	"github.com/felden/docker-manager/internal/services/scheduler"
	"github.com/felden/docker-manager/internal/services/ssh"
	"github.com/felden/docker-manager/internal/services/update"
	"github.com/felden/docker-manager/internal/services/wol"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Operation restricts which engines a run invokes.
type Operation string

// Supported operations.
const (
	OperationAll    Operation = "all"
	OperationBackup Operation = "backup"
	OperationUpdate Operation = "update"
)

// Selection filters the (host, project) pairs of a run.
type Selection struct {
	Host      string // empty selects every host
	Project   string // empty selects every project
	Force     bool   // bypass the schedule check
	Operation Operation
}

// Service defines the interface for the run coordinator.
type Service interface {
	Run(ctx context.Context, cfg *models.GlobalConfig, sel Selection) (*models.RunSummary, error)
	Cleanup(ctx context.Context, cfg *models.GlobalConfig) (int64, int, error)
	Discover(ctx context.Context, cfg *models.GlobalConfig, hostFilter string) (map[string][]models.Project, error)
}

// Impl implements the runner Service interface.
type Impl struct {
	executor     ssh.Service
	wolSvc       wol.Service
	discoverySvc discovery.Service
	artifactSvc  artifact.Service
	backupSvc    backup.Service
	updateSvc    update.Service
	retentionSvc retention.Service
	notifySvc    notify.Service
	logger       zerolog.Logger
}

// New creates a new runner service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		executor:     ssh.New(logger),
		wolSvc:       wol.New(logger),
		discoverySvc: discovery.New(logger),
		artifactSvc:  artifact.New(logger),
		backupSvc:    backup.New(logger),
		updateSvc:    update.New(logger),
		retentionSvc: retention.New(logger),
		notifySvc:    notify.New(logger),
		logger:       logger,
	}
}

// NewWithServices creates a new runner service with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	executor ssh.Service,
	wolSvc wol.Service,
	discoverySvc discovery.Service,
	artifactSvc artifact.Service,
	backupSvc backup.Service,
	updateSvc update.Service,
	retentionSvc retention.Service,
	notifySvc notify.Service,
) *Impl {
	return &Impl{
		executor:     executor,
		wolSvc:       wolSvc,
		discoverySvc: discoverySvc,
		artifactSvc:  artifactSvc,
		backupSvc:    backupSvc,
		updateSvc:    updateSvc,
		retentionSvc: retentionSvc,
		notifySvc:    notifySvc,
		logger:       logger,
	}
}

// Run walks every selected (host, project) pair. Hosts are processed in
// parallel up to the configured bound; projects within a host strictly
// sequentially. After each host's walk the remaining artifact groups are
// pruned (unless the run is update-only). Item failures are recorded and
// never abort the run; only an invalid selection returns an error.
func (s *Impl) Run(ctx context.Context, cfg *models.GlobalConfig, sel Selection) (*models.RunSummary, error) {
	start := time.Now()

	if sel.Operation == "" {
		sel.Operation = OperationAll
	}

	hosts, err := selectHosts(cfg, sel.Host)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int("hosts", len(hosts)).
		Bool("force", sel.Force).
		Str("operation", string(sel.Operation)).
		Msg("run started")

	summary := &models.RunSummary{}
	var mu sync.Mutex
	var cleanupFreed int64
	cleanupRemoved := 0

	group, groupCtx := errgroup.WithContext(ctx)
	limit := cfg.Concurrency.MaxHosts
	if len(hosts) < limit {
		limit = len(hosts)
	}
	group.SetLimit(limit)

	for _, host := range hosts {
		host := host
		group.Go(func() error {
			items, freed, removed := s.runHost(groupCtx, cfg, host, sel)
			mu.Lock()
			for _, item := range items {
				summary.Add(item)
			}
			summary.BytesFreed += freed
			cleanupFreed += freed
			cleanupRemoved += removed
			mu.Unlock()
			return nil
		})
	}

	_ = group.Wait() // host workers never return errors; failures live in items

	summary.Elapsed = time.Since(start)

	s.logger.Info().
		Int("projects", summary.TotalProjects).
		Int("backups_ok", summary.BackupsSucceeded).
		Int("backups_failed", summary.BackupsFailed).
		Int("backups_skipped", summary.BackupsSkipped).
		Int("updates_applied", summary.UpdatesApplied).
		Int("updates_failed", summary.UpdatesFailed).
		Dur("elapsed", summary.Elapsed).
		Msg("run finished")

	s.notifyRun(ctx, cfg, sel, summary)
	s.notifyCleanup(ctx, cfg, cleanupRemoved, cleanupFreed)

	return summary, nil
}

// runHost processes one host's project list over a single session, then
// prunes the host's remaining artifact groups. A dial failure yields one
// host-level item carrying the connectivity error.
func (s *Impl) runHost(ctx context.Context, cfg *models.GlobalConfig, host models.HostConfig, sel Selection) ([]models.ItemResult, int64, int) {
	logger := s.logger.With().Str("host", host.Name).Logger()

	if host.WOL != nil {
		result, err := s.wolSvc.Wake(ctx, *host.WOL)
		if err != nil || result.Error != nil {
			if err == nil {
				err = result.Error
			}
			logger.Warn().Err(err).Msg("wake-on-lan failed, dialing anyway")
		}
	}

	session, err := s.executor.Dial(ctx, host, cfg.SSH)
	if err != nil {
		logger.Error().Err(err).Msg("host unreachable")
		return []models.ItemResult{{Host: host.Name, Err: err}}, 0, 0
	}
	defer func() { _ = session.Close() }()

	projects, err := s.discoverySvc.Discover(ctx, session, host)
	if err != nil {
		logger.Error().Err(err).Msg("project discovery failed")
		return []models.ItemResult{{Host: host.Name, Err: err}}, 0, 0
	}

	artifacts, err := s.artifactSvc.List(ctx, session, cfg.Backup.Root, host.Name)
	if err != nil {
		logger.Error().Err(err).Msg("artifact listing failed")
		return []models.ItemResult{{Host: host.Name, Err: err}}, 0, 0
	}

	var items []models.ItemResult
	handled := make(map[string]bool)
	for _, project := range projects {
		if sel.Project != "" && project.Name != sel.Project {
			continue
		}
		if !config.Eligible(cfg, project.Name, host.Name) {
			continue
		}

		// A cancelled run stops dispatching new items; the item in flight
		// has already run to completion.
		if ctx.Err() != nil {
			logger.Warn().Msg("run cancelled, skipping remaining projects")
			break
		}

		item := s.runItem(ctx, cfg, session, host, project, sel, artifacts)
		if item.BackupSucceeded {
			handled[project.Name] = true
		}
		items = append(items, item)
	}

	// Groups the item loop did not prune still get their retention pass:
	// skipped projects, pinned-away projects and orphaned groups whose
	// project no longer exists on the host.
	var freed int64
	removed := 0
	if sel.Operation != OperationUpdate && ctx.Err() == nil {
		freed, removed, err = s.cleanupGroups(ctx, cfg, session, host, artifacts, handled)
		if err != nil {
			logger.Warn().Err(err).Msg("post-run cleanup incomplete")
		}
	}

	return items, freed, removed
}

//nolint:gocognit // one policy walk per item
func (s *Impl) runItem(ctx context.Context, cfg *models.GlobalConfig, session ssh.Session,
	host models.HostConfig, project models.Project, sel Selection, artifacts []models.BackupArtifact) models.ItemResult {
	logger := s.logger.With().Str("host", host.Name).Str("project", project.Name).Logger()

	pcfg, err := config.Resolve(cfg, project.Name)
	if err != nil {
		return models.ItemResult{Host: host.Name, Project: project.Name, Err: err}
	}

	result := models.ItemResult{Host: host.Name, Project: project.Name}

	backupEligible := pcfg.Behavior != models.BehaviorUpdateOnly && sel.Operation != OperationUpdate
	updateEligible := pcfg.Behavior != models.BehaviorBackupOnly && sel.Operation != OperationBackup

	if backupEligible {
		if sel.Force || scheduler.IsDue(host.Name, project.Name, pcfg.Schedule, artifacts, time.Now()) {
			result = *s.backupSvc.Backup(ctx, session, host, project, pcfg, cfg.Backup, cfg.SSH.CommandTimeout)

			if result.BackupSucceeded {
				group := artifacts
				if h, p, ts, ok := artifact.Parse(result.ArchiveName); ok {
					group = append(group, models.BackupArtifact{
						Host:      h,
						Project:   p,
						Timestamp: ts,
						Path:      cfg.Backup.Root + "/" + result.ArchiveName,
						SizeBytes: result.ArchiveBytes,
					})
				}

				freed, _, err := s.retentionSvc.Enforce(ctx, session, host.Name, project.Name,
					pcfg.Retention, group, result.ArchiveName)
				result.BytesFreed = freed
				if err != nil && result.Err == nil {
					result.Err = err
				}
			}
		} else {
			result.BackupSkipped = true
			result.SkipReason = "not due"
			logger.Info().Str("schedule", string(pcfg.Schedule)).Msg("backup not due")
		}
	}

	if updateEligible {
		if models.IsRestartFailure(result.Err) && cfg.Update.OnRestartFailure == "skip" {
			logger.Warn().Msg("skipping update after restart failure")
			result.UpdateAttempted = true
			result.UpdateStatus = models.UpdateSkipped
			return result
		}

		result.UpdateAttempted = true
		status, pulled, err := s.updateSvc.Update(ctx, session, host, project, cfg.SSH.CommandTimeout)
		result.UpdateStatus = status
		result.ImagesPulled = pulled
		if err != nil && result.Err == nil {
			result.Err = err
		}
	}

	return result
}

// Cleanup enforces retention for every artifact group in the backup root,
// including groups whose project no longer exists on any host.
func (s *Impl) Cleanup(ctx context.Context, cfg *models.GlobalConfig) (int64, int, error) {
	hosts, err := selectHosts(cfg, "")
	if err != nil {
		return 0, 0, err
	}

	var totalFreed int64
	totalRemoved := 0
	var lastErr error

	for _, host := range hosts {
		session, err := s.executor.Dial(ctx, host, cfg.SSH)
		if err != nil {
			s.logger.Error().Err(err).Str("host", host.Name).Msg("skipping unreachable host")
			lastErr = err
			continue
		}

		artifacts, err := s.artifactSvc.List(ctx, session, cfg.Backup.Root, host.Name)
		if err != nil {
			_ = session.Close()
			s.logger.Error().Err(err).Str("host", host.Name).Msg("artifact listing failed")
			lastErr = err
			continue
		}

		freed, removed, err := s.cleanupGroups(ctx, cfg, session, host, artifacts, nil)
		totalFreed += freed
		totalRemoved += removed
		if err != nil {
			lastErr = err
		}

		_ = session.Close()
	}

	s.notifyCleanup(ctx, cfg, totalRemoved, totalFreed)

	return totalFreed, totalRemoved, lastErr
}

// cleanupGroups enforces retention for every artifact group found on the
// host, in name order. Groups named in skip were already pruned by the
// caller and are left alone.
func (s *Impl) cleanupGroups(ctx context.Context, cfg *models.GlobalConfig, session ssh.Session,
	host models.HostConfig, artifacts []models.BackupArtifact, skip map[string]bool) (int64, int, error) {
	groups := make(map[string]struct{})
	for _, a := range artifacts {
		groups[a.Project] = struct{}{}
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		if skip[name] {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var freed int64
	removed := 0
	var lastErr error

	for _, name := range names {
		pcfg, err := config.Resolve(cfg, name)
		if err != nil {
			lastErr = err
			continue
		}

		f, r, err := s.retentionSvc.Enforce(ctx, session, host.Name, name,
			pcfg.Retention, artifacts, "")
		freed += f
		removed += r
		if err != nil {
			lastErr = err
		}
	}

	return freed, removed, lastErr
}

func (s *Impl) notifyCleanup(ctx context.Context, cfg *models.GlobalConfig, removed int, freed int64) {
	if removed == 0 || !cfg.Notifications.Enabled {
		return
	}
	if result, err := s.notifySvc.SendCleanup(ctx, cfg.Notifications.Ntfy, removed, freed); err != nil || result.Error != nil {
		s.logger.Error().AnErr("err", firstErr(err, result)).Msg("failed to send cleanup notification")
	}
}

// Discover lists projects per host without touching them.
func (s *Impl) Discover(ctx context.Context, cfg *models.GlobalConfig, hostFilter string) (map[string][]models.Project, error) {
	hosts, err := selectHosts(cfg, hostFilter)
	if err != nil {
		return nil, err
	}

	all := make(map[string][]models.Project, len(hosts))
	for _, host := range hosts {
		session, err := s.executor.Dial(ctx, host, cfg.SSH)
		if err != nil {
			s.logger.Error().Err(err).Str("host", host.Name).Msg("host unreachable")
			all[host.Name] = nil
			continue
		}

		projects, err := s.discoverySvc.Discover(ctx, session, host)
		_ = session.Close()
		if err != nil {
			s.logger.Error().Err(err).Str("host", host.Name).Msg("discovery failed")
			all[host.Name] = nil
			continue
		}
		all[host.Name] = projects
	}

	return all, nil
}

func (s *Impl) notifyRun(ctx context.Context, cfg *models.GlobalConfig, sel Selection, summary *models.RunSummary) {
	if !cfg.Notifications.Enabled {
		return
	}

	if sel.Operation == OperationAll || sel.Operation == OperationBackup {
		if result, err := s.notifySvc.SendBackupSummary(ctx, cfg.Notifications.Ntfy, summary); err != nil || result.Error != nil {
			s.logger.Error().AnErr("err", firstErr(err, result)).Msg("failed to send backup notification")
		}
	}
	if sel.Operation == OperationAll || sel.Operation == OperationUpdate {
		if result, err := s.notifySvc.SendUpdateSummary(ctx, cfg.Notifications.Ntfy, summary); err != nil || result.Error != nil {
			s.logger.Error().AnErr("err", firstErr(err, result)).Msg("failed to send update notification")
		}
	}
}

// selectHosts returns the targeted hosts in name order.
func selectHosts(cfg *models.GlobalConfig, filter string) ([]models.HostConfig, error) {
	if filter != "" {
		host, ok := cfg.Hosts[filter]
		if !ok {
			return nil, models.NewConfigError("host %q is not defined in global.hosts", filter)
		}
		return []models.HostConfig{host}, nil
	}

	hosts := make([]models.HostConfig, 0, len(cfg.Hosts))
	for _, host := range cfg.Hosts {
		hosts = append(hosts, host)
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Name < hosts[j].Name })
	return hosts, nil
}

func firstErr(err error, result *models.NotifyResult) error {
	if err != nil {
		return err
	}
	if result != nil {
		return result.Error
	}
	return nil
}
