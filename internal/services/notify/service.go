// Package notify delivers run summaries via ntfy.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/felden/docker-manager/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for notifications. Delivery failure is never
// fatal: every method stores its error in the result.
type Service interface {
	SendBackupSummary(ctx context.Context, cfg models.NtfyConfig, summary *models.RunSummary) (*models.NotifyResult, error)
	SendUpdateSummary(ctx context.Context, cfg models.NtfyConfig, summary *models.RunSummary) (*models.NotifyResult, error)
	SendCleanup(ctx context.Context, cfg models.NtfyConfig, removed int, freedBytes int64) (*models.NotifyResult, error)
	SendTest(ctx context.Context, cfg models.NtfyConfig) (*models.NotifyResult, error)
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl implements the notify Service interface.
type Impl struct {
	httpClient HTTPClient
	logger     zerolog.Logger
	retryWait  time.Duration
}

// New creates a new notify service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		retryWait:  2 * time.Second,
	}
}

// NewWithClient creates a new notify service with a custom HTTP client (for testing).
func NewWithClient(logger zerolog.Logger, httpClient HTTPClient, retryWait time.Duration) *Impl {
	return &Impl{
		httpClient: httpClient,
		logger:     logger,
		retryWait:  retryWait,
	}
}

const maxAttempts = 3

// send posts one message to the configured topic, retrying transient
// failures with a fresh request each time.
func (s *Impl) send(ctx context.Context, cfg models.NtfyConfig, title, message, priority, tags string) (*models.NotifyResult, error) {
	result := &models.NotifyResult{}
	url := fmt.Sprintf("%s/%s", strings.TrimRight(cfg.Server, "/"), cfg.Topic)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(message))
		if err != nil {
			result.Error = fmt.Errorf("failed to create request: %w", err)
			return result, nil
		}

		req.Header.Set("Title", title)
		req.Header.Set("Priority", priority)
		req.Header.Set("Tags", tags)
		if cfg.Username != "" {
			req.SetBasicAuth(cfg.Username, cfg.Password)
		}

		resp, err := s.httpClient.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode < 300 {
				result.MessageSent = true
				s.logger.Info().Str("title", title).Msg("notification sent")
				return result, nil
			}
			lastErr = fmt.Errorf("ntfy returned status %d", resp.StatusCode)
		} else {
			lastErr = err
		}

		if attempt < maxAttempts {
			s.logger.Warn().Err(lastErr).Int("attempt", attempt).Msg("notification attempt failed, retrying")
			select {
			case <-ctx.Done():
				result.Error = ctx.Err()
				return result, nil
			case <-time.After(s.retryWait):
			}
		}
	}

	result.Error = lastErr
	return result, nil
}

// SendBackupSummary reports the backup half of a run.
func (s *Impl) SendBackupSummary(ctx context.Context, cfg models.NtfyConfig, summary *models.RunSummary) (*models.NotifyResult, error) {
	var title, priority, tags string
	switch {
	case summary.BackupsFailed > 0:
		priority = "high"
		tags = "warning,floppy_disk,docker"
		title = fmt.Sprintf("Docker Manager: %d backed up, %d failed", summary.BackupsSucceeded, summary.BackupsFailed)
	case summary.BackupsSucceeded > 0:
		priority = "default"
		tags = "white_check_mark,floppy_disk,docker"
		title = fmt.Sprintf("Docker Manager: %d backups completed", summary.BackupsSucceeded)
	default:
		priority = "low"
		tags = "checkmark,floppy_disk,docker"
		title = "Docker Manager: All backups up-to-date"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Backup complete\n")
	fmt.Fprintf(&b, "Projects: %d (%d containers)\n", summary.TotalProjects, summary.TotalContainers)
	fmt.Fprintf(&b, "Successful: %d\n", summary.BackupsSucceeded)
	if summary.BackupsFailed > 0 {
		fmt.Fprintf(&b, "Failed: %d\n", summary.BackupsFailed)
	}
	if summary.BackupsSkipped > 0 {
		fmt.Fprintf(&b, "Skipped: %d\n", summary.BackupsSkipped)
	}
	fmt.Fprintf(&b, "\nTotal size: %s", humanize.Bytes(uint64(summary.TotalArchiveBytes)))

	return s.send(ctx, cfg, title, b.String(), priority, tags)
}

// SendUpdateSummary reports the update half of a run.
func (s *Impl) SendUpdateSummary(ctx context.Context, cfg models.NtfyConfig, summary *models.RunSummary) (*models.NotifyResult, error) {
	var title, priority, tags string
	switch {
	case summary.UpdatesFailed > 0:
		priority = "high"
		tags = "warning,arrows_counterclockwise,docker"
		title = fmt.Sprintf("Docker Manager: %d updated, %d failed", summary.UpdatesApplied, summary.UpdatesFailed)
	case summary.UpdatesApplied > 0:
		priority = "default"
		tags = "white_check_mark,arrows_counterclockwise,docker"
		title = fmt.Sprintf("Docker Manager: %d updates applied", summary.UpdatesApplied)
	default:
		priority = "low"
		tags = "checkmark,docker"
		title = "Docker Manager: All up-to-date"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Updates complete\n")
	fmt.Fprintf(&b, "Checked: %d projects\n", summary.TotalProjects)
	fmt.Fprintf(&b, "Updated: %d\n", summary.UpdatesApplied)
	if summary.UpdatesFailed > 0 {
		fmt.Fprintf(&b, "Failed: %d\n", summary.UpdatesFailed)
	}
	if summary.UpdatesSkipped > 0 {
		fmt.Fprintf(&b, "Up-to-date: %d", summary.UpdatesSkipped)
	}

	return s.send(ctx, cfg, title, b.String(), priority, tags)
}

// SendCleanup reports a retention pass.
func (s *Impl) SendCleanup(ctx context.Context, cfg models.NtfyConfig, removed int, freedBytes int64) (*models.NotifyResult, error) {
	message := fmt.Sprintf("Old backups removed\nBackups removed: %d\nSpace freed: %s",
		removed, humanize.Bytes(uint64(freedBytes)))

	return s.send(ctx, cfg, "Docker Manager: Cleanup Complete", message, "low", "broom,floppy_disk")
}

// SendTest sends a test message.
func (s *Impl) SendTest(ctx context.Context, cfg models.NtfyConfig) (*models.NotifyResult, error) {
	return s.send(ctx, cfg, "Docker Manager Test",
		"If you received this, notifications are working!", "low", "test_tube,white_check_mark")
}
