package models

import "time"

// ExecutionOutcome is the captured result of one remote command.
type ExecutionOutcome struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

// BackupArtifact is a completed backup discovered in the backup root.
type BackupArtifact struct {
	Host      string
	Project   string
	Timestamp time.Time
	Path      string
	SizeBytes int64
}

// UpdateStatus describes the outcome of an update check.
type UpdateStatus string

// Update outcomes.
const (
	UpdateApplied  UpdateStatus = "updated"
	UpdateUpToDate UpdateStatus = "up-to-date"
	UpdateSkipped  UpdateStatus = "skipped"
	UpdateFailed   UpdateStatus = "failed"
)

// ItemResult is the per-(host, project) outcome of one run.
type ItemResult struct {
	Host    string
	Project string

	BackupAttempted bool
	BackupSucceeded bool
	BackupSkipped   bool
	SkipReason      string
	ArchiveName     string
	ArchiveBytes    int64
	Containers      int // containers running before the backup stopped them

	UpdateAttempted bool
	UpdateStatus    UpdateStatus
	ImagesPulled    int

	BytesFreed int64

	Err error // nil on full success
}

// RunSummary aggregates all item results of one run.
type RunSummary struct {
	Items []ItemResult

	TotalProjects     int
	TotalContainers   int
	BackupsSucceeded  int
	BackupsFailed     int
	BackupsSkipped    int
	UpdatesApplied    int
	UpdatesFailed     int
	UpdatesSkipped    int
	TotalArchiveBytes int64
	BytesFreed        int64

	Elapsed time.Duration
}

// Add records one item result and updates the counters. Host-level items
// (no project name, e.g. a dial failure) carry an error but are not projects.
func (s *RunSummary) Add(item ItemResult) {
	s.Items = append(s.Items, item)
	if item.Project != "" {
		s.TotalProjects++
	}
	s.TotalContainers += item.Containers

	switch {
	case item.BackupSkipped:
		s.BackupsSkipped++
	case item.BackupAttempted && item.BackupSucceeded:
		s.BackupsSucceeded++
		s.TotalArchiveBytes += item.ArchiveBytes
	case item.BackupAttempted:
		s.BackupsFailed++
	}

	if item.UpdateAttempted {
		switch item.UpdateStatus {
		case UpdateApplied:
			s.UpdatesApplied++
		case UpdateFailed:
			s.UpdatesFailed++
		default:
			s.UpdatesSkipped++
		}
	}

	s.BytesFreed += item.BytesFreed
}

// Failed returns the number of items that recorded any error.
func (s *RunSummary) Failed() int {
	n := 0
	for _, item := range s.Items {
		if item.Err != nil {
			n++
		}
	}
	return n
}
