package integration

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Sync Job
// ---------------------------------------------------------------------------

// SyncJobStatus is the lifecycle state of a sync job
type SyncJobStatus string

const (
	// SyncJobRunning indicates the job is in progress
	SyncJobRunning SyncJobStatus = "RUNNING"
	// SyncJobSuccess indicates every order in the window was handled
	SyncJobSuccess SyncJobStatus = "SUCCESS"
	// SyncJobFailed indicates an abort or at least one failed order
	SyncJobFailed SyncJobStatus = "FAILED"
)

// IsValid returns true if the status is valid
func (s SyncJobStatus) IsValid() bool {
	switch s {
	case SyncJobRunning, SyncJobSuccess, SyncJobFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of SyncJobStatus
func (s SyncJobStatus) String() string {
	return string(s)
}

// StaleJobMessage is recorded on jobs expired by the staleness sweep
const StaleJobMessage = "auto-expired: job exceeded staleness threshold"

// DefaultStaleAfter is how long a RUNNING job may live before it is expired
const DefaultStaleAfter = 10 * time.Minute

// SyncStats counts what happened to the orders of one sync run
type SyncStats struct {
	Fetched int
	Created int
	Updated int
	Skipped int
	Errors  int
}

// SyncJob records one polling run against one shop
type SyncJob struct {
	ID           uuid.UUID
	ConfigID     uuid.UUID
	Platform     Platform
	ShopID       string
	Status       SyncJobStatus
	StartedAt    time.Time
	FinishedAt   *time.Time
	WindowFrom   *time.Time
	WindowTo     *time.Time
	Fetched      int
	Created      int
	Updated      int
	Skipped      int
	Errors       int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewSyncJob creates a RUNNING job for cfg
func NewSyncJob(cfg *PlatformAdapterConfig, now time.Time) *SyncJob {
	job := &SyncJob{
		ID:        uuid.New(),
		ConfigID:  cfg.ID,
		Platform:  cfg.Platform,
		ShopID:    cfg.ShopID,
		CreatedAt: now,
	}
	job.Start(now)
	return job
}

// Start marks the job RUNNING
func (j *SyncJob) Start(now time.Time) {
	j.Status = SyncJobRunning
	j.StartedAt = now
	j.FinishedAt = nil
	j.ErrorMessage = ""
	j.UpdatedAt = now
}

// Complete finishes the job from its counters. Any per-order error makes the
// job FAILED with a summary that quotes the first error.
func (j *SyncJob) Complete(stats SyncStats, firstErr error, now time.Time) {
	j.RecordStats(stats)
	j.FinishedAt = &now
	j.UpdatedAt = now
	if stats.Errors == 0 {
		j.Status = SyncJobSuccess
		j.ErrorMessage = ""
		return
	}
	j.Status = SyncJobFailed
	msg := "unknown error"
	if firstErr != nil {
		msg = firstErr.Error()
	}
	j.ErrorMessage = fmt.Sprintf("%d order(s) failed: %s", stats.Errors, msg)
}

// RecordStats copies the run counters onto the job
func (j *SyncJob) RecordStats(stats SyncStats) {
	j.Fetched = stats.Fetched
	j.Created = stats.Created
	j.Updated = stats.Updated
	j.Skipped = stats.Skipped
	j.Errors = stats.Errors
}

// Stats returns the run counters of the job
func (j *SyncJob) Stats() SyncStats {
	return SyncStats{Fetched: j.Fetched, Created: j.Created, Updated: j.Updated, Skipped: j.Skipped, Errors: j.Errors}
}

// Fail aborts the job
func (j *SyncJob) Fail(msg string, now time.Time) {
	j.Status = SyncJobFailed
	j.ErrorMessage = msg
	j.FinishedAt = &now
	j.UpdatedAt = now
}

// IsRunning returns true if the job has not finished
func (j *SyncJob) IsRunning() bool {
	return j.Status == SyncJobRunning
}

// IsStale returns true if the job has been RUNNING longer than threshold
func (j *SyncJob) IsStale(now time.Time, threshold time.Duration) bool {
	return j.Status == SyncJobRunning && now.Sub(j.StartedAt) > threshold
}

// Expire marks a stale job FAILED
func (j *SyncJob) Expire(now time.Time) {
	j.Fail(StaleJobMessage, now)
}

// Duration returns how long the job ran, or has been running
func (j *SyncJob) Duration(now time.Time) time.Duration {
	if j.FinishedAt != nil {
		return j.FinishedAt.Sub(j.StartedAt)
	}
	return now.Sub(j.StartedAt)
}

// SyncJobFilter filters sync job listings
type SyncJobFilter struct {
	ConfigID *uuid.UUID
	Platform Platform
	Status   SyncJobStatus
	Page     int
	PageSize int
	OrderBy  string
	OrderDir string
}

// Normalize applies paging defaults
func (f *SyncJobFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 200 {
		f.PageSize = 20
	}
}
