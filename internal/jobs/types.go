package jobs

import (
	"context"
	"time"
)

// JobStatus represents the current status of a work unit.
type JobStatus string

const (
	// JobStatusPending indicates the unit is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the unit is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the unit was fetched and written.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the unit produced an error record.
	JobStatusFailed JobStatus = "failed"
)

// UnitJob tracks one (account, date) work unit through a run.
type UnitJob struct {
	// JobID is the unique identifier for this unit within the run.
	JobID string `json:"job_id"`

	Account string `json:"account"`
	Date    string `json:"date"`

	Status JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// RawPath is the raw file written for the unit, if any.
	RawPath string `json:"raw_path,omitempty"`

	// Error contains the recorded error if the unit failed.
	Error string `json:"error,omitempty"`

	// LoadError is set when the warehouse load failed. It does not by itself
	// fail the unit.
	LoadError string `json:"load_error,omitempty"`
}

// JobFilter narrows ListJobs results.
type JobFilter struct {
	Account string
	Status  JobStatus
	Limit   int
	Offset  int
}

// JobStore persists unit jobs for the duration of a run.
type JobStore interface {
	// SaveJob saves or updates a job.
	SaveJob(ctx context.Context, job *UnitJob) error

	// ListJobs retrieves jobs in insertion order, optionally filtered.
	ListJobs(ctx context.Context, filter JobFilter) ([]*UnitJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}
