// internal/domain/execution.go
package domain

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// ExecutionStatus defines the outcome of a job dispatch.
type ExecutionStatus string

const (
	ExecutionStatusRunning ExecutionStatus = "running"
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailed  ExecutionStatus = "failed"
	// ExecutionStatusSkipped marks a dispatch that parked the job without running it.
	ExecutionStatusSkipped ExecutionStatus = "skipped"
)

// ExecutionRecord represents a single dispatch of a job.
type ExecutionRecord struct {
	ID          string          `json:"id"`                     // Unique ID for this dispatch
	JobID       string          `json:"job_id"`                 // ID of the dispatched job
	JobName     string          `json:"job_name,omitempty"`     // Name of the job, if any
	StartTime   time.Time       `json:"start_time"`             // When the dispatch started
	EndTime     time.Time       `json:"end_time"`               // When the dispatch ended
	Status      ExecutionStatus `json:"status"`                 // running, success, failed, skipped
	Runs        int             `json:"runs"`                   // Program invocations, including catch-up runs
	JobStatus   JobStatus       `json:"job_status,omitempty"`   // Job status after the dispatch
	Error       string          `json:"error,omitempty"`        // Error message if the dispatch failed
	FailureCode int             `json:"failure_code,omitempty"` // Code captured in the job's failure record
}

// Validate checks if the execution record is valid.
func (r *ExecutionRecord) Validate() error {
	if r.ID == "" {
		return errors.New("execution record ID cannot be empty")
	}
	if r.JobID == "" {
		return errors.New("execution record job ID cannot be empty")
	}
	if r.StartTime.IsZero() {
		return errors.New("execution record start time cannot be zero")
	}
	if r.Status == "" {
		return errors.New("execution record status cannot be empty")
	}
	return nil
}

// ExecutionRepository defines the interface for persisting and retrieving execution records.
type ExecutionRepository interface {
	// Save persists a single execution record.
	Save(ctx context.Context, record *ExecutionRecord) error
	// ListByJobID retrieves historical execution records for a job, newest first, with pagination.
	ListByJobID(ctx context.Context, jobID string, page, pageSize int) ([]*ExecutionRecord, error)
	// Get retrieves a single execution record by its job ID and execution ID.
	Get(ctx context.Context, jobID, executionID string) (*ExecutionRecord, error)
}
