// Package jobs tracks conversion jobs from submission to their terminal
// state and records the events emitted along the way.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"voice-converter/internal/domain"
)

// ErrNotFound is returned when no job exists for the requested id.
var ErrNotFound = errors.New("job not found")

// ErrDuplicateJob is returned when creating a job with a taken id.
var ErrDuplicateJob = errors.New("job id already exists")

// Store persists jobs and enforces their state machine. Implementations
// must return snapshots: mutating a returned job never changes the store.
type Store interface {
	// Create registers a new job. Status defaults to queued.
	Create(ctx context.Context, job domain.Job) error
	// Get returns a snapshot of one job.
	Get(ctx context.Context, id string) (domain.Job, error)
	// List returns snapshots of all jobs, newest first.
	List(ctx context.Context) ([]domain.Job, error)
	// SetStatus applies a validated status transition.
	SetStatus(ctx context.Context, id string, status domain.JobStatus, message string) error
	// SetProgress updates progress and message on a processing job.
	// Progress never moves backwards.
	SetProgress(ctx context.Context, id string, progress float64, message string) error
	// Complete marks the job completed with its output reference.
	Complete(ctx context.Context, id, outputRef, message string) error
	// Fail marks the job failed. Progress is left where it was.
	Fail(ctx context.Context, id, errorMessage string) error
	// Close releases any underlying resources.
	Close() error
}

// validTransition enforces the allowed job state machine edges.
func validTransition(from, to domain.JobStatus) bool {
	switch from {
	case domain.JobStatusQueued:
		return to == domain.JobStatusProcessing || to == domain.JobStatusFailed
	case domain.JobStatusProcessing:
		return to == domain.JobStatusCompleted || to == domain.JobStatusFailed
	default:
		return false
	}
}

func transitionError(id string, from, to domain.JobStatus) error {
	return fmt.Errorf("job %s: invalid transition %s -> %s", id, from, to)
}
