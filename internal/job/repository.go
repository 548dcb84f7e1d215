package job

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned when a job cannot be found by ID.
var ErrJobNotFound = errors.New("job not found")

// Repository remembers job lifecycle state between requests. Artifacts live
// in storage; a cleaned job stays here as a CLEANED tombstone so later
// requests for it report not found instead of rehydrating.
type Repository interface {
	// Save stores job, replacing any earlier version with the same ID.
	Save(ctx context.Context, job *Job) error

	// FindByID returns ErrJobNotFound for unknown IDs.
	FindByID(ctx context.Context, id string) (*Job, error)

	// List returns jobs in the order they were first saved, keeping only
	// those whose status is in statuses. No statuses means every job.
	List(ctx context.Context, statuses ...Status) ([]*Job, error)
}
