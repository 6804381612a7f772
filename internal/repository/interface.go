package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"mimi/internal/model"
)

// ErrNotFound is returned when no job matches, or a terminal update finds
// the job already finished.
var ErrNotFound = errors.New("job not found")

// JobRepository defines the interface for job data access
type JobRepository interface {
	// Create inserts a new job record
	Create(ctx context.Context, job *model.Job) error

	// Finish writes the terminal state of a running job. It succeeds at most once per job.
	Finish(ctx context.Context, job *model.Job) error

	// GetByID retrieves a job by ID
	GetByID(ctx context.Context, id uuid.UUID) (*model.Job, error)

	// ListRecent retrieves the newest jobs with pagination
	ListRecent(ctx context.Context, limit, offset int) ([]model.Job, error)

	// ListByUser retrieves jobs for a user with pagination
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]model.Job, error)
}
