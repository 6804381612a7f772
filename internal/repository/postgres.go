package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"mimi/internal/model"
)

const jobColumns = `
	id, user_id, filename, model, stt_provider, language, status, duration_ms,
	transcript, summary, error_kind, error_message, metadata, created_at, finished_at`

type postgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sql.DB) JobRepository {
	return &postgresRepository{db: db}
}

// Create creates a new job record
func (r *postgresRepository) Create(ctx context.Context, job *model.Job) error {
	query := `
		INSERT INTO jobs (
			id, user_id, filename, model, stt_provider, language, status, metadata, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9
		)
	`

	metadataJSON, err := marshalMetadata(job.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		job.ID,
		job.UserID,
		job.Filename,
		job.Model,
		job.Provider,
		job.Language,
		string(job.Status),
		metadataJSON,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// Finish writes the terminal state. Only a row still in the running state is
// updated, so a second Finish for the same job reports ErrNotFound.
func (r *postgresRepository) Finish(ctx context.Context, job *model.Job) error {
	query := `
		UPDATE jobs
		SET
			status = $1,
			duration_ms = $2,
			transcript = $3,
			summary = $4,
			error_kind = $5,
			error_message = $6,
			metadata = $7::jsonb,
			finished_at = $8
		WHERE id = $9 AND status = $10
	`

	metadataJSON, err := marshalMetadata(job.Metadata)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, query,
		string(job.Status),
		job.DurationMs,
		job.Transcript,
		job.Summary,
		job.ErrorKind,
		job.ErrorMessage,
		metadataJSON,
		job.FinishedAt,
		job.ID,
		string(model.StatusRunning),
	)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("job %s is not running: %w", job.ID, ErrNotFound)
	}

	return nil
}

// GetByID retrieves a job by ID
func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// ListRecent retrieves the newest jobs with pagination
func (r *postgresRepository) ListRecent(ctx context.Context, limit, offset int) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM jobs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	return r.list(ctx, query, limit, offset)
}

// ListByUser retrieves jobs for a user with pagination
func (r *postgresRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	return r.list(ctx, query, userID, limit, offset)
}

func (r *postgresRepository) list(ctx context.Context, query string, args ...interface{}) ([]model.Job, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	jobs := []model.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return jobs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var job model.Job
	var status string
	var metadataJSON []byte

	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Filename,
		&job.Model,
		&job.Provider,
		&job.Language,
		&status,
		&job.DurationMs,
		&job.Transcript,
		&job.Summary,
		&job.ErrorKind,
		&job.ErrorMessage,
		&metadataJSON,
		&job.CreatedAt,
		&job.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Status = model.JobStatus(status)

	job.Metadata = make(map[string]interface{})
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &job.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &job, nil
}

func marshalMetadata(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		m = map[string]interface{}{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return b, nil
}
