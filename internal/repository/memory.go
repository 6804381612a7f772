package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"mimi/internal/model"
)

type memoryRepository struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*model.Job
}

// NewMemoryRepository creates a process-local repository for running
// without a database. Jobs are lost on restart.
func NewMemoryRepository() JobRepository {
	return &memoryRepository{jobs: make(map[uuid.UUID]*model.Job)}
}

func (r *memoryRepository) Create(ctx context.Context, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.ID]; ok {
		return fmt.Errorf("failed to create job: duplicate id %s", job.ID)
	}
	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *memoryRepository) Finish(ctx context.Context, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.jobs[job.ID]
	if !ok || stored.Status != model.StatusRunning {
		return fmt.Errorf("job %s is not running: %w", job.ID, ErrNotFound)
	}

	updated := job.Clone()
	// identity fields are fixed at insert time
	updated.UserID = stored.UserID
	updated.Filename = stored.Filename
	updated.CreatedAt = stored.CreatedAt
	r.jobs[job.ID] = updated
	return nil
}

func (r *memoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return job.Clone(), nil
}

func (r *memoryRepository) ListRecent(ctx context.Context, limit, offset int) ([]model.Job, error) {
	return r.list(func(*model.Job) bool { return true }, limit, offset), nil
}

func (r *memoryRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]model.Job, error) {
	return r.list(func(j *model.Job) bool {
		return j.UserID != nil && *j.UserID == userID
	}, limit, offset), nil
}

func (r *memoryRepository) list(keep func(*model.Job) bool, limit, offset int) []model.Job {
	r.mu.RLock()
	matched := make([]*model.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		if keep(job) {
			matched = append(matched, job.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() > matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	out := []model.Job{}
	if offset < 0 {
		offset = 0
	}
	for i := offset; i < len(matched) && (limit <= 0 || len(out) < limit); i++ {
		out = append(out, *matched[i])
	}
	return out
}
