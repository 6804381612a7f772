package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mimi/internal/model"
)

func ptr[T any](v T) *T { return &v }

func newJob(userID *int64, created time.Time) *model.Job {
	return &model.Job{
		ID:        uuid.New(),
		UserID:    userID,
		Filename:  "meeting.m4a",
		Model:     "whisper-1",
		Provider:  "openai",
		Language:  ptr("th"),
		Status:    model.StatusRunning,
		Metadata:  map[string]interface{}{"sizeBytes": 1024},
		CreatedAt: created,
	}
}

func jobRow(id uuid.UUID, created time.Time) []driver.Value {
	return []driver.Value{
		id.String(), int64(7), "meeting.m4a", "whisper-1", "openai", "th", "completed", int64(1500),
		"hello", "## ภาพรวมการประชุม", nil, nil, []byte(`{"segments":3}`), created, created.Add(time.Second),
	}
}

var rowColumns = []string{
	"id", "user_id", "filename", "model", "stt_provider", "language", "status", "duration_ms",
	"transcript", "summary", "error_kind", "error_message", "metadata", "created_at", "finished_at",
}

func TestPostgresCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	job := newJob(ptr(int64(7)), time.Now().UTC())
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO jobs")).
		WithArgs(job.ID, int64(7), "meeting.m4a", "whisper-1", "openai", "th", "running",
			[]byte(`{"sizeBytes":1024}`), job.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgresRepository(db)
	require.NoError(t, repo.Create(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFinishOnlyOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	job := newJob(nil, time.Now().UTC())
	job.Status = model.StatusCompleted
	job.Transcript = ptr("hello")
	job.Summary = ptr("")

	mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs")).
		WithArgs("completed", sqlmock.AnyArg(), "hello", "", nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg(), job.ID, "running").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewPostgresRepository(db)
	require.NoError(t, repo.Finish(context.Background(), job))

	err = repo.Finish(context.Background(), job)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.New()
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(rowColumns).AddRow(jobRow(id, created)...))

	repo := NewPostgresRepository(db)
	job, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, id, job.ID)
	require.NotNil(t, job.UserID)
	assert.Equal(t, int64(7), *job.UserID)
	assert.Equal(t, model.StatusCompleted, job.Status)
	assert.Equal(t, "hello", *job.Transcript)
	assert.Nil(t, job.ErrorKind)
	assert.Equal(t, float64(3), job.Metadata["segments"])
	assert.Equal(t, created, job.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE id = $1")).
		WillReturnRows(sqlmock.NewRows(rowColumns))

	_, err = NewPostgresRepository(db).GetByID(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresListByUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Now().UTC()
	a, b := uuid.New(), uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1")).
		WithArgs(int64(7), 20, 0).
		WillReturnRows(sqlmock.NewRows(rowColumns).
			AddRow(jobRow(a, created)...).
			AddRow(jobRow(b, created.Add(-time.Minute))...))

	jobs, err := NewPostgresRepository(db).ListByUser(context.Background(), 7, 20, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, a, jobs[0].ID)
	assert.Equal(t, b, jobs[1].ID)
}

func TestPostgresListRecentQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC")).
		WillReturnError(errors.New("connection reset"))

	_, err = NewPostgresRepository(db).ListRecent(context.Background(), 10, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query jobs")
}

func TestMemoryRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	job := newJob(ptr(int64(1)), time.Now())
	require.NoError(t, repo.Create(ctx, job))
	require.Error(t, repo.Create(ctx, job))

	// callers mutating their copy must not change the stored record
	job.Filename = "changed.mp3"
	stored, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "meeting.m4a", stored.Filename)

	done := stored.Clone()
	done.Status = model.StatusCompleted
	done.Transcript = ptr("text")
	done.Summary = ptr("")
	require.NoError(t, repo.Finish(ctx, done))
	require.ErrorIs(t, repo.Finish(ctx, done), ErrNotFound)

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, "text", *got.Transcript)

	_, err = repo.GetByID(ctx, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepositoryListing(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	base := time.Now()

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		user := ptr(int64(1))
		if i%2 == 1 {
			user = ptr(int64(2))
		}
		job := newJob(user, base.Add(time.Duration(i)*time.Minute))
		ids = append(ids, job.ID)
		require.NoError(t, repo.Create(ctx, job))
	}

	recent, err := repo.ListRecent(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, ids[4], recent[0].ID)
	assert.Equal(t, ids[3], recent[1].ID)

	page, err := repo.ListRecent(ctx, 2, 4)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[0], page[0].ID)

	mine, err := repo.ListByUser(ctx, 2, 10, 0)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, ids[3], mine[0].ID)
	assert.Equal(t, ids[1], mine[1].ID)

	none, err := repo.ListByUser(ctx, 99, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}
