package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mimi/internal/apperr"
	"mimi/internal/deadline"
	"mimi/internal/events"
	"mimi/internal/metrics"
	"mimi/internal/model"
	"mimi/internal/repository"
)

type fakeTranscriber struct {
	text    string
	err     error
	panics  bool
	gotPath string
	gotLang string
	sawFile bool
}

func (f *fakeTranscriber) Provider() string { return "fake" }

func (f *fakeTranscriber) Transcribe(ctx context.Context, inputPath, language string) (string, error) {
	f.gotPath = inputPath
	f.gotLang = language
	_, statErr := os.Stat(inputPath)
	f.sawFile = statErr == nil
	if f.panics {
		panic("decoder exploded")
	}
	return f.text, f.err
}

type fakeSummarizer struct {
	summary string
	err     error
	called  bool
}

func (f *fakeSummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	f.called = true
	return f.summary, f.err
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.JobEvent
}

func (c *capturePublisher) PublishJob(ctx context.Context, ev events.JobEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

type harness struct {
	repo        repository.JobRepository
	transcriber *fakeTranscriber
	summarizer  *fakeSummarizer
	publisher   *capturePublisher
	metrics     *metrics.Metrics
	manager     *Manager
	dir         string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		repo:        repository.NewMemoryRepository(),
		transcriber: &fakeTranscriber{text: "hello world"},
		summarizer:  &fakeSummarizer{summary: "## ภาพรวมการประชุม\n- greeting"},
		publisher:   &capturePublisher{},
		metrics:     metrics.NewMetrics(prometheus.NewRegistry()),
		dir:         t.TempDir(),
	}
	h.manager = NewManager(h.repo, h.transcriber, h.summarizer, h.publisher, h.metrics,
		Options{Model: "whisper-1", DefaultLanguage: "th"}, zerolog.Nop())

	clock := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	h.manager.now = func() time.Time {
		clock = clock.Add(1500 * time.Millisecond)
		return clock
	}
	return h
}

func (h *harness) upload(t *testing.T, name string) string {
	t.Helper()
	f, err := os.CreateTemp(h.dir, "upload_*")
	require.NoError(t, err)
	_, err = f.WriteString("fake audio bytes")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func (h *harness) requireUploadsGone(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.dir)
	require.NoError(t, err)
	require.Empty(t, entries, "temporary uploads left behind")
}

func TestTransition(t *testing.T) {
	tests := []struct {
		from, to model.JobStatus
		ok       bool
	}{
		{model.StatusCreated, model.StatusRunning, true},
		{model.StatusRunning, model.StatusCompleted, true},
		{model.StatusRunning, model.StatusFailed, true},
		{model.StatusRunning, model.StatusTimeout, true},
		{model.StatusCreated, model.StatusCompleted, false},
		{model.StatusCompleted, model.StatusRunning, false},
		{model.StatusTimeout, model.StatusCompleted, false},
		{model.StatusFailed, model.StatusFailed, false},
	}
	for _, tt := range tests {
		job := &model.Job{Status: tt.from}
		err := Transition(job, tt.to)
		if tt.ok {
			assert.NoError(t, err, "%s -> %s", tt.from, tt.to)
			assert.Equal(t, tt.to, job.Status)
		} else {
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", tt.from, tt.to)
			assert.Equal(t, tt.from, job.Status)
		}
	}
}

func TestTransitionFromTerminalStatus(t *testing.T) {
	for _, status := range []model.JobStatus{model.StatusCompleted, model.StatusFailed, model.StatusTimeout} {
		job := &model.Job{Status: status}
		err := Transition(job, model.StatusRunning)
		require.ErrorIs(t, err, ErrInvalidTransition)
		assert.Contains(t, err.Error(), "job already "+string(status))
		assert.Equal(t, status, job.Status)
	}
}

func TestWithOriginalExtLeavesExistingTarget(t *testing.T) {
	dir := t.TempDir()
	tmp := filepath.Join(dir, "upload_123")
	require.NoError(t, os.WriteFile(tmp, []byte("new audio"), 0o600))
	// someone else's file already sits at the derived name
	existing := tmp + ".mp3"
	require.NoError(t, os.WriteFile(existing, []byte("other job"), 0o600))

	path, extra := withOriginalExt(tmp, "call.mp3", zerolog.Nop())
	assert.Equal(t, tmp, path)
	assert.Empty(t, extra)

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "other job", string(data))
}

func TestWithOriginalExtSkipsWhenNotNeeded(t *testing.T) {
	dir := t.TempDir()
	tmp := filepath.Join(dir, "upload_456.wav")
	require.NoError(t, os.WriteFile(tmp, []byte("x"), 0o600))

	path, extra := withOriginalExt(tmp, "call.mp3", zerolog.Nop())
	assert.Equal(t, tmp, path)
	assert.Empty(t, extra)

	path, extra = withOriginalExt(filepath.Join(dir, "upload_789"), "noext", zerolog.Nop())
	assert.Equal(t, filepath.Join(dir, "upload_789"), path)
	assert.Empty(t, extra)
}

func TestProcessCompleted(t *testing.T) {
	h := newHarness(t)
	userID := int64(42)
	path := h.upload(t, "meeting.m4a")

	job, err := h.manager.Process(context.Background(), Upload{Path: path, Filename: "meeting.m4a", UserID: &userID})
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted, job.Status)
	require.NotNil(t, job.Transcript)
	require.NotNil(t, job.Summary)
	assert.Equal(t, "hello world", *job.Transcript)
	assert.Equal(t, "## ภาพรวมการประชุม\n- greeting", *job.Summary)
	assert.Equal(t, int64(1500), *job.DurationMs)
	assert.Equal(t, "th", h.transcriber.gotLang)
	assert.Equal(t, "whisper-1", job.Model)
	assert.Nil(t, job.ErrorKind)

	stored, err := h.repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, stored.Status)
	assert.Equal(t, int64(42), *stored.UserID)

	require.Len(t, h.publisher.events, 1)
	assert.Equal(t, "completed", h.publisher.events[0].Status)
	assert.True(t, h.publisher.events[0].Summarized)

	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.JobsTotal.WithLabelValues("completed")))
	assert.Equal(t, float64(0), testutil.ToFloat64(h.metrics.JobsActive))
	h.requireUploadsGone(t)
}

func TestProcessRestoresOriginalExtension(t *testing.T) {
	h := newHarness(t)
	path := h.upload(t, "call.MP3")

	_, err := h.manager.Process(context.Background(), Upload{Path: path, Filename: "call.MP3"})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(h.transcriber.gotPath, ".mp3"))
	assert.True(t, h.transcriber.sawFile)
	h.requireUploadsGone(t)
}

func TestProcessSummarizationFailureStillCompletes(t *testing.T) {
	h := newHarness(t)
	h.summarizer.err = apperr.New(apperr.KindSummarization, "summarizing", "chat completion failed", errors.New("503"))

	job, err := h.manager.Process(context.Background(), Upload{Path: h.upload(t, "a.wav"), Filename: "a.wav"})
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted, job.Status)
	require.NotNil(t, job.Summary)
	assert.Equal(t, "", *job.Summary)
	assert.Equal(t, "hello world", *job.Transcript)
	assert.False(t, h.publisher.events[0].Summarized)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.SummariesTotal.WithLabelValues("error")))
}

func TestProcessTimeout(t *testing.T) {
	h := newHarness(t)
	h.transcriber.err = &deadline.TimeoutError{Label: "transcription", Budget: 30 * time.Minute}

	job, err := h.manager.Process(context.Background(), Upload{Path: h.upload(t, "a.wav"), Filename: "a.wav"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindTimeout, apperr.KindOf(err))
	assert.True(t, apperr.IsRetriable(err))

	assert.Equal(t, model.StatusTimeout, job.Status)
	assert.Nil(t, job.Transcript)
	assert.Nil(t, job.Summary)
	require.NotNil(t, job.ErrorKind)
	assert.Equal(t, "timeout", *job.ErrorKind)
	assert.Contains(t, *job.ErrorMessage, "transcription timeout after 1800000ms")
	assert.False(t, h.summarizer.called)

	stored, err := h.repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusTimeout, stored.Status)
	h.requireUploadsGone(t)
}

func TestProcessTranscriptionFailure(t *testing.T) {
	h := newHarness(t)
	h.transcriber.err = apperr.New(apperr.KindTranscription, "transcribing", "segment 2/3 failed", errors.New("502"))

	job, err := h.manager.Process(context.Background(), Upload{Path: h.upload(t, "a.wav"), Filename: "a.wav"})
	require.Error(t, err)
	assert.Equal(t, model.StatusFailed, job.Status)
	assert.Equal(t, "transcription", *job.ErrorKind)
	assert.Nil(t, job.Transcript)
	assert.Equal(t, "failed", h.publisher.events[0].Status)
	assert.Equal(t, "transcription", h.publisher.events[0].ErrorKind)
	h.requireUploadsGone(t)
}

func TestProcessPanicMarksJobFailed(t *testing.T) {
	h := newHarness(t)
	h.transcriber.panics = true

	job, err := h.manager.Process(context.Background(), Upload{Path: h.upload(t, "a.wav"), Filename: "a.wav"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Equal(t, model.StatusFailed, job.Status)
	assert.Contains(t, *job.ErrorMessage, "decoder exploded")
	h.requireUploadsGone(t)
}

func TestProcessInvalidInputCreatesNoJob(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		up   Upload
	}{
		{"no path", Upload{Filename: "a.wav"}},
		{"missing file", Upload{Path: filepath.Join(h.dir, "gone"), Filename: "a.wav"}},
		{"directory", Upload{Path: t.TempDir(), Filename: "a.wav"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := h.manager.Process(context.Background(), tt.up)
			require.Error(t, err)
			assert.Nil(t, job)
			assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
		})
	}

	jobs, err := h.repo.ListRecent(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.Empty(t, h.publisher.events)
}

func TestProcessLanguageHint(t *testing.T) {
	tests := []struct {
		requested string
		want      string
	}{
		{"", "th"},
		{"en", "en"},
		{"auto", ""},
		{"english", ""},
	}
	for _, tt := range tests {
		h := newHarness(t)
		job, err := h.manager.Process(context.Background(), Upload{Path: h.upload(t, "a.wav"), Filename: "a.wav", Language: tt.requested})
		require.NoError(t, err)
		assert.Equal(t, tt.want, h.transcriber.gotLang, "requested %q", tt.requested)
		if tt.want == "" {
			assert.Nil(t, job.Language)
		}
	}
}

func TestProcessPersistsAfterCallerCancels(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.manager.transcriber = cancellingTranscriber{cancel: cancel}

	job, err := h.manager.Process(ctx, Upload{Path: h.upload(t, "a.wav"), Filename: "a.wav"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.StatusFailed, job.Status)

	stored, err := h.repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, stored.Status)
}

type cancellingTranscriber struct{ cancel context.CancelFunc }

func (c cancellingTranscriber) Provider() string { return "fake" }

func (c cancellingTranscriber) Transcribe(ctx context.Context, _, _ string) (string, error) {
	c.cancel()
	return "", ctx.Err()
}

func TestProcessUsesInjectedID(t *testing.T) {
	h := newHarness(t)
	id := uuid.MustParse("8f14e45f-ceea-467f-a0e6-6b1b1d4d6c1a")
	h.manager.newID = func() uuid.UUID { return id }

	job, err := h.manager.Process(context.Background(), Upload{Path: h.upload(t, "a.wav"), Filename: "../../etc/a.wav"})
	require.NoError(t, err)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, "a.wav", job.Filename)
}
