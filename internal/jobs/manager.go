// Package jobs drives one upload through transcription and summarization
// and records the outcome as a job.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mimi/internal/apperr"
	"mimi/internal/events"
	"mimi/internal/logging"
	"mimi/internal/metrics"
	"mimi/internal/model"
	"mimi/internal/repository"
	"mimi/internal/stt"
)

// Transcriber produces the full transcript of one recording.
type Transcriber interface {
	Transcribe(ctx context.Context, inputPath, language string) (string, error)
	Provider() string
}

// Summarizer produces a summary from a transcript.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// EventPublisher receives one event per finished job.
type EventPublisher interface {
	PublishJob(ctx context.Context, ev events.JobEvent) error
}

// Upload is a received file waiting to be processed. The manager owns Path
// and deletes it before Process returns.
type Upload struct {
	Path     string
	Filename string
	Language string
	UserID   *int64
}

// Options configures a Manager.
type Options struct {
	Model           string // transcription model tag stored on each job
	DefaultLanguage string
}

// Manager runs the job lifecycle. It holds no lock across jobs.
type Manager struct {
	repo        repository.JobRepository
	transcriber Transcriber
	summarizer  Summarizer
	publisher   EventPublisher
	metrics     *metrics.Metrics
	opts        Options
	logger      zerolog.Logger

	now    func() time.Time
	newID  func() uuid.UUID
	remove func(string) error
}

// NewManager wires a Manager. publisher and m may be nil.
func NewManager(repo repository.JobRepository, transcriber Transcriber, summarizer Summarizer,
	publisher EventPublisher, m *metrics.Metrics, opts Options, logger zerolog.Logger) *Manager {
	return &Manager{
		repo:        repo,
		transcriber: transcriber,
		summarizer:  summarizer,
		publisher:   publisher,
		metrics:     m,
		opts:        opts,
		logger:      logger,
		now:         time.Now,
		newID:       uuid.New,
		remove:      os.Remove,
	}
}

// Process runs one upload to a terminal status. The returned job reflects
// what was persisted; err is non-nil for every status other than completed.
// Invalid input returns a nil job and creates no record.
func (m *Manager) Process(ctx context.Context, up Upload) (job *model.Job, err error) {
	cleanup := []string{up.Path}
	defer func() {
		for _, path := range cleanup {
			m.removeTemp(path)
		}
	}()

	info, err := validateUpload(up)
	if err != nil {
		return nil, err
	}

	started := m.now()
	lang := stt.ResolveLanguage(up.Language, m.opts.DefaultLanguage)
	job = &model.Job{
		ID:        m.newID(),
		UserID:    up.UserID,
		Filename:  displayName(up),
		Model:     m.opts.Model,
		Provider:  m.transcriber.Provider(),
		Status:    model.StatusCreated,
		Metadata:  map[string]interface{}{"sizeBytes": info.Size()},
		CreatedAt: started.UTC(),
	}
	if lang != "" {
		job.Language = &lang
	}
	if err := Transition(job, model.StatusRunning); err != nil {
		return nil, apperr.New(apperr.KindInternal, "starting", "cannot start job", err)
	}

	log := logging.WithJob(m.logger, job.ID.String())
	if err := m.repo.Create(ctx, job); err != nil {
		log.Error().Err(err).Msg("Failed to create job record")
		return nil, apperr.New(apperr.KindInternal, "starting", "failed to create job", err)
	}
	m.metrics.RecordJobStart()
	log.Info().Str("filename", job.Filename).Str("language", lang).Msg("Job started")

	audioPath, extra := withOriginalExt(up.Path, up.Filename, log)
	if extra != "" {
		cleanup = append(cleanup, extra)
	}

	transcript, summary, runErr := m.run(ctx, audioPath, lang, log)

	status := model.StatusCompleted
	if runErr != nil {
		status = model.StatusFailed
		if apperr.KindOf(runErr) == apperr.KindTimeout {
			status = model.StatusTimeout
		}
	}

	finished := m.now()
	durationMs := finished.Sub(started).Milliseconds()
	finishedUTC := finished.UTC()
	job.DurationMs = &durationMs
	job.FinishedAt = &finishedUTC
	if status == model.StatusCompleted {
		job.Transcript = &transcript
		job.Summary = &summary
	} else {
		kind := string(apperr.KindOf(runErr))
		msg := runErr.Error()
		job.ErrorKind = &kind
		job.ErrorMessage = &msg
	}
	if err := Transition(job, status); err != nil {
		return nil, apperr.New(apperr.KindInternal, "finishing", "cannot finish job", err)
	}

	// persist and announce even when the caller went away mid-run
	persistCtx := context.WithoutCancel(ctx)
	if err := m.repo.Finish(persistCtx, job); err != nil {
		log.Error().Err(err).Str("status", string(status)).Msg("Failed to persist job result")
		m.metrics.RecordJobEnd(string(model.StatusFailed), float64(durationMs)/1000)
		return job, apperr.New(apperr.KindInternal, "finishing", "failed to persist job", err)
	}
	m.metrics.RecordJobEnd(string(status), float64(durationMs)/1000)
	m.publish(persistCtx, job, summary != "", log)

	log.Info().
		Str("status", string(status)).
		Int64("durationMs", durationMs).
		Int("transcriptLength", len(transcript)).
		Msg("Job finished")

	return job, runErr
}

// run transcribes then summarizes. A summarization failure leaves the summary
// empty and is not an error; a panic becomes an internal error.
func (m *Manager) run(ctx context.Context, audioPath, lang string, log zerolog.Logger) (transcript, summary string, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic while processing job")
			transcript, summary = "", ""
			err = apperr.New(apperr.KindInternal, "processing", fmt.Sprintf("panic: %v", r), nil)
		}
	}()

	transcript, err = m.transcriber.Transcribe(ctx, audioPath, lang)
	if err != nil {
		log.Warn().Err(err).Str("kind", string(apperr.KindOf(err))).Msg("Transcription failed")
		return "", "", err
	}

	summary, serr := m.summarizer.Summarize(ctx, transcript)
	if serr != nil {
		log.Warn().Err(serr).Msg("Summarization failed, completing without summary")
		m.metrics.RecordSummary("error")
		return transcript, "", nil
	}
	m.metrics.RecordSummary("ok")
	return transcript, summary, nil
}

func (m *Manager) publish(ctx context.Context, job *model.Job, summarized bool, log zerolog.Logger) {
	if m.publisher == nil {
		return
	}
	ev := events.JobEvent{
		JobID:      job.ID.String(),
		UserID:     job.UserID,
		Filename:   job.Filename,
		Status:     string(job.Status),
		Model:      job.Model,
		Provider:   job.Provider,
		Summarized: summarized,
		OccurredAt: m.now().UTC(),
	}
	if job.DurationMs != nil {
		ev.DurationMs = *job.DurationMs
	}
	if job.ErrorKind != nil {
		ev.ErrorKind = *job.ErrorKind
	}
	if err := m.publisher.PublishJob(ctx, ev); err != nil {
		log.Warn().Err(err).Msg("Failed to publish job event")
	}
}

func (m *Manager) removeTemp(path string) {
	if path == "" {
		return
	}
	if err := m.remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.metrics.RecordCleanupError("upload")
		m.logger.Warn().Err(err).Str("path", path).Msg("Failed to remove temporary upload")
	}
}

func validateUpload(up Upload) (os.FileInfo, error) {
	if strings.TrimSpace(up.Path) == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "validating", "no file uploaded", nil)
	}
	info, err := os.Stat(up.Path)
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidInput, "validating", "uploaded file is not readable", err)
	}
	if !info.Mode().IsRegular() {
		return nil, apperr.New(apperr.KindInvalidInput, "validating", "uploaded path is not a regular file", nil)
	}
	return info, nil
}

func displayName(up Upload) string {
	if name := strings.TrimSpace(up.Filename); name != "" {
		return filepath.Base(name)
	}
	return "unknown"
}

// withOriginalExt gives the transcoder a file name with the client's
// extension when the temp file has none. It returns the path to use and an
// extra file to delete, if one was made.
func withOriginalExt(tmpPath, originalName string, log zerolog.Logger) (string, string) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" || filepath.Ext(tmpPath) != "" {
		return tmpPath, ""
	}

	target := tmpPath + ext
	if err := os.Link(tmpPath, target); err == nil {
		return target, target
	}
	// copyFile removes only what it created; an existing target is never touched
	if err := copyFile(tmpPath, target); err != nil {
		log.Warn().Err(err).Str("ext", ext).Msg("Could not restore original extension, using temp file as is")
		return tmpPath, ""
	}
	return target, target
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}
