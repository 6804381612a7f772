package api

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mimi/internal/apperr"
	"mimi/internal/diagnostics"
	"mimi/internal/export"
	"mimi/internal/jobs"
	"mimi/internal/model"
	"mimi/internal/repository"
	"mimi/internal/storage"
	"mimi/internal/utils"
)

// multipart headers and form fields on top of the file itself
const multipartOverhead = 1 << 20

// Processor runs one upload to a terminal job.
type Processor interface {
	Process(ctx context.Context, up jobs.Upload) (*model.Job, error)
}

// StatusChecker probes external dependencies.
type StatusChecker interface {
	Run(ctx context.Context) diagnostics.Report
}

// Limits are the configured bounds reported by /api/status.
type Limits struct {
	MaxUploadBytes int64
	Process        time.Duration
	Transcribe     time.Duration
	Summarize      time.Duration
}

// Options configures a Handler.
type Options struct {
	UploadDir string
	Limits    Limits
}

// Handler serves the HTTP API.
type Handler struct {
	processor Processor
	repo      repository.JobRepository
	checker   StatusChecker
	opts      Options
	logger    zerolog.Logger
	started   time.Time
}

// NewHandler wires a Handler.
func NewHandler(processor Processor, repo repository.JobRepository, checker StatusChecker,
	opts Options, logger zerolog.Logger) *Handler {
	return &Handler{
		processor: processor,
		repo:      repo,
		checker:   checker,
		opts:      opts,
		logger:    logger,
		started:   time.Now(),
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.GET("/health", h.healthCheck)
		api.GET("/status", h.status)
		api.POST("/process", h.process)
		api.GET("/jobs", h.listJobs)
		api.GET("/jobs/:id", h.getJob)
		api.GET("/export/:id", h.exportJob)
	}

	r.NoRoute(func(c *gin.Context) {
		utils.Error(c, http.StatusNotFound, "not_found")
	})
}

// healthCheck returns server health status
func (h *Handler) healthCheck(c *gin.Context) {
	utils.Success(c, gin.H{"ok": true})
}

// status reports tool availability, limits and uptime
func (h *Handler) status(c *gin.Context) {
	report := h.checker.Run(c.Request.Context())

	utils.Success(c, gin.H{
		"ok":          report.OK,
		"generatedAt": report.GeneratedAt,
		"checks":      report.Checks,
		"limits": gin.H{
			"upload_limit_mb":       h.opts.Limits.MaxUploadBytes >> 20,
			"process_timeout_ms":    h.opts.Limits.Process.Milliseconds(),
			"transcribe_timeout_ms": h.opts.Limits.Transcribe.Milliseconds(),
			"summarize_timeout_ms":  h.opts.Limits.Summarize.Milliseconds(),
		},
		"uptime": gin.H{"seconds": int64(time.Since(h.started).Seconds())},
	})
}

// process accepts one recording and runs it to completion
func (h *Handler) process(c *gin.Context) {
	maxBytes := h.opts.Limits.MaxUploadBytes
	if maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)
	}

	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.tooLarge(c)
			return
		}
		h.logger.Warn().Err(err).Msg("Failed to parse multipart form")
		utils.ErrorDetail(c, http.StatusBadRequest, "upload_failed", err.Error())
		return
	}

	file, err := formFile(c)
	if err != nil {
		utils.ErrorDetail(c, http.StatusBadRequest, "no_file", `missing multipart field "audio" or "file"`)
		return
	}

	userID, err := userIDFromHeader(c)
	if err != nil {
		utils.ErrorDetail(c, http.StatusBadRequest, string(apperr.KindInvalidInput), err.Error())
		return
	}

	path, err := storage.SaveUpload(file, h.opts.UploadDir, maxBytes)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			h.tooLarge(c)
			return
		}
		h.logger.Error().Err(err).Msg("Failed to save upload")
		utils.ErrorDetail(c, http.StatusInternalServerError, string(apperr.KindInternal), "failed to save audio file")
		return
	}

	job, err := h.processor.Process(c.Request.Context(), jobs.Upload{
		Path:     path,
		Filename: file.Filename,
		Language: c.PostForm("language"),
		UserID:   userID,
	})
	if err != nil {
		var extra []gin.H
		if job != nil {
			extra = append(extra, gin.H{"jobId": job.ID.String(), "status": job.Status})
		}
		kind := apperr.KindOf(err)
		utils.ErrorDetail(c, statusFor(kind), string(kind), err.Error(), extra...)
		return
	}

	utils.Success(c, gin.H{
		"jobId":         job.ID.String(),
		"status":        job.Status,
		"transcription": deref(job.Transcript),
		"summary":       deref(job.Summary),
		"durationMs":    derefInt(job.DurationMs),
	})
}

// listJobs returns the newest jobs, or the caller's jobs when X-User-ID is set
func (h *Handler) listJobs(c *gin.Context) {
	userID, err := userIDFromHeader(c)
	if err != nil {
		utils.ErrorDetail(c, http.StatusBadRequest, string(apperr.KindInvalidInput), err.Error())
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	var list []model.Job
	if userID != nil {
		list, err = h.repo.ListByUser(c.Request.Context(), *userID, limit, offset)
	} else {
		list, err = h.repo.ListRecent(c.Request.Context(), limit, offset)
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		utils.ErrorDetail(c, http.StatusInternalServerError, string(apperr.KindInternal), "failed to retrieve jobs")
		return
	}

	items := make([]gin.H, 0, len(list))
	for _, job := range list {
		item := gin.H{
			"id":         job.ID.String(),
			"filename":   job.Filename,
			"status":     job.Status,
			"created_at": job.CreatedAt,
		}
		if job.DurationMs != nil {
			item["duration_ms"] = *job.DurationMs
		}
		if job.Summary != nil && *job.Summary != "" {
			item["summary_preview"] = preview(*job.Summary, 100)
		}
		items = append(items, item)
	}

	utils.Success(c, gin.H{
		"jobs":   items,
		"limit":  limit,
		"offset": offset,
		"count":  len(items),
	})
}

// getJob returns one job
func (h *Handler) getJob(c *gin.Context) {
	job, ok := h.lookup(c)
	if !ok {
		return
	}
	utils.Success(c, gin.H{"job": job})
}

// exportJob renders a downloadable report
func (h *Handler) exportJob(c *gin.Context) {
	format := strings.ToLower(c.DefaultQuery("format", "txt"))
	if format != "txt" {
		utils.ErrorDetail(c, http.StatusBadRequest, "unsupported_format",
			fmt.Sprintf("format %q is not supported, use txt", format))
		return
	}

	includeTranscript := true
	if v := c.Query("include_transcript"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			utils.ErrorDetail(c, http.StatusBadRequest, string(apperr.KindInvalidInput), "include_transcript must be a boolean")
			return
		}
		includeTranscript = b
	}

	job, ok := h.lookup(c)
	if !ok {
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename(job, "txt")))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(export.Text(job, includeTranscript)))
}

func (h *Handler) lookup(c *gin.Context) (*model.Job, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorDetail(c, http.StatusBadRequest, string(apperr.KindInvalidInput), "invalid id format")
		return nil, false
	}

	job, err := h.repo.GetByID(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		utils.ErrorDetail(c, http.StatusNotFound, "not_found", "job not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error().Err(err).Str("jobId", id.String()).Msg("Failed to get job")
		utils.ErrorDetail(c, http.StatusInternalServerError, string(apperr.KindInternal), "failed to retrieve job")
		return nil, false
	}
	return job, true
}

func (h *Handler) tooLarge(c *gin.Context) {
	utils.ErrorDetail(c, http.StatusRequestEntityTooLarge, "file_too_large",
		fmt.Sprintf("max %dMB", h.opts.Limits.MaxUploadBytes>>20))
}

// formFile accepts the recording under "audio" or "file"
func formFile(c *gin.Context) (*multipart.FileHeader, error) {
	file, err := c.FormFile("audio")
	if err != nil {
		file, err = c.FormFile("file")
	}
	return file, err
}

func userIDFromHeader(c *gin.Context) (*int64, error) {
	raw := strings.TrimSpace(c.GetHeader("X-User-ID"))
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errors.New("invalid X-User-ID header")
	}
	return &id, nil
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
