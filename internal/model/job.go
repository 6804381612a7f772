package model

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a processing job
type JobStatus string

const (
	StatusCreated   JobStatus = "created"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusTimeout   JobStatus = "timeout"
)

// Terminal reports whether no further transition is allowed
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTimeout
}

// Job represents one upload processed into a transcript and summary
type Job struct {
	ID           uuid.UUID              `json:"id"`
	UserID       *int64                 `json:"user_id,omitempty"`
	Filename     string                 `json:"filename"`
	Model        string                 `json:"model"`
	Provider     string                 `json:"stt_provider"`
	Language     *string                `json:"language,omitempty"`
	Status       JobStatus              `json:"status"`
	DurationMs   *int64                 `json:"duration_ms,omitempty"`
	Transcript   *string                `json:"transcript,omitempty"`
	Summary      *string                `json:"summary,omitempty"`
	ErrorKind    *string                `json:"error_kind,omitempty"`
	ErrorMessage *string                `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata"`
	CreatedAt    time.Time              `json:"created_at"`
	FinishedAt   *time.Time             `json:"finished_at,omitempty"`
}

// Clone returns a deep enough copy for handing a job across goroutines
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.UserID = clonePtr(j.UserID)
	c.Language = clonePtr(j.Language)
	c.DurationMs = clonePtr(j.DurationMs)
	c.Transcript = clonePtr(j.Transcript)
	c.Summary = clonePtr(j.Summary)
	c.ErrorKind = clonePtr(j.ErrorKind)
	c.ErrorMessage = clonePtr(j.ErrorMessage)
	c.FinishedAt = clonePtr(j.FinishedAt)
	if j.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(j.Metadata))
		for k, v := range j.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
