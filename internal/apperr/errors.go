// Package apperr classifies pipeline failures so callers can branch on kind
// instead of matching error text.
package apperr

import (
	"errors"
	"fmt"

	"mimi/internal/deadline"
)

// Kind is the failure taxonomy surfaced to job records and HTTP callers.
type Kind string

const (
	KindInvalidInput  Kind = "invalid_input"
	KindSegmentation  Kind = "segmentation"
	KindTranscription Kind = "transcription"
	KindTimeout       Kind = "timeout"
	KindSummarization Kind = "summarization"
	KindInternal      Kind = "internal"
)

// Error is a stage-aware pipeline failure.
type Error struct {
	Kind    Kind
	Stage   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New builds an *Error of the given kind.
func New(kind Kind, stage, message string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Message: message, Err: err}
}

// KindOf reports the kind of err. A deadline expiry anywhere in the chain wins
// over the kind of any wrapper, so a segment that timed out is a timeout.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var te *deadline.TimeoutError
	if errors.As(err, &te) {
		return KindTimeout
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// IsRetriable reports whether the caller may retry the same input later.
func IsRetriable(err error) bool {
	return KindOf(err) == KindTimeout
}
