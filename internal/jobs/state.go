package jobs

import (
	"errors"
	"fmt"

	"mimi/internal/model"
)

// ErrInvalidTransition is returned for a status change the lifecycle forbids.
var ErrInvalidTransition = errors.New("invalid job status transition")

var transitions = map[model.JobStatus][]model.JobStatus{
	model.StatusCreated: {model.StatusRunning},
	model.StatusRunning: {model.StatusCompleted, model.StatusFailed, model.StatusTimeout},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to model.JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves job to status to, or leaves it untouched and errors.
func Transition(job *model.Job, to model.JobStatus) error {
	if job.Status.Terminal() {
		return fmt.Errorf("%w: job already %s", ErrInvalidTransition, job.Status)
	}
	if !CanTransition(job.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, to)
	}
	job.Status = to
	return nil
}
