// Package deadline bounds how long a caller waits on a single blocking operation.
package deadline

import (
	"context"
	"fmt"
	"time"
)

// Budget names an operation and the longest the caller will wait for it.
type Budget struct {
	Label string
	Max   time.Duration
}

// TimeoutError is returned when the budget expires before the operation finishes.
// The operation itself may still be running; its outcome is unknown.
type TimeoutError struct {
	Label  string
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timeout after %dms", e.Label, e.Budget.Milliseconds())
}

// Timeout reports true so callers can use interface checks (net.Error style).
func (e *TimeoutError) Timeout() bool { return true }

type outcome[T any] struct {
	val T
	err error
}

// Run executes op and returns its result, or a *TimeoutError once b.Max elapses.
// op receives a context that is cancelled when Run returns. A non-positive Max
// runs op inline with no timer.
func Run[T any](ctx context.Context, b Budget, op func(ctx context.Context) (T, error)) (T, error) {
	if b.Max <= 0 {
		return op(ctx)
	}

	var zero T
	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	timer := time.NewTimer(b.Max)
	defer timer.Stop()

	// buffered so an abandoned op can always deliver and exit
	done := make(chan outcome[T], 1)
	go func() {
		v, err := op(opCtx)
		done <- outcome[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-timer.C:
		return zero, &TimeoutError{Label: b.Label, Budget: b.Max}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
