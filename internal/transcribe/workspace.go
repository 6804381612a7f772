package transcribe

import (
	"sync"

	"mimi/internal/media"
)

// workspace hands segment output from the (possibly abandoned) worker
// goroutine to the caller, which always releases it.
type workspace struct {
	mu       sync.Mutex
	released bool
	split    *media.Result
}

// attach records res. It returns false when the caller has already released
// the workspace, in which case res belongs to the attacher.
func (w *workspace) attach(res *media.Result) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.released {
		return false
	}
	w.split = res
	return true
}

func (w *workspace) release() error {
	w.mu.Lock()
	w.released = true
	split := w.split
	w.split = nil
	w.mu.Unlock()

	return split.Cleanup()
}
