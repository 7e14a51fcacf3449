package ffmpeg

import (
	"fmt"
	"sync"
)

// Handle is a source video plus its single seek cursor. Seeking is an
// exclusive operation: exactly one pipeline phase (extraction or trimming)
// may own the handle at a time, and ownership is handed over explicitly
// rather than implied by call order.
type Handle struct {
	path string
	meta Metadata

	mu    sync.Mutex
	owner string
}

func NewHandle(path string, meta Metadata) *Handle {
	return &Handle{path: path, meta: meta}
}

func (h *Handle) Path() string   { return h.path }
func (h *Handle) Meta() Metadata { return h.meta }

// Acquire claims the seek cursor for the named owner. It fails rather than
// blocks when another phase holds it: concurrent seekers on one handle are a
// programming error, not a wait condition.
func (h *Handle) Acquire(owner string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.owner != "" {
		return fmt.Errorf("video handle already owned by %q, wanted by %q", h.owner, owner)
	}
	h.owner = owner
	return nil
}

// Release returns the seek cursor. Releasing a handle you do not own is a
// no-op.
func (h *Handle) Release(owner string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.owner == owner {
		h.owner = ""
	}
}
