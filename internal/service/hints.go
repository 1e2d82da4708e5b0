package service

import (
	"sync"

	"github.com/dhanmatrix/dhanmatrix/internal/ports"
)

// HintRecorder keeps the "a session was seen before" flag for one browser session.
// The HTTP layer seeds it from the hint cookie and writes it back after each response.
type HintRecorder struct {
	mu    sync.Mutex
	seen  bool
	saved bool
}

var _ ports.SessionHintStore = (*HintRecorder)(nil)

// NewHintRecorder creates a recorder with no saved value.
func NewHintRecorder() *HintRecorder { return &HintRecorder{} }

// SaveHint records seen.
func (h *HintRecorder) SaveHint(seen bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen, h.saved = seen, true
}

// LoadHint returns the last recorded value.
func (h *HintRecorder) LoadHint() (seen, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seen, h.saved
}

// Seed adopts a value read from the browser only when nothing was recorded yet.
func (h *HintRecorder) Seed(seen bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.saved {
		h.seen, h.saved = seen, true
	}
}
