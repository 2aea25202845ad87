package navigation

import (
	"context"
	"sync/atomic"
)

type holder struct {
	navigator Navigator
}

// Handle is the shared navigator slot. The start-up task stores the
// navigator once; the listen loop reads it on every dispatch.
type Handle struct {
	current atomic.Pointer[holder]
}

func NewHandle() *Handle {
	return &Handle{}
}

func (h *Handle) Set(navigator Navigator) {
	if navigator == nil {
		h.current.Store(nil)
		return
	}
	h.current.Store(&holder{navigator: navigator})
}

func (h *Handle) Connected() bool {
	return h.current.Load() != nil
}

func (h *Handle) Navigate(ctx context.Context, sectionID string) (bool, error) {
	held := h.current.Load()
	if held == nil {
		return false, ErrNotConnected
	}
	return held.navigator.Navigate(ctx, sectionID)
}
