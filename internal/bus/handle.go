package bus

import (
	"context"
	"sync"
)

// Handle is the originator's completion handle for a request.
type Handle struct {
	correlationID uint64

	mu       sync.Mutex
	done     chan struct{}
	data     any
	err      error
	settled  bool
	onCancel func()
}

func newHandle(correlationID uint64) *Handle {
	return &Handle{
		correlationID: correlationID,
		done:          make(chan struct{}),
	}
}

// CorrelationID returns the request's correlation id.
func (h *Handle) CorrelationID() uint64 { return h.correlationID }

// Await blocks until the handle settles or the context ends.
func (h *Handle) Await(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.data, h.err
	}
}

// Cancel clears the pending entry and fails the handle with Cancelled.
// In-flight work may continue; its result is discarded.
func (h *Handle) Cancel() {
	h.mu.Lock()
	cancel := h.onCancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (h *Handle) complete(data any) {
	h.settle(data, nil)
}

func (h *Handle) fail(err error) {
	h.settle(nil, err)
}

func (h *Handle) settle(data any, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.settled {
		return
	}
	h.settled = true
	h.data = data
	h.err = err
	close(h.done)
}
