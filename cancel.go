package radioedit

import (
	"sync"
	"sync/atomic"
)

// CancelToken is the per-job cancellation flag. The pipeline polls it at
// stage boundaries; it never interrupts a stage that is already running.
type CancelToken struct {
	requested atomic.Bool
	once      sync.Once
	done      chan struct{}
}

// NewCancelToken returns a token that has not been canceled.
func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel flags the token. Calling it more than once is a no-op.
func (t *CancelToken) Cancel() {
	t.once.Do(func() {
		t.requested.Store(true)
		close(t.done)
	})
}

// Canceled reports whether Cancel has been called.
func (t *CancelToken) Canceled() bool {
	return t.requested.Load()
}

// Done is closed once the token is canceled.
func (t *CancelToken) Done() <-chan struct{} {
	return t.done
}
