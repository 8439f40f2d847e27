package intake

import (
	"context"
	"errors"
	"sync"
	"time"

	errx "github.com/call-intake-poc-v1/server/internal/core/error"
)

const defaultReleaseTimeout = 5 * time.Second

// CallTerminator releases a call's session and cancels its outstanding work
// exactly once.
type CallTerminator struct {
	once    sync.Once
	cancel  context.CancelFunc
	timeout time.Duration
}

func NewCallTerminator(cancel context.CancelFunc, timeout time.Duration) *CallTerminator {
	if timeout <= 0 {
		timeout = defaultReleaseTimeout
	}
	return &CallTerminator{cancel: cancel, timeout: timeout}
}

// Terminate deletes the session and cancels the call context. A session that
// is already gone counts as success; later calls are no-ops.
func (t *CallTerminator) Terminate(ctx context.Context, s Session) error {
	var err error
	t.once.Do(func() {
		// release even when the call context is already cancelled
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
		defer cancel()

		if s != nil {
			if derr := s.Delete(rctx); derr != nil && !errors.Is(derr, errx.ErrSessionNotFound) {
				err = derr
			}
		}
		if t.cancel != nil {
			t.cancel()
		}
	})
	return err
}
