package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/on-the-ground/effect_ive_store/saga"
	"github.com/on-the-ground/effect_ive_store/store"
	"go.uber.org/multierr"
)

// Harness is a built store with its saga middleware and root task.
type Harness struct {
	store    *store.Store
	sagas    *saga.Middleware
	root     *saga.Task
	ctx      context.Context
	recorder *recorder
	timeout  time.Duration

	cancel                  context.CancelFunc
	endOfConcurrencyHandler func() context.Context
	endOfLogHandler         func() context.Context

	closeOnce sync.Once
	closeErr  error
}

// Store returns the store.
func (h *Harness) Store() *store.Store { return h.store }

// Sagas returns the saga middleware mounted on the store.
func (h *Harness) Sagas() *saga.Middleware { return h.sagas }

// Root returns the root task running the provided sagas.
func (h *Harness) Root() *saga.Task { return h.root }

// Context carries the effect handlers of the harness. Sagas run with it are torn down by Close.
func (h *Harness) Context() context.Context { return h.ctx }

// Dispatch dispatches action through the store.
func (h *Harness) Dispatch(action store.Action) error { return h.store.Dispatch(action) }

// State returns the current state.
func (h *Harness) State() store.State { return h.store.GetState() }

// Actions returns every action dispatched through the store so far, in completion order.
func (h *Harness) Actions() []RecordedAction { return h.recorder.snapshot() }

// WaitForAction returns the first successfully dispatched action matching pattern,
// including actions dispatched before the call.
func (h *Harness) WaitForAction(ctx context.Context, pattern saga.Pattern) (store.Action, error) {
	return h.recorder.wait(ctx, pattern)
}

// Close cancels the root task and every supervised saga, and waits for them within the
// teardown timeout. The returned error holds the root task failure, if any, and
// ErrTeardownTimeout when sagas did not stop in time. Close is idempotent.
func (h *Harness) Close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.close()
	})
	return h.closeErr
}

func (h *Harness) close() error {
	var errs error
	deadline, cancelDeadline := context.WithTimeout(context.Background(), h.timeout)
	defer cancelDeadline()

	h.root.Cancel()
	select {
	case <-h.root.Done():
		if err := h.root.Err(); err != nil && !errors.Is(err, saga.ErrTaskCancelled) {
			errs = multierr.Append(errs, err)
		}
	case <-deadline.Done():
		errs = multierr.Append(errs, fmt.Errorf("%w: root task after %s", ErrTeardownTimeout, h.timeout))
	}

	h.cancel()
	joined := make(chan struct{})
	go func() {
		h.endOfConcurrencyHandler()
		close(joined)
	}()
	select {
	case <-joined:
		h.endOfLogHandler()
	case <-deadline.Done():
		errs = multierr.Append(errs, fmt.Errorf("%w: supervised sagas after %s", ErrTeardownTimeout, h.timeout))
	}
	return errs
}
