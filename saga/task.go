package saga

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/on-the-ground/effect_ive_store/effects/concurrency"
	"go.uber.org/zap"
)

// Saga is a unit of background logic. It blocks at the effects it performs and
// should return promptly once ctx is done.
type Saga func(ctx context.Context) error

type taskKey struct{}

// Task is a running saga.
//
// A task is done once its body returned and all its attached children are done.
// The first failure among body and children becomes the task's error and cancels
// everything still running in it.
type Task struct {
	id     string
	m      *Middleware
	parent *Task
	saga   Saga

	ctx    context.Context
	cancel context.CancelFunc
	// scope is the context the root task was run with. Detached tasks still end with it.
	scope     context.Context
	stopScope func() bool

	children sync.WaitGroup
	started  atomic.Bool

	mu      sync.Mutex
	failure error
	err     error
	done    chan struct{}
}

func newTask(parentCtx, scope context.Context, m *Middleware, parent *Task, s Saga) *Task {
	t := &Task{
		id:        uuid.New().String(),
		m:         m,
		parent:    parent,
		saga:      s,
		scope:     scope,
		stopScope: func() bool { return false },
		done:      make(chan struct{}),
	}
	ctx, cancel := context.WithCancel(parentCtx)
	t.ctx = context.WithValue(ctx, taskKey{}, t)
	t.cancel = cancel
	if parent != nil {
		parent.children.Add(1)
	}
	return t
}

// start runs the task under the concurrency supervisor when one is in scope.
// A task the supervisor drops, or that is cancelled before it starts, ends as
// cancelled without running.
func (t *Task) start() {
	if !concurrency.HasHandler(t.ctx) {
		go t.run(t.ctx)
		return
	}
	context.AfterFunc(t.ctx, t.abandon)
	concurrency.EffectOr(t.ctx, t.run, t.abandon)
}

func (t *Task) abandon() {
	if t.started.CompareAndSwap(false, true) {
		t.m.logger.Debug("saga task dropped before start", zap.String("task", t.id))
		t.finish(ErrTaskCancelled)
	}
}

func (t *Task) run(ctx context.Context) {
	if !t.started.CompareAndSwap(false, true) {
		return
	}
	t.m.logger.Debug("saga task started", zap.String("task", t.id), zap.String("middleware", t.m.id))

	if err := t.runBody(ctx); err != nil && !isCancellation(ctx, err) {
		t.fail(err)
	}
	t.children.Wait()

	t.mu.Lock()
	var err error
	switch {
	case t.failure != nil:
		err = t.failure
	case ctx.Err() != nil:
		err = ErrTaskCancelled
	}
	t.mu.Unlock()
	t.finish(err)
}

// finish publishes the result and reports it upwards.
func (t *Task) finish(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
	t.stopScope()
	t.cancel()
	close(t.done)

	t.m.logger.Debug("saga task finished", zap.String("task", t.id), zap.Error(err))
	if err == nil || errors.Is(err, ErrTaskCancelled) {
		if t.parent != nil {
			t.parent.children.Done()
		}
		return
	}
	if t.parent != nil {
		t.parent.fail(err)
		t.parent.children.Done()
		return
	}
	t.m.onError(err)
}

func (t *Task) runBody(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.m.logger.Error("saga panicked",
				zap.String("task", t.id),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("%w: %v", ErrSagaPanicked, r)
		}
	}()
	return t.saga(ctx)
}

// fail records the first failure and cancels the task with everything attached to it.
func (t *Task) fail(err error) {
	t.mu.Lock()
	if t.failure == nil {
		t.failure = err
	}
	t.mu.Unlock()
	t.cancel()
}

func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// ID identifies the task in logs.
func (t *Task) ID() string { return t.id }

// Cancel stops the task and its attached children. It does not wait for them.
func (t *Task) Cancel() { t.cancel() }

// Done is closed once the task and its attached children are done.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the task result: nil while running or on success, ErrTaskCancelled after
// cancellation, otherwise the first failure.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Wait blocks until the task is done or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the task is not done yet.
func (t *Task) IsRunning() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// IsCancelled reports whether the task ended by cancellation.
func (t *Task) IsCancelled() bool {
	return errors.Is(t.Err(), ErrTaskCancelled)
}
