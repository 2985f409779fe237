package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/on-the-ground/effect_ive_store/store"
)

// Current returns the task running in ctx.
func Current(ctx context.Context) (*Task, bool) {
	t, ok := ctx.Value(taskKey{}).(*Task)
	return t, ok
}

func current(ctx context.Context) (*Task, error) {
	t, ok := Current(ctx)
	if !ok {
		return nil, ErrNoTask
	}
	return t, nil
}

// Put dispatches action through the whole middleware chain of the store.
func Put(ctx context.Context, action store.Action) error {
	t, err := current(ctx)
	if err != nil {
		return err
	}
	api, err := t.m.storeAPI()
	if err != nil {
		return err
	}
	return api.Dispatch(action)
}

// Select returns the current store state.
func Select(ctx context.Context) (store.State, error) {
	t, err := current(ctx)
	if err != nil {
		return nil, err
	}
	api, err := t.m.storeAPI()
	if err != nil {
		return nil, err
	}
	return api.GetState(), nil
}

// SelectSlice returns the slice of the current state stored under key.
func SelectSlice[T any](ctx context.Context, key string) (T, error) {
	var zero T
	state, err := Select(ctx)
	if err != nil {
		return zero, err
	}
	v, ok := state[key].(T)
	if !ok {
		return zero, fmt.Errorf("slice %q is %T, not %T", key, state[key], zero)
	}
	return v, nil
}

// Take blocks until an action matching pattern is dispatched.
// Actions dispatched before the call are not seen.
func Take(ctx context.Context, pattern Pattern) (store.Action, error) {
	t, err := current(ctx)
	if err != nil {
		return store.Action{}, err
	}
	return t.m.channel.takeOnce(ctx, pattern)
}

// NewActionChannel subscribes to the actions matching pattern until ctx is done.
func NewActionChannel(ctx context.Context, pattern Pattern) (*ActionChannel, error) {
	t, err := current(ctx)
	if err != nil {
		return nil, err
	}
	return newActionChannel(ctx, t.m.channel, pattern), nil
}

// Fork starts s as a child attached to the current task.
// The current task is not done before the child is, and a failing child aborts it.
func Fork(ctx context.Context, s Saga) (*Task, error) {
	parent, err := current(ctx)
	if err != nil {
		return nil, err
	}
	child := newTask(ctx, parent.scope, parent.m, parent, s)
	child.start()
	return child, nil
}

// Spawn starts s as a detached task. It outlives cancellation of the current task but
// not of the context the root task was run with. Its failure is reported to the
// middleware error hook instead of the current task.
func Spawn(ctx context.Context, s Saga) (*Task, error) {
	parent, err := current(ctx)
	if err != nil {
		return nil, err
	}
	t := newTask(context.WithoutCancel(ctx), parent.scope, parent.m, nil, s)
	t.stopScope = context.AfterFunc(parent.scope, t.cancel)
	t.start()
	return t, nil
}

// Join waits for every task in order and returns the first error.
// A cancelled task joins as ErrTaskCancelled.
func Join(ctx context.Context, tasks ...*Task) error {
	for _, t := range tasks {
		if err := t.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Delay blocks for d, or until ctx is done.
func Delay(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
