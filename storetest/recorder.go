package storetest

import (
	"context"
	"sync"

	"github.com/on-the-ground/effect_ive_store/effects"
	"github.com/on-the-ground/effect_ive_store/saga"
	"github.com/on-the-ground/effect_ive_store/store"
)

// RecordedAction is an action that went through the store, with the result of its dispatch.
type RecordedAction struct {
	Action store.Action
	At     effects.TimeSpan
	Err    error
}

// recorder keeps every dispatched action. changed is closed and replaced on each append.
type recorder struct {
	mu      sync.Mutex
	actions []RecordedAction
	changed chan struct{}
}

func newRecorder() *recorder {
	return &recorder{changed: make(chan struct{})}
}

func (r *recorder) middleware() store.Middleware {
	return func(_ store.MiddlewareAPI, next store.DispatchFunc) store.DispatchFunc {
		return func(action store.Action) error {
			err := next(action)
			r.append(RecordedAction{Action: action, At: effects.Now(), Err: err})
			return err
		}
	}
}

func (r *recorder) append(ra RecordedAction) {
	r.mu.Lock()
	r.actions = append(r.actions, ra)
	close(r.changed)
	r.changed = make(chan struct{})
	r.mu.Unlock()
}

func (r *recorder) snapshot() []RecordedAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedAction(nil), r.actions...)
}

// wait returns the first recorded action matching pattern, waiting for one if needed.
func (r *recorder) wait(ctx context.Context, pattern saga.Pattern) (store.Action, error) {
	seen := 0
	for {
		r.mu.Lock()
		for ; seen < len(r.actions); seen++ {
			a := r.actions[seen].Action
			if r.actions[seen].Err == nil && (pattern == nil || pattern(a)) {
				r.mu.Unlock()
				return a, nil
			}
		}
		changed := r.changed
		r.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return store.Action{}, ctx.Err()
		}
	}
}
