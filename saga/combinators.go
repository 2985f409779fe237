package saga

import (
	"context"

	"github.com/on-the-ground/effect_ive_store/store"
)

// Worker handles one action taken by TakeEvery or TakeLatest.
type Worker func(ctx context.Context, action store.Action) error

// All runs sagas side by side and blocks until all of them are done.
// The first failure cancels the others and is returned.
func All(sagas ...Saga) Saga {
	return func(ctx context.Context) error {
		group, err := Fork(ctx, func(ctx context.Context) error {
			for _, s := range sagas {
				if s == nil {
					continue
				}
				if _, err := Fork(ctx, s); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		return Join(ctx, group)
	}
}

// TakeEvery forks worker for every action matching pattern.
// Actions dispatched while a worker runs are not missed.
func TakeEvery(pattern Pattern, worker Worker) Saga {
	return func(ctx context.Context) error {
		ch, err := NewActionChannel(ctx, pattern)
		if err != nil {
			return err
		}
		defer ch.Close()

		for {
			action, err := ch.Take(ctx)
			if err != nil {
				return err
			}
			if _, err := Fork(ctx, func(ctx context.Context) error {
				return worker(ctx, action)
			}); err != nil {
				return err
			}
		}
	}
}

// TakeLatest forks worker for every action matching pattern, cancelling the worker
// still running for the previous one.
func TakeLatest(pattern Pattern, worker Worker) Saga {
	return func(ctx context.Context) error {
		ch, err := NewActionChannel(ctx, pattern)
		if err != nil {
			return err
		}
		defer ch.Close()

		var last *Task
		for {
			action, err := ch.Take(ctx)
			if err != nil {
				return err
			}
			if last != nil {
				last.Cancel()
			}
			last, err = Fork(ctx, func(ctx context.Context) error {
				return worker(ctx, action)
			})
			if err != nil {
				return err
			}
		}
	}
}
