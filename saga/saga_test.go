package saga_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/on-the-ground/effect_ive_store/effects/concurrency"
	"github.com/on-the-ground/effect_ive_store/effects/log"
	"github.com/on-the-ground/effect_ive_store/saga"
	"github.com/on-the-ground/effect_ive_store/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func counterReducer(state any, action store.Action) any {
	n, _ := state.(int)
	if action.Type == "INC" {
		return n + 1
	}
	return n
}

func pongReducer(state any, action store.Action) any {
	n, _ := state.(int)
	if action.Type == "PONG" {
		return n + 1
	}
	return n
}

func newSagaStore(t *testing.T, opts ...saga.Option) (*store.Store, *saga.Middleware) {
	t.Helper()
	m := saga.New(opts...)
	root, err := store.Combine(store.ReducerMap{"counter": counterReducer, "pongs": pongReducer})
	require.NoError(t, err)
	s, err := store.New(root, nil, store.WithMiddleware(m.Middleware()))
	require.NoError(t, err)
	return s, m
}

func waitTask(t *testing.T, task *saga.Task) error {
	t.Helper()
	select {
	case <-task.Done():
		return task.Err()
	case <-time.After(2 * time.Second):
		t.Fatal("task did not finish")
		return nil
	}
}

// warmUp dispatches warm actions until ready reports that a saga saw one.
// Every action dispatched afterwards reaches that saga's subscription.
func warmUp(t *testing.T, s *store.Store, typ string, ready func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		require.NoError(t, s.Dispatch(store.NewAction(typ, "warm")))
		return ready()
	}, 2*time.Second, 5*time.Millisecond)
}

type seenSet struct {
	mu   sync.Mutex
	seen map[any]int
}

func newSeenSet() *seenSet { return &seenSet{seen: map[any]int{}} }

func (s *seenSet) add(v any) {
	s.mu.Lock()
	s.seen[v]++
	s.mu.Unlock()
}

func (s *seenSet) count(v any) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[v]
}

func TestRun_BeforeMountFails(t *testing.T) {
	m := saga.New()
	_, err := m.Run(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, saga.ErrNotMounted)
}

func TestEffects_OutsideSagaFail(t *testing.T) {
	ctx := context.Background()

	assert.ErrorIs(t, saga.Put(ctx, store.NewAction("INC", nil)), saga.ErrNoTask)
	_, err := saga.Select(ctx)
	assert.ErrorIs(t, err, saga.ErrNoTask)
	_, err = saga.Take(ctx, saga.Any)
	assert.ErrorIs(t, err, saga.ErrNoTask)
	_, err = saga.Fork(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, saga.ErrNoTask)
	_, err = saga.NewActionChannel(ctx, saga.Any)
	assert.ErrorIs(t, err, saga.ErrNoTask)
}

func TestTakePut_RoundTrip(t *testing.T) {
	s, m := newSagaStore(t)

	task, err := m.Run(context.Background(), func(ctx context.Context) error {
		if _, err := saga.Take(ctx, saga.Type("PING")); err != nil {
			return err
		}
		return saga.Put(ctx, store.NewAction("PONG", nil))
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		require.NoError(t, s.Dispatch(store.NewAction("PING", nil)))
		return !task.IsRunning()
	}, 2*time.Second, 5*time.Millisecond)

	assert.NoError(t, task.Err())
	assert.Equal(t, 1, s.GetState()["pongs"])
}

func TestSelect_ReadsCurrentState(t *testing.T) {
	s, m := newSagaStore(t)
	require.NoError(t, s.Dispatch(store.NewAction("INC", nil)))

	var got int
	task, err := m.Run(context.Background(), func(ctx context.Context) error {
		if err := saga.Put(ctx, store.NewAction("INC", nil)); err != nil {
			return err
		}
		v, err := saga.SelectSlice[int](ctx, "counter")
		got = v
		return err
	})
	require.NoError(t, err)

	require.NoError(t, waitTask(t, task))
	assert.Equal(t, 2, got)
}

func TestSelectSlice_WrongType(t *testing.T) {
	_, m := newSagaStore(t)

	task, err := m.Run(context.Background(), func(ctx context.Context) error {
		_, err := saga.SelectSlice[string](ctx, "counter")
		return err
	})
	require.NoError(t, err)

	assert.Error(t, waitTask(t, task))
}

func TestTask_CancelEndsWithErrTaskCancelled(t *testing.T) {
	_, m := newSagaStore(t)

	task, err := m.Run(context.Background(), func(ctx context.Context) error {
		_, err := saga.Take(ctx, saga.Type("NEVER"))
		return err
	})
	require.NoError(t, err)
	assert.True(t, task.IsRunning())

	task.Cancel()

	err = waitTask(t, task)
	assert.ErrorIs(t, err, saga.ErrTaskCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, task.IsCancelled())
}

func TestTask_CancelledWithRunContext(t *testing.T) {
	_, m := newSagaStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	task, err := m.Run(ctx, func(ctx context.Context) error {
		return saga.Delay(ctx, time.Hour)
	})
	require.NoError(t, err)
	cancel()

	assert.ErrorIs(t, waitTask(t, task), saga.ErrTaskCancelled)
}

func TestTask_PanicBecomesError(t *testing.T) {
	errCh := make(chan error, 1)
	core, logs := observer.New(zapcore.ErrorLevel)
	_, m := newSagaStore(t, saga.WithLogger(zap.New(core)), saga.WithOnError(func(err error) { errCh <- err }))

	task, err := m.Run(context.Background(), func(context.Context) error {
		panic("boom")
	})
	require.NoError(t, err)

	assert.ErrorIs(t, waitTask(t, task), saga.ErrSagaPanicked)
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, saga.ErrSagaPanicked)
	case <-time.After(time.Second):
		t.Fatal("error hook not called")
	}
	assert.Equal(t, 1, logs.FilterMessage("saga panicked").Len())
}

func TestTask_DefaultErrorHookLogs(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	_, m := newSagaStore(t, saga.WithLogger(zap.New(core)))
	failure := errors.New("failure")

	task, err := m.Run(context.Background(), func(context.Context) error { return failure })
	require.NoError(t, err)

	assert.ErrorIs(t, waitTask(t, task), failure)
	require.Eventually(t, func() bool {
		return logs.FilterMessage("uncaught saga error").Len() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestFork_ParentWaitsForAttachedChildren(t *testing.T) {
	_, m := newSagaStore(t)
	release := make(chan struct{})
	var childDone atomic.Bool

	task, err := m.Run(context.Background(), func(ctx context.Context) error {
		_, err := saga.Fork(ctx, func(ctx context.Context) error {
			<-release
			childDone.Store(true)
			return nil
		})
		return err
	})
	require.NoError(t, err)

	select {
	case <-task.Done():
		t.Fatal("parent finished before its child")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)

	require.NoError(t, waitTask(t, task))
	assert.True(t, childDone.Load())
}

func TestFork_ChildFailureAbortsParentAndSiblings(t *testing.T) {
	errCh := make(chan error, 1)
	_, m := newSagaStore(t, saga.WithOnError(func(err error) { errCh <- err }))
	failure := errors.New("child failed")

	var sibling *saga.Task
	task, err := m.Run(context.Background(), func(ctx context.Context) error {
		var err error
		sibling, err = saga.Fork(ctx, func(ctx context.Context) error {
			return saga.Delay(ctx, time.Hour)
		})
		if err != nil {
			return err
		}
		if _, err := saga.Fork(ctx, func(context.Context) error { return failure }); err != nil {
			return err
		}
		return saga.Delay(ctx, time.Hour)
	})
	require.NoError(t, err)

	assert.ErrorIs(t, waitTask(t, task), failure)
	assert.True(t, sibling.IsCancelled())
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, failure)
	case <-time.After(time.Second):
		t.Fatal("error hook not called")
	}
}

func TestFork_CancelledChildDoesNotFailParent(t *testing.T) {
	_, m := newSagaStore(t)

	task, err := m.Run(context.Background(), func(ctx context.Context) error {
		child, err := saga.Fork(ctx, func(ctx context.Context) error {
			return saga.Delay(ctx, time.Hour)
		})
		if err != nil {
			return err
		}
		child.Cancel()
		if err := saga.Join(ctx, child); !errors.Is(err, saga.ErrTaskCancelled) {
			return errors.New("child was not cancelled")
		}
		return nil
	})
	require.NoError(t, err)

	assert.NoError(t, waitTask(t, task))
}

func TestSpawn_OutlivesParent(t *testing.T) {
	_, m := newSagaStore(t)
	release := make(chan struct{})
	spawned := make(chan *saga.Task, 1)

	task, err := m.Run(context.Background(), func(ctx context.Context) error {
		child, err := saga.Spawn(ctx, func(ctx context.Context) error {
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			return err
		}
		spawned <- child
		return saga.Delay(ctx, time.Hour)
	})
	require.NoError(t, err)
	child := <-spawned

	task.Cancel()
	assert.ErrorIs(t, waitTask(t, task), saga.ErrTaskCancelled)
	assert.True(t, child.IsRunning())

	close(release)
	assert.NoError(t, waitTask(t, child))
}

func TestJoin_ReturnsFirstError(t *testing.T) {
	_, m := newSagaStore(t, saga.WithOnError(func(error) {}))
	failure := errors.New("failure")

	var joined error
	task, err := m.Run(context.Background(), func(ctx context.Context) error {
		ok, err := saga.Spawn(ctx, func(context.Context) error { return nil })
		if err != nil {
			return err
		}
		bad, err := saga.Spawn(ctx, func(context.Context) error { return failure })
		if err != nil {
			return err
		}
		joined = saga.Join(ctx, ok, bad)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, waitTask(t, task))
	assert.ErrorIs(t, joined, failure)
}

func TestAll_FinishesWhenEveryChildFinished(t *testing.T) {
	s, m := newSagaStore(t)

	var after atomic.Bool
	task, err := m.Run(context.Background(), func(ctx context.Context) error {
		err := saga.All(
			func(ctx context.Context) error { return saga.Put(ctx, store.NewAction("INC", nil)) },
			func(ctx context.Context) error {
				if err := saga.Delay(ctx, 10*time.Millisecond); err != nil {
					return err
				}
				return saga.Put(ctx, store.NewAction("INC", nil))
			},
			nil,
		)(ctx)
		after.Store(true)
		return err
	})
	require.NoError(t, err)

	require.NoError(t, waitTask(t, task))
	assert.True(t, after.Load())
	assert.Equal(t, 2, s.GetState()["counter"])
}

func TestAll_EmptyFinishesImmediately(t *testing.T) {
	_, m := newSagaStore(t)

	task, err := m.Run(context.Background(), saga.All())
	require.NoError(t, err)

	assert.NoError(t, waitTask(t, task))
}

func TestAll_FailureCancelsSiblings(t *testing.T) {
	_, m := newSagaStore(t, saga.WithOnError(func(error) {}))
	failure := errors.New("failure")
	var siblingCancelled atomic.Bool

	task, err := m.Run(context.Background(), saga.All(
		func(ctx context.Context) error {
			err := saga.Delay(ctx, time.Hour)
			siblingCancelled.Store(errors.Is(err, context.Canceled))
			return err
		},
		func(context.Context) error { return failure },
	))
	require.NoError(t, err)

	assert.ErrorIs(t, waitTask(t, task), failure)
	assert.True(t, siblingCancelled.Load())
}

func TestActionChannel_BuffersUntilTaken(t *testing.T) {
	s, m := newSagaStore(t)
	subscribed := make(chan struct{})
	release := make(chan struct{})
	var got []any

	task, err := m.Run(context.Background(), func(ctx context.Context) error {
		ch, err := saga.NewActionChannel(ctx, saga.Type("ITEM"))
		if err != nil {
			return err
		}
		defer ch.Close()
		close(subscribed)
		<-release
		for i := 0; i < 3; i++ {
			a, err := ch.Take(ctx)
			if err != nil {
				return err
			}
			got = append(got, a.Payload)
		}
		return nil
	})
	require.NoError(t, err)

	<-subscribed
	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Dispatch(store.NewAction("OTHER", i)))
		require.NoError(t, s.Dispatch(store.NewAction("ITEM", i)))
	}
	close(release)

	require.NoError(t, waitTask(t, task))
	assert.Equal(t, []any{1, 2, 3}, got)
}

func TestActionChannel_ClosedAfterDrain(t *testing.T) {
	s, m := newSagaStore(t)
	subscribed := make(chan *saga.ActionChannel, 1)
	release := make(chan struct{})
	var takeErr error
	var first store.Action

	task, err := m.Run(context.Background(), func(ctx context.Context) error {
		ch, err := saga.NewActionChannel(ctx, saga.Any)
		if err != nil {
			return err
		}
		subscribed <- ch
		<-release
		first, _ = ch.Take(ctx)
		_, takeErr = ch.Take(ctx)
		return nil
	})
	require.NoError(t, err)

	ch := <-subscribed
	require.NoError(t, s.Dispatch(store.NewAction("INC", nil)))
	assert.Equal(t, 1, ch.Len())
	ch.Close()
	require.NoError(t, s.Dispatch(store.NewAction("INC", nil)))
	close(release)

	require.NoError(t, waitTask(t, task))
	assert.Equal(t, "INC", first.Type)
	assert.ErrorIs(t, takeErr, saga.ErrChannelClosed)
}

func TestTakeEvery_HandlesEveryAction(t *testing.T) {
	s, m := newSagaStore(t)
	seen := newSeenSet()

	task, err := m.Run(context.Background(), saga.TakeEvery(saga.Type("WORK"), func(ctx context.Context, a store.Action) error {
		seen.add(a.Payload)
		return nil
	}))
	require.NoError(t, err)

	warmUp(t, s, "WORK", func() bool { return seen.count("warm") > 0 })
	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Dispatch(store.NewAction("WORK", i)))
	}

	require.Eventually(t, func() bool {
		return seen.count(1) == 1 && seen.count(2) == 1 && seen.count(3) == 1
	}, 2*time.Second, 5*time.Millisecond)

	task.Cancel()
	assert.ErrorIs(t, waitTask(t, task), saga.ErrTaskCancelled)
}

func TestTakeLatest_CancelsPreviousWorker(t *testing.T) {
	s, m := newSagaStore(t)
	seen := newSeenSet()
	cancelled := newSeenSet()

	task, err := m.Run(context.Background(), saga.TakeLatest(saga.Type("SEARCH"), func(ctx context.Context, a store.Action) error {
		seen.add(a.Payload)
		if a.Payload == "warm" {
			return nil
		}
		<-ctx.Done()
		cancelled.add(a.Payload)
		return ctx.Err()
	}))
	require.NoError(t, err)

	warmUp(t, s, "SEARCH", func() bool { return seen.count("warm") > 0 })
	require.NoError(t, s.Dispatch(store.NewAction("SEARCH", "a")))
	require.Eventually(t, func() bool { return seen.count("a") == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Dispatch(store.NewAction("SEARCH", "b")))

	require.Eventually(t, func() bool {
		return cancelled.count("a") == 1 && seen.count("b") == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, cancelled.count("b"))

	task.Cancel()
	assert.ErrorIs(t, waitTask(t, task), saga.ErrTaskCancelled)
	assert.Equal(t, 1, cancelled.count("b"))
}

func TestRun_SupervisedByConcurrencyHandler(t *testing.T) {
	ctx := context.Background()
	ctx, endOfLogHandler := log.WithTestEffectHandler(ctx)
	defer endOfLogHandler()
	ctx, cancel := context.WithCancel(ctx)
	ctx, endOfConcurrencyHandler := concurrency.WithEffectHandler(ctx, 4)

	_, m := newSagaStore(t)
	task, err := m.Run(ctx, func(ctx context.Context) error {
		return saga.Delay(ctx, time.Hour)
	})
	require.NoError(t, err)

	cancel()
	endOfConcurrencyHandler()

	assert.ErrorIs(t, waitTask(t, task), saga.ErrTaskCancelled)
}

func TestFork_DroppedByClosingSupervisorEndsCancelled(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := context.Background()
	ctx, endOfLogHandler := log.WithZapEffectHandler(ctx, 16, zap.New(core))
	defer endOfLogHandler()
	ctx, endOfConcurrencyHandler := concurrency.WithEffectHandler(ctx, 4)

	_, m := newSagaStore(t)
	gate := make(chan struct{})
	var childRan atomic.Bool
	var child *saga.Task
	task, err := m.Run(ctx, func(ctx context.Context) error {
		<-gate
		var err error
		child, err = saga.Fork(ctx, func(context.Context) error {
			childRan.Store(true)
			return nil
		})
		if err != nil {
			return err
		}
		if err := saga.Join(ctx, child); !errors.Is(err, saga.ErrTaskCancelled) {
			return errors.New("fork ran on a closing supervisor")
		}
		return nil
	})
	require.NoError(t, err)

	ended := make(chan struct{})
	go func() {
		endOfConcurrencyHandler()
		close(ended)
	}()
	require.Eventually(t, func() bool {
		return logs.FilterMessage("waiting for all routines to finish").Len() > 0
	}, 2*time.Second, 5*time.Millisecond)
	close(gate)

	require.NoError(t, waitTask(t, task))
	assert.ErrorIs(t, child.Err(), saga.ErrTaskCancelled)
	assert.False(t, childRan.Load())
	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor teardown did not finish")
	}
}
