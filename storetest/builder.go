// Package storetest builds stores wired with registered reducers and sagas for tests.
//
// A build combines the reducers of a provider into a store, mounts a saga middleware,
// starts one root task running every provided saga, and records the middleware through
// a setter so later code can inject more sagas:
//
//	h := storetest.ConfigureStore(t, store.State{"counter": 0},
//		storetest.WithRegistry(reg),
//	)
//	require.NoError(t, h.Dispatch(store.NewAction("INC", nil)))
package storetest

import (
	"context"
	"fmt"
	"time"

	"github.com/on-the-ground/effect_ive_store/effects/binding"
	"github.com/on-the-ground/effect_ive_store/effects/concurrency"
	"github.com/on-the-ground/effect_ive_store/effects/configkeys"
	"github.com/on-the-ground/effect_ive_store/effects/log"
	"github.com/on-the-ground/effect_ive_store/saga"
	"github.com/on-the-ground/effect_ive_store/store"
)

const (
	defaultLogBufferSize         = 64
	defaultConcurrencyBufferSize = 16
	defaultTeardownTimeout       = 5 * time.Second
)

// Builder assembles stores. It may be reused; every Build is independent.
type Builder struct {
	opts options
}

// NewBuilder returns a Builder. Without WithRegistry, WithReducers and WithSagas it
// sources everything from registry.Default.
func NewBuilder(opts ...Option) *Builder {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Builder{opts: o}
}

// Build returns a harness whose reducers and root task are wired. Sagas may still be
// starting when it returns.
//
// Handler buffer sizes and the teardown timeout are read from the binding effect of ctx
// when one is registered, under the configkeys keys.
//
// A reducer provider failure is returned before the middleware is recorded.
// Saga failures do not fail Build; they reach the saga error hook and Root().Err().
func (b *Builder) Build(ctx context.Context, initialState store.State) (*Harness, error) {
	o := b.opts.withDefaults()
	if initialState == nil {
		initialState = store.State{}
	}

	logBufferSize := binding.GetOrDefault(ctx, configkeys.ConfigEffectLogHandlerBufferSize, defaultLogBufferSize)
	concurrencyBufferSize := binding.GetOrDefault(ctx, configkeys.ConfigEffectConcurrencyHandlerBufferSize, defaultConcurrencyBufferSize)
	timeout := o.teardownTimeout
	if timeout <= 0 {
		timeout = binding.GetOrDefault(ctx, configkeys.ConfigStoreTestTeardownTimeout, defaultTeardownTimeout)
	}

	ctx, endOfLogHandler := log.WithZapEffectHandler(ctx, logBufferSize, o.logger)
	ctx, cancel := context.WithCancel(ctx)
	ctx, endOfConcurrencyHandler := concurrency.WithEffectHandler(ctx, concurrencyBufferSize)

	h := &Harness{
		ctx:                     ctx,
		recorder:                newRecorder(),
		timeout:                 timeout,
		cancel:                  cancel,
		endOfConcurrencyHandler: endOfConcurrencyHandler,
		endOfLogHandler:         endOfLogHandler,
	}
	abort := func(err error) (*Harness, error) {
		cancel()
		endOfConcurrencyHandler()
		endOfLogHandler()
		return nil, err
	}

	reducers, err := o.reducers()
	if err != nil {
		return abort(fmt.Errorf("%w: %w", ErrReducerProvider, err))
	}
	rootReducer, err := store.Combine(reducers)
	if err != nil {
		return abort(fmt.Errorf("failed to combine reducers: %w", err))
	}

	h.sagas = saga.New(append([]saga.Option{saga.WithLogger(o.logger)}, o.sagaOptions...)...)
	mws := append([]store.Middleware{h.recorder.middleware(), h.sagas.Middleware()}, o.middlewares...)
	h.store, err = store.New(rootReducer, initialState, store.WithLogger(o.logger), store.WithMiddleware(mws...))
	if err != nil {
		return abort(fmt.Errorf("failed to create store: %w", err))
	}

	sagas := o.sagas
	h.root, err = h.sagas.Run(ctx, func(ctx context.Context) error {
		list, err := sagas()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSagaProvider, err)
		}
		log.Effect(ctx, log.LogDebug, "starting sagas", map[string]interface{}{"count": len(list)})
		return saga.All(list...)(ctx)
	})
	if err != nil {
		return abort(fmt.Errorf("failed to start root saga: %w", err))
	}

	if o.setter != nil {
		o.setter(h.sagas)
	} else {
		o.registry.SetSagaMiddleware(h.sagas)
		o.registry.AttachStore(h.store, reducers)
	}

	log.Effect(ctx, log.LogDebug, "store configured", map[string]interface{}{
		"store":      h.store.ID(),
		"middleware": h.sagas.ID(),
		"slices":     len(reducers),
	})
	return h, nil
}
