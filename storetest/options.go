package storetest

import (
	"time"

	"github.com/on-the-ground/effect_ive_store/registry"
	"github.com/on-the-ground/effect_ive_store/saga"
	"github.com/on-the-ground/effect_ive_store/store"
	"go.uber.org/zap"
)

// ReducerProvider returns the reducers to combine into the store. It is called once per build.
type ReducerProvider func() (store.ReducerMap, error)

// SagaProvider returns the sagas started by the root task. It is called once per build,
// from the root task.
type SagaProvider func() ([]saga.Saga, error)

type options struct {
	registry        *registry.Registry
	reducers        ReducerProvider
	sagas           SagaProvider
	setter          func(*saga.Middleware)
	logger          *zap.Logger
	middlewares     []store.Middleware
	teardownTimeout time.Duration
	sagaOptions     []saga.Option
}

// Option configures a Builder.
type Option func(*options)

// WithRegistry sources reducers and sagas from r and records the saga middleware and
// the store on it. Defaults to registry.Default.
func WithRegistry(r *registry.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithReducers overrides the reducer source.
func WithReducers(p ReducerProvider) Option {
	return func(o *options) {
		o.reducers = p
	}
}

// WithSagas overrides the saga source.
func WithSagas(p SagaProvider) Option {
	return func(o *options) {
		o.sagas = p
	}
}

// WithSagaMiddlewareSetter overrides where the saga middleware is recorded.
// The store is then not attached to the registry.
func WithSagaMiddlewareSetter(fn func(*saga.Middleware)) Option {
	return func(o *options) {
		o.setter = fn
	}
}

// WithLogger sets the logger of the store, the sagas and the log effect.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMiddleware adds store middleware running inside the saga middleware.
func WithMiddleware(mws ...store.Middleware) Option {
	return func(o *options) {
		o.middlewares = append(o.middlewares, mws...)
	}
}

// WithTeardownTimeout bounds how long Close waits for running sagas.
func WithTeardownTimeout(d time.Duration) Option {
	return func(o *options) {
		o.teardownTimeout = d
	}
}

// WithSagaOptions passes options to the saga middleware.
func WithSagaOptions(opts ...saga.Option) Option {
	return func(o *options) {
		o.sagaOptions = append(o.sagaOptions, opts...)
	}
}

func (o options) withDefaults() options {
	if o.registry == nil {
		o.registry = registry.Default
	}
	if o.reducers == nil {
		o.reducers = o.registry.Reducers
	}
	if o.sagas == nil {
		o.sagas = o.registry.Sagas
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}
