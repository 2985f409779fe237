package saga

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/on-the-ground/effect_ive_store/store"
	"go.uber.org/zap"
)

// Middleware runs sagas against the store it is mounted on.
//
// Every action that reached the reducers is emitted to the sagas waiting for it.
type Middleware struct {
	id      string
	logger  *zap.Logger
	onError func(error)
	channel *multicast

	mu  sync.RWMutex
	api store.MiddlewareAPI
}

type options struct {
	logger  *zap.Logger
	onError func(error)
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger of the middleware and its tasks. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithOnError sets the hook receiving failures of root and detached tasks.
// The default logs them at error level.
func WithOnError(fn func(error)) Option {
	return func(o *options) {
		o.onError = fn
	}
}

// New returns an unmounted saga middleware.
func New(opts ...Option) *Middleware {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	m := &Middleware{
		id:      uuid.New().String(),
		logger:  o.logger,
		onError: o.onError,
		channel: newMulticast(),
	}
	if m.onError == nil {
		m.onError = func(err error) {
			m.logger.Error("uncaught saga error", zap.String("middleware", m.id), zap.Error(err))
		}
	}
	return m
}

// ID identifies the middleware in logs.
func (m *Middleware) ID() string { return m.id }

// Middleware returns the store middleware that mounts m.
func (m *Middleware) Middleware() store.Middleware {
	return func(api store.MiddlewareAPI, next store.DispatchFunc) store.DispatchFunc {
		m.mu.Lock()
		if m.api != nil {
			m.logger.Warn("saga middleware mounted twice, sagas now follow the latest store", zap.String("middleware", m.id))
		}
		m.api = api
		m.mu.Unlock()

		return func(action store.Action) error {
			if err := next(action); err != nil {
				return err
			}
			m.channel.emit(action)
			return nil
		}
	}
}

// Run starts s as a root task. The task runs under the concurrency handler of ctx when
// one is registered, and is cancelled with ctx.
func (m *Middleware) Run(ctx context.Context, s Saga) (*Task, error) {
	if _, err := m.storeAPI(); err != nil {
		return nil, err
	}
	t := newTask(ctx, ctx, m, nil, s)
	t.start()
	return t, nil
}

func (m *Middleware) storeAPI() (store.MiddlewareAPI, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.api == nil {
		return nil, ErrNotMounted
	}
	return m.api, nil
}
