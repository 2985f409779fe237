// Package registry keeps the reducers and sagas registered at runtime.
package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	memdb "github.com/hashicorp/go-memdb"
	"github.com/on-the-ground/effect_ive_store/saga"
	"github.com/on-the-ground/effect_ive_store/store"
	"go.uber.org/zap"
)

// Registry holds the reducers and sagas registered at runtime, and the saga
// middleware of the most recently built store.
//
// Reads see a consistent snapshot of each table.
type Registry struct {
	db     *memdb.MemDB
	seq    atomic.Uint64
	logger *zap.Logger

	// mu guards the middleware and store slots, and serialises injections.
	mu         sync.Mutex
	middleware *saga.Middleware
	store      *store.Store
	// base holds the reducers the attached store was built with.
	base store.ReducerMap
}

// Option configures New.
type Option func(*Registry)

// WithLogger sets the registry logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New returns an empty registry.
func New(opts ...Option) (*Registry, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("failed to create registry tables: %w", err)
	}
	r := &Registry{db: db, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// MustNew is New for package-level registries.
func MustNew(opts ...Option) *Registry {
	r, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// RegisterReducer registers reducer under name, replacing any reducer with that name.
func (r *Registry) RegisterReducer(name string, reducer store.Reducer) error {
	if name == "" {
		return ErrEmptyName
	}
	if reducer == nil {
		return ErrNilReducer
	}

	txn := r.db.Txn(true)
	defer txn.Abort()

	entry := &reducerEntry{Name: name, Reducer: reducer}
	old, err := txn.First(tableReducer, indexID, name)
	if err != nil {
		return err
	}
	if old != nil {
		entry.Seq = old.(*reducerEntry).Seq
	} else {
		entry.Seq = r.seq.Add(1)
	}
	if err := txn.Insert(tableReducer, entry); err != nil {
		return err
	}
	txn.Commit()
	r.logger.Debug("registered reducer", zap.String("name", name), zap.Bool("replaced", old != nil))
	return nil
}

// UnregisterReducer removes the reducer registered under name.
func (r *Registry) UnregisterReducer(name string) (deleted bool, err error) {
	return r.delete(tableReducer, name)
}

// RegisterSaga registers s under name unless the name is taken.
func (r *Registry) RegisterSaga(name string, s saga.Saga) (inserted bool, err error) {
	if name == "" {
		return false, ErrEmptyName
	}
	if s == nil {
		return false, ErrNilSaga
	}

	txn := r.db.Txn(true)
	defer txn.Abort()

	old, err := txn.First(tableSaga, indexID, name)
	if err != nil {
		return false, err
	} else if old != nil {
		return false, nil
	}

	if err := txn.Insert(tableSaga, &sagaEntry{Name: name, Seq: r.seq.Add(1), Saga: s}); err != nil {
		return false, err
	}
	txn.Commit()
	r.logger.Debug("registered saga", zap.String("name", name))
	return true, nil
}

// UnregisterSaga removes the saga registered under name. A task already running it is not stopped.
func (r *Registry) UnregisterSaga(name string) (deleted bool, err error) {
	return r.delete(tableSaga, name)
}

func (r *Registry) delete(table, name string) (bool, error) {
	txn := r.db.Txn(true)
	defer txn.Abort()

	old, err := txn.First(table, indexID, name)
	if err != nil || old == nil {
		return false, err
	}
	if err := txn.Delete(table, old); err != nil {
		return false, err
	}
	txn.Commit()
	return true, nil
}

// Reducers returns the registered reducers keyed by name.
func (r *Registry) Reducers() (store.ReducerMap, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()
	return reducersIn(txn)
}

func reducersIn(txn *memdb.Txn) (store.ReducerMap, error) {
	it, err := txn.Get(tableReducer, indexID)
	if err != nil {
		return nil, err
	}
	reducers := store.ReducerMap{}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		e := raw.(*reducerEntry)
		reducers[e.Name] = e.Reducer
	}
	return reducers, nil
}

// Sagas returns the registered sagas in registration order.
func (r *Registry) Sagas() ([]saga.Saga, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableSaga, indexSeq)
	if err != nil {
		return nil, err
	}
	var sagas []saga.Saga
	for raw := it.Next(); raw != nil; raw = it.Next() {
		sagas = append(sagas, raw.(*sagaEntry).Saga)
	}
	return sagas, nil
}

// SetSagaMiddleware records m as the middleware later injections run on. The last call wins.
func (r *Registry) SetSagaMiddleware(m *saga.Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.middleware != nil && r.middleware != m {
		r.logger.Debug("replacing saga middleware", zap.String("old", r.middleware.ID()), zap.String("new", idOf(m)))
	}
	r.middleware = m
}

func idOf(m *saga.Middleware) string {
	if m == nil {
		return ""
	}
	return m.ID()
}

// SagaMiddleware returns the recorded middleware.
func (r *Registry) SagaMiddleware() (*saga.Middleware, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.middleware, r.middleware != nil
}

// AttachStore records s as the store InjectReducer replaces the reducer of.
// base is the reducer map s was built with; injections keep its slices.
func (r *Registry) AttachStore(s *store.Store, base store.ReducerMap) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store = s
	r.base = make(store.ReducerMap, len(base))
	for name, reducer := range base {
		r.base[name] = reducer
	}
}

// InjectReducer registers reducer and, when a store is attached, swaps in a root reducer
// combining the store's base reducers, every registered reducer and the new one.
// Nothing is registered, and the store is left as it was, if the combined reducer cannot
// be built or fails to reduce the current state.
func (r *Registry) InjectReducer(name string, reducer store.Reducer) error {
	if name == "" {
		return ErrEmptyName
	}
	if reducer == nil {
		return ErrNilReducer
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	txn := r.db.Txn(false)
	registered, err := reducersIn(txn)
	txn.Abort()
	if err != nil {
		return err
	}
	reducers := make(store.ReducerMap, len(r.base)+len(registered)+1)
	for n, red := range r.base {
		reducers[n] = red
	}
	for n, red := range registered {
		reducers[n] = red
	}
	reducers[name] = reducer

	root, err := store.Combine(reducers)
	if err != nil {
		return fmt.Errorf("failed to inject reducer %q: %w", name, err)
	}
	if r.store != nil {
		if err := r.store.ReplaceReducer(root); err != nil {
			return fmt.Errorf("failed to inject reducer %q: %w", name, err)
		}
	}
	return r.RegisterReducer(name, reducer)
}

// InjectSaga registers s and runs it on the recorded middleware. Without a middleware
// the saga is only registered, and runs with the next built store.
// The returned task is nil in that case.
func (r *Registry) InjectSaga(ctx context.Context, name string, s saga.Saga) (*saga.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inserted, err := r.RegisterSaga(name, s)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, fmt.Errorf("%w: %q", ErrSagaExists, name)
	}
	if r.middleware == nil {
		return nil, nil
	}
	return r.middleware.Run(ctx, s)
}

// Reset empties both tables and clears the middleware and store slots.
func (r *Registry) Reset() error {
	txn := r.db.Txn(true)
	defer txn.Abort()
	for _, table := range []string{tableReducer, tableSaga} {
		if _, err := txn.DeleteAll(table, indexID); err != nil {
			return err
		}
	}
	txn.Commit()

	r.mu.Lock()
	r.middleware = nil
	r.store = nil
	r.base = nil
	r.mu.Unlock()
	return nil
}
