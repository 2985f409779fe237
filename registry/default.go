package registry

import (
	"github.com/on-the-ground/effect_ive_store/saga"
	"github.com/on-the-ground/effect_ive_store/store"
)

// Default is the process-wide registry used when no registry is given.
var Default = MustNew()

// AsyncReducers returns the reducers of Default.
func AsyncReducers() (store.ReducerMap, error) { return Default.Reducers() }

// AsyncSagas returns the sagas of Default in registration order.
func AsyncSagas() ([]saga.Saga, error) { return Default.Sagas() }

// SetSagaMiddleware records m on Default.
func SetSagaMiddleware(m *saga.Middleware) { Default.SetSagaMiddleware(m) }

// RegisterReducer registers reducer on Default.
func RegisterReducer(name string, reducer store.Reducer) error {
	return Default.RegisterReducer(name, reducer)
}

// RegisterSaga registers s on Default.
func RegisterSaga(name string, s saga.Saga) (bool, error) { return Default.RegisterSaga(name, s) }

// Reset empties Default.
func Reset() error { return Default.Reset() }
