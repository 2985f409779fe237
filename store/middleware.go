package store

// DispatchFunc hands an action to the next stage of the dispatch chain.
type DispatchFunc func(action Action) error

// MiddlewareAPI is what a middleware sees of the store.
// Dispatch goes through the whole chain, including the calling middleware.
type MiddlewareAPI interface {
	Dispatch(action Action) error
	GetState() State
}

// Middleware wraps the next dispatcher. It is called once, when the store is built.
// A middleware must call next to let the action reach the reducer (unless it swallows it).
type Middleware func(api MiddlewareAPI, next DispatchFunc) DispatchFunc

// chain composes mws around base. The first middleware is the outermost:
//
//	Chain(recorder, sagas) dispatches as recorder → sagas → reducer
func chain(api MiddlewareAPI, base DispatchFunc, mws []Middleware) DispatchFunc {
	next := base
	for i := len(mws) - 1; i >= 0; i-- {
		next = mws[i](api, next)
	}
	return next
}

type middlewareAPI struct {
	store *Store
}

func (api middlewareAPI) Dispatch(action Action) error {
	return api.store.dispatch(action)
}

func (api middlewareAPI) GetState() State {
	return api.store.GetState()
}
