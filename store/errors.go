package store

import "errors"

var (
	// ErrNilReducer is returned when a nil root reducer is given to New or ReplaceReducer.
	ErrNilReducer = errors.New("reducer must not be nil")
	// ErrReducerReturnedNil is returned when a slice reducer returns nil.
	ErrReducerReturnedNil = errors.New("reducer returned nil")
	// ErrReducerPanicked wraps a panic recovered from a reducer. The state is left unchanged.
	ErrReducerPanicked = errors.New("reducer panicked")
	// ErrInvalidAction is returned for actions without a type.
	ErrInvalidAction = errors.New("action type must not be empty")
	// ErrDispatchDuringSetup is returned when a middleware dispatches while the chain is built.
	ErrDispatchDuringSetup = errors.New("dispatching while constructing middleware is not allowed")
)
