package registry

import "errors"

var (
	// ErrEmptyName is returned when registering under an empty name.
	ErrEmptyName = errors.New("registry entry needs a name")
	// ErrNilReducer is returned when registering a nil reducer.
	ErrNilReducer = errors.New("registry: nil reducer")
	// ErrNilSaga is returned when registering a nil saga.
	ErrNilSaga = errors.New("registry: nil saga")
	// ErrSagaExists is returned by InjectSaga when the name is already taken.
	ErrSagaExists = errors.New("a saga is already registered under this name")
)
