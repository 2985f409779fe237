package storetest

import "errors"

var (
	// ErrReducerProvider wraps a failure of the reducer provider.
	ErrReducerProvider = errors.New("failed to fetch reducers")
	// ErrSagaProvider wraps a failure of the saga provider. It fails the root task.
	ErrSagaProvider = errors.New("failed to fetch sagas")
	// ErrTeardownTimeout is returned by Close when sagas outlive the teardown timeout.
	ErrTeardownTimeout = errors.New("sagas still running after teardown timeout")
)
