package saga

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotMounted is returned by Run before the middleware is mounted on a store.
	ErrNotMounted = errors.New("saga middleware must be mounted on a store before running a saga")
	// ErrNoTask is returned by effects performed outside a saga context.
	ErrNoTask = errors.New("effect performed outside of a running saga")
	// ErrChannelClosed is returned when taking from a closed action channel.
	ErrChannelClosed = errors.New("action channel closed")
	// ErrTaskCancelled is the result of a cancelled task.
	ErrTaskCancelled = fmt.Errorf("saga task cancelled: %w", context.Canceled)
	// ErrSagaPanicked wraps a panic recovered from a saga body.
	ErrSagaPanicked = errors.New("saga panicked")
)
