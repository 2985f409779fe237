package handlers

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// effectScope owns one worker dispatcher and its teardown.
// It is not safe for concurrent Close calls; the scope owner closes it exactly once.
type effectScope[T any] struct {
	EffectId   string
	dispatcher WorkerDispatcher[T]
	closeFn    func()
	closed     bool
}

func (es *effectScope[T]) Close() {
	if !es.closed {
		es.closeFn()
		es.closed = true
		zap.L().Debug("effect scope closed", zap.String("effectId", es.EffectId))
	}
}

func newEffectScope[T any](
	dispatcher WorkerDispatcher[T],
	teardown func(),
) *effectScope[T] {
	return &effectScope[T]{
		EffectId:   uuid.New().String(),
		dispatcher: dispatcher,
		closeFn:    teardown,
		closed:     false,
	}
}
