package handlers

import (
	"context"

	"go.uber.org/zap"
)

// NewFireAndForgetHandler starts a single worker that runs handleFn for every payload sent to it.
// Closing the handler runs teardown first, then stops the worker.
func NewFireAndForgetHandler[P any](
	ctx context.Context,
	bufferSize int,
	handleFn func(context.Context, P),
	teardown func(),
) FireAndForgetHandler[P] {
	ctx, cancelFn := context.WithCancel(ctx)
	return FireAndForgetHandler[P]{
		effectScope: newEffectScope(
			NewSingleQueue(ctx, bufferSize, handleFn),
			func() {
				teardown()
				cancelFn()
			},
		),
	}
}

type FireAndForgetHandler[P any] struct {
	*effectScope[P]
}

// FireAndForgetEffect enqueues payload without waiting for it to be handled.
// A payload sent after the handler is closed is dropped; the result reports whether
// payload was queued.
func (ffh FireAndForgetHandler[P]) FireAndForgetEffect(ctx context.Context, payload P) bool {
	if !ffh.dispatcher.Send(ctx, payload) {
		zap.L().Debug(
			"dropped fire/forget effect",
			zap.String("effectId", ffh.EffectId),
			zap.Any("payload", payload),
		)
		return false
	}
	return true
}
