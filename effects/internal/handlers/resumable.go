package handlers

import (
	"context"

	effectmodel "github.com/on-the-ground/effect_ive_store/effects/internal/model"
	"go.uber.org/zap"
)

func NewResumableHandler[P any, R any](
	ctx context.Context,
	bufferSize int,
	handleFn func(context.Context, P) (R, error),
	teardown func(),
) ResumableHandler[P, R] {
	ctx, cancelFn := context.WithCancel(ctx)
	return ResumableHandler[P, R]{
		effectScope: newEffectScope(
			NewSingleQueue(ctx, bufferSize, resume(handleFn), dropUnresumed[P, R]),
			func() {
				teardown()
				cancelFn()
			},
		),
	}
}

func NewPartitionableResumableHandler[P effectmodel.Partitionable, R any](
	ctx context.Context,
	config effectmodel.EffectScopeConfig,
	handleFn func(context.Context, P) (R, error),
	teardown func(),
) ResumableHandler[P, R] {
	ctx, cancelFn := context.WithCancel(ctx)
	return ResumableHandler[P, R]{
		effectScope: newEffectScope(
			NewPartitionedQueue(
				ctx,
				config.NumWorkers,
				config.BufferSize,
				resume(handleFn),
				dropUnresumed[P, R],
			),
			func() {
				teardown()
				cancelFn()
			},
		),
	}
}

func resume[P any, R any](
	handleFn func(context.Context, P) (R, error),
) func(context.Context, ResumableEffectMessage[P, R]) {
	return func(ctx context.Context, msg ResumableEffectMessage[P, R]) {
		select {
		case <-ctx.Done():
		case msg.ResumeCh <- ResumableResultFrom(handleFn(ctx, msg.Payload)):
		}
		close(msg.ResumeCh)
	}
}

// dropUnresumed closes the resume channel of a message the handler never handled.
func dropUnresumed[P any, R any](msg ResumableEffectMessage[P, R]) {
	close(msg.ResumeCh)
}

type ResumableHandler[P any, R any] struct {
	*effectScope[ResumableEffectMessage[P, R]]
}

// PerformEffect sends payload to the handler and returns the channel the result is resumed on.
// The channel is closed without a value if the handler stops first.
func (rh ResumableHandler[P, R]) PerformEffect(ctx context.Context, payload P) <-chan ResumableResult[R] {
	// buffered to prevent blocking if handler sends without waiting
	resumeCh := make(chan ResumableResult[R], 1)
	msg := ResumableEffectMessage[P, R]{
		Payload:  payload,
		ResumeCh: resumeCh,
	}
	if !rh.dispatcher.Send(ctx, msg) {
		zap.L().Debug(
			"dropped resumable effect",
			zap.String("effectId", rh.EffectId),
			zap.Any("payload", payload),
		)
		close(resumeCh)
	}
	return resumeCh
}

// ResumableResult represents the result of handled effects.
type ResumableResult[T any] struct {
	Value T
	Err   error
}

func ResumableResultFrom[R any](res R, err error) ResumableResult[R] {
	return ResumableResult[R]{Value: res, Err: err}
}

var _ effectmodel.Partitionable = ResumableEffectMessage[any, any]{}

type ResumableEffectMessage[P any, R any] struct {
	Payload  P
	ResumeCh chan ResumableResult[R]
}

func (rem ResumableEffectMessage[P, R]) PartitionKey() string {
	if p, ok := any(rem.Payload).(effectmodel.Partitionable); ok {
		return p.PartitionKey()
	}
	return ""
}
