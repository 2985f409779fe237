package effects

import (
	"context"
	"fmt"

	"github.com/on-the-ground/effect_ive_store/effects/internal/handlers"
	sharedHelper "github.com/on-the-ground/effect_ive_store/shared/helper"
	"go.uber.org/zap"

	effectmodel "github.com/on-the-ground/effect_ive_store/effects/internal/model"
)

// ResumableResult is the value a resumable effect resumes its performer with.
type ResumableResult[R any] = handlers.ResumableResult[R]

// WithResumablePartitionableEffectHandler registers a resumable effect handler for a given effect enum.
//
// Payloads sharing a PartitionKey() are handled by the same worker, in order.
//
// Usage:
//
//	ctx, end := WithResumablePartitionableEffectHandler(ctx, config, MyEffectEnum, handleFn)
//	defer end()
func WithResumablePartitionableEffectHandler[P effectmodel.Partitionable, R any](
	ctx context.Context,
	config effectmodel.EffectScopeConfig,
	enum effectmodel.EffectEnum,
	handleFn func(context.Context, P) (R, error),
	teardown ...func(),
) (context.Context, func() context.Context) {
	td := normalizeTeardown(teardown)
	handler := handlers.NewPartitionableResumableHandler(ctx, config, handleFn, td)
	ctxWith := context.WithValue(ctx, enum, handler)
	zap.L().Debug("created resumable effect handler", zap.String("effectId", handler.EffectId), zap.Any("enum", enum))

	return ctxWith, func() context.Context {
		handler.Close()
		zap.L().Debug("closed resumable effect handler", zap.String("effectId", handler.EffectId), zap.Any("enum", enum))
		return ctx
	}
}

// PerformResumableEffect sends a payload to the resumable effect handler and returns the channel
// its result is resumed on.
// Panics if no handler is registered for the given effect enum.
func PerformResumableEffect[P effectmodel.Partitionable, R any](
	ctx context.Context,
	enum effectmodel.EffectEnum,
	payload P,
) <-chan ResumableResult[R] {
	handler := sharedHelper.MustGetTypedValue[handlers.ResumableHandler[P, R]](
		func() (any, error) {
			return handlerOf(ctx, enum)
		},
	)
	return handler.PerformEffect(ctx, payload)
}

// WithFireAndForgetEffectHandler registers a fire-and-forget effect handler for a given effect enum.
//
// Suitable for one-shot effects like logging or spawning goroutines.
// This handler executes without returning a result.
func WithFireAndForgetEffectHandler[P any](
	ctx context.Context,
	bufferSize int,
	enum effectmodel.EffectEnum,
	handleFn func(context.Context, P),
	teardown ...func(),
) (context.Context, func() context.Context) {
	td := normalizeTeardown(teardown)
	handler := handlers.NewFireAndForgetHandler(ctx, bufferSize, handleFn, td)
	ctxWith := context.WithValue(ctx, enum, handler)
	zap.L().Debug("created fire/forget effect handler", zap.String("effectId", handler.EffectId), zap.Any("enum", enum))

	return ctxWith, func() context.Context {
		handler.Close()
		zap.L().Debug("closed fire/forget effect handler", zap.String("effectId", handler.EffectId), zap.Any("enum", enum))
		return ctx
	}
}

// FireAndForgetEffect triggers a fire-and-forget effect for the given enum and payload.
//
// The handler will process the payload asynchronously. The result reports whether the
// payload was queued.
// Panics if no handler is registered for the given enum.
func FireAndForgetEffect[P any](
	ctx context.Context,
	enum effectmodel.EffectEnum,
	payload P,
) bool {
	handler := sharedHelper.MustGetTypedValue[handlers.FireAndForgetHandler[P]](
		func() (any, error) {
			return handlerOf(ctx, enum)
		},
	)
	return handler.FireAndForgetEffect(ctx, payload)
}

// HasHandler reports whether a handler for enum is registered in ctx.
func HasHandler(ctx context.Context, enum effectmodel.EffectEnum) bool {
	_, err := handlerOf(ctx, enum)
	return err == nil
}

// handlerOf returns the handler registered for enum by the nearest scope of ctx.
func handlerOf(ctx context.Context, enum effectmodel.EffectEnum) (any, error) {
	h := ctx.Value(enum)
	if h == nil {
		return nil, fmt.Errorf("%w: %v is not in scope, wrap the store setup with its With...EffectHandler", effectmodel.ErrNoEffectHandler, enum)
	}
	return h, nil
}

// normalizeTeardown flattens optional teardown functions into a single callable.
//
// Accepts either 0 or 1 teardown functions. Panics if more than one is passed.
func normalizeTeardown(teardown []func()) func() {
	switch len(teardown) {
	case 1:
		return teardown[0]
	case 0:
		return func() {}
	default:
		panic("normalizeTeardown: only one or zero teardown functions allowed")
	}
}

// ScopeConfig sizes the worker queues of a handler scope.
type ScopeConfig = effectmodel.EffectScopeConfig

// NewScopeConfig returns a ScopeConfig, defaulting non-positive values to 1.
func NewScopeConfig(bufferSize, numWorkers int) ScopeConfig {
	return effectmodel.NewEffectScopeConfig(bufferSize, numWorkers)
}
