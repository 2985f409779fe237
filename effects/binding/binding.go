package binding

import (
	"context"
	"errors"
	"fmt"

	"github.com/on-the-ground/effect_ive_store/effects"
	effectmodel "github.com/on-the-ground/effect_ive_store/effects/internal/model"
)

// ErrKeyNotFound is returned when no scope in the chain binds the key.
var ErrKeyNotFound = errors.New("key not found")

// Payload defines a key-based lookup payload.
// Used as input to the Binding effect.
type Payload string

// PartitionKey routes lookups of the same key to the same worker.
func (bp Payload) PartitionKey() string {
	return string(bp)
}

// WithEffectHandler registers a resumable, partitionable effect handler for bindings.
//
//   - Accepts a key-value map used for lookups.
//   - Falls back to upper scopes if a key is not found locally.
//   - The returned teardown closes the handler and returns the parent context.
func WithEffectHandler(
	ctx context.Context,
	config effectmodel.EffectScopeConfig,
	bindingMap map[string]any,
) (context.Context, func() context.Context) {
	bindingHandler := &bindingHandler{
		bindingMap: normalizeBindingMap(bindingMap),
	}
	return effects.WithResumablePartitionableEffectHandler[Payload, any](
		ctx,
		config,
		effectmodel.EffectBinding,
		bindingHandler.handle,
	)
}

// Effect performs a key-based lookup using the Binding effect handler.
//
// Returns either the value found or an error if the key is not found and no upper scope provides it.
// Panics if no binding handler is registered.
func Effect(ctx context.Context, key string) (val any, err error) {
	resultCh := effects.PerformResumableEffect[Payload, any](ctx, effectmodel.EffectBinding, Payload(key))
	select {
	case res, ok := <-resultCh:
		if ok {
			val = res.Value
			err = res.Err
			return
		}
	case <-ctx.Done():
	}
	err = ctx.Err()
	if err == nil {
		err = fmt.Errorf("binding handler closed while looking up %q", key)
	}
	return
}

func normalizeBindingMap(bm map[string]any) map[string]any {
	if bm == nil {
		bm = make(map[string]any)
	}
	return bm
}

// delegateBindingEffect performs the lookup against the scope above the handler.
// Reaching the top of the chain yields ErrKeyNotFound.
func delegateBindingEffect(upperCtx context.Context, key string) (res any, err error) {
	if !effects.HasHandler(upperCtx, effectmodel.EffectBinding) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return Effect(upperCtx, key)
}

type bindingHandler struct {
	bindingMap map[string]any
}

// handle looks up the key in the local bindingMap and delegates upward when missing.
func (bh bindingHandler) handle(ctx context.Context, payload Payload) (any, error) {
	key := string(payload)
	v, ok := bh.bindingMap[key]
	if !ok {
		return delegateBindingEffect(ctx, key)
	}
	return v, nil
}
