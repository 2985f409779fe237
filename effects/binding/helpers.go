package binding

import (
	"context"

	"github.com/on-the-ground/effect_ive_store/effects"
	effectmodel "github.com/on-the-ground/effect_ive_store/effects/internal/model"
	"github.com/on-the-ground/effect_ive_store/shared/helper"
)

// GetFromBindingEffect fetches a typed value from the Binding effect using the provided key.
// Returns a zero value and error if the key is not found or the type is mismatched.
func GetFromBindingEffect[T any](ctx context.Context, key string) (T, error) {
	return helper.GetTypedValueOf[T](func() (any, error) {
		return Effect(ctx, key)
	})
}

// MustGetFromBindingEffect is the panic-on-failure variant of GetFromBindingEffect.
func MustGetFromBindingEffect[T any](ctx context.Context, key string) T {
	return helper.MustGetTypedValue[T](func() (any, error) {
		return Effect(ctx, key)
	})
}

// GetOrDefault returns the bound value for key, or def when no binding handler is
// registered, the key is unbound, or the bound value is not a T.
func GetOrDefault[T any](ctx context.Context, key string, def T) T {
	if !effects.HasHandler(ctx, effectmodel.EffectBinding) {
		return def
	}
	v, err := GetFromBindingEffect[T](ctx, key)
	if err != nil {
		return def
	}
	return v
}
