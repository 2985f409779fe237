package effects

import (
	"context"
	"testing"

	effectmodel "github.com/on-the-ground/effect_ive_store/effects/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerOf_NamesMissingEnum(t *testing.T) {
	_, err := handlerOf(context.Background(), effectmodel.EffectLog)
	require.ErrorIs(t, err, effectmodel.ErrNoEffectHandler)
	assert.Contains(t, err.Error(), string(effectmodel.EffectLog))
	assert.False(t, HasHandler(context.Background(), effectmodel.EffectLog))
}

func TestHasHandler_SeesRegisteredScope(t *testing.T) {
	ctx, end := WithFireAndForgetEffectHandler(context.Background(), 1, effectmodel.EffectLog, func(context.Context, string) {})
	assert.True(t, HasHandler(ctx, effectmodel.EffectLog))
	assert.True(t, FireAndForgetEffect(ctx, effectmodel.EffectLog, "x"))
	end()
	assert.False(t, FireAndForgetEffect(ctx, effectmodel.EffectLog, "y"))
}
