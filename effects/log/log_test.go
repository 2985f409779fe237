package log_test

import (
	"context"
	"testing"
	"time"

	"github.com/on-the-ground/effect_ive_store/effects/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogEffect_WritesThroughZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	ctx, endOfLogHandler := log.WithZapEffectHandler(context.Background(), 4, zap.New(core))
	defer endOfLogHandler()

	log.Effect(ctx, log.LogWarn, "slice reset", map[string]interface{}{"slice": "counter"})

	require.Eventually(t, func() bool { return logs.Len() == 1 }, time.Second, 10*time.Millisecond)
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "slice reset", entry.Message)
	assert.Equal(t, "counter", entry.ContextMap()["slice"])
}

func TestLogEffect_UnknownLevelFallsBackToInfo(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	ctx, endOfLogHandler := log.WithZapEffectHandler(context.Background(), 4, zap.New(core))
	defer endOfLogHandler()

	log.Effect(ctx, log.LogLevel("trace"), "odd level", nil)

	require.Eventually(t, func() bool { return logs.Len() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, zapcore.InfoLevel, logs.All()[0].Level)
}

func TestLogEffect_PanicsWithoutHandler(t *testing.T) {
	assert.Panics(t, func() {
		log.Effect(context.Background(), log.LogInfo, "nobody listens", nil)
	})
}

func TestTryEffect_ReportsMissingHandler(t *testing.T) {
	assert.False(t, log.TryEffect(context.Background(), log.LogInfo, "nobody listens", nil))

	ctx, endOfLogHandler := log.WithTestEffectHandler(context.Background())
	defer endOfLogHandler()
	assert.True(t, log.TryEffect(ctx, log.LogDebug, "someone listens", nil))
}
