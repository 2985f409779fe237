package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/on-the-ground/effect_ive_store/effects/log"
	"github.com/on-the-ground/effect_ive_store/store"
	"github.com/stretchr/testify/require"
)

// ConfigureStore builds a harness for tb and closes it on cleanup.
// Setup errors fail the test immediately. On cleanup, a root task failure is logged
// and a teardown timeout fails the test.
// The logger defaults to a debug console logger on stdout.
func ConfigureStore(tb testing.TB, initialState store.State, opts ...Option) *Harness {
	tb.Helper()

	opts = append([]Option{WithLogger(log.NewTestLogger())}, opts...)
	h, err := NewBuilder(opts...).Build(context.Background(), initialState)
	require.NoError(tb, err, "configure store")

	tb.Cleanup(func() {
		err := h.Close()
		switch {
		case errors.Is(err, ErrTeardownTimeout):
			tb.Errorf("store teardown: %v", err)
		case err != nil:
			tb.Logf("root saga failed: %v", err)
		}
	})
	return h
}
