// Package effects provides the scoped effect handlers the store harness is built on.
//
// A handler is registered into a context with `WithXxxEffectHandler(ctx)` and is
// performed through `PerformResumableEffect` or `FireAndForgetEffect`. Every
// registration returns a teardown function that closes the handler and hands back
// the parent context:
//
//	ctx, end := log.WithZapEffectHandler(ctx, 16, logger)
//	defer end()
//
// Subpackages:
//   - log: zap-backed fire-and-forget logging
//   - binding: key-based configuration lookup with upper-scope delegation
//   - concurrency: supervised goroutines that are joined on teardown
//   - configkeys: dotted configuration keys read through the binding effect
package effects
