package concurrency

import (
	"context"
	"sync"

	"github.com/on-the-ground/effect_ive_store/effects"
	effectmodel "github.com/on-the-ground/effect_ive_store/effects/internal/model"
	"github.com/on-the-ground/effect_ive_store/effects/log"
)

// WithEffectHandler installs a fire-and-forget concurrency effect handler.
//
// It allows `Effect(ctx, ...)` to spawn goroutines under a managed scope.
//
//   - Each child runs with a context derived from the caller's context.
//   - Cancelling the handler's parent context cancels every running child.
//   - The teardown joins all children, then closes the handler and returns the parent context.
//   - Spawns requested after teardown started are dropped.
func WithEffectHandler(
	ctx context.Context,
	bufferSize int,
) (context.Context, func() context.Context) {
	sv := &supervisor{
		cancels: make(map[uint64]context.CancelFunc),
		doneCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	sv.watchParentCancel(ctx)

	return effects.WithFireAndForgetEffectHandler(
		ctx,
		bufferSize,
		effectmodel.EffectConcurrency,
		sv.spawnConcurrentChildren,
		func() {
			sv.waitChildren(ctx)
			close(sv.doneCh)
			<-sv.stopped
		},
	)
}

// Effect spawns fns as supervised goroutines. It returns before they start.
// Panics if no concurrency handler is registered.
func Effect(ctx context.Context, fns ...func(context.Context)) {
	payload := make(Payload, 0, len(fns))
	for _, fn := range fns {
		payload = append(payload, child{ctx: ctx, fn: fn})
	}
	effects.FireAndForgetEffect(ctx, effectmodel.EffectConcurrency, payload)
}

// EffectOr spawns fn as a supervised goroutine, or calls dropped instead when the
// handler refuses it because it is closing.
// Panics if no concurrency handler is registered.
func EffectOr(ctx context.Context, fn func(context.Context), dropped func()) {
	payload := Payload{child{ctx: ctx, fn: fn, dropped: dropped}}
	if !effects.FireAndForgetEffect(ctx, effectmodel.EffectConcurrency, payload) {
		dropped()
	}
}

// HasHandler reports whether a concurrency handler is registered in ctx.
func HasHandler(ctx context.Context) bool {
	return effects.HasHandler(ctx, effectmodel.EffectConcurrency)
}

// Payload is the batch of children requested by one Effect call.
type Payload []child

type child struct {
	ctx     context.Context
	fn      func(context.Context)
	dropped func()
}

// supervisor tracks the children spawned by one concurrency handler.
// mu guards cancels, nextID and closing; children are registered in wg under mu
// so that waitChildren never races a late Add.
type supervisor struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	cancels map[uint64]context.CancelFunc
	nextID  uint64
	closing bool
	doneCh  chan struct{}
	stopped chan struct{} // closed when watchParentCancel returns
}

// watchParentCancel cancels every child once the parent context is done.
func (s *supervisor) watchParentCancel(parentContext context.Context) {
	ready := make(chan struct{})
	go func() {
		defer close(s.stopped)
		close(ready)
		select {
		case <-parentContext.Done():
			log.TryEffect(parentContext, log.LogInfo, "context cancelled, cancelling all routines", nil)
			s.cancelAll()
		case <-s.doneCh:
		}
	}()
	<-ready
}

func (s *supervisor) cancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancelFn := range s.cancels {
		cancelFn()
	}
}

// register reserves a slot for a child; it fails once teardown started.
func (s *supervisor) register(cancelFn context.CancelFunc) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return 0, false
	}
	id := s.nextID
	s.nextID++
	s.cancels[id] = cancelFn
	s.wg.Add(1)
	return id, true
}

func (s *supervisor) unregister(id uint64) {
	s.mu.Lock()
	delete(s.cancels, id)
	s.mu.Unlock()
	s.wg.Done()
}

// spawnConcurrentChildren starts each child in its own goroutine.
// Panics are recovered and logged per child.
func (s *supervisor) spawnConcurrentChildren(_ context.Context, children Payload) {
	var started sync.WaitGroup

	for _, c := range children {
		childCtx, cancel := context.WithCancel(c.ctx)
		id, ok := s.register(cancel)
		if !ok {
			cancel()
			log.TryEffect(c.ctx, log.LogWarn, "concurrency handler is closing, dropped a routine", nil)
			if c.dropped != nil {
				c.dropped()
			}
			continue
		}
		started.Add(1)
		go func(c child, ctx context.Context) {
			defer s.unregister(id)
			defer cancel()
			defer func() {
				if r := recover(); r != nil {
					log.TryEffect(c.ctx, log.LogError, "panic in child routine", map[string]interface{}{
						"error": r,
					})
				}
			}()
			started.Done()
			c.fn(ctx)
		}(c, childCtx)
	}

	started.Wait()
}

// waitChildren stops new spawns and blocks until every child returned.
func (s *supervisor) waitChildren(ctx context.Context) {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	log.TryEffect(ctx, log.LogDebug, "waiting for all routines to finish", nil)
	s.wg.Wait()
	log.TryEffect(ctx, log.LogDebug, "all routines finished", nil)
}
