package saga

import (
	"context"
	"sync"

	"github.com/on-the-ground/effect_ive_store/store"
)

// subscriber receives emitted actions. deliver reports whether the subscriber is done.
type subscriber struct {
	pattern Pattern
	deliver func(store.Action) (done bool)
}

// multicast fans actions out to takers in subscription order.
type multicast struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]subscriber
	order  []uint64
}

func newMulticast() *multicast {
	return &multicast{subs: make(map[uint64]subscriber)}
}

func (mc *multicast) subscribe(sub subscriber) (unsubscribe func()) {
	mc.mu.Lock()
	id := mc.nextID
	mc.nextID++
	mc.subs[id] = sub
	mc.order = append(mc.order, id)
	mc.mu.Unlock()

	return func() {
		mc.mu.Lock()
		mc.removeLocked(id)
		mc.mu.Unlock()
	}
}

func (mc *multicast) removeLocked(id uint64) {
	if _, ok := mc.subs[id]; !ok {
		return
	}
	delete(mc.subs, id)
	for i, v := range mc.order {
		if v == id {
			mc.order = append(mc.order[:i:i], mc.order[i+1:]...)
			break
		}
	}
}

// emit delivers under the lock, so every subscriber sees emitted actions in one order.
// Deliveries never block.
func (mc *multicast) emit(action store.Action) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	ids := append([]uint64(nil), mc.order...)
	for _, id := range ids {
		sub, ok := mc.subs[id]
		if !ok || !sub.pattern.match(action) {
			continue
		}
		if sub.deliver(action) {
			mc.removeLocked(id)
		}
	}
}

// takeOnce waits for the next action matching pattern.
func (mc *multicast) takeOnce(ctx context.Context, pattern Pattern) (store.Action, error) {
	ch := make(chan store.Action, 1)
	unsubscribe := mc.subscribe(subscriber{
		pattern: pattern,
		deliver: func(a store.Action) bool {
			ch <- a
			return true
		},
	})
	select {
	case a := <-ch:
		return a, nil
	case <-ctx.Done():
		unsubscribe()
		// an action may have raced the cancellation
		select {
		case a := <-ch:
			return a, nil
		default:
		}
		return store.Action{}, ctx.Err()
	}
}

// ActionChannel buffers every matching action until it is taken.
// Unlike Take, no action is missed while the saga is busy between takes.
type ActionChannel struct {
	mu          sync.Mutex
	queue       []store.Action
	closed      bool
	notify      chan struct{}
	unsubscribe func()
	stop        func() bool
}

func newActionChannel(ctx context.Context, mc *multicast, pattern Pattern) *ActionChannel {
	c := &ActionChannel{notify: make(chan struct{}, 1)}
	c.unsubscribe = mc.subscribe(subscriber{pattern: pattern, deliver: c.put})
	c.mu.Lock()
	c.stop = context.AfterFunc(ctx, c.Close)
	c.mu.Unlock()
	return c
}

func (c *ActionChannel) put(a store.Action) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return true
	}
	c.queue = append(c.queue, a)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return false
}

// Take returns the oldest buffered action, waiting for one if the buffer is empty.
// Buffered actions are still returned after Close; then ErrChannelClosed, or the
// context error once ctx is done.
func (c *ActionChannel) Take(ctx context.Context) (store.Action, error) {
	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			a := c.queue[0]
			c.queue[0] = store.Action{}
			c.queue = c.queue[1:]
			c.mu.Unlock()
			return a, nil
		}
		closed := c.closed
		c.mu.Unlock()
		if closed {
			if err := ctx.Err(); err != nil {
				return store.Action{}, err
			}
			return store.Action{}, ErrChannelClosed
		}

		select {
		case <-c.notify:
		case <-ctx.Done():
			return store.Action{}, ctx.Err()
		}
	}
}

// Len returns the number of buffered actions.
func (c *ActionChannel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Close stops buffering. It is called automatically once the creating context is done.
func (c *ActionChannel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	stop := c.stop
	c.mu.Unlock()

	c.unsubscribe()
	if stop != nil {
		stop()
	}
	select {
	case c.notify <- struct{}{}:
	default:
	}
}
