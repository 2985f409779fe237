package handlers

import (
	"context"
	"sync"

	effectmodel "github.com/on-the-ground/effect_ive_store/effects/internal/model"
)

// WorkerDispatcher routes a message to the worker that owns it.
type WorkerDispatcher[T any] interface {
	// Send queues msg for its worker. It reports false when msg was not queued,
	// because ctx or the worker is done.
	Send(ctx context.Context, msg T) bool
}

// workerQueue is the buffered inbox of one worker.
// The channel is never closed: once the worker stops, closed rejects new senders
// and whatever is still buffered is handed to onDrop.
type workerQueue[T any] struct {
	ch   chan T
	done <-chan struct{}

	mu     sync.RWMutex
	closed bool
}

// startWorker drains a new queue until ctx is done.
func startWorker[T any](
	ctx context.Context,
	bufferSize int,
	handleFn func(context.Context, T),
	onDrop func(T),
) *workerQueue[T] {
	q := &workerQueue[T]{ch: make(chan T, bufferSize), done: ctx.Done()}
	ready := make(chan struct{})
	go func() {
		close(ready)
		for {
			// a cancelled worker stops even if its inbox is not empty
			select {
			case <-ctx.Done():
				q.shutdown(onDrop)
				return
			default:
			}
			select {
			case msg := <-q.ch:
				handleFn(ctx, msg)
			case <-ctx.Done():
				q.shutdown(onDrop)
				return
			}
		}
	}()
	<-ready
	return q
}

func (q *workerQueue[T]) send(ctx context.Context, msg T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.ch <- msg:
		return true
	case <-q.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// shutdown waits for in-flight senders, then drops the buffered messages.
func (q *workerQueue[T]) shutdown(onDrop func(T)) {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	for {
		select {
		case msg := <-q.ch:
			if onDrop != nil {
				onDrop(msg)
			}
		default:
			return
		}
	}
}

type singleQueue[T any] struct {
	q *workerQueue[T]
}

func (sq singleQueue[T]) Send(ctx context.Context, msg T) bool {
	return sq.q.send(ctx, msg)
}

// NewSingleQueue starts one worker; every message goes to it in send order.
// onDrop, if given, receives messages still queued when ctx is done.
func NewSingleQueue[T any](
	ctx context.Context,
	bufferSize int,
	handleFn func(context.Context, T),
	onDrop ...func(T),
) WorkerDispatcher[T] {
	return singleQueue[T]{q: startWorker(ctx, bufferSize, handleFn, normalizeDrop(onDrop))}
}

type partitionedQueue[T effectmodel.Partitionable] struct {
	qs []*workerQueue[T]
}

func (pq partitionedQueue[T]) Send(ctx context.Context, msg T) bool {
	return pq.qs[getIndexByHash(msg, len(pq.qs))].send(ctx, msg)
}

// NewPartitionedQueue starts numWorkers workers.
// Messages sharing a PartitionKey always land on the same worker, so their order is kept.
func NewPartitionedQueue[T effectmodel.Partitionable](
	ctx context.Context,
	numWorkers, bufferSize int,
	handleFn func(context.Context, T),
	onDrop ...func(T),
) WorkerDispatcher[T] {
	drop := normalizeDrop(onDrop)
	qs := make([]*workerQueue[T], numWorkers)
	for i := range qs {
		qs[i] = startWorker(ctx, bufferSize, handleFn, drop)
	}
	return partitionedQueue[T]{qs: qs}
}

func normalizeDrop[T any](onDrop []func(T)) func(T) {
	switch len(onDrop) {
	case 0:
		return nil
	case 1:
		return onDrop[0]
	default:
		panic("only one or zero drop functions allowed")
	}
}
