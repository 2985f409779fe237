// Package store is a single-state container: one RootReducer, one published State
// snapshot, a middleware-wrapped Dispatch and change listeners.
package store

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store owns the current State and the dispatch entry point.
//
// Reductions are serialised; GetState never blocks. Reducers must not call back into the store.
type Store struct {
	id     string
	logger *zap.Logger

	mu      sync.Mutex // serialises reductions, guards reducer
	reducer RootReducer
	state   atomic.Pointer[State]

	listenersMu  sync.Mutex
	listeners    []listener
	nextListener uint64

	dispatch DispatchFunc
}

type listener struct {
	id uint64
	fn func()
}

// New creates a store, initialises it from preloaded and mounts the middleware.
//
// The init action reaches the reducer directly, before any middleware is mounted.
// Preloaded slices the reducer drops are logged at warn level.
func New(reducer RootReducer, preloaded State, opts ...Option) (*Store, error) {
	if reducer == nil {
		return nil, ErrNilReducer
	}
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store{
		id:      uuid.New().String(),
		logger:  o.logger,
		reducer: reducer,
	}
	if preloaded == nil {
		preloaded = State{}
	}
	s.state.Store(&preloaded)

	if err := s.baseDispatch(Action{Type: ActionInit}); err != nil {
		return nil, fmt.Errorf("initialize store: %w", err)
	}
	if dropped := droppedKeys(preloaded, s.GetState()); len(dropped) > 0 {
		s.logger.Warn("preloaded state has slices without a reducer, they were dropped",
			zap.String("store", s.id),
			zap.Strings("slices", dropped),
		)
	}

	s.dispatch = func(Action) error { return ErrDispatchDuringSetup }
	s.dispatch = chain(middlewareAPI{store: s}, s.baseDispatch, o.middlewares)

	s.logger.Debug("store created", zap.String("store", s.id), zap.Int("middlewares", len(o.middlewares)))
	return s, nil
}

// ID identifies the store in logs.
func (s *Store) ID() string {
	return s.id
}

// Dispatch sends action through the middleware chain to the reducer.
func (s *Store) Dispatch(action Action) error {
	return s.dispatch(action)
}

// GetState returns the current snapshot. The snapshot must not be mutated.
func (s *Store) GetState() State {
	return *s.state.Load()
}

// Subscribe registers fn to be called after every reduction. Listeners run in
// subscription order on the dispatching goroutine, after the reduction lock is released.
// The returned function unsubscribes; calling it more than once is a no-op.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	s.listenersMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			defer s.listenersMu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// ReplaceReducer dispatches ActionReplace through reducer so new slices initialise.
// The reducer is installed only if that reduction succeeds; otherwise the store keeps
// its reducer and state.
func (s *Store) ReplaceReducer(reducer RootReducer) error {
	if reducer == nil {
		return ErrNilReducer
	}
	action := Action{Type: ActionReplace}
	if err := s.reduce(action, reducer); err != nil {
		return err
	}
	s.logger.Debug("reducer replaced", zap.String("store", s.id))
	s.notify()
	return nil
}

func (s *Store) baseDispatch(action Action) error {
	if action.Type == "" {
		return ErrInvalidAction
	}
	if err := s.reduce(action, nil); err != nil {
		return err
	}
	s.logger.Debug("action reduced", zap.String("store", s.id), zap.String("type", action.Type))
	s.notify()
	return nil
}

// reduce applies the current reducer, or replacement when given. A replacement is
// installed together with the state it produced.
func (s *Store) reduce(action Action, replacement RootReducer) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: action %q: %v", ErrReducerPanicked, action.Type, r)
		}
	}()

	reducer := s.reducer
	if replacement != nil {
		reducer = replacement
	}
	next, err := reducer(s.GetState(), action)
	if err != nil {
		return err
	}
	if next == nil {
		next = State{}
	}
	s.reducer = reducer
	s.state.Store(&next)
	return nil
}

func (s *Store) notify() {
	s.listenersMu.Lock()
	snapshot := make([]listener, len(s.listeners))
	copy(snapshot, s.listeners)
	s.listenersMu.Unlock()

	for _, l := range snapshot {
		l.fn()
	}
}

func droppedKeys(preloaded, state State) []string {
	var dropped []string
	for key := range preloaded {
		if _, ok := state[key]; !ok {
			dropped = append(dropped, key)
		}
	}
	sort.Strings(dropped)
	return dropped
}
