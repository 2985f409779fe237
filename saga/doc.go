// Package saga runs background logic against a store.
//
// A saga is a plain function of a context. It reacts to dispatched actions with Take,
// dispatches with Put, reads state with Select and starts more sagas with Fork or Spawn:
//
//	m := saga.New(saga.WithLogger(logger))
//	s, _ := store.New(root, nil, store.WithMiddleware(m.Middleware()))
//	task, _ := m.Run(ctx, saga.TakeEvery(saga.Type("FETCH"), fetch))
//	defer task.Cancel()
//
// Forked tasks are attached: the parent is not done before them, a failing child
// cancels its parent and siblings, and cancelling the parent cancels them.
// Spawned tasks are detached from their parent.
package saga
