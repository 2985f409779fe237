package store

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/google/uuid"
)

// State maps slice names to slice values. A published State must not be mutated.
type State map[string]any

// Reducer reduces one slice. A nil state means the slice is not initialised yet,
// and the reducer must return its default. Reducers must be pure and must not dispatch.
type Reducer func(state any, action Action) any

// ReducerMap maps slice names to their reducers.
type ReducerMap map[string]Reducer

// RootReducer reduces the whole state.
type RootReducer func(state State, action Action) (State, error)

// Combine turns a ReducerMap into a RootReducer that hands each reducer its own slice.
//
// Nil reducers are skipped. Every reducer is checked against the init action and a random
// unknown action; returning nil from either is an error. When no slice changes, the
// combined reducer returns the very same State it was given.
func Combine(reducers ReducerMap) (RootReducer, error) {
	final := make(ReducerMap, len(reducers))
	for key, r := range reducers {
		if r != nil {
			final[key] = r
		}
	}
	keys := make([]string, 0, len(final))
	for key := range final {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	if err := assertReducerShape(keys, final); err != nil {
		return nil, err
	}

	return func(state State, action Action) (State, error) {
		next := make(State, len(keys))
		changed := false
		for _, key := range keys {
			prev := state[key]
			slice := final[key](prev, action)
			if slice == nil {
				return state, fmt.Errorf("%w: slice %q for action %q", ErrReducerReturnedNil, key, action.Type)
			}
			next[key] = slice
			changed = changed || !sameValue(prev, slice)
		}
		changed = changed || len(keys) != len(state)
		if !changed {
			return state, nil
		}
		return next, nil
	}, nil
}

func assertReducerShape(keys []string, reducers ReducerMap) error {
	unknown := Action{Type: actionUnknownPrefix + uuid.New().String()}
	for _, key := range keys {
		r := reducers[key]
		if r(nil, Action{Type: ActionInit}) == nil {
			return fmt.Errorf("%w: slice %q during initialization", ErrReducerReturnedNil, key)
		}
		if r(nil, unknown) == nil {
			return fmt.Errorf("%w: slice %q for an unknown action, return the current state instead", ErrReducerReturnedNil, key)
		}
	}
	return nil
}

// sameValue reports whether b is the very value a, by identity for maps, slices and funcs.
func sameValue(a, b any) (same bool) {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) {
		return false
	}
	// comparable types can still hold uncomparable values in interface fields
	defer func() {
		if r := recover(); r != nil {
			same = false
		}
	}()
	if ta.Comparable() {
		return a == b
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch va.Kind() {
	case reflect.Map, reflect.Func:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Len() == vb.Len() && va.Pointer() == vb.Pointer()
	default:
		return false
	}
}
