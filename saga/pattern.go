package saga

import "github.com/on-the-ground/effect_ive_store/store"

// Pattern selects the actions a Take waits for. A nil Pattern matches every action.
type Pattern func(store.Action) bool

// Any matches every action.
func Any(store.Action) bool { return true }

// Type matches actions whose type is one of types.
func Type(types ...string) Pattern {
	return func(a store.Action) bool {
		return a.Is(types...)
	}
}

func (p Pattern) match(a store.Action) bool {
	return p == nil || p(a)
}
