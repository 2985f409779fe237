package store

// Reserved action types dispatched by the store itself.
const (
	ActionInit    = "@@store/INIT"
	ActionReplace = "@@store/REPLACE"

	// actionUnknownPrefix prefixes the random action used to check a reducer handles unknown actions.
	actionUnknownPrefix = "@@store/UNKNOWN_ACTION."
)

// Action describes a state change. Type is required; Payload and Meta are free-form.
type Action struct {
	Type    string
	Payload any
	Meta    map[string]any
}

// NewAction builds an action with the given type and payload.
func NewAction(typ string, payload any) Action {
	return Action{Type: typ, Payload: payload}
}

// Is reports whether the action type is one of types.
func (a Action) Is(types ...string) bool {
	for _, t := range types {
		if a.Type == t {
			return true
		}
	}
	return false
}
