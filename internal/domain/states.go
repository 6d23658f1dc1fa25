package domain

import "strings"

// StateCategory is the coarse workflow bucket a state belongs to.
type StateCategory string

const (
	CategoryProposed   StateCategory = "Proposed"
	CategoryInProgress StateCategory = "InProgress"
	CategoryResolved   StateCategory = "Resolved"
	CategoryCompleted  StateCategory = "Completed"
	CategoryRemoved    StateCategory = "Removed"
)

// WorkflowState is a state of a work item type within a process.
type WorkflowState struct {
	ID                string        `json:"id,omitempty"`
	Name              string        `json:"name"`
	Color             string        `json:"color,omitempty"`
	Category          StateCategory `json:"stateCategory"`
	Order             int           `json:"order"`
	Hidden            bool          `json:"hidden,omitempty"`
	CustomizationType string        `json:"customizationType,omitempty"`
}

// IsSystem reports whether the state is defined by the base process.
func (s WorkflowState) IsSystem() bool {
	return strings.EqualFold(s.CustomizationType, "system")
}

// StateKey is the (work item type, source state) lookup key.
type StateKey struct {
	Type  string
	State string
}

func (k StateKey) String() string {
	return k.Type + "|" + k.State
}

// StateMap maps (source type, source state) to a target state name.
type StateMap map[StateKey]string

// Lookup returns the mapped target state.
func (m StateMap) Lookup(witType, state string) (string, bool) {
	if m == nil {
		return "", false
	}
	target, ok := m[StateKey{Type: witType, State: state}]
	return target, ok
}
