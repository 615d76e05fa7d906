package timeline

// Phase is the state of an InteractionState.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseHovering Phase = "hovering"
	PhaseSelected Phase = "selected"
)

// InteractionState tracks the hovered or selected interval of a layout.
// At most one of the two IDs is set. A selection outranks hovering: while
// something is selected, hover events are ignored until the selection is
// cleared. All methods return a new value.
type InteractionState struct {
	HoveredID  string `json:"hovered_id,omitempty"`
	SelectedID string `json:"selected_id,omitempty"`
}

// Phase reports the current state.
func (s InteractionState) Phase() Phase {
	switch {
	case s.SelectedID != "":
		return PhaseSelected
	case s.HoveredID != "":
		return PhaseHovering
	default:
		return PhaseIdle
	}
}

// Hover moves to Hovering(id) unless something is selected.
func (s InteractionState) Hover(id string) InteractionState {
	if s.Phase() == PhaseSelected || id == "" {
		return s
	}
	return InteractionState{HoveredID: id}
}

// Unhover returns to Idle if id is the hovered interval. A stale unhover
// for another ID is ignored.
func (s InteractionState) Unhover(id string) InteractionState {
	if s.Phase() == PhaseHovering && s.HoveredID == id {
		return InteractionState{}
	}
	return s
}

// Select moves to Selected(id) from any state. An empty id clears.
func (s InteractionState) Select(id string) InteractionState {
	if id == "" {
		return InteractionState{}
	}
	return InteractionState{SelectedID: id}
}

// ClearSelection returns to Idle if something is selected.
func (s InteractionState) ClearSelection() InteractionState {
	if s.Phase() == PhaseSelected {
		return InteractionState{}
	}
	return s
}

// Reconcile resets to Idle when the referenced interval is not in l.
func (s InteractionState) Reconcile(l Layout) InteractionState {
	switch s.Phase() {
	case PhaseSelected:
		if !l.Contains(s.SelectedID) {
			return InteractionState{}
		}
	case PhaseHovering:
		if !l.Contains(s.HoveredID) {
			return InteractionState{}
		}
	}
	return s
}
