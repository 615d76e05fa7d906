package timeline

import (
	"fmt"
	"time"

	"apptline/internal/model"
)

// UpdateEvent is a single change to the interval set. For removals only
// Interval.ID is read.
type UpdateEvent struct {
	Kind     model.UpdateKind `json:"kind"`
	Interval Interval         `json:"interval"`
}

// ValidateUpdate checks that ev can be applied.
func ValidateUpdate(ev UpdateEvent) error {
	if !ev.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownUpdateKind, ev.Kind)
	}
	if ev.Interval.ID == "" {
		return ErrMissingID
	}
	return nil
}

// ApplyUpdate returns a new interval set with ev applied; current is never
// modified. Updates and removals for an unknown ID, and invalid events,
// leave the set unchanged. An add for an ID already present replaces it so
// IDs stay unique; extra copies of the target ID in current are dropped.
func ApplyUpdate(current []Interval, ev UpdateEvent) []Interval {
	out := make([]Interval, 0, len(current)+1)
	if ValidateUpdate(ev) != nil {
		return append(out, current...)
	}

	id := ev.Interval.ID
	found := false
	for _, iv := range current {
		if iv.ID != id {
			out = append(out, iv)
			continue
		}
		if found {
			continue
		}
		found = true
		switch ev.Kind {
		case model.UpdateAdd, model.UpdateUpdate:
			out = append(out, ev.Interval)
		case model.UpdateRemove:
			// dropped
		}
	}

	if !found && ev.Kind == model.UpdateAdd {
		out = append(out, ev.Interval)
	}
	return out
}

// EventFromMessage normalizes a wire message into an UpdateEvent. Removals
// need only an ID; adds and updates need a parseable appointment.
func EventFromMessage(msg model.UpdateMessage, loc *time.Location) (UpdateEvent, error) {
	if !msg.Kind.Valid() {
		return UpdateEvent{}, fmt.Errorf("%w: %q", ErrUnknownUpdateKind, msg.Kind)
	}

	if msg.Kind == model.UpdateRemove {
		id := msg.TargetID()
		if id == "" {
			return UpdateEvent{}, ErrMissingID
		}
		return UpdateEvent{Kind: msg.Kind, Interval: Interval{ID: id}}, nil
	}

	if msg.Appointment == nil {
		return UpdateEvent{}, fmt.Errorf("%s without appointment: %w", msg.Kind, ErrMissingID)
	}
	iv, err := NormalizeAppointment(*msg.Appointment, loc)
	if err != nil {
		return UpdateEvent{}, err
	}
	return UpdateEvent{Kind: msg.Kind, Interval: iv}, nil
}
