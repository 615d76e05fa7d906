// Package timeline lays appointments out on the "next few hours" grid.
//
// The pipeline is pure: appointments are normalized into local intervals,
// a window of hour buckets is computed from a caller-supplied anchor,
// overlapping intervals are spread over the fewest rows, and each interval
// is projected to bucket-relative percentages. Nothing in this package reads
// the wall clock or holds state between calls.
package timeline

import (
	"errors"
	"time"

	"apptline/internal/model"
)

var (
	// ErrInvalidTimestamp is returned when a date or time string does not parse.
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	// ErrInvalidSpan is returned for a non-positive window span. It signals
	// a caller bug and must not be swallowed.
	ErrInvalidSpan = errors.New("span hours must be positive")
	// ErrMissingID is returned for an appointment without an ID.
	ErrMissingID = errors.New("appointment id is empty")
	// ErrUnknownUpdateKind is returned by ValidateUpdate for kinds other
	// than add, update and remove.
	ErrUnknownUpdateKind = errors.New("unknown update kind")
)

// Warning reasons.
const (
	ReasonInvalidTimestamp = "invalid timestamp"
	ReasonMissingID        = "missing id"
	ReasonDuplicateID      = "duplicate id"
)

// Interval is a normalized appointment. Start is always before End.
type Interval struct {
	ID              string            `json:"id"`
	Start           time.Time         `json:"start"`
	End             time.Time         `json:"end"`
	DurationMinutes int               `json:"duration_minutes"`
	Label           string            `json:"label"`
	Patient         string            `json:"patient,omitempty"`
	Doctor          string            `json:"doctor,omitempty"`
	Status          model.Status      `json:"status"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Overlaps reports whether the half-open ranges of a and b intersect.
// Back-to-back intervals do not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Warning records an appointment that was left out of a layout.
type Warning struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
	Err    string `json:"error,omitempty"`
}

// Options tunes layout computation.
type Options struct {
	// Location is the wall-clock zone used for parsing and hour alignment.
	// Nil means time.Local.
	Location *time.Location

	// SplitAcrossBuckets projects an interval that crosses an hour boundary
	// as one segment per bucket instead of a single box that overflows into
	// the next column.
	SplitAcrossBuckets bool
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.Local
	}
	return o.Location
}
