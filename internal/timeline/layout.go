package timeline

import (
	"errors"
	"time"

	"apptline/internal/model"
)

// Layout is the complete, derived grid for one window.
type Layout struct {
	Window   Window                 `json:"window"`
	Buckets  []Bucket               `json:"buckets"`
	Rows     [][]PositionedInterval `json:"rows"`
	RowCount int                    `json:"row_count"`
	Warnings []Warning              `json:"warnings,omitempty"`
}

// Contains reports whether an interval with the given ID was positioned.
func (l Layout) Contains(id string) bool {
	if id == "" {
		return false
	}
	for _, row := range l.Rows {
		for _, p := range row {
			if p.IntervalID == id {
				return true
			}
		}
	}
	return false
}

// Positioned returns the number of boxes in the layout.
func (l Layout) Positioned() int {
	n := 0
	for _, row := range l.Rows {
		n += len(row)
	}
	return n
}

// ComputeLayout normalizes raw appointments and lays them out on the window
// anchored at anchor. Appointments that fail normalization are reported as
// warnings and left out; only ErrInvalidSpan is returned as an error.
//
// The normalized intervals are returned alongside the layout so callers can
// feed them to ApplyUpdate later.
func ComputeLayout(raw []model.RawAppointment, anchor time.Time, spanHours int, opts Options) (Layout, []Interval, error) {
	intervals, warnings := NormalizeAll(raw, opts.location())

	layout, err := Recompute(intervals, anchor, spanHours, opts)
	if err != nil {
		return Layout{}, nil, err
	}
	layout.Warnings = warnings
	return layout, intervals, nil
}

// NormalizeAll normalizes each appointment, collecting failures and
// duplicate IDs as warnings. The first appointment with a given ID wins.
func NormalizeAll(raw []model.RawAppointment, loc *time.Location) ([]Interval, []Warning) {
	intervals := make([]Interval, 0, len(raw))
	var warnings []Warning
	seen := make(map[string]bool, len(raw))

	for _, r := range raw {
		iv, err := NormalizeAppointment(r, loc)
		if err != nil {
			reason := ReasonInvalidTimestamp
			if errors.Is(err, ErrMissingID) {
				reason = ReasonMissingID
			}
			warnings = append(warnings, Warning{ID: r.ID, Reason: reason, Err: err.Error()})
			continue
		}
		if seen[iv.ID] {
			warnings = append(warnings, Warning{ID: iv.ID, Reason: ReasonDuplicateID})
			continue
		}
		seen[iv.ID] = true
		intervals = append(intervals, iv)
	}
	return intervals, warnings
}

// Recompute lays out already-normalized intervals. Intervals outside the
// window are dropped before row assignment so the row count reflects what
// is visible. Rows are keyed by ID, so only the first interval with a given
// ID is placed.
func Recompute(intervals []Interval, anchor time.Time, spanHours int, opts Options) (Layout, error) {
	w, err := ComputeWindow(anchor, spanHours, opts.location())
	if err != nil {
		return Layout{}, err
	}

	visible := make([]Interval, 0, len(intervals))
	seen := make(map[string]bool, len(intervals))
	for _, iv := range intervals {
		if seen[iv.ID] {
			continue
		}
		seen[iv.ID] = true
		if w.Intersects(iv) {
			visible = append(visible, iv)
		}
	}

	rows := AssignRows(visible)
	rowCount := rows.RowCount()

	grid := make([][]PositionedInterval, rowCount)
	for i := range grid {
		grid[i] = []PositionedInterval{}
	}
	// Rows hold non-overlapping intervals, so start order is also left-to-right.
	for _, iv := range sortedByStart(visible) {
		row := rows[iv.ID]
		if opts.SplitAcrossBuckets {
			grid[row] = append(grid[row], ProjectSegments(iv, row, w)...)
			continue
		}
		if p, ok := Project(iv, row, w); ok {
			grid[row] = append(grid[row], p)
		}
	}

	return Layout{
		Window:   w,
		Buckets:  w.Buckets(),
		Rows:     grid,
		RowCount: rowCount,
	}, nil
}
