package timeline

import (
	"sort"
	"time"
)

// RowAssignment maps interval IDs to display rows. Intervals sharing a row
// never overlap.
type RowAssignment map[string]int

// RowCount returns the number of rows in use.
func (ra RowAssignment) RowCount() int {
	n := 0
	for _, row := range ra {
		if row+1 > n {
			n = row + 1
		}
	}
	return n
}

// AssignRows spreads intervals over the fewest rows such that no row holds
// two overlapping intervals. Intervals are visited by start time (ties by
// ID) and each one goes to the lowest-numbered row that is free by its
// start. This greedy order is optimal: the row count equals the largest
// number of intervals alive at one instant.
func AssignRows(intervals []Interval) RowAssignment {
	sorted := sortedByStart(intervals)
	out := make(RowAssignment, len(sorted))

	// rowEnds[i] is the end of the last interval placed on row i.
	var rowEnds []time.Time
	for _, iv := range sorted {
		row := -1
		for i, end := range rowEnds {
			if !end.After(iv.Start) {
				row = i
				break
			}
		}
		if row < 0 {
			row = len(rowEnds)
			rowEnds = append(rowEnds, iv.End)
		} else {
			rowEnds[row] = iv.End
		}
		out[iv.ID] = row
	}
	return out
}

// MaxOverlap returns the largest number of intervals containing a single
// instant, using half-open semantics.
func MaxOverlap(intervals []Interval) int {
	type edge struct {
		at    time.Time
		delta int
	}
	edges := make([]edge, 0, 2*len(intervals))
	for _, iv := range intervals {
		edges = append(edges, edge{iv.Start, +1}, edge{iv.End, -1})
	}
	// Ends sort before starts at the same instant so touching intervals
	// are never counted together.
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].at.Equal(edges[j].at) {
			return edges[i].delta < edges[j].delta
		}
		return edges[i].at.Before(edges[j].at)
	})

	cur, best := 0, 0
	for _, e := range edges {
		cur += e.delta
		if cur > best {
			best = cur
		}
	}
	return best
}

func sortedByStart(intervals []Interval) []Interval {
	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.ID < b.ID
	})
	return sorted
}
