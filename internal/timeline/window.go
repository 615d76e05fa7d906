package timeline

import (
	"fmt"
	"time"
)

// DefaultBucketDuration is the width of one grid column.
const DefaultBucketDuration = time.Hour

// Window is the half-open range [Start, End) shown by the timeline,
// split into BucketCount equal buckets.
type Window struct {
	Start          time.Time     `json:"start"`
	End            time.Time     `json:"end"`
	BucketCount    int           `json:"bucket_count"`
	BucketDuration time.Duration `json:"bucket_duration"`
}

// Bucket is one column of the window.
type Bucket struct {
	Index int       `json:"index"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

// ComputeWindow aligns anchor down to the start of its wall-clock hour in
// loc and returns a window of spanHours one-hour buckets. The window is
// measured in elapsed time, so End-Start is exact even across DST changes.
func ComputeWindow(anchor time.Time, spanHours int, loc *time.Location) (Window, error) {
	if spanHours <= 0 {
		return Window{}, fmt.Errorf("%w: got %d", ErrInvalidSpan, spanHours)
	}
	if loc == nil {
		loc = time.Local
	}

	a := anchor.In(loc)
	start := time.Date(a.Year(), a.Month(), a.Day(), a.Hour(), 0, 0, 0, loc)
	// A repeated wall-clock hour (DST fall-back) can resolve to the other
	// occurrence; stay on the one that contains anchor.
	if start.After(a) {
		start = start.Add(-time.Hour)
	} else if a.Sub(start) >= time.Hour {
		start = start.Add(time.Hour)
	}

	return Window{
		Start:          start,
		End:            start.Add(time.Duration(spanHours) * DefaultBucketDuration),
		BucketCount:    spanHours,
		BucketDuration: DefaultBucketDuration,
	}, nil
}

// BucketDurationMs returns the bucket width in milliseconds.
func (w Window) BucketDurationMs() int64 {
	return w.BucketDuration.Milliseconds()
}

// Contains reports whether t falls inside [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Intersects reports whether iv has any part inside the window.
func (w Window) Intersects(iv Interval) bool {
	return iv.End.After(w.Start) && iv.Start.Before(w.End)
}

// Buckets returns the window's buckets in order.
func (w Window) Buckets() []Bucket {
	out := make([]Bucket, 0, w.BucketCount)
	for i := 0; i < w.BucketCount; i++ {
		s := w.Start.Add(time.Duration(i) * w.BucketDuration)
		out = append(out, Bucket{
			Index: i,
			Start: s,
			End:   s.Add(w.BucketDuration),
			Label: s.Format("15:04"),
		})
	}
	return out
}

// bucketIndex returns the bucket containing t, clamped into the window.
func (w Window) bucketIndex(t time.Time) int {
	if w.BucketDuration <= 0 || w.BucketCount <= 0 {
		return 0
	}
	idx := int(t.Sub(w.Start) / w.BucketDuration)
	if t.Before(w.Start) {
		idx = 0
	}
	if idx > w.BucketCount-1 {
		idx = w.BucketCount - 1
	}
	return idx
}
