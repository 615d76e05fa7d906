package timeline

import (
	"math"
	"time"

	"apptline/internal/model"
)

// MinWidthPercent is the narrowest box the projector emits, so that very
// short or heavily clipped appointments stay visible.
const MinWidthPercent = 1.0

// PositionedInterval is an interval placed on the grid. LeftPercent and
// WidthPercent are relative to the width of a single bucket.
//
// Overflow marks a box that starts in BucketIndex but runs past the end of
// that bucket; the box is drawn from its starting column and spills into
// the next one. Segment is the 0-based piece number when split projection
// is used, and always 0 otherwise.
type PositionedInterval struct {
	IntervalID   string       `json:"interval_id"`
	Row          int          `json:"row"`
	BucketIndex  int          `json:"bucket_index"`
	LeftPercent  float64      `json:"left_percent"`
	WidthPercent float64      `json:"width_percent"`
	Overflow     bool         `json:"overflow,omitempty"`
	Segment      int          `json:"segment,omitempty"`
	Label        string       `json:"label"`
	Patient      string       `json:"patient,omitempty"`
	Doctor       string       `json:"doctor,omitempty"`
	Status       model.Status `json:"status"`
	Start        time.Time    `json:"start"`
	End          time.Time    `json:"end"`
}

// Project places iv on row within w. It returns false when iv lies entirely
// outside the window.
func Project(iv Interval, row int, w Window) (PositionedInterval, bool) {
	start, end, ok := clip(iv, w)
	if !ok {
		return PositionedInterval{}, false
	}

	idx := w.bucketIndex(start)
	bucketStart := w.Start.Add(time.Duration(idx) * w.BucketDuration)
	bucketEnd := bucketStart.Add(w.BucketDuration)

	p := place(iv, row, idx, start.Sub(bucketStart), end.Sub(start), w.BucketDuration)
	p.Overflow = end.After(bucketEnd)
	if !p.Overflow && p.LeftPercent+p.WidthPercent > 100 {
		p.LeftPercent = round4(100 - p.WidthPercent)
	}
	return p, true
}

// ProjectSegments places iv on row as one piece per bucket it touches.
// No piece overflows its bucket. It returns nil when iv lies entirely
// outside the window.
func ProjectSegments(iv Interval, row int, w Window) []PositionedInterval {
	start, end, ok := clip(iv, w)
	if !ok {
		return nil
	}

	var out []PositionedInterval
	for idx := w.bucketIndex(start); idx < w.BucketCount && start.Before(end); idx++ {
		bucketStart := w.Start.Add(time.Duration(idx) * w.BucketDuration)
		bucketEnd := bucketStart.Add(w.BucketDuration)
		segEnd := end
		if segEnd.After(bucketEnd) {
			segEnd = bucketEnd
		}

		p := place(iv, row, idx, start.Sub(bucketStart), segEnd.Sub(start), w.BucketDuration)
		p.Segment = len(out)
		if p.LeftPercent+p.WidthPercent > 100 {
			p.LeftPercent = round4(100 - p.WidthPercent)
		}
		out = append(out, p)
		start = segEnd
	}
	return out
}

// clip narrows iv to the window.
func clip(iv Interval, w Window) (time.Time, time.Time, bool) {
	if !iv.End.After(w.Start) || !iv.Start.Before(w.End) {
		return time.Time{}, time.Time{}, false
	}
	start, end := iv.Start, iv.End
	if start.Before(w.Start) {
		start = w.Start
	}
	if end.After(w.End) {
		end = w.End
	}
	return start, end, true
}

func place(iv Interval, row, idx int, offset, length, bucket time.Duration) PositionedInterval {
	left := clampFloat(percentOf(offset, bucket), 0, 100-MinWidthPercent)
	width := clampFloat(percentOf(length, bucket), MinWidthPercent, 100)

	return PositionedInterval{
		IntervalID:   iv.ID,
		Row:          row,
		BucketIndex:  idx,
		LeftPercent:  round4(left),
		WidthPercent: round4(width),
		Label:        iv.Label,
		Patient:      iv.Patient,
		Doctor:       iv.Doctor,
		Status:       iv.Status,
		Start:        iv.Start,
		End:          iv.End,
	}
}

func percentOf(d, of time.Duration) float64 {
	if of <= 0 {
		return 0
	}
	return float64(d) / float64(of) * 100
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
