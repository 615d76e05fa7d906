package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWindow(t *testing.T) Window {
	t.Helper()
	w, err := ComputeWindow(testClock, testSpan, testLoc)
	require.NoError(t, err)
	return w
}

func TestProject_InsideBucket(t *testing.T) {
	p, ok := Project(iv("a", 10, 15, 10, 45), 1, testWindow(t))
	require.True(t, ok)

	assert.Equal(t, "a", p.IntervalID)
	assert.Equal(t, 1, p.Row)
	assert.Equal(t, 0, p.BucketIndex)
	assert.InDelta(t, 25.0, p.LeftPercent, 1e-9)
	assert.InDelta(t, 50.0, p.WidthPercent, 1e-9)
	assert.False(t, p.Overflow)
}

func TestProject_OutsideWindow(t *testing.T) {
	w := testWindow(t)

	for name, in := range map[string]Interval{
		"before":         iv("a", 9, 0, 9, 30),
		"ends at start":  iv("b", 9, 0, 10, 0),
		"starts at end":  iv("c", 13, 0, 13, 30),
		"entirely after": iv("d", 14, 0, 15, 0),
	} {
		_, ok := Project(in, 0, w)
		assert.False(t, ok, name)
	}
}

func TestProject_ClippedStart(t *testing.T) {
	p, ok := Project(iv("a", 9, 30, 10, 15), 0, testWindow(t))
	require.True(t, ok)

	assert.Equal(t, 0, p.BucketIndex)
	assert.InDelta(t, 0.0, p.LeftPercent, 1e-9)
	assert.InDelta(t, 25.0, p.WidthPercent, 1e-9)
	assert.True(t, at(9, 30).Equal(p.Start), "unclipped bounds are kept for display")
}

func TestProject_OverflowIntoNextBucket(t *testing.T) {
	p, ok := Project(iv("a", 10, 30, 11, 30), 0, testWindow(t))
	require.True(t, ok)

	assert.Equal(t, 0, p.BucketIndex)
	assert.InDelta(t, 50.0, p.LeftPercent, 1e-9)
	assert.InDelta(t, 100.0, p.WidthPercent, 1e-9)
	assert.True(t, p.Overflow)
}

func TestProject_ClippedAtWindowEnd(t *testing.T) {
	p, ok := Project(iv("a", 12, 30, 14, 0), 0, testWindow(t))
	require.True(t, ok)

	assert.Equal(t, 2, p.BucketIndex)
	assert.InDelta(t, 50.0, p.LeftPercent, 1e-9)
	assert.InDelta(t, 50.0, p.WidthPercent, 1e-9)
	assert.False(t, p.Overflow)
}

func TestProject_MinimumWidth(t *testing.T) {
	w := Window{
		Start:          at(10, 0),
		End:            at(16, 0),
		BucketCount:    1,
		BucketDuration: 6 * time.Hour,
	}

	p, ok := Project(iv("a", 10, 0, 10, 1), 0, w)
	require.True(t, ok)
	assert.Equal(t, MinWidthPercent, p.WidthPercent)
}

func TestProject_TinyBoxAtBucketEndStaysInside(t *testing.T) {
	in := Interval{ID: "a", Start: at(10, 59).Add(50 * time.Second), End: at(11, 0)}

	p, ok := Project(in, 0, testWindow(t))
	require.True(t, ok)

	assert.Equal(t, MinWidthPercent, p.WidthPercent)
	assert.LessOrEqual(t, p.LeftPercent+p.WidthPercent, 100.0)
	assert.False(t, p.Overflow)
}

func TestProjectSegments(t *testing.T) {
	segs := ProjectSegments(iv("a", 10, 30, 12, 15), 2, testWindow(t))
	require.Len(t, segs, 3)

	want := []struct {
		bucket      int
		left, width float64
	}{
		{0, 50, 50},
		{1, 0, 100},
		{2, 0, 25},
	}
	for i, w := range want {
		s := segs[i]
		assert.Equal(t, i, s.Segment)
		assert.Equal(t, 2, s.Row)
		assert.Equal(t, w.bucket, s.BucketIndex)
		assert.InDelta(t, w.left, s.LeftPercent, 1e-9)
		assert.InDelta(t, w.width, s.WidthPercent, 1e-9)
		assert.False(t, s.Overflow)
	}
}

func TestProjectSegments_OutsideWindow(t *testing.T) {
	assert.Nil(t, ProjectSegments(iv("a", 8, 0, 9, 0), 0, testWindow(t)))
}
